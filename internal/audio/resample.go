package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts the buffer to the target sample rate using the pure Go
// resampler. Same-rate input is returned unchanged.
func Resample(b Buffer, rate int) (Buffer, error) {
	if rate <= 0 {
		return Buffer{}, fmt.Errorf("invalid target rate %d", rate)
	}
	if b.SampleRate == rate || len(b.Samples) == 0 {
		return Buffer{Samples: b.Samples, SampleRate: rate}, nil
	}
	if b.SampleRate <= 0 {
		return Buffer{}, fmt.Errorf("invalid source rate %d", b.SampleRate)
	}

	cfg := &resampling.Config{
		InputRate:  float64(b.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	rs, err := resampling.New(cfg)
	if err != nil {
		return Buffer{}, fmt.Errorf("create resampler: %w", err)
	}

	in := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		in[i] = float64(s)
	}
	out, err := rs.Process(in)
	if err != nil {
		return Buffer{}, fmt.Errorf("resample: %w", err)
	}

	samples := make([]float32, len(out))
	for i, s := range out {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = float32(s)
	}
	return Buffer{Samples: samples, SampleRate: rate}, nil
}
