// Package audio holds the daemon's PCM interchange type plus WAV encode,
// decode and sample-rate conversion helpers. Everything is mono float32;
// stereo input is downmixed on decode.
package audio

import (
	"math"
	"time"
)

// EngineRate is the sample rate the speech models consume.
const EngineRate = 16000

// Buffer is mono PCM with samples normalized to [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the play time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Tone generates a sine tone, used as deterministic benchmark input.
func Tone(freqHz float64, d time.Duration, rate int) Buffer {
	n := int(float64(rate) * d.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate)))
	}
	return Buffer{Samples: samples, SampleRate: rate}
}
