package manager

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

const defaultBenchIterations = 5

// Benchmark runs sequential inference round trips against a logical
// model with a fixed synthetic input per task kind and aggregates
// wall-clock latency over the successful iterations. A failed iteration
// is logged and excluded rather than aborting the run; when every
// iteration failed the aggregates are NaN, which the JSON encoding
// reports as null instead of a misleading zero.
func (m *Manager) Benchmark(ctx context.Context, key string, iterations int) (types.BenchmarkStats, error) {
	spec, ok := m.catalog.Lookup(key)
	if !ok {
		return types.BenchmarkStats{}, ErrUnknownModel(key)
	}
	if iterations <= 0 {
		iterations = defaultBenchIterations
	}

	stats := types.BenchmarkStats{
		RunID:      uuid.NewString(),
		Model:      key,
		Iterations: iterations,
		SampleMS:   []float64{},
	}
	if _, used, _, err := m.handleFor(key); err == nil {
		stats.Backend = used
	}

	for i := 1; i <= iterations; i++ {
		start := time.Now()
		if err := m.benchOnce(ctx, key, spec.Task); err != nil {
			m.log.Warn().Err(err).Str("model", key).Int("iteration", i).Msg("benchmark iteration failed")
			continue
		}
		stats.SampleMS = append(stats.SampleMS, float64(time.Since(start).Microseconds())/1000.0)
	}
	stats.Succeeded = len(stats.SampleMS)
	stats.AvgMS, stats.MinMS, stats.MaxMS = aggregate(stats.SampleMS)

	m.publisher.Publish(Event{Name: "benchmark_complete", Model: key, Fields: map[string]any{
		"run":        stats.RunID,
		"iterations": iterations,
		"succeeded":  stats.Succeeded,
	}})
	return stats, nil
}

func (m *Manager) benchOnce(ctx context.Context, key string, task types.TaskKind) error {
	switch task {
	case types.TaskSpeechToText:
		_, err := m.Transcribe(ctx, key, audio.Tone(440, time.Second, audio.EngineRate))
		return err
	case types.TaskTextToSpeech:
		_, err := m.Speak(ctx, key, "The quick brown fox jumps over the lazy dog.", "")
		return err
	default:
		_, err := m.Generate(ctx, key, "Briefly describe what you can do.", GenerateOptions{MaxTokens: 64})
		return err
	}
}

// aggregate computes avg/min/max over samples, NaN when none.
func aggregate(samples []float64) (avg, min, max float64) {
	if len(samples) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	min, max = samples[0], samples[0]
	var sum float64
	for _, s := range samples {
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return sum / float64(len(samples)), min, max
}
