package types

import (
	"encoding/json"
	"math"
)

// BenchmarkStats aggregates latency over the successful iterations of one
// benchmark run. When no iteration succeeded the aggregates are NaN, which
// encodes to JSON null rather than a misleading zero.
type BenchmarkStats struct {
	// Benchmark run identifier.
	// example: 7b6f1c02-43a8-4b5e-9f39-2d6a818f2b55
	RunID string `json:"run_id" example:"7b6f1c02-43a8-4b5e-9f39-2d6a818f2b55"`
	// Logical model key that was benchmarked.
	// example: text-generation
	Model string `json:"model" example:"text-generation"`
	// Backend the loaded handle ran on.
	// example: portable-bytecode
	Backend Capability `json:"backend" example:"portable-bytecode"`
	// Requested iteration count.
	// example: 5
	Iterations int `json:"iterations" example:"5"`
	// Iterations that completed without error.
	// example: 4
	Succeeded int `json:"succeeded" example:"4"`
	// Per-success latency samples in milliseconds, in run order.
	SampleMS []float64 `json:"sample_ms"`
	// Mean latency over successes in milliseconds; null when no successes.
	AvgMS float64 `json:"avg_ms"`
	// Minimum latency over successes in milliseconds; null when no successes.
	MinMS float64 `json:"min_ms"`
	// Maximum latency over successes in milliseconds; null when no successes.
	MaxMS float64 `json:"max_ms"`
}

// MarshalJSON encodes NaN aggregates as null; encoding/json rejects NaN.
func (b BenchmarkStats) MarshalJSON() ([]byte, error) {
	type alias BenchmarkStats
	return json.Marshal(struct {
		alias
		AvgMS any `json:"avg_ms"`
		MinMS any `json:"min_ms"`
		MaxMS any `json:"max_ms"`
	}{
		alias: alias(b),
		AvgMS: nanToNull(b.AvgMS),
		MinMS: nanToNull(b.MinMS),
		MaxMS: nanToNull(b.MaxMS),
	})
}

func nanToNull(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
