//go:build !llama

package backend

import "fmt"

// This file compiles when the 'llama' build tag is NOT set, keeping default
// builds and CI CGO-free. The real binding lives in inprocess_llama.go.

// inProcessBuilt indicates this binary was compiled with real engine support.
const inProcessBuilt = false

func newInProcessSession(modelPath string, cfg InProcessConfig) (inProcessSession, error) {
	// Fail fast: the in-process engine is not available in this build.
	return nil, fmt.Errorf("in-process engine not built (missing 'llama' build tag)")
}
