//go:build llama

package backend

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"
)

// inProcessBuilt indicates this binary was compiled with real engine support.
const inProcessBuilt = true

type llamaSession struct {
	model   *llama.LLama
	threads int
}

func newInProcessSession(modelPath string, cfg InProcessConfig) (inProcessSession, error) {
	m, err := llama.New(modelPath, llama.SetContext(cfg.CtxSize))
	if err != nil {
		return nil, err
	}
	return &llamaSession{model: m, threads: cfg.Threads}, nil
}

func (s *llamaSession) predict(ctx context.Context, prompt string, p Params) (string, error) {
	if s.model == nil {
		return "", errors.New("model not initialized")
	}
	// Bridge the token callback to context cancellation.
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	text, err := s.model.Predict(prompt, predictOptions(p, s.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (s *llamaSession) close() {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
}

// predictOptions converts Params into engine options, keeping engine
// defaults for zero values.
func predictOptions(p Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(intOr(p.MaxTokens, 256)),
		llama.SetThreads(intOr(threads, 4)),
		llama.SetTopP(f32Or(float32(p.TopP), llama.DefaultOptions.TopP)),
		llama.SetTopK(intOr(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(f32Or(float32(p.Temperature), llama.DefaultOptions.Temperature)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func f32Or(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
