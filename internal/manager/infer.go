package manager

import (
	"context"
	"fmt"
	"strings"

	"voiced/internal/audio"
	"voiced/internal/backend"
	"voiced/internal/prompt"
	"voiced/pkg/types"
)

// GenerateOptions tunes one generation call. Zero values defer to the
// backend defaults; a non-nil OnEvent replays the result through the
// streaming emitter after the call resolves.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
	Seed        int64
	Stop        []string
	OnEvent     func(types.StreamEvent)
}

// Generate runs text generation through the key's loaded handle: wrap
// the prompt for the detected model family, invoke, unwrap. The remote
// backend frames conversations itself, so its prompts are passed through
// raw. Generation failures surface directly; the manager never retries
// them, since silently repeating a conversational call could duplicate
// upstream side effects.
func (m *Manager) Generate(ctx context.Context, key, userPrompt string, opts GenerateOptions) (string, error) {
	if err := m.requireTask(key, types.TaskTextGeneration); err != nil {
		return "", err
	}
	h, used, loaded, err := m.handleFor(key)
	if err != nil {
		return "", err
	}

	family := prompt.Detect(loaded)
	input := userPrompt
	params := backend.Params{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
		Seed:        opts.Seed,
		Stop:        opts.Stop,
	}
	if used != types.CapabilityRemoteAPI {
		input = prompt.Wrap(family, userPrompt)
		params.Stop = append(prompt.StopSequences(family), opts.Stop...)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.inferTimeout)
	defer cancel()
	res, err := h.Invoke(callCtx, backend.InvokeRequest{
		Task:   types.TaskTextGeneration,
		Text:   input,
		Params: params,
	})
	if err != nil {
		return "", ErrGeneration(err)
	}
	m.touch(key)

	out := strings.TrimSpace(res.Text)
	if used != types.CapabilityRemoteAPI {
		out = prompt.Unwrap(family, res.Text)
	}

	if opts.OnEvent != nil {
		if _, err := m.EmitStream(ctx, out, m.PacingFor(used), opts.OnEvent); err != nil {
			return "", err
		}
	}
	return out, nil
}

// Transcribe converts speech to text through the key's loaded handle.
func (m *Manager) Transcribe(ctx context.Context, key string, buf audio.Buffer) (string, error) {
	if err := m.requireTask(key, types.TaskSpeechToText); err != nil {
		return "", err
	}
	h, _, _, err := m.handleFor(key)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.inferTimeout)
	defer cancel()
	res, err := h.Invoke(callCtx, backend.InvokeRequest{Task: types.TaskSpeechToText, Audio: buf})
	if err != nil {
		return "", ErrGeneration(err)
	}
	m.touch(key)
	return strings.TrimSpace(res.Text), nil
}

// Speak synthesizes text through the key's loaded handle. An empty voice
// selects the configured default.
func (m *Manager) Speak(ctx context.Context, key, text, voice string) (audio.Buffer, error) {
	if err := m.requireTask(key, types.TaskTextToSpeech); err != nil {
		return audio.Buffer{}, err
	}
	h, _, _, err := m.handleFor(key)
	if err != nil {
		return audio.Buffer{}, err
	}
	if voice == "" {
		voice = m.defaultVoice
	}
	callCtx, cancel := context.WithTimeout(ctx, m.inferTimeout)
	defer cancel()
	res, err := h.Invoke(callCtx, backend.InvokeRequest{
		Task:   types.TaskTextToSpeech,
		Text:   text,
		Params: backend.Params{Voice: voice},
	})
	if err != nil {
		return audio.Buffer{}, ErrGeneration(err)
	}
	m.touch(key)
	return res.Audio, nil
}

// requireTask checks that a key exists and serves the wanted task kind.
func (m *Manager) requireTask(key string, want types.TaskKind) error {
	spec, ok := m.catalog.Lookup(key)
	if !ok {
		return ErrUnknownModel(key)
	}
	if spec.Task != want {
		return fmt.Errorf("model %s serves %s, not %s", key, spec.Task, want)
	}
	return nil
}
