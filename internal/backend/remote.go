package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

// RemoteConfig configures the hosted OpenAI-compatible backend. The backend
// is unconfigured (and the probe fails) without a base URL and key.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
}

// Remote speaks an OpenAI-compatible API: /chat/completions for text,
// /audio/transcriptions and /audio/speech for the speech tasks. Text
// prompts are framed as role-based messages here, so the runner hands this
// backend raw prompts without template wrapping.
type Remote struct {
	cfg   RemoteConfig
	log   zerolog.Logger
	httpc *http.Client
}

func NewRemote(cfg RemoteConfig, log zerolog.Logger) *Remote {
	return &Remote{cfg: cfg, log: log, httpc: &http.Client{}}
}

func (r *Remote) Capability() types.Capability { return types.CapabilityRemoteAPI }

func (r *Remote) Configured() bool {
	return strings.TrimSpace(r.cfg.BaseURL) != "" && strings.TrimSpace(r.cfg.APIKey) != ""
}

func (r *Remote) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + r.cfg.APIKey}
}

func (r *Remote) url(path string) string {
	return strings.TrimRight(r.cfg.BaseURL, "/") + path
}

// Probe lists the provider's models, bounded by ctx.
func (r *Remote) Probe(ctx context.Context) error {
	if !r.Configured() {
		return fmt.Errorf("remote API not configured")
	}
	return getJSON(ctx, r.httpc, r.url("/models"), r.headers(), nil)
}

type remoteModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Load validates the identifier against the provider's model listing. No
// provider-side state is created; the handle is a client binding.
func (r *Remote) Load(ctx context.Context, spec LoadSpec, onProgress ProgressFunc) (Handle, error) {
	if !r.Configured() {
		return nil, fmt.Errorf("remote API not configured")
	}
	if onProgress != nil {
		onProgress(30, "checking provider catalog")
	}
	var list remoteModelList
	if err := getJSON(ctx, r.httpc, r.url("/models"), r.headers(), &list); err != nil {
		return nil, fmt.Errorf("list provider models: %w", err)
	}
	found := false
	for _, m := range list.Data {
		if m.ID == spec.Identifier {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("model %q not in provider catalog", spec.Identifier)
	}
	if onProgress != nil {
		onProgress(90, "provider model available")
	}
	return &remoteHandle{remote: r, spec: spec}, nil
}

type remoteHandle struct {
	remote *Remote
	spec   LoadSpec
}

func (h *remoteHandle) Identifier() string { return h.spec.Identifier }

func (h *remoteHandle) Capability() types.Capability { return types.CapabilityRemoteAPI }

func (h *remoteHandle) Close() error { return nil }

func (h *remoteHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	switch req.Task {
	case types.TaskTextGeneration:
		return h.chat(ctx, req)
	case types.TaskSpeechToText:
		return h.transcribe(ctx, req)
	case types.TaskTextToSpeech:
		return h.speak(ctx, req)
	default:
		return InvokeResult{}, fmt.Errorf("unsupported task %q", req.Task)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Seed        int64         `json:"seed,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (h *remoteHandle) chat(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	in := chatRequest{
		Model:       h.spec.Identifier,
		Messages:    []chatMessage{{Role: "user", Content: req.Text}},
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		Stop:        req.Params.Stop,
		Seed:        req.Params.Seed,
	}
	var out chatResponse
	if err := postJSON(ctx, h.remote.httpc, h.remote.url("/chat/completions"), h.remote.headers(), in, &out); err != nil {
		return InvokeResult{}, err
	}
	if len(out.Choices) == 0 {
		return InvokeResult{}, fmt.Errorf("provider returned no choices")
	}
	return InvokeResult{Text: strings.TrimSpace(out.Choices[0].Message.Content)}, nil
}

func (h *remoteHandle) transcribe(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	buf, err := audio.Resample(req.Audio, audio.EngineRate)
	if err != nil {
		return InvokeResult{}, err
	}
	fields := map[string]string{"model": h.spec.Identifier}
	if req.Params.Language != "" {
		fields["language"] = req.Params.Language
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := postWAVMultipart(ctx, h.remote.httpc, h.remote.url("/audio/transcriptions"), h.remote.headers(), buf, fields, &out); err != nil {
		return InvokeResult{}, err
	}
	return InvokeResult{Text: strings.TrimSpace(out.Text)}, nil
}

func (h *remoteHandle) speak(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	in := map[string]any{
		"model":           h.spec.Identifier,
		"input":           req.Text,
		"response_format": "wav",
	}
	if req.Params.Voice != "" {
		in["voice"] = req.Params.Voice
	}
	raw, err := postJSONRaw(ctx, h.remote.httpc, h.remote.url("/audio/speech"), h.remote.headers(), in)
	if err != nil {
		return InvokeResult{}, err
	}
	buf, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return InvokeResult{}, fmt.Errorf("decode provider speech: %w", err)
	}
	return InvokeResult{Audio: buf}, nil
}
