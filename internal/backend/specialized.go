package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

// SpecializedConfig configures the sidecar edge runtime backend. Runtime
// initialization and model download are bounded separately; either timeout
// is a backend failure that the loader's fallback cascade absorbs.
type SpecializedConfig struct {
	Endpoint        string
	InitTimeout     time.Duration
	DownloadTimeout time.Duration
}

// Specialized talks to a compact edge runtime over HTTP: POST /runtime/init
// once per load, POST /models/pull streaming NDJSON progress, then
// /generate, /transcribe and /speak for inference.
type Specialized struct {
	cfg   SpecializedConfig
	log   zerolog.Logger
	httpc *http.Client
}

func NewSpecialized(cfg SpecializedConfig, log zerolog.Logger) *Specialized {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 2 * time.Minute
	}
	return &Specialized{cfg: cfg, log: log, httpc: &http.Client{}}
}

func (s *Specialized) Capability() types.Capability { return types.CapabilitySpecialized }

func (s *Specialized) Configured() bool { return strings.TrimSpace(s.cfg.Endpoint) != "" }

func (s *Specialized) url(path string) string {
	return strings.TrimRight(s.cfg.Endpoint, "/") + path
}

// Probe checks the runtime's health endpoint, bounded by ctx.
func (s *Specialized) Probe(ctx context.Context) error {
	if !s.Configured() {
		return fmt.Errorf("edge runtime not configured")
	}
	return getJSON(ctx, s.httpc, s.url("/healthz"), nil, nil)
}

// Load initializes the runtime and pulls the model, each stage under its
// own timeout. Download progress forwards to onProgress scaled into 10-90.
func (s *Specialized) Load(ctx context.Context, spec LoadSpec, onProgress ProgressFunc) (Handle, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("edge runtime not configured")
	}
	emit := func(p int, msg string) {
		if onProgress != nil {
			onProgress(p, msg)
		}
	}

	initCtx, cancelInit := context.WithTimeout(ctx, s.cfg.InitTimeout)
	defer cancelInit()
	if err := postJSON(initCtx, s.httpc, s.url("/runtime/init"), nil, map[string]any{}, nil); err != nil {
		return nil, fmt.Errorf("initialize edge runtime: %w", err)
	}
	emit(10, "edge runtime initialized")

	if err := s.pull(ctx, spec.Identifier, emit); err != nil {
		return nil, err
	}
	emit(90, "edge model ready")
	return &specializedHandle{spec: spec, backend: s}, nil
}

type pullProgress struct {
	Percent int    `json:"percent"`
	Status  string `json:"status"`
	Done    bool   `json:"done"`
	Error   string `json:"error"`
}

func (s *Specialized) pull(ctx context.Context, identifier string, emit func(int, string)) error {
	dlCtx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"model": identifier})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(dlCtx, http.MethodPost, s.url("/models/pull"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("pull model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return httpError("pull model", resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sawDone := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var p pullProgress
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			continue
		}
		if p.Error != "" {
			return fmt.Errorf("pull model: %s", p.Error)
		}
		if p.Done {
			sawDone = true
			break
		}
		pct := p.Percent
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
		status := p.Status
		if status == "" {
			status = "downloading model"
		}
		// scale into the 10-90 band between init and ready
		emit(10+pct*8/10, status)
	}
	if err := sc.Err(); err != nil {
		if dlCtx.Err() != nil {
			return fmt.Errorf("pull model: %w", dlCtx.Err())
		}
		return fmt.Errorf("pull model: %w", err)
	}
	if !sawDone {
		if dlCtx.Err() != nil {
			return fmt.Errorf("pull model: %w", dlCtx.Err())
		}
		return fmt.Errorf("pull model: stream ended without completion")
	}
	return nil
}

type specializedHandle struct {
	spec    LoadSpec
	backend *Specialized
}

func (h *specializedHandle) Identifier() string { return h.spec.Identifier }

func (h *specializedHandle) Capability() types.Capability { return types.CapabilitySpecialized }

func (h *specializedHandle) Close() error { return nil }

func (h *specializedHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	switch req.Task {
	case types.TaskTextGeneration:
		in := map[string]any{
			"model":  h.spec.Identifier,
			"prompt": req.Text,
		}
		if req.Params.MaxTokens > 0 {
			in["max_tokens"] = req.Params.MaxTokens
		}
		if req.Params.Temperature > 0 {
			in["temperature"] = req.Params.Temperature
		}
		var out struct {
			Text string `json:"text"`
		}
		if err := postJSON(ctx, h.backend.httpc, h.backend.url("/generate"), nil, in, &out); err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{Text: strings.TrimSpace(out.Text)}, nil

	case types.TaskSpeechToText:
		buf, err := audio.Resample(req.Audio, audio.EngineRate)
		if err != nil {
			return InvokeResult{}, err
		}
		var out struct {
			Text string `json:"text"`
		}
		fields := map[string]string{"model": h.spec.Identifier}
		if err := postWAVMultipart(ctx, h.backend.httpc, h.backend.url("/transcribe"), nil, buf, fields, &out); err != nil {
			return InvokeResult{}, err
		}
		return InvokeResult{Text: strings.TrimSpace(out.Text)}, nil

	case types.TaskTextToSpeech:
		in := map[string]any{"model": h.spec.Identifier, "input": req.Text}
		if req.Params.Voice != "" {
			in["voice"] = req.Params.Voice
		}
		raw, err := postJSONRaw(ctx, h.backend.httpc, h.backend.url("/speak"), nil, in)
		if err != nil {
			return InvokeResult{}, err
		}
		buf, err := audio.DecodeWAV(bytes.NewReader(raw))
		if err != nil {
			return InvokeResult{}, fmt.Errorf("decode edge speech: %w", err)
		}
		return InvokeResult{Audio: buf}, nil

	default:
		return InvokeResult{}, fmt.Errorf("unsupported task %q", req.Task)
	}
}
