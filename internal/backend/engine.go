package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

// EngineConfig configures a managed engine subprocess adapter. The same
// adapter serves portable-bytecode (CPU flags) and hardware-accelerated
// (GPU offload flags) depending on Accelerated.
type EngineConfig struct {
	// Bin is the engine server binary; empty means auto-discover.
	Bin       string
	ModelsDir string
	CtxSize   int
	Threads   int
	// GPULayers to offload in accelerated mode; -1 means all.
	GPULayers   int
	Accelerated bool
	// StartupWait bounds the post-spawn health poll.
	StartupWait time.Duration
}

// Engine spawns one engine server process per loaded identifier on a free
// loopback port and speaks its OpenAI-compatible routes: /v1/completions,
// /v1/audio/transcriptions and /v1/audio/speech.
type Engine struct {
	cfg   EngineConfig
	log   zerolog.Logger
	httpc *http.Client

	mu    sync.Mutex
	procs map[string]*engineProc
}

type engineProc struct {
	baseURL string
	cmd     *exec.Cmd
}

// NewEngine builds the adapter; the zero logger disables logging.
func NewEngine(cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.StartupWait <= 0 {
		cfg.StartupWait = 30 * time.Second
	}
	return &Engine{
		cfg:   cfg,
		log:   log,
		httpc: &http.Client{},
		procs: map[string]*engineProc{},
	}
}

func (e *Engine) Capability() types.Capability {
	if e.cfg.Accelerated {
		return types.CapabilityAccelerated
	}
	return types.CapabilityPortable
}

// Probe checks that the engine binary resolves; in accelerated mode it also
// asks the engine for its device list and requires a GPU entry. The exec is
// bounded by ctx.
func (e *Engine) Probe(ctx context.Context) error {
	bin := e.resolveBin()
	if bin == "" {
		return fmt.Errorf("engine binary not found: set engine.bin or install local-ai")
	}
	if !e.cfg.Accelerated {
		return nil
	}
	out, err := exec.CommandContext(ctx, bin, "--list-devices").CombinedOutput()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, marker := range []string{"CUDA", "ROCm", "Vulkan", "Metal", "SYCL"} {
		if strings.Contains(string(out), marker) {
			return nil
		}
	}
	return fmt.Errorf("no GPU device reported by engine")
}

// Load ensures an engine process serves the identifier and returns a handle
// bound to it. A still-healthy process for the same identifier is reused.
func (e *Engine) Load(ctx context.Context, spec LoadSpec, onProgress ProgressFunc) (Handle, error) {
	emit := func(p int, s string) {
		if onProgress != nil {
			onProgress(p, s)
		}
	}
	modelPath, err := e.modelPath(spec.Identifier)
	if err != nil {
		return nil, err
	}
	emit(5, "resolving model artifact")

	e.mu.Lock()
	if proc, ok := e.procs[spec.Identifier]; ok {
		e.mu.Unlock()
		if e.checkHealth(ctx, proc.baseURL) == nil {
			emit(90, "reusing running engine")
			return &engineHandle{engine: e, spec: spec, baseURL: proc.baseURL}, nil
		}
		e.stopProc(spec.Identifier)
	} else {
		e.mu.Unlock()
	}

	bin := e.resolveBin()
	if bin == "" {
		return nil, fmt.Errorf("engine binary not found: set engine.bin or install local-ai")
	}
	port, err := findFreePort()
	if err != nil {
		return nil, err
	}
	emit(15, "starting engine process")
	cmd, err := e.startProcess(bin, port, modelPath)
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := e.waitForHealth(ctx, baseURL, emit); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	e.mu.Lock()
	e.procs[spec.Identifier] = &engineProc{baseURL: baseURL, cmd: cmd}
	e.mu.Unlock()
	e.log.Debug().Str("identifier", spec.Identifier).Str("base_url", baseURL).Msg("engine process ready")
	return &engineHandle{engine: e, spec: spec, baseURL: baseURL}, nil
}

func (e *Engine) modelPath(identifier string) (string, error) {
	p := filepath.Join(e.cfg.ModelsDir, identifier+".gguf")
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("model artifact not found: %s", p)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("model artifact is a directory: %s", p)
	}
	return p, nil
}

func (e *Engine) resolveBin() string {
	if bin := strings.TrimSpace(e.cfg.Bin); bin != "" {
		if fi, err := os.Stat(bin); err == nil && !fi.IsDir() {
			return bin
		}
		return ""
	}
	return discoverEngineBin()
}

// startProcess launches the engine server. The daemon owns the process
// lifetime, so the spawn deliberately does not inherit the load context.
func (e *Engine) startProcess(bin string, port int, modelPath string) (*exec.Cmd, error) {
	args := []string{
		"--host", "127.0.0.1",
		"--port", fmt.Sprintf("%d", port),
		"-m", modelPath,
	}
	if e.cfg.CtxSize > 0 {
		args = append(args, "--ctx-size", fmt.Sprintf("%d", e.cfg.CtxSize))
	}
	if e.cfg.Threads > 0 {
		args = append(args, "--threads", fmt.Sprintf("%d", e.cfg.Threads))
	}
	if e.cfg.Accelerated {
		layers := e.cfg.GPULayers
		if layers < 0 {
			layers = 999
		}
		args = append(args, "--n-gpu-layers", fmt.Sprintf("%d", layers))
	} else {
		args = append(args, "--n-gpu-layers", "0")
	}
	cmd := exec.Command(bin, args...)
	// Relative assets resolve against the model directory.
	cmd.Dir = filepath.Dir(modelPath)
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go e.drain("stdout", stdout)
	go e.drain("stderr", stderr)
	go func() { _ = cmd.Wait() }()
	return cmd, nil
}

// drain keeps the pipe from filling and surfaces engine output at debug.
func (e *Engine) drain(stream string, r io.Reader) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for s.Scan() {
		e.log.Debug().Str("stream", stream).Msg(s.Text())
	}
}

func (e *Engine) waitForHealth(ctx context.Context, baseURL string, emit func(int, string)) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StartupWait)
	defer cancel()
	start := time.Now()
	for {
		if err := e.checkHealth(ctx, baseURL); err == nil {
			emit(90, "engine healthy")
			return nil
		}
		frac := float64(time.Since(start)) / float64(e.cfg.StartupWait)
		pct := 30 + int(frac*55)
		if pct > 85 {
			pct = 85
		}
		emit(pct, "waiting for engine health")
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine health check timeout: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (e *Engine) checkHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) stopProc(identifier string) {
	e.mu.Lock()
	proc, ok := e.procs[identifier]
	if ok {
		delete(e.procs, identifier)
	}
	e.mu.Unlock()
	if !ok || proc.cmd == nil || proc.cmd.Process == nil {
		return
	}
	_ = proc.cmd.Process.Kill()
}

// Shutdown kills every managed engine process.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.procs))
	for id := range e.procs {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.stopProc(id)
	}
}

func findFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// discoverEngineBin locates the engine server binary in common paths. No
// environment variables are consulted; deployments set engine.bin instead.
func discoverEngineBin() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, ".local", "bin", "local-ai"),
		"/usr/local/bin/local-ai",
		"/opt/homebrew/bin/local-ai",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	if lp, err := exec.LookPath("local-ai"); err == nil {
		return lp
	}
	return ""
}

// engineHandle is a loaded model on a managed engine process.
type engineHandle struct {
	engine  *Engine
	spec    LoadSpec
	baseURL string
}

func (h *engineHandle) Identifier() string { return h.spec.Identifier }

func (h *engineHandle) Capability() types.Capability { return h.engine.Capability() }

func (h *engineHandle) Close() error {
	h.engine.stopProc(h.spec.Identifier)
	return nil
}

func (h *engineHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	switch req.Task {
	case types.TaskTextGeneration:
		return h.complete(ctx, req)
	case types.TaskSpeechToText:
		return h.transcribe(ctx, req)
	case types.TaskTextToSpeech:
		return h.speak(ctx, req)
	default:
		return InvokeResult{}, fmt.Errorf("unsupported task %q", req.Task)
	}
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func (h *engineHandle) complete(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	in := completionRequest{
		Model:       h.spec.Identifier,
		Prompt:      req.Text,
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		TopK:        req.Params.TopK,
		Stop:        req.Params.Stop,
		Seed:        req.Params.Seed,
	}
	var out completionResponse
	if err := postJSON(ctx, h.engine.httpc, h.baseURL+"/v1/completions", nil, in, &out); err != nil {
		return InvokeResult{}, err
	}
	if len(out.Choices) == 0 {
		return InvokeResult{}, fmt.Errorf("engine returned no choices")
	}
	return InvokeResult{Text: out.Choices[0].Text}, nil
}

func (h *engineHandle) transcribe(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
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
	if err := postWAVMultipart(ctx, h.engine.httpc, h.baseURL+"/v1/audio/transcriptions", nil, buf, fields, &out); err != nil {
		return InvokeResult{}, err
	}
	return InvokeResult{Text: strings.TrimSpace(out.Text)}, nil
}

func (h *engineHandle) speak(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	in := map[string]any{
		"model":           h.spec.Identifier,
		"input":           req.Text,
		"response_format": "wav",
	}
	if req.Params.Voice != "" {
		in["voice"] = req.Params.Voice
	}
	raw, err := postJSONRaw(ctx, h.engine.httpc, h.baseURL+"/v1/audio/speech", nil, in)
	if err != nil {
		return InvokeResult{}, err
	}
	buf, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return InvokeResult{}, fmt.Errorf("decode engine speech: %w", err)
	}
	return InvokeResult{Audio: buf}, nil
}
