package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"voiced/pkg/types"
)

// InProcessConfig configures the baseline-cpu adapter: the model loads into
// this process via the bundled engine bindings (build tag 'llama').
type InProcessConfig struct {
	ModelsDir string
	CtxSize   int
	Threads   int
}

// InProcess is the last-resort execution backend. It is always listed by
// the capability probe; binaries built without the 'llama' tag fail at load
// time with a clear dependency error instead.
type InProcess struct {
	cfg InProcessConfig
	log zerolog.Logger
}

func NewInProcess(cfg InProcessConfig, log zerolog.Logger) *InProcess {
	if cfg.CtxSize <= 0 {
		cfg.CtxSize = 2048
	}
	return &InProcess{cfg: cfg, log: log}
}

func (b *InProcess) Capability() types.Capability { return types.CapabilityBaselineCPU }

// Probe always succeeds: baseline availability is a guarantee, not a
// measurement.
func (b *InProcess) Probe(ctx context.Context) error { return nil }

// Built reports whether the real engine bindings were compiled in.
func (b *InProcess) Built() bool { return inProcessBuilt }

func (b *InProcess) Load(ctx context.Context, spec LoadSpec, onProgress ProgressFunc) (Handle, error) {
	if spec.Task != types.TaskTextGeneration {
		return nil, fmt.Errorf("task %q not supported by the in-process engine", spec.Task)
	}
	path := filepath.Join(b.cfg.ModelsDir, spec.Identifier+".gguf")
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		return nil, fmt.Errorf("model artifact not found: %s", path)
	}
	if onProgress != nil {
		onProgress(20, "loading model into process")
	}
	sess, err := newInProcessSession(path, b.cfg)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(90, "model resident")
	}
	b.log.Debug().Str("identifier", spec.Identifier).Msg("in-process model loaded")
	return &inProcessHandle{spec: spec, sess: sess}, nil
}

// inProcessSession is provided by the build-tagged engine binding files.
type inProcessSession interface {
	predict(ctx context.Context, prompt string, p Params) (string, error)
	close()
}

type inProcessHandle struct {
	spec LoadSpec
	sess inProcessSession
}

func (h *inProcessHandle) Identifier() string { return h.spec.Identifier }

func (h *inProcessHandle) Capability() types.Capability { return types.CapabilityBaselineCPU }

func (h *inProcessHandle) Close() error {
	h.sess.close()
	return nil
}

func (h *inProcessHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	if req.Task != types.TaskTextGeneration {
		return InvokeResult{}, fmt.Errorf("unsupported task %q", req.Task)
	}
	text, err := h.sess.predict(ctx, req.Text, req.Params)
	if err != nil {
		return InvokeResult{}, err
	}
	return InvokeResult{Text: text}, nil
}
