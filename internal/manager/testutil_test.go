package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/backend"
	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/internal/config"
	"voiced/pkg/types"
)

// fakeHandle is a scripted handle; invokeFn receives the 1-based call
// number.
type fakeHandle struct {
	identifier string
	capability types.Capability
	invokeFn   func(call int, req backend.InvokeRequest) (backend.InvokeResult, error)

	mu      sync.Mutex
	invokes int
	closed  bool
}

func (h *fakeHandle) Invoke(_ context.Context, req backend.InvokeRequest) (backend.InvokeResult, error) {
	h.mu.Lock()
	h.invokes++
	call := h.invokes
	fn := h.invokeFn
	h.mu.Unlock()
	if fn != nil {
		return fn(call, req)
	}
	return backend.InvokeResult{Text: "ok"}, nil
}

func (h *fakeHandle) Identifier() string           { return h.identifier }
func (h *fakeHandle) Capability() types.Capability { return h.capability }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) invokeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invokes
}

// scriptedBackend is a Backend whose load outcomes are scripted per
// identifier. It records every attempted identifier in order.
type scriptedBackend struct {
	capability types.Capability
	probeErr   error
	loadDelay  time.Duration
	failAll    error
	fail       map[string]error
	invokeFn   func(call int, req backend.InvokeRequest) (backend.InvokeResult, error)

	mu       sync.Mutex
	attempts []string
	handles  []*fakeHandle
}

func (b *scriptedBackend) Capability() types.Capability { return b.capability }

func (b *scriptedBackend) Probe(context.Context) error { return b.probeErr }

func (b *scriptedBackend) Load(_ context.Context, ls backend.LoadSpec, onProgress backend.ProgressFunc) (backend.Handle, error) {
	b.mu.Lock()
	b.attempts = append(b.attempts, ls.Identifier)
	b.mu.Unlock()
	if onProgress != nil {
		onProgress(50, "loading "+ls.Identifier)
	}
	if b.loadDelay > 0 {
		time.Sleep(b.loadDelay)
	}
	if b.failAll != nil {
		return nil, b.failAll
	}
	if err := b.fail[ls.Identifier]; err != nil {
		return nil, err
	}
	h := &fakeHandle{identifier: ls.Identifier, capability: b.capability, invokeFn: b.invokeFn}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *scriptedBackend) attemptList() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.attempts...)
}

func (b *scriptedBackend) lastHandle() *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

// fixedProber returns a canned report and counts invocations.
type fixedProber struct {
	mu     sync.Mutex
	calls  int
	report capability.Report
}

func (p *fixedProber) Probe(context.Context) capability.Report {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.report
}

func (p *fixedProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// newTestManager builds an initialized Manager over scripted backends
// with a fixed probe report, a memory publisher and no logging.
func newTestManager(t *testing.T, cat *catalog.Catalog, report capability.Report, backends ...backend.Backend) *Manager {
	t.Helper()
	m := NewWithConfig(cat, ManagerConfig{
		Backends:  backend.NewSet(backends...),
		Prober:    &fixedProber{report: report},
		Publisher: NewMemoryPublisher(0),
		Logger:    zerolog.Nop(),
	})
	m.Initialize(context.Background())
	return m
}

// cascadeCatalog routes text-generation to the specialized runtime and
// scripts a three-candidate fallback plan.
func cascadeCatalog(t *testing.T, candidates []string, emergency string) *catalog.Catalog {
	t.Helper()
	cfg := config.Default()
	cfg.Models = []config.ModelEntry{{Key: "text-generation", Identifier: "gemma-2b-it"}}
	cfg.Fallbacks = []config.FallbackEntry{{
		Task:       "text-generation",
		Candidates: candidates,
		Emergency:  emergency,
	}}
	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return cat
}

// genCatalog overrides the text-generation identifier on the default
// catalog.
func genCatalog(t *testing.T, identifier string) *catalog.Catalog {
	t.Helper()
	cfg := config.Default()
	cfg.Models = []config.ModelEntry{{Key: "text-generation", Identifier: identifier}}
	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return cat
}

func modelStatus(t *testing.T, m *Manager, key string) types.ModelStatus {
	t.Helper()
	for _, ms := range m.Models() {
		if ms.Key == key {
			return ms
		}
	}
	t.Fatalf("model %q not listed", key)
	return types.ModelStatus{}
}

func hasEvent(m *Manager, name string) bool {
	pub, ok := m.publisher.(*MemoryPublisher)
	if !ok {
		return false
	}
	for _, e := range pub.Events() {
		if e.Name == name {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
