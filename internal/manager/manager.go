package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/backend"
	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/internal/config"
	"voiced/pkg/types"
)

// Manager owns all orchestration state: the probed capability report, the
// per-model handle registry, the backend override and the counters. It is
// safe for concurrent use; mu guards every mutable field. Handles are
// registered and invalidated only by the loader paths in load.go and
// switch.go; every other file reads them.
type Manager struct {
	mu sync.RWMutex

	catalog  *catalog.Catalog
	backends *backend.Set
	prober   capabilityProber

	probeOnce sync.Once
	probed    bool
	report    capability.Report

	entries map[string]*modelEntry
	order   []string

	// override forces every selection to one capability; empty means
	// automatic selection.
	override types.Capability

	loadsTotal     uint64
	fallbacksTotal uint64
	lastErr        string

	selector config.Selector

	loadTimeout         time.Duration
	inferTimeout        time.Duration
	specInitTimeout     time.Duration
	specDownloadTimeout time.Duration
	wordDelay           time.Duration
	sentenceDelay       time.Duration
	defaultVoice        string

	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time
}

// Initialize runs the capability probe exactly once and caches the
// report. It is idempotent and safe from multiple goroutines; concurrent
// callers block until the first probe completes. Probing never fails:
// unavailable capabilities are simply absent from the report.
func (m *Manager) Initialize(ctx context.Context) {
	m.probeOnce.Do(func() {
		report := m.prober.Probe(ctx)
		m.mu.Lock()
		m.report = report
		m.probed = true
		m.mu.Unlock()
		m.log.Info().
			Interface("ranked", report.Ranked).
			Interface("extras", report.Extras).
			Msg("manager initialized")
		m.publisher.Publish(Event{Name: "probe_complete", Fields: map[string]any{
			"ranked": report.Ranked,
			"extras": report.Extras,
		}})
	})
}

// Ready reports whether the startup probe has completed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probed
}

// Report returns a copy of the cached capability report.
func (m *Manager) Report() capability.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return capability.Report{
		Ranked: append([]types.Capability(nil), m.report.Ranked...),
		Extras: append([]types.Capability(nil), m.report.Extras...),
	}
}

// Override returns the active backend override, empty when selection is
// automatic.
func (m *Manager) Override() types.Capability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.override
}

// DefaultVoice returns the voice used when a speak request names none.
func (m *Manager) DefaultVoice() string { return m.defaultVoice }

// handleFor resolves the ready handle for a key. It returns the handle,
// the capability serving it and the identifier actually loaded.
func (m *Manager) handleFor(key string) (backend.Handle, types.Capability, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, "", "", ErrUnknownModel(key)
	}
	if e.state != StateReady || e.handle == nil {
		return nil, "", "", ErrNotLoaded(key)
	}
	return e.handle, e.capability, e.loaded, nil
}

// touch records a successful use of a key's handle.
func (m *Manager) touch(key string) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.lastUsed = time.Now()
	}
	m.mu.Unlock()
}

// keyFor returns the first catalog key serving the given task.
func (m *Manager) keyFor(task types.TaskKind) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range m.order {
		if m.entries[key].spec.Task == task {
			return key, true
		}
	}
	return "", false
}

// setProgress updates a key's load progress; a pure side channel with no
// effect on control flow.
func (m *Manager) setProgress(key string, percent int, status string) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		e.percent = percent
		e.status = status
	}
	m.mu.Unlock()
}
