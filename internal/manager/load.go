package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiced/internal/backend"
	"voiced/pkg/types"
)

// Load resolves a logical key, selects a backend and drives the load to
// completion, cascading through the fallback plan when the specialized
// runtime fails. onProgress may be nil; it is a pure side channel and
// never influences control flow.
func (m *Manager) Load(ctx context.Context, key string, onProgress backend.ProgressFunc) error {
	spec, ok := m.catalog.Lookup(key)
	if !ok {
		return ErrUnknownModel(key)
	}
	m.Initialize(ctx)

	progress := m.progressFunc(key, onProgress)

	m.mu.Lock()
	m.entries[key].state = StateLoading
	m.entries[key].lastErr = ""
	m.mu.Unlock()

	progress(0, "selecting backend")
	chosen := m.selectBackend(spec.Identifier)
	m.publisher.Publish(Event{Name: "load_start", Model: key, Fields: map[string]any{
		"identifier": spec.Identifier,
		"backend":    string(chosen),
	}})

	handle, used, err := m.attempt(ctx, spec, spec.Identifier, chosen, progress)
	loadedID := spec.Identifier
	fellBack := false
	if err != nil && chosen == types.CapabilitySpecialized {
		handle, used, loadedID, err = m.cascade(ctx, spec, err, progress)
		fellBack = err == nil
	}
	if err != nil {
		m.failLoad(key, err, progress)
		return err
	}

	m.register(key, handle, used, loadedID, fellBack)
	progress(100, "ready")
	m.publisher.Publish(Event{Name: "load_ready", Model: key, Fields: map[string]any{
		"identifier": loadedID,
		"backend":    string(used),
		"fallback":   fellBack,
	}})
	m.log.Info().Str("model", key).Str("identifier", loadedID).
		Str("backend", string(used)).Bool("fallback", fellBack).Msg("model loaded")
	return nil
}

// attempt is one full load attempt of one identifier on one capability,
// including the single accelerated downgrade. It returns the capability
// that actually produced the handle.
func (m *Manager) attempt(ctx context.Context, spec types.ModelSpec, identifier string, chosen types.Capability, progress backend.ProgressFunc) (backend.Handle, types.Capability, error) {
	b, ok := m.backends.Get(chosen)
	if !ok {
		return nil, chosen, ErrCapabilityUnavailable(string(chosen))
	}
	ls := backend.LoadSpec{Key: spec.Key, Identifier: identifier, Task: spec.Task}

	budget := m.loadTimeout
	if chosen == types.CapabilitySpecialized {
		// The adapter bounds its init and download stages individually;
		// this is the whole-attempt ceiling.
		budget = m.specInitTimeout + m.specDownloadTimeout
	}

	handle, err := m.raceLoad(ctx, b, ls, budget, progress, string(chosen)+" load")
	if err == nil {
		return handle, chosen, nil
	}

	if chosen == types.CapabilityAccelerated {
		next := m.downgradeTarget()
		m.log.Warn().Err(err).Str("identifier", identifier).
			Str("retry_backend", string(next)).Msg("accelerated load failed, downgrading once")
		m.publisher.Publish(Event{Name: "load_downgrade", Model: spec.Key, Fields: map[string]any{
			"identifier": identifier,
			"to":         string(next),
			"error":      err.Error(),
		}})
		progress(5, "retrying on "+string(next))
		nb, ok := m.backends.Get(next)
		if !ok {
			return nil, next, ErrCapabilityUnavailable(string(next))
		}
		handle, err = m.raceLoad(ctx, nb, ls, m.loadTimeout, progress, string(next)+" load")
		if err == nil {
			return handle, next, nil
		}
		return nil, next, classifyLoadErr(identifier, err)
	}

	return nil, chosen, classifyLoadErr(identifier, err)
}

// cascade walks the fallback plan after a specialized-runtime failure.
// Candidates are tried strictly in order, each as a full attempt with its
// own backend selection; first success wins. The plan and the logical
// spec are immutable, so candidate substitution is local to this loop,
// and a candidate that itself routes to the specialized runtime gets one
// attempt, never a nested plan walk. Exhaustion returns a FallbackError
// holding exactly one entry per candidate plus one for the emergency
// identifier.
func (m *Manager) cascade(ctx context.Context, spec types.ModelSpec, cause error, progress backend.ProgressFunc) (backend.Handle, types.Capability, string, error) {
	plan := m.catalog.PlanFor(spec)
	attempts := make([]Attempt, 0, len(plan.Candidates)+1)

	m.publisher.Publish(Event{Name: "fallback_start", Model: spec.Key, Fields: map[string]any{
		"cause":      cause.Error(),
		"candidates": len(plan.Candidates),
	}})

	try := func(identifier, label string) (backend.Handle, types.Capability, bool) {
		chosen := m.selectBackend(identifier)
		progress(10, fmt.Sprintf("%s %s on %s", label, identifier, chosen))
		handle, used, err := m.attempt(ctx, spec, identifier, chosen, progress)
		if err == nil {
			return handle, used, true
		}
		attempts = append(attempts, Attempt{Identifier: identifier, Backend: used, Err: err})
		m.log.Warn().Err(err).Str("identifier", identifier).
			Str("backend", string(used)).Msg("fallback attempt failed")
		return nil, "", false
	}

	for _, cand := range plan.Candidates {
		if handle, used, ok := try(cand, "fallback candidate"); ok {
			return handle, used, cand, nil
		}
	}
	if handle, used, ok := try(plan.Emergency, "emergency fallback"); ok {
		return handle, used, plan.Emergency, nil
	}
	return nil, "", "", &FallbackError{Key: spec.Key, Cause: cause, Attempts: attempts}
}

// raceLoad races a backend load against a timer. The in-flight call is
// never cancelled; losing means its result is discarded instead. A handle
// arriving after the timer won is closed and never registered, and its
// late progress updates are suppressed.
func (m *Manager) raceLoad(ctx context.Context, b backend.Backend, ls backend.LoadSpec, budget time.Duration, progress backend.ProgressFunc, stage string) (backend.Handle, error) {
	type result struct {
		handle backend.Handle
		err    error
	}

	// The lock is held across the progress call so that once settle
	// returns, no straggler can still be mid-invocation.
	var settleMu sync.Mutex
	settled := false
	guarded := func(percent int, status string) {
		settleMu.Lock()
		defer settleMu.Unlock()
		if !settled {
			progress(percent, status)
		}
	}
	settle := func() {
		settleMu.Lock()
		settled = true
		settleMu.Unlock()
	}

	res := make(chan result, 1)
	go func() {
		handle, err := b.Load(ctx, ls, guarded)
		res <- result{handle: handle, err: err}
	}()

	discardLate := func() {
		if r := <-res; r.handle != nil {
			_ = r.handle.Close()
			m.log.Debug().Str("identifier", ls.Identifier).Msg("discarded late load result")
		}
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case r := <-res:
		return r.handle, r.err
	case <-timer.C:
		settle()
		go discardLate()
		return nil, ErrStageTimeout(stage, budget)
	case <-ctx.Done():
		settle()
		go discardLate()
		return nil, ctx.Err()
	}
}

// classifyLoadErr wraps backend failures into the load taxonomy. Race
// timeouts and caller cancellation pass through untouched.
func classifyLoadErr(identifier string, err error) error {
	if IsStageTimeout(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return ErrLoadFailed(identifier, err)
}

// downgradeTarget is where a failed accelerated load retries:
// portable-bytecode when ranked, else baseline-cpu.
func (m *Manager) downgradeTarget() types.Capability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.report.Ranked {
		if c == types.CapabilityPortable {
			return c
		}
	}
	return types.CapabilityBaselineCPU
}

// progressFunc fans progress out to the per-key entry and the caller's
// callback.
func (m *Manager) progressFunc(key string, cb backend.ProgressFunc) backend.ProgressFunc {
	return func(percent int, status string) {
		m.setProgress(key, percent, status)
		if cb != nil {
			cb(percent, status)
		}
	}
}

// register installs a handle for a key, closing and thereby invalidating
// any prior handle. Loader paths are the registry's only writers.
func (m *Manager) register(key string, h backend.Handle, used types.Capability, identifier string, fellBack bool) {
	m.mu.Lock()
	e := m.entries[key]
	old := e.handle
	e.handle = h
	e.capability = used
	e.loaded = identifier
	e.fallback = fellBack
	e.state = StateReady
	e.lastErr = ""
	e.percent = 100
	e.status = "ready"
	m.loadsTotal++
	if fellBack {
		m.fallbacksTotal++
	}
	m.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", key).Msg("closing replaced handle")
		}
	}
}

// failLoad records a terminal load failure. A prior handle that was never
// invalidated keeps serving; only a key with nothing loaded goes to the
// failed state.
func (m *Manager) failLoad(key string, err error, progress backend.ProgressFunc) {
	m.mu.Lock()
	e := m.entries[key]
	if e.handle != nil {
		e.state = StateReady
	} else {
		e.state = StateFailed
	}
	e.lastErr = err.Error()
	m.lastErr = err.Error()
	m.mu.Unlock()
	progress(-1, err.Error())
	m.publisher.Publish(Event{Name: "load_failed", Model: key, Fields: map[string]any{"error": err.Error()}})
	m.log.Error().Err(err).Str("model", key).Msg("load failed")
}
