package manager

import (
	"context"

	"voiced/pkg/types"
)

// SwitchBackend sets or clears the backend override. An unknown or
// unavailable capability fails with a capability error and leaves every
// handle and the current override untouched. A valid switch invalidates
// all loaded handles first, then installs the override, so no handle
// from the previous backend survives into the new selection; models
// reload on demand. The empty string restores automatic selection.
func (m *Manager) SwitchBackend(ctx context.Context, name string) error {
	target, ok := types.ParseCapability(name)
	if !ok {
		return ErrCapabilityUnavailable(name)
	}
	if target != "" {
		m.Initialize(ctx)
		m.mu.RLock()
		available := m.report.Available(target)
		m.mu.RUnlock()
		if !available {
			return ErrCapabilityUnavailable(name)
		}
	}

	m.UnloadAll()

	m.mu.Lock()
	m.override = target
	m.mu.Unlock()

	m.publisher.Publish(Event{Name: "backend_switch", Fields: map[string]any{"backend": string(target)}})
	m.log.Info().Str("backend", string(target)).Msg("backend override changed")
	return nil
}

// Unload closes and removes a key's handle; unloading an idle key is a
// no-op.
func (m *Manager) Unload(key string) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownModel(key)
	}
	h := e.handle
	e.handle = nil
	e.capability = ""
	e.loaded = ""
	e.fallback = false
	e.state = StateIdle
	e.percent = 0
	e.status = ""
	m.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", key).Msg("closing handle")
		}
		m.publisher.Publish(Event{Name: "unload", Model: key, Fields: map[string]any{}})
	}
	return nil
}

// UnloadAll invalidates every loaded handle.
func (m *Manager) UnloadAll() {
	m.mu.RLock()
	keys := append([]string(nil), m.order...)
	m.mu.RUnlock()
	for _, key := range keys {
		_ = m.Unload(key)
	}
}
