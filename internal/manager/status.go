package manager

import (
	"time"

	"voiced/pkg/types"
)

// Models lists every catalog model with its load state, in catalog order.
func (m *Manager) Models() []types.ModelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ModelStatus, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.entries[key].toStatus())
	}
	return out
}

// Progress reports the current load progress of a key.
func (m *Manager) Progress(key string) (types.LoadProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return types.LoadProgress{}, false
	}
	p := types.LoadProgress{
		Percent: e.percent,
		Status:  e.status,
		Done:    e.state == StateReady,
		Backend: e.capability,
	}
	if e.state == StateFailed {
		p.Error = e.lastErr
	}
	return p, true
}

// Status builds the full status response for the HTTP API.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := "starting"
	if m.probed {
		state = "ready"
	}
	resp := types.StatusResponse{
		Ranked:         append([]types.Capability(nil), m.report.Ranked...),
		Extras:         append([]types.Capability(nil), m.report.Extras...),
		Override:       m.override,
		State:          state,
		LastError:      m.lastErr,
		LoadsTotal:     m.loadsTotal,
		FallbacksTotal: m.fallbacksTotal,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	resp.Models = make([]types.ModelStatus, 0, len(m.order))
	for _, key := range m.order {
		resp.Models = append(resp.Models, m.entries[key].toStatus())
	}
	return resp
}
