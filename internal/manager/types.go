package manager

import (
	"time"

	"voiced/internal/backend"
	"voiced/pkg/types"
)

// State is the lifecycle state of one logical model.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// modelEntry is the manager's bookkeeping for one logical model key.
// All fields are guarded by Manager.mu.
type modelEntry struct {
	spec types.ModelSpec

	state      State
	handle     backend.Handle
	capability types.Capability
	// loaded is the identifier actually serving the key; it differs from
	// spec.Identifier when a fallback candidate won the cascade.
	loaded   string
	fallback bool

	lastErr  string
	lastUsed time.Time

	percent int
	status  string
}

func (e *modelEntry) toStatus() types.ModelStatus {
	st := types.ModelStatus{
		Key:        e.spec.Key,
		Identifier: e.spec.Identifier,
		Task:       e.spec.Task,
		State:      string(e.state),
		Backend:    e.capability,
		Fallback:   e.fallback,
	}
	if e.loaded != "" && e.loaded != e.spec.Identifier {
		st.Loaded = e.loaded
	}
	if !e.lastUsed.IsZero() {
		st.LastUsed = e.lastUsed.Unix()
	}
	return st
}
