// Package backend defines the execution backend contract and the adapters
// that implement it: the in-process engine (baseline-cpu), the managed
// engine subprocess (portable-bytecode and hardware-accelerated), the
// sidecar edge runtime (specialized-runtime) and the hosted API
// (remote-api).
package backend

import (
	"context"

	"voiced/internal/audio"
	"voiced/pkg/types"
)

// ProgressFunc receives load progress: percent is 0-100 for determinate
// stages and -1 on failure, status is a short human-readable stage
// description. Implementations must not block for long and never error.
type ProgressFunc func(percent int, status string)

// Params are generation/synthesis knobs passed through to the backend.
// Zero values mean "backend default".
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
	Stop        []string
	Seed        int64
	Voice       string
	Language    string
}

// LoadSpec names what to load: the logical key (for logs), the concrete
// model identifier, and the task the handle will serve.
type LoadSpec struct {
	Key        string
	Identifier string
	Task       types.TaskKind
}

// InvokeRequest is one inference call. Text carries the prompt (generation)
// or the sentence to synthesize (text-to-speech); Audio carries speech input
// (speech-to-text).
type InvokeRequest struct {
	Task   types.TaskKind
	Text   string
	Audio  audio.Buffer
	Params Params
}

// InvokeResult carries the backend output for the task kind invoked.
type InvokeResult struct {
	Text  string
	Audio audio.Buffer
}

// Handle is a loaded model on one backend. Handles are borrowed for single
// calls and never mutated by callers; Close releases backend resources and
// invalidates the handle.
type Handle interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
	Identifier() string
	Capability() types.Capability
	Close() error
}

// Backend is one execution capability. Probe answers "can this backend
// serve right now" bounded by ctx; it is called during startup probing and
// must not panic. Load produces a ready Handle or an error.
type Backend interface {
	Capability() types.Capability
	Probe(ctx context.Context) error
	Load(ctx context.Context, spec LoadSpec, onProgress ProgressFunc) (Handle, error)
}

// Set indexes the configured backends by capability.
type Set struct {
	byCap map[types.Capability]Backend
}

// NewSet builds a Set; later duplicates of a capability win so tests can
// shadow real adapters.
func NewSet(backends ...Backend) *Set {
	s := &Set{byCap: map[types.Capability]Backend{}}
	for _, b := range backends {
		if b == nil {
			continue
		}
		s.byCap[b.Capability()] = b
	}
	return s
}

// Get returns the backend registered for a capability.
func (s *Set) Get(c types.Capability) (Backend, bool) {
	b, ok := s.byCap[c]
	return b, ok
}

// Has reports whether a capability has a registered backend.
func (s *Set) Has(c types.Capability) bool {
	_, ok := s.byCap[c]
	return ok
}
