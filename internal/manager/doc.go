// Package manager orchestrates the voice pipeline: it probes execution
// backends once at startup, selects a backend per model identifier, loads
// models with timeout racing and fallback cascades, and runs
// speech-to-text, text generation and text-to-speech through the loaded
// handles.
//
// The implementation is split by concern to keep files small and focused:
//   - manager.go: Manager struct, constructors, probing and accessors
//   - config.go: ManagerConfig and tunable defaults
//   - types.go: lifecycle states and per-model bookkeeping
//   - errors.go: typed error kinds and predicates
//   - events.go: lifecycle event publishing (memory publisher in
//     eventpub_memory.go)
//   - selector.go: backend selection policy
//   - load.go: load attempts, the timeout race and the fallback cascade
//   - ops.go: asynchronous load operations
//   - infer.go: generate / transcribe / speak on loaded handles
//   - reply.go: the combined speech-to-speech pipeline
//   - stream.go: simulated token streaming
//   - benchmark.go: latency benchmarking
//   - switch.go: backend override and unloading
//   - status.go: read-only projections for the HTTP API
package manager
