package types

// GenerateRequest represents a text generation request payload.
type GenerateRequest struct {
	// Optional logical model key. If empty, "text-generation" is used.
	// example: text-generation
	Model string `json:"model,omitempty" example:"text-generation"`
	// Required prompt text to generate a reply for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// If true, stream word/sentence/complete events as NDJSON.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences. Generation stops when any sequence is matched.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
	// Random seed for reproducibility; 0 or omitted lets the backend choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// GenerateResponse is the non-streaming generation result.
type GenerateResponse struct {
	// Unwrapped reply text.
	// example: Waves fold into foam.
	Text string `json:"text" example:"Waves fold into foam."`
	// Backend the reply was generated on.
	// example: portable-bytecode
	Backend Capability `json:"backend" example:"portable-bytecode"`
}

// TranscribeResponse is returned by POST /v1/transcribe.
type TranscribeResponse struct {
	// Recognized text.
	// example: turn on the kitchen lights
	Text string `json:"text" example:"turn on the kitchen lights"`
}

// SpeakRequest represents a speech synthesis request payload.
type SpeakRequest struct {
	// Optional logical model key. If empty, "text-to-speech" is used.
	// example: text-to-speech
	Model string `json:"model,omitempty" example:"text-to-speech"`
	// Text to synthesize.
	// example: The kitchen lights are on.
	Text string `json:"text" example:"The kitchen lights are on."`
	// Optional voice name understood by the synthesis backend.
	// example: amy
	Voice string `json:"voice,omitempty" example:"amy"`
}

// ReplyResponse is returned by POST /v1/reply: the full pipeline result.
type ReplyResponse struct {
	// Text recognized from the uploaded audio.
	// example: what's the weather like
	Transcript string `json:"transcript" example:"what's the weather like"`
	// Generated reply text.
	// example: I don't have live weather data.
	Text string `json:"text" example:"I don't have live weather data."`
	// Base64-encoded WAV of the spoken reply.
	AudioB64 string `json:"audio_b64"`
	// Sample rate of the reply audio in Hz.
	// example: 22050
	SampleRate int `json:"sample_rate" example:"22050"`
}

// LoadRequest asks the server to load a logical model.
type LoadRequest struct {
	// Logical model key to load.
	// example: text-generation
	Model string `json:"model" example:"text-generation"`
}

// LoadProgress is one NDJSON line of load progress.
type LoadProgress struct {
	// Progress percentage 0-100, or -1 on failure.
	// example: 40
	Percent int `json:"percent" example:"40"`
	// Short human-readable stage description.
	// example: waiting for engine health
	Status string `json:"status" example:"waiting for engine health"`
	// True on the terminal line of a successful load.
	// example: false
	Done bool `json:"done,omitempty" example:"false"`
	// Error message on the terminal line of a failed load.
	Error string `json:"error,omitempty"`
	// Backend the model was loaded on; set on the terminal line.
	// example: portable-bytecode
	Backend Capability `json:"backend,omitempty" example:"portable-bytecode"`
}

// SwitchRequest selects an execution backend for subsequent loads.
type SwitchRequest struct {
	// Backend tag, or empty to restore automatic selection.
	// example: portable-bytecode
	Backend string `json:"backend" example:"portable-bytecode"`
}

// BenchRequest asks for a latency benchmark of a logical model.
type BenchRequest struct {
	// Logical model key to benchmark.
	// example: text-generation
	Model string `json:"model" example:"text-generation"`
	// Number of sequential iterations; defaults to 5.
	// example: 5
	Iterations int `json:"iterations,omitempty" example:"5"`
}

// ModelStatus summarizes one logical model for /v1/status and /v1/models.
type ModelStatus struct {
	// Logical model key.
	// example: text-generation
	Key string `json:"key" example:"text-generation"`
	// Identifier assigned by the catalog.
	// example: llama-3.2-3b-instruct-q4_k_m
	Identifier string `json:"identifier" example:"llama-3.2-3b-instruct-q4_k_m"`
	// Task kind this model serves.
	// example: text-generation
	Task TaskKind `json:"task" example:"text-generation"`
	// Lifecycle state: idle, loading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Backend the current handle runs on, when loaded.
	// example: portable-bytecode
	Backend Capability `json:"backend,omitempty" example:"portable-bytecode"`
	// Identifier actually loaded when a fallback replaced the catalog one.
	// example: llama-3.2-1b-instruct-q4_k_m
	Loaded string `json:"loaded,omitempty" example:"llama-3.2-1b-instruct-q4_k_m"`
	// True when the loaded identifier came from the fallback plan.
	// example: false
	Fallback bool `json:"fallback,omitempty" example:"false"`
	// Last time this model served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix,omitempty" example:"1700000000"`
}

// ModelsResponse wraps the list of logical models returned by GET /v1/models.
type ModelsResponse struct {
	// Logical models known to the catalog.
	Models []ModelStatus `json:"models"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	// Per-model load state.
	Models []ModelStatus `json:"models"`
	// Ranked device capabilities, best first; baseline-cpu is always last.
	// example: ["portable-bytecode","baseline-cpu"]
	Ranked []Capability `json:"ranked"`
	// Non-device capabilities available as extras.
	// example: ["remote-api"]
	Extras []Capability `json:"extras,omitempty"`
	// Active backend override; empty means automatic selection.
	// example: portable-bytecode
	Override Capability `json:"override,omitempty" example:"portable-bytecode"`
	// Overall manager state (e.g., starting, ready).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Total number of successful model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of loads that succeeded via the fallback plan.
	// example: 2
	FallbacksTotal uint64 `json:"fallbacks_total" example:"2"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
