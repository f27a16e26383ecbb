package types

// Capability identifies an execution backend class, ordered here from most
// to least capable for documentation purposes only; the real ranking comes
// from the capability probe at startup.
type Capability string

const (
	// CapabilityAccelerated runs the local engine with full GPU offload.
	CapabilityAccelerated Capability = "hardware-accelerated"
	// CapabilityPortable runs the local engine in CPU-only mode.
	CapabilityPortable Capability = "portable-bytecode"
	// CapabilityBaselineCPU runs the in-process engine with conservative settings.
	CapabilityBaselineCPU Capability = "baseline-cpu"
	// CapabilitySpecialized uses the sidecar edge runtime over HTTP.
	CapabilitySpecialized Capability = "specialized-runtime"
	// CapabilityRemoteAPI uses an OpenAI-compatible hosted API.
	CapabilityRemoteAPI Capability = "remote-api"
)

// Capabilities returns every known capability tag.
func Capabilities() []Capability {
	return []Capability{
		CapabilityAccelerated,
		CapabilityPortable,
		CapabilityBaselineCPU,
		CapabilitySpecialized,
		CapabilityRemoteAPI,
	}
}

// ParseCapability maps a wire tag to a Capability. The empty string is
// accepted and means "automatic selection".
func ParseCapability(s string) (Capability, bool) {
	if s == "" {
		return "", true
	}
	for _, c := range Capabilities() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// TaskKind is the kind of work a logical model performs. The task names
// double as the default logical model keys.
type TaskKind string

const (
	TaskSpeechToText   TaskKind = "speech-to-text"
	TaskTextGeneration TaskKind = "text-generation"
	TaskTextToSpeech   TaskKind = "text-to-speech"
)

// ParseTask maps a wire tag to a TaskKind.
func ParseTask(s string) (TaskKind, bool) {
	switch TaskKind(s) {
	case TaskSpeechToText, TaskTextGeneration, TaskTextToSpeech:
		return TaskKind(s), true
	}
	return "", false
}

// ModelSpec describes a logical model: a stable key that callers use, the
// concrete model identifier currently assigned to it, and the task it serves.
type ModelSpec struct {
	// Stable logical key callers address the model by.
	// example: text-generation
	Key string `json:"key" example:"text-generation"`
	// Concrete model identifier resolved for the key.
	// example: llama-3.2-3b-instruct-q4_k_m
	Identifier string `json:"identifier" example:"llama-3.2-3b-instruct-q4_k_m"`
	// Task kind this model serves.
	// example: text-generation
	Task TaskKind `json:"task" example:"text-generation"`
}
