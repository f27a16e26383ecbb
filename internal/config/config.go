package config

import (
	"os"

	"voiced/internal/common/fsutil"
)

// Config holds runtime parameters for the daemon. Load starts from
// Default(), so a config file only needs the fields it changes.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultVoice string `json:"default_voice" yaml:"default_voice" toml:"default_voice"`

	Engine      Engine      `json:"engine" yaml:"engine" toml:"engine"`
	Remote      Remote      `json:"remote" yaml:"remote" toml:"remote"`
	Specialized Specialized `json:"specialized" yaml:"specialized" toml:"specialized"`

	Models    []ModelEntry    `json:"models" yaml:"models" toml:"models"`
	Fallbacks []FallbackEntry `json:"fallbacks" yaml:"fallbacks" toml:"fallbacks"`
	Selector  Selector        `json:"selector" yaml:"selector" toml:"selector"`
	Pacing    Pacing          `json:"pacing" yaml:"pacing" toml:"pacing"`
	Timeouts  Timeouts        `json:"timeouts" yaml:"timeouts" toml:"timeouts"`
	CORS      CORS            `json:"cors" yaml:"cors" toml:"cors"`
}

// Engine configures the managed local engine subprocess used by the
// portable-bytecode and hardware-accelerated backends.
type Engine struct {
	// Path to the engine server binary; empty means auto-discover.
	Bin     string `json:"bin" yaml:"bin" toml:"bin"`
	CtxSize int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads int    `json:"threads" yaml:"threads" toml:"threads"`
	// GPU layers to offload in accelerated mode; -1 means all.
	GPULayers int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
}

// Remote configures the OpenAI-compatible hosted API backend. The backend is
// considered configured when a base URL is set and a key is resolvable.
type Remote struct {
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
	// Environment variable consulted when api_key is empty.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
}

// Key returns the configured API key, falling back to the key environment
// variable.
func (r Remote) Key() string {
	if r.APIKey != "" {
		return r.APIKey
	}
	if r.APIKeyEnv != "" {
		return os.Getenv(r.APIKeyEnv)
	}
	return ""
}

// Specialized configures the sidecar edge runtime backend.
type Specialized struct {
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
}

// ModelEntry overrides the catalog assignment for one logical model key.
type ModelEntry struct {
	Key        string `json:"key" yaml:"key" toml:"key"`
	Identifier string `json:"identifier" yaml:"identifier" toml:"identifier"`
	Task       string `json:"task" yaml:"task" toml:"task"`
}

// FallbackEntry overrides the fallback plan for one task kind.
type FallbackEntry struct {
	Task       string   `json:"task" yaml:"task" toml:"task"`
	Candidates []string `json:"candidates" yaml:"candidates" toml:"candidates"`
	Emergency  string   `json:"emergency" yaml:"emergency" toml:"emergency"`
}

// Selector holds the backend-selection pattern lists. Matching is
// case-insensitive substring. The force_portable list is the explicit
// compatibility pin for identifiers that must not run accelerated; it is
// deliberately short and meant to be extended from deployment experience
// rather than guessed at.
type Selector struct {
	RemotePatterns      []string `json:"remote_patterns" yaml:"remote_patterns" toml:"remote_patterns"`
	SpecializedPatterns []string `json:"specialized_patterns" yaml:"specialized_patterns" toml:"specialized_patterns"`
	ConvertedMarkers    []string `json:"converted_markers" yaml:"converted_markers" toml:"converted_markers"`
	ForcePortable       []string `json:"force_portable" yaml:"force_portable" toml:"force_portable"`
}

// Pacing sets the base delays of the simulated token stream. Per-backend
// scaling is applied on top; content and order never depend on pacing.
type Pacing struct {
	WordMS     int `json:"word_ms" yaml:"word_ms" toml:"word_ms"`
	SentenceMS int `json:"sentence_ms" yaml:"sentence_ms" toml:"sentence_ms"`
}

// Timeouts bounds the probe and load stages, in milliseconds.
type Timeouts struct {
	AccelProbeMS   int `json:"accel_probe_ms" yaml:"accel_probe_ms" toml:"accel_probe_ms"`
	SpecInitMS     int `json:"spec_init_ms" yaml:"spec_init_ms" toml:"spec_init_ms"`
	SpecDownloadMS int `json:"spec_download_ms" yaml:"spec_download_ms" toml:"spec_download_ms"`
	LoadMS         int `json:"load_ms" yaml:"load_ms" toml:"load_ms"`
	InferMS        int `json:"infer_ms" yaml:"infer_ms" toml:"infer_ms"`
	DrainMS        int `json:"drain_ms" yaml:"drain_ms" toml:"drain_ms"`
}

// CORS enables cross-origin access for browser clients.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
}

// Default returns the documented defaults. Pattern lists follow the shipped
// catalog; deployments override them in the config file.
func Default() Config {
	return Config{
		Addr:         ":8090",
		LogLevel:     "info",
		ModelsDir:    "~/models/voiced",
		DefaultVoice: "amy",
		Engine: Engine{
			CtxSize:   4096,
			GPULayers: -1,
		},
		Remote: Remote{
			APIKeyEnv: "VOICED_REMOTE_API_KEY",
		},
		Selector: Selector{
			RemotePatterns:      []string{"gpt-", "claude", "gemini", "openrouter/"},
			SpecializedPatterns: []string{"gemma"},
			ConvertedMarkers:    []string{"gguf", "-q4", "-q5", "-q8"},
			ForcePortable:       []string{"qwen3-moe", "mixtral"},
		},
		Pacing: Pacing{
			WordMS:     30,
			SentenceMS: 120,
		},
		Timeouts: Timeouts{
			AccelProbeMS:   3000,
			SpecInitMS:     10000,
			SpecDownloadMS: 120000,
			LoadMS:         60000,
			InferMS:        120000,
			DrainMS:        5000,
		},
	}
}

// ExpandedModelsDir returns ModelsDir with a leading '~' expanded.
func (c Config) ExpandedModelsDir() (string, error) {
	return fsutil.ExpandHome(c.ModelsDir)
}
