package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/backend"
	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/internal/config"
)

const (
	defaultLoadTimeout         = 60 * time.Second
	defaultInferTimeout        = 2 * time.Minute
	defaultSpecInitTimeout     = 10 * time.Second
	defaultSpecDownloadTimeout = 2 * time.Minute
	defaultWordDelay           = 30 * time.Millisecond
	defaultSentenceDelay       = 120 * time.Millisecond
	defaultVoiceName           = "amy"
)

// capabilityProber abstracts startup probing so tests can inject fixed
// reports.
type capabilityProber interface {
	Probe(ctx context.Context) capability.Report
}

// ManagerConfig bundles construction parameters for the Manager. Zero
// durations fall back to the package defaults above; a nil Prober is
// built from Backends.
type ManagerConfig struct {
	Backends *backend.Set
	Prober   capabilityProber

	// Selector holds the pattern lists driving backend selection.
	Selector config.Selector

	LoadTimeout         time.Duration
	InferTimeout        time.Duration
	SpecInitTimeout     time.Duration
	SpecDownloadTimeout time.Duration

	WordDelay     time.Duration
	SentenceDelay time.Duration

	DefaultVoice string

	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
	// Logger is used as given; pass zerolog.Nop() to disable logging.
	Logger zerolog.Logger
}

// New constructs a Manager with default tunables and no logging.
func New(cat *catalog.Catalog, backends *backend.Set) *Manager {
	return NewWithConfig(cat, ManagerConfig{Backends: backends, Logger: zerolog.Nop()})
}

// NewWithConfig constructs a Manager with explicit tunables. A nil
// catalog falls back to the shipped default catalog.
func NewWithConfig(cat *catalog.Catalog, cfg ManagerConfig) *Manager {
	if cat == nil {
		cat = catalog.Default()
	}
	if cfg.Backends == nil {
		cfg.Backends = backend.NewSet()
	}
	if cfg.Prober == nil {
		cfg.Prober = capability.NewProber(cfg.Backends, capability.ProberConfig{}, cfg.Logger)
	}
	if len(cfg.Selector.ConvertedMarkers) == 0 && len(cfg.Selector.SpecializedPatterns) == 0 &&
		len(cfg.Selector.RemotePatterns) == 0 && len(cfg.Selector.ForcePortable) == 0 {
		cfg.Selector = config.Default().Selector
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.InferTimeout <= 0 {
		cfg.InferTimeout = defaultInferTimeout
	}
	if cfg.SpecInitTimeout <= 0 {
		cfg.SpecInitTimeout = defaultSpecInitTimeout
	}
	if cfg.SpecDownloadTimeout <= 0 {
		cfg.SpecDownloadTimeout = defaultSpecDownloadTimeout
	}
	if cfg.WordDelay <= 0 {
		cfg.WordDelay = defaultWordDelay
	}
	if cfg.SentenceDelay <= 0 {
		cfg.SentenceDelay = defaultSentenceDelay
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = defaultVoiceName
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}

	m := &Manager{
		catalog:             cat,
		backends:            cfg.Backends,
		prober:              cfg.Prober,
		entries:             map[string]*modelEntry{},
		selector:            cfg.Selector,
		loadTimeout:         cfg.LoadTimeout,
		inferTimeout:        cfg.InferTimeout,
		specInitTimeout:     cfg.SpecInitTimeout,
		specDownloadTimeout: cfg.SpecDownloadTimeout,
		wordDelay:           cfg.WordDelay,
		sentenceDelay:       cfg.SentenceDelay,
		defaultVoice:        cfg.DefaultVoice,
		publisher:           cfg.Publisher,
		log:                 cfg.Logger,
		startTime:           time.Now(),
	}
	for _, spec := range cat.Specs() {
		m.entries[spec.Key] = &modelEntry{spec: spec, state: StateIdle}
		m.order = append(m.order, spec.Key)
	}
	return m
}

// ManagerConfigFromFile derives manager tunables from the daemon config.
func ManagerConfigFromFile(cfg config.Config) ManagerConfig {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return ManagerConfig{
		Selector:            cfg.Selector,
		LoadTimeout:         ms(cfg.Timeouts.LoadMS),
		InferTimeout:        ms(cfg.Timeouts.InferMS),
		SpecInitTimeout:     ms(cfg.Timeouts.SpecInitMS),
		SpecDownloadTimeout: ms(cfg.Timeouts.SpecDownloadMS),
		WordDelay:           ms(cfg.Pacing.WordMS),
		SentenceDelay:       ms(cfg.Pacing.SentenceMS),
		DefaultVoice:        cfg.DefaultVoice,
	}
}
