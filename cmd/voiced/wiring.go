package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voiced/internal/backend"
	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/internal/config"
	"voiced/internal/manager"
)

// loadConfig reads the file named by --config when present, otherwise
// starts from defaults, then applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// newLogger builds the process logger: console output on stderr at the
// configured level. Unknown levels fall back to info.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// buildBackends constructs the full adapter set from the daemon config.
// Every adapter is registered unconditionally; whether one can actually
// serve is the capability probe's concern.
func buildBackends(cfg config.Config, log zerolog.Logger) (*backend.Set, error) {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	modelsDir, err := cfg.ExpandedModelsDir()
	if err != nil {
		return nil, err
	}
	return backend.NewSet(
		backend.NewInProcess(backend.InProcessConfig{
			ModelsDir: modelsDir,
			CtxSize:   cfg.Engine.CtxSize,
			Threads:   cfg.Engine.Threads,
		}, log),
		backend.NewEngine(backend.EngineConfig{
			Bin:       cfg.Engine.Bin,
			ModelsDir: modelsDir,
			CtxSize:   cfg.Engine.CtxSize,
			Threads:   cfg.Engine.Threads,
			GPULayers: cfg.Engine.GPULayers,
		}, log),
		backend.NewEngine(backend.EngineConfig{
			Bin:         cfg.Engine.Bin,
			ModelsDir:   modelsDir,
			CtxSize:     cfg.Engine.CtxSize,
			Threads:     cfg.Engine.Threads,
			GPULayers:   cfg.Engine.GPULayers,
			Accelerated: true,
		}, log),
		backend.NewSpecialized(backend.SpecializedConfig{
			Endpoint:        cfg.Specialized.Endpoint,
			InitTimeout:     ms(cfg.Timeouts.SpecInitMS),
			DownloadTimeout: ms(cfg.Timeouts.SpecDownloadMS),
		}, log),
		backend.NewRemote(backend.RemoteConfig{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.Key(),
		}, log),
	), nil
}

// newProber bounds the hardware probe with the configured timeout.
func newProber(set *backend.Set, cfg config.Config, log zerolog.Logger) *capability.Prober {
	return capability.NewProber(set, capability.ProberConfig{
		AccelTimeout: time.Duration(cfg.Timeouts.AccelProbeMS) * time.Millisecond,
	}, log)
}

// buildManager assembles catalog, backends and prober into a manager.
// pub may be nil when the caller has no use for lifecycle events.
func buildManager(cfg config.Config, log zerolog.Logger, pub manager.EventPublisher) (*manager.Manager, *catalog.Catalog, error) {
	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}
	set, err := buildBackends(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	mcfg := manager.ManagerConfigFromFile(cfg)
	mcfg.Backends = set
	mcfg.Prober = newProber(set, cfg, log)
	mcfg.Publisher = pub
	mcfg.Logger = log
	return manager.NewWithConfig(cat, mcfg), cat, nil
}
