package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voiced/internal/config"
	"voiced/internal/httpapi"
	"voiced/internal/manager"
)

// eventBufferSize bounds the in-memory event ring served by /v1/events.
const eventBufferSize = 256

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voiced HTTP daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, &cfg)
			return runServe(cfg)
		},
	}
	cmd.Flags().String("addr", os.Getenv("VOICED_ADDR"), "HTTP listen address (defaults VOICED_ADDR or config addr, e.g. :8090)")
	cmd.Flags().String("models-dir", "", "Directory holding local model artifacts (overrides config)")
	cmd.Flags().String("engine-bin", "", "Engine server binary (overrides config)")
	cmd.Flags().Bool("cors", false, "Enable CORS for browser clients (overrides config)")
	return cmd
}

// applyServeFlags layers explicit serve flags over the loaded config.
// Empty string flags mean "keep the config value".
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Addr = v
	}
	if v, _ := cmd.Flags().GetString("models-dir"); v != "" {
		cfg.ModelsDir = v
	}
	if v, _ := cmd.Flags().GetString("engine-bin"); v != "" {
		cfg.Engine.Bin = v
	}
	if cmd.Flags().Changed("cors") {
		cfg.CORS.Enabled, _ = cmd.Flags().GetBool("cors")
	}
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	events := manager.NewMemoryPublisher(eventBufferSize)
	mgr, _, err := buildManager(cfg, log, events)
	if err != nil {
		return err
	}

	// baseCtx parents every in-flight stream; cancelling it aborts them
	// once the drain window has passed.
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpapi.SetLogger(log.With().Str("component", "httpapi").Logger())
	httpapi.SetEventSource(events)
	httpapi.SetMetricsSource(mgr)
	httpapi.SetBaseContext(baseCtx)
	if cfg.CORS.Enabled {
		httpapi.SetCORSOptions(true, cfg.CORS.Origins, nil, nil)
	}

	// Probe in the background so the listener comes up immediately;
	// /readyz answers "starting" until the report lands.
	go mgr.Initialize(baseCtx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.New(mgr)}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("models_dir", cfg.ModelsDir).
			Str("version", version).
			Msg("voiced listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	drain := time.Duration(cfg.Timeouts.DrainMS) * time.Millisecond
	if drain <= 0 {
		drain = 5 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), drain)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("drain window elapsed, aborting in-flight requests")
	}
	cancel()
	mgr.UnloadAll()
	log.Info().Msg("shutdown complete")
	return nil
}
