package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voiced/internal/audio"
	"voiced/internal/backend"
	"voiced/internal/catalog"
	"voiced/internal/config"
	"voiced/internal/manager"
	"voiced/pkg/types"
)

func buildProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe execution backends and print the capability report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			set, err := buildBackends(cfg, log)
			if err != nil {
				return err
			}
			report := newProber(set, cfg, log).Probe(cmd.Context())
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "ranked:", joinCaps(report.Ranked))
			if len(report.Extras) > 0 {
				fmt.Fprintln(w, "extras:", joinCaps(report.Extras))
			}
			return nil
		},
	}
}

func buildModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the logical model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cat, err := catalog.FromConfig(cfg)
			if err != nil {
				return err
			}
			installed := map[string]bool{}
			if dir, err := cfg.ExpandedModelsDir(); err == nil {
				if ids, err := catalog.InstalledIdentifiers(dir); err == nil {
					for _, id := range ids {
						installed[id] = true
					}
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tTASK\tIDENTIFIER\tINSTALLED\tFALLBACKS")
			for _, spec := range cat.Specs() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					spec.Key, spec.Task, spec.Identifier, yesNo(installed[spec.Identifier]), formatPlan(cat.PlanFor(spec)))
			}
			return tw.Flush()
		},
	}
}

func buildBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench <key>",
		Short: "Load a logical model and benchmark inference round trips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("iterations")
			log := newLogger(cfg.LogLevel)
			mgr, _, err := buildManager(cfg, log, nil)
			if err != nil {
				return err
			}
			defer mgr.UnloadAll()

			key := args[0]
			if err := mgr.Load(cmd.Context(), key, loadProgress(log, key)); err != nil {
				return err
			}
			stats, err := mgr.Benchmark(cmd.Context(), key, n)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.Flags().IntP("iterations", "n", 5, "Number of benchmark iterations")
	return cmd
}

func buildReplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply <in.wav>",
		Short: "Run one speech-to-speech round trip locally",
		Long: "Loads the speech-to-text, text-generation and text-to-speech models,\n" +
			"runs the pipeline on the given WAV file and writes the synthesized reply.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			voice, _ := cmd.Flags().GetString("voice")
			return runReply(cmd.Context(), cfg, args[0], out, voice, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("output", "o", "reply.wav", "Output WAV path")
	cmd.Flags().String("voice", "", "Voice preset (defaults to config default_voice)")
	return cmd
}

func runReply(ctx context.Context, cfg config.Config, inPath, outPath, voice string, w io.Writer) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	buf, err := audio.DecodeWAV(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", inPath, err)
	}

	log := newLogger(cfg.LogLevel)
	mgr, cat, err := buildManager(cfg, log, nil)
	if err != nil {
		return err
	}
	defer mgr.UnloadAll()

	if err := loadPipeline(ctx, mgr, cat, log); err != nil {
		return err
	}
	res, err := mgr.Reply(ctx, buf, manager.ReplyOptions{Voice: voice})
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := res.Audio.EncodeWAV(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", outPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "transcript: %s\n", res.Transcript)
	fmt.Fprintf(w, "reply: %s\n", res.Text)
	fmt.Fprintf(w, "wrote %s (%s audio)\n", outPath, res.Audio.Duration().Round(time.Millisecond))
	return nil
}

// loadPipeline loads the first catalog model for each stage of the
// speech round trip, in pipeline order.
func loadPipeline(ctx context.Context, mgr *manager.Manager, cat *catalog.Catalog, log zerolog.Logger) error {
	keys := map[types.TaskKind]string{}
	for _, spec := range cat.Specs() {
		if _, ok := keys[spec.Task]; !ok {
			keys[spec.Task] = spec.Key
		}
	}
	for _, task := range []types.TaskKind{types.TaskSpeechToText, types.TaskTextGeneration, types.TaskTextToSpeech} {
		key, ok := keys[task]
		if !ok {
			return fmt.Errorf("no catalog model serves %s", task)
		}
		if err := mgr.Load(ctx, key, loadProgress(log, key)); err != nil {
			return err
		}
	}
	return nil
}

// loadProgress logs progress the way the HTTP load stream reports it.
func loadProgress(log zerolog.Logger, key string) backend.ProgressFunc {
	return func(percent int, status string) {
		log.Info().Str("model", key).Int("percent", percent).Str("status", status).Msg("loading")
	}
}

func joinCaps(caps []types.Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatPlan(p catalog.Plan) string {
	parts := append([]string(nil), p.Candidates...)
	if p.Emergency != "" {
		parts = append(parts, p.Emergency+" (emergency)")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
