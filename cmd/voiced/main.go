package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voiced:", err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the command tree. Config path and log level
// are persistent so every subcommand resolves them the same way.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voiced",
		Short:         "Local speech-to-speech model daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", os.Getenv("VOICED_CONFIG"), "Config file (.yaml, .json or .toml; defaults VOICED_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.AddCommand(buildServeCmd(), buildProbeCmd(), buildModelsCmd(), buildBenchCmd(), buildReplyCmd())
	return root
}
