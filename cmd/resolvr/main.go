// Package main is the resolvr command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/daemon"
	"github.com/allaspectsdev/resolvr/internal/logging"
	"github.com/allaspectsdev/resolvr/internal/tracing"
	"github.com/allaspectsdev/resolvr/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resolvr",
		Short: "Resolve style requests through scoped middleware chains",
		Long: `resolvr resolves a request to a handler by running it through the
middleware chain of a named scope. Scopes nest: a scope whose chain declines
falls back to its parent's chain.

Example:
  resolvr resolve docs code:go "fmt.Println"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (TOML)")
	root.PersistentFlags().String("data-dir", daemon.DefaultDataDir, "Directory for watch mode runtime files")

	root.AddCommand(
		newResolveCmd(),
		newReplayCmd(),
		newWatchCmd(),
		newStopCmd(),
		newStatusCmd(),
		newScopesCmd(),
		newMiddlewareCmd(),
		newFormatsCmd(),
		newInitConfigCmd(),
		newConfigExportCmd(),
		newConfigImportCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the config named by --config, or the default search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func dataDir(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return "", fmt.Errorf("failed to get data-dir flag: %w", err)
	}
	return dir, nil
}

// setup loads config and configures logging and tracing for a one-shot
// command. The returned func flushes tracing.
func setup(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(logging.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: cmd.ErrOrStderr()})

	if !cfg.Tracing.Enabled {
		return cfg, func() {}, nil
	}
	shutdown, err := tracing.Init(cmd.Context(), tracing.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version.Version,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown error")
		}
	}, nil
}
