package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/daemon"
	"github.com/allaspectsdev/resolvr/internal/format"
	"github.com/allaspectsdev/resolvr/internal/plugin"
	"github.com/allaspectsdev/resolvr/internal/service"
	"github.com/allaspectsdev/resolvr/internal/version"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the scope tree in sync with the config file until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dir, err := dataDir(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			return daemon.Run(cmd.Context(), cfg, daemon.Options{ConfigPath: path, DataDir: dir})
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running watch process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := dataDir(cmd)
			if err != nil {
				return err
			}
			if err := daemon.Stop(dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "resolvr stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether watch mode is running and its last stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := dataDir(cmd)
			if err != nil {
				return err
			}
			return daemon.Status(dir)
		},
	}
}

func newScopesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List the configured scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			svc, err := service.New(cfg)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), svc.Scopes())
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPARENT\tTAGS\tMIDDLEWARE\tPASS")
			for _, s := range svc.Scopes() {
				parent := s.Parent
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%t\n", s.Name, parent, s.Tags, s.Middleware, s.PassThru)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print scopes as JSON")
	return cmd
}

func newMiddlewareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "middleware",
		Short: "List the middleware plugins scopes can use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range plugin.Default().List() {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Description)
			}
			tw.Flush()
		},
	}
}

var formatSample = format.Props{Text: "sample"}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the available formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, done, err := setup(cmd)
			if err != nil {
				return err
			}
			defer done()

			svc, err := service.New(cfg)
			if err != nil {
				return err
			}
			formats := svc.Formats()
			for _, name := range formats.Names() {
				h, _ := formats.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, h.Render(formatSample))
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Generate the default config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := config.InitConfig(); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			return nil
		},
	}
}

func newConfigExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-export [file]",
		Short: "Export the current config to a TOML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "resolvr-export.toml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			if err := config.ExportConfig(path); err != nil {
				return fmt.Errorf("exporting config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config exported to %s\n", path)
			return nil
		},
	}
}

func newConfigImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-import <file>",
		Short: "Validate a TOML config file and make it the active config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Locate the active config file so the import is persisted there.
			if _, err := loadConfig(cmd); err != nil {
				fmt.Fprintf(os.Stderr, "warning: current config did not load: %v\n", err)
			}
			if err := config.ImportConfig(args[0]); err != nil {
				return fmt.Errorf("importing config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config imported from %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
