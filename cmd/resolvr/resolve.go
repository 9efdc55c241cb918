package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allaspectsdev/resolvr/internal/metrics"
	"github.com/allaspectsdev/resolvr/internal/service"
)

// errNoHandler is returned when nothing in the scope handled the request.
var errNoHandler = errors.New("no handler")

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <scope> <request> [text...]",
		Short: "Resolve a request in a scope and render text with the handler",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runResolve,
	}
	cmd.Flags().String("fallback", "", "Format rendered when no handler is found")
	cmd.Flags().Bool("json", false, "Print the response as JSON")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, done, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	fallback, _ := cmd.Flags().GetString("fallback")
	asJSON, _ := cmd.Flags().GetBool("json")

	svc, err := service.New(cfg)
	if err != nil {
		return err
	}
	resp, err := svc.Resolve(cmd.Context(), service.Request{
		Scope:    args[0],
		Request:  args[1],
		Text:     strings.Join(args[2:], " "),
		Fallback: fallback,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, resp)
	}
	if !resp.Rendered {
		return fmt.Errorf("%w for %q in scope %q", errNoHandler, resp.Request, resp.Scope)
	}
	fmt.Fprintln(out, resp.Output)
	return nil
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Resolve every line of a request file and print stats",
		Long: `Each non-empty line that does not start with # is "<scope> <request> [text...]".
The file is read from stdin when omitted or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReplay,
	}
	cmd.Flags().String("fallback", "", "Format rendered when no handler is found")
	cmd.Flags().Bool("prometheus", false, "Print stats in Prometheus text format")
	cmd.Flags().Bool("quiet", false, "Do not print rendered output")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, done, err := setup(cmd)
	if err != nil {
		return err
	}
	defer done()

	fallback, _ := cmd.Flags().GetString("fallback")
	prom, _ := cmd.Flags().GetBool("prometheus")
	quiet, _ := cmd.Flags().GetBool("quiet")

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer f.Close()
		in = f
	}

	collector := metrics.NewCollector()
	svc, err := service.New(cfg, service.WithCollector(collector))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fmt.Errorf("line %d: want <scope> <request> [text...]", lineNo)
		}
		resp, err := svc.Resolve(cmd.Context(), service.Request{
			Scope:    fields[0],
			Request:  fields[1],
			Text:     strings.Join(fields[2:], " "),
			Fallback: fallback,
		})
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if quiet {
			continue
		}
		if resp.Rendered {
			fmt.Fprintln(out, resp.Output)
		} else {
			fmt.Fprintf(out, "# %s/%s: %v\n", resp.Scope, resp.Request, errNoHandler)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading replay file: %w", err)
	}

	if prom {
		return metrics.WritePrometheus(out, collector)
	}
	return writeJSON(out, collector.Stats())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
