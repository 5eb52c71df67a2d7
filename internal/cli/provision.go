package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/errors"
	"github.com/steadycalls/mailforge/internal/pipeline"
	"github.com/steadycalls/mailforge/internal/signal"
)

// AddProvisionCommand adds the provision command to the root command.
func AddProvisionCommand(parent *cobra.Command, flags *GlobalFlags) {
	var domainsFile string

	cmd := &cobra.Command{
		Use:   "provision [domains...]",
		Short: "Provision email infrastructure for domains",
		Long: `Provision email infrastructure for one or more domains.

Each domain is registered with Forward Email, its verification DNS
records are created in Cloudflare, the command waits for verification,
and configured aliases are created. Domains are processed concurrently
and progress is persisted after every step, so the command can be
re-run safely: already-completed domains are skipped and partially
provisioned domains resume from their last completed step.

Domains can be passed as arguments or read from a file with one domain
per line (lines starting with '#' are ignored).

Examples:
  mailforge provision example.com example.org
  mailforge provision --file domains.txt
  mailforge provision example.com --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), flags, args, domainsFile, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&domainsFile, "file", "f", "", "file with one domain per line")

	parent.AddCommand(cmd)
}

// runProvision executes the provision command with production dependencies.
func runProvision(ctx context.Context, flags *GlobalFlags, args []string, domainsFile string, w io.Writer) error {
	logger := GetLogger()

	names, err := collectDomains(args, domainsFile)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Wrap(errors.ErrEmptyValue, "no domains given, pass them as arguments or via --file")
	}

	d, err := buildDeps(ctx, flags, logger)
	if err != nil {
		return err
	}

	// Graceful shutdown: first SIGINT/SIGTERM cancels the run context,
	// in-flight domains persist their current stage and resume next run.
	handler := signal.NewHandler(ctx)
	defer handler.Stop()

	logger.Info().
		Int("domains", len(names)).
		Int("concurrency", d.cfg.Provisioning.Concurrency).
		Str("state_path", d.cfg.State.Path).
		Msg("starting provisioning run")

	results, runErr := d.engine.Run(handler.Context(), names)

	if err := writeResults(w, flags.Output, results); err != nil {
		return err
	}
	if runErr != nil {
		return errors.Wrap(runErr, "provisioning run interrupted")
	}
	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d domains failed, run 'mailforge retry' to reprocess them", n, len(results))
	}
	return nil
}

// collectDomains merges positional arguments and the optional domains
// file into a normalized, deduplicated list.
func collectDomains(args []string, domainsFile string) ([]string, error) {
	names := make([]string, 0, len(args))
	names = append(names, args...)

	if domainsFile != "" {
		f, err := os.Open(domainsFile) //nolint:gosec // User-provided path is intentional
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open domains file '%s'", domainsFile)
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			names = append(names, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrapf(err, "failed to read domains file '%s'", domainsFile)
		}
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// countFailed returns how many results ended in the Failed state or with
// a processing error.
func countFailed(results []pipeline.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil || r.Status == constants.DomainStatusFailed {
			n++
		}
	}
	return n
}

// resultRow is the JSON shape for one provisioning result.
type resultRow struct {
	Domain string `json:"domain"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// writeResults renders the run results in the requested output format.
func writeResults(w io.Writer, output string, results []pipeline.Result) error {
	if output == OutputJSON {
		rows := make([]resultRow, 0, len(results))
		for _, r := range results {
			row := resultRow{Domain: r.Domain, Status: r.Status.String()}
			if r.Err != nil {
				row.Error = r.Err.Error()
			}
			rows = append(rows, row)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			_, _ = fmt.Fprintf(w, "%-40s %s (%v)\n", r.Domain, r.Status, r.Err)
		default:
			_, _ = fmt.Fprintf(w, "%-40s %s\n", r.Domain, r.Status)
		}
	}
	return nil
}
