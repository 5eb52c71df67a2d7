package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/signal"
)

// AddRetryCommand adds the retry command to the root command.
func AddRetryCommand(parent *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reprocess all failed domains",
		Long: `Reset every failed domain to pending and run it through the
provisioning pipeline again.

Provider operations are idempotent get-or-create calls, so retrying is
safe even when some resources (the mail domain, individual DNS records,
aliases) were already created before the failure. The failure history of
each domain is preserved across retries.

Examples:
  mailforge retry
  mailforge retry --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRetry(cmd.Context(), flags, os.Stdout)
		},
	}
	parent.AddCommand(cmd)
}

// runRetry executes the retry command with production dependencies.
func runRetry(ctx context.Context, flags *GlobalFlags, w io.Writer) error {
	logger := GetLogger()

	d, err := buildDeps(ctx, flags, logger)
	if err != nil {
		return err
	}

	if len(d.store.ByState(constants.DomainStatusFailed)) == 0 {
		if flags.Output == OutputJSON {
			_, _ = fmt.Fprintln(w, "[]")
		} else {
			_, _ = fmt.Fprintln(w, "No failed domains to retry.")
		}
		return nil
	}

	handler := signal.NewHandler(ctx)
	defer handler.Stop()

	results, runErr := d.engine.RetryFailed(handler.Context())
	if runErr != nil && results == nil {
		return runErr
	}

	if err := writeResults(w, flags.Output, results); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d domains failed again", n, len(results))
	}
	return nil
}
