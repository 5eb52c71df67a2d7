package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/steadycalls/mailforge/internal/constants"
	"github.com/steadycalls/mailforge/internal/domain"
)

// AddStatusCommand adds the status command to the root command.
func AddStatusCommand(parent *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provisioning status for all domains",
		Long: `Display the provisioning state of every tracked domain.

The status table shows:
  • DOMAIN   - Domain name
  • STATUS   - Current pipeline state
  • ATTEMPTS - Number of processing attempts
  • UPDATED  - Time of the last state change
  • LAST ERROR - Most recent recorded error, if any

Reading status requires no provider credentials.

Examples:
  mailforge status               # Display status table
  mailforge status --output json # Display as JSON`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), flags, os.Stdout)
		},
	}
	parent.AddCommand(cmd)
}

// runStatus executes the status command with production dependencies.
func runStatus(ctx context.Context, flags *GlobalFlags, w io.Writer) error {
	logger := GetLogger()

	cfg, err := loadConfig(ctx, flags, logger)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	records := store.All()
	if len(records) == 0 {
		if flags.Output == OutputJSON {
			_, _ = fmt.Fprintln(w, "[]")
		} else {
			_, _ = fmt.Fprintln(w, "No domains tracked. Run 'mailforge provision' to start.")
		}
		return nil
	}

	if flags.Output == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	return writeStatusTable(w, records, store.Summary(), flags.Quiet)
}

// writeStatusTable renders the per-domain table plus a state summary line.
func writeStatusTable(w io.Writer, records []*domain.DomainRecord, summary map[constants.DomainStatus]int, quiet bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DOMAIN\tSTATUS\tATTEMPTS\tUPDATED\tLAST ERROR")

	for _, rec := range records {
		lastErr := ""
		if n := len(rec.Errors); n > 0 {
			lastErr = rec.Errors[n-1].Message
			if len(lastErr) > 60 {
				lastErr = lastErr[:57] + "..."
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			rec.Domain, rec.Status, rec.Attempts,
			rec.UpdatedAt.Format(time.RFC3339), lastErr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if quiet {
		return nil
	}

	_, _ = fmt.Fprintln(w)
	for _, status := range constants.AllDomainStatuses {
		if count := summary[status]; count > 0 {
			_, _ = fmt.Fprintf(w, "  %s: %d\n", status, count)
		}
	}
	return nil
}
