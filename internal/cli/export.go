package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// AddExportFailuresCommand adds the export-failures command to the root
// command.
func AddExportFailuresCommand(parent *cobra.Command, flags *GlobalFlags) {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export-failures",
		Short: "Write a JSON report of all failed domains",
		Long: `Write a JSON report describing every failed domain: attempt
counts, last attempt time, and the full error history. Intended for
feeding failures into external tooling or ticketing.

Requires no provider credentials.

Examples:
  mailforge export-failures --out failures.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExportFailures(cmd.Context(), flags, outPath, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "failures.json", "path of the report file")

	parent.AddCommand(cmd)
}

// runExportFailures executes the export-failures command.
func runExportFailures(ctx context.Context, flags *GlobalFlags, outPath string, w io.Writer) error {
	logger := GetLogger()

	cfg, err := loadConfig(ctx, flags, logger)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	if err := store.ExportFailures(outPath); err != nil {
		return err
	}

	if !flags.Quiet {
		_, _ = fmt.Fprintf(w, "Failure report written to %s\n", outPath)
	}
	return nil
}
