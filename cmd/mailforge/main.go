// Package main provides the entry point for the mailforge CLI.
package main

import (
	"context"
	"os"

	"github.com/steadycalls/mailforge/internal/cli"
)

// Build information set via ldflags.
var (
	version = "" //nolint:gochecknoglobals // Set at build time
	commit  = "" //nolint:gochecknoglobals // Set at build time
	date    = "" //nolint:gochecknoglobals // Set at build time
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	os.Exit(cli.ExitCodeForError(err))
}
