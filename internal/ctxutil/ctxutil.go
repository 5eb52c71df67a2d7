// Package ctxutil provides context utility functions shared by the pipeline
// and the resilient invoker.
package ctxutil

import (
	"context"
	"time"
)

// Canceled checks if the context has been canceled or exceeded its deadline.
// Returns the context error if done, nil otherwise. Used at function entry
// points throughout the codebase.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// Returns the context error when interrupted so retry loops abandon their
// waits between attempts on shutdown.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
