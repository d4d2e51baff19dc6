package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/casegest/internal/pathstore"
)

const MaxRetries = 3

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// retry runs fn up to MaxRetries times, sleeping wait(attempt) between
// attempts, for as long as fn fails with a retryable error.
func retry(ctx context.Context, log *slog.Logger, wait func(int) time.Duration, fn func() error) error {
	var err error
	for attempt := range MaxRetries {
		err = fn()
		if err == nil || !pathstore.IsRetryable(err) {
			return err
		}
		if attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable error", "attempt", attempt, "error", err)
		select {
		case <-time.After(wait(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
