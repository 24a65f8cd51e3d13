package store

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// withRetry runs fn, retrying with jittered exponential backoff when it
// fails on a transient SQLite lock contention error (SQLITE_BUSY /
// SQLITE_LOCKED). This mirrors the reconnect/backoff shape used elsewhere
// in this module for upstream Postgres errors, applied here to the
// store's own single-writer contention instead.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 5
	base := 20 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransientLockError(err) {
			return err
		}

		backoff := base * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int64N(int64(backoff) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff/2 + jitter/2):
		}
	}
	return err
}

func isTransientLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
