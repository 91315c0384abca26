package catalog

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// isConflictError reports whether err looks like the embedded-engine
// "lock held" / "write conflict" class, the only class §4.2 says is
// eligible for retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock") || strings.Contains(msg, "conflict") || strings.Contains(msg, "busy")
}

// withConflictRetry retries op up to 3 total attempts with an initial
// 0.5s delay doubling each retry, but only for errors isConflictError
// classifies as transient. Any other error returns immediately.
func withConflictRetry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall-clock

	bounded := backoff.WithMaxRetries(b, 2) // 2 retries + 1 initial = 3 attempts

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isConflictError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bounded)
}
