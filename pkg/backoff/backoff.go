// Package backoff centralizes the retry policies used by the gateway and the
// client subscriber, built on cenkalti/backoff.
package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Constant returns a fixed-interval policy capped at maxRetries attempts.
// Used by the client subscriber reconnect loop: bounded, not forever.
func Constant(interval time.Duration, maxRetries uint64) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), maxRetries)
}

// Retry runs op under the given policy until it succeeds or the policy gives up.
func Retry(op func() error, policy backoff.BackOff) error {
	return backoff.Retry(op, policy)
}

// Permanent marks an error as non-retryable; Retry stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
