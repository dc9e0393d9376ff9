package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-errors/errors"
)

const maxRetries = 5

// NewBackoffPolicy builds the exponential backoff schedule used for Docker
// image pulls and container start races (a host port still bound by a
// container mid-teardown).
func NewBackoffPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff(backoff.WithInitialInterval(time.Second))
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

func NewErrorCallback(label string) backoff.Notify {
	attempt := uint(0)
	logger := GetDebugLogger()
	return func(err error, d time.Duration) {
		attempt++
		fmt.Fprintf(logger, "%s failed (attempt %d/%d): %v, retrying in %s\n", label, attempt, maxRetries, err, d)
	}
}

// RetryWithBackoff executes fn until it succeeds, the context is cancelled,
// or the backoff policy is exhausted.
func RetryWithBackoff(ctx context.Context, label string, fn func() error) error {
	b := NewBackoffPolicy(ctx)
	err := backoff.RetryNotify(fn, b, NewErrorCallback(label))
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return err
}
