// Helpers for retrying ledger calls with exponential backoff.
package boff

import (
	"context"
	"time"

	"rwa-market-indexer/config"
	"rwa-market-indexer/logger"

	"github.com/cenkalti/backoff/v5"
)

func RetryWithMaxElapsed[T any](ctx context.Context, operation func() (T, error), name string) (T, error) {
	return RetryFor(ctx, operation, name, config.BackoffMaxElapsedTime)
}

// RetryFor gives up once maxElapsedTime has passed since the first attempt.
// Errors wrapped with Permanent are returned without further attempts.
func RetryFor[T any](ctx context.Context, operation func() (T, error), name string, maxElapsedTime time.Duration) (T, error) {
	bOff := backoff.NewExponentialBackOff()
	bOff.MaxInterval = 15 * time.Second

	return backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(bOff),
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithNotify(
			func(err error, d time.Duration) {
				logger.Debug("%s error: %s - retrying after %v", name, err, d)
			},
		),
	)
}

func Permanent(err error) error {
	return backoff.Permanent(err)
}
