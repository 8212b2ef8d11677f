package boff

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRetryForEventuallySucceeds(t *testing.T) {
	attempts := 0
	value, err := RetryFor(context.Background(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("node unavailable")
		}
		return 42, nil
	}, "test", 10*time.Second)

	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.Equal(t, 3, attempts)
}

func TestRetryForPermanent(t *testing.T) {
	attempts := 0
	sentinel := errors.New("reverted")
	_, err := RetryFor(context.Background(), func() (int, error) {
		attempts++
		return 0, Permanent(sentinel)
	}, "test", 10*time.Second)

	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, attempts)
}

func TestRetryForContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryFor(ctx, func() (int, error) {
		return 0, errors.New("node unavailable")
	}, "test", time.Minute)

	require.Error(t, err)
}
