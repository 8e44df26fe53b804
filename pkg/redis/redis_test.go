package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		client, err := Open(ctx, "")
		require.ErrorIs(t, err, ErrEmptyURL)
		require.Nil(t, client)
	})

	tests := []struct {
		name string
		url  string
	}{
		{name: "http scheme", url: "http://localhost:6379"},
		{name: "no scheme", url: "localhost:6379"},
		{name: "invalid port", url: "redis://localhost:notaport"},
		{name: "invalid database", url: "redis://localhost:6379/notanumber"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := Open(ctx, tt.url)
			require.ErrorIs(t, err, ErrInvalidURL)
			require.Nil(t, client)
		})
	}
}

func TestOpen_Unreachable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := Open(ctx, "redis://127.0.0.1:1/0",
		WithRetry(2, 10*time.Millisecond),
		WithTimeouts(50*time.Millisecond, 50*time.Millisecond),
	)
	require.ErrorIs(t, err, ErrUnreachable)
	require.Nil(t, client)
}

func TestHealthcheck_NilClient(t *testing.T) {
	t.Parallel()

	err := Healthcheck(nil)(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
}

type closer struct {
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	c := &closer{err: errors.New("close error")}
	err := Shutdown(c)(context.Background())
	require.EqualError(t, err, "close error")
	require.True(t, c.closed)
}

func TestWait(t *testing.T) {
	t.Parallel()

	t.Run("cancelled context returns immediately", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		require.ErrorIs(t, wait(ctx, 10*time.Second), context.Canceled)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("waits for the full duration", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		require.NoError(t, wait(context.Background(), 20*time.Millisecond))
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestOptions(t *testing.T) {
	t.Parallel()

	o := defaultOptions()
	WithPoolSize(25)(o)
	WithMinIdleConns(4)(o)
	WithRetry(7, time.Second)(o)
	WithTimeouts(time.Second, 2*time.Second)(o)
	WithLogger(nil)(o)

	require.Equal(t, 25, o.poolSize)
	require.Equal(t, 4, o.minIdleConns)
	require.Equal(t, 7, o.retryAttempts)
	require.Equal(t, time.Second, o.retryInterval)
	require.Equal(t, time.Second, o.dialTimeout)
	require.Equal(t, 2*time.Second, o.ioTimeout)
	require.NotNil(t, o.logger)
}
