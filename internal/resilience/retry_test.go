package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("upstream busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := eris.New("bad request")
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("still busy"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoValReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(eris.New("flaky"), 500)
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 2, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoCustomShouldRetry(t *testing.T) {
	cfg := fastRetry()
	cfg.ShouldRetry = func(err error) bool { return true }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("anything retries now")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(eris.New("busy"), 503)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestComputeBackoffCapped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0, // deterministic
	})

	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(2, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(5, cfg))
}
