package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayBounds(t *testing.T) {
	policy := DefaultRetryPolicy()
	for attempt := 0; attempt < 8; attempt++ {
		raw := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
		lo := time.Duration(math.Min(0.75*raw, float64(policy.MaxDelay)))
		hi := time.Duration(math.Min(1.25*raw, float64(policy.MaxDelay)))
		for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
			d := BackoffDelay(policy, attempt, r)
			assert.GreaterOrEqual(t, d, time.Duration(math.Min(float64(lo), 0.75*float64(policy.MaxDelay))), "attempt %d r %v", attempt, r)
			assert.LessOrEqual(t, d, hi, "attempt %d r %v", attempt, r)
			assert.LessOrEqual(t, d, 30*time.Second)
		}
	}
}

func TestBackoffDelayNoJitter(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := BackoffDelay(policy, tt.attempt, 0.9); got != tt.want {
			t.Errorf("BackoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("retryable error then success", func(t *testing.T) {
		calls := 0
		var retries []int
		got, err := RetryWithPolicy(ctx, fastPolicy(3), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("503 service unavailable")
			}
			return "ok", nil
		}, ClassifyLLMError, func(attempt int, _ time.Duration, _ error) {
			retries = append(retries, attempt)
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retries)
	})

	t.Run("non-retryable error is returned immediately", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(ctx, fastPolicy(3), func(context.Context) (int, error) {
			calls++
			return 0, errors.New("429: you exceeded your current quota")
		}, ClassifyLLMError, nil)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.False(t, IsRetryExhausted(err))
	})

	t.Run("exhaustion", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(ctx, fastPolicy(2), func(context.Context) (int, error) {
			calls++
			return 0, errors.New("read: ECONNRESET")
		}, ClassifyLLMError, nil)
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		var ex *RetryExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, 3, ex.Attempts)
		assert.Equal(t, 3, ex.MaxAttempts)
	})

	t.Run("cancellation is never retried", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		_, err := RetryWithPolicy(cctx, fastPolicy(3), func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("network timeout")
		}, ClassifyLLMError, nil)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryLLMCall(t *testing.T) {
	llm := newScriptedLLM(errResp(errors.New("request timed out")), textResp("hello"))
	resp, err := RetryLLMCall(context.Background(), fastPolicy(2), llm, "m", nil, nil, ChatOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Assistant.Content)
	assert.Equal(t, 2, llm.Calls())
}
