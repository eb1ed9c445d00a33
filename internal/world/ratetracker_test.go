package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateTracker_LLMCallRateScenario(t *testing.T) {
	tr := NewRateTracker(map[RateResource]RateLimit{
		RateLLMCalls: {WindowSeconds: 60, MaxPerWindow: 2},
	})

	now := time.Now()
	require.True(t, tr.Consume("p1", RateLLMCalls, 1, now))
	require.True(t, tr.Consume("p1", RateLLMCalls, 1, now.Add(100*time.Millisecond)))
	require.False(t, tr.Consume("p1", RateLLMCalls, 1, now.Add(200*time.Millisecond)))

	later := now.Add(61 * time.Second)
	assert.True(t, tr.Consume("p1", RateLLMCalls, 1, later))
}

func TestRateTracker_PerPrincipalIndependence(t *testing.T) {
	tr := NewRateTracker(map[RateResource]RateLimit{
		RateLLMCalls: {WindowSeconds: 60, MaxPerWindow: 1},
	})
	now := time.Now()
	require.True(t, tr.Consume("p1", RateLLMCalls, 1, now))
	assert.True(t, tr.Consume("p2", RateLLMCalls, 1, now))
}

func TestRateTracker_RetryAfterPositiveWhenOverCapacity(t *testing.T) {
	tr := NewRateTracker(map[RateResource]RateLimit{
		RateLLMCalls: {WindowSeconds: 60, MaxPerWindow: 1},
	})
	now := time.Now()
	require.True(t, tr.Consume("p1", RateLLMCalls, 1, now))
	require.False(t, tr.Consume("p1", RateLLMCalls, 1, now))

	retry := tr.RetryAfter("p1", RateLLMCalls, now)
	assert.Greater(t, retry, 0.0)
	assert.LessOrEqual(t, retry, 60.0)
}
