package ict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndicatorCache_GetMissBeforeSet(t *testing.T) {
	cache := NewIndicatorCache()
	_, ok := cache.Get("BTCUSDT", "5m")
	assert.False(t, ok)
}

func TestRecompute_StoresAndReturnsState(t *testing.T) {
	cache := NewIndicatorCache()
	candles := buildZigzagUptrend()
	params := NewDetectorParams(1, 1.5, 0.001, 1.5, 0.001, 2.0)

	state := Recompute(cache, "BTCUSDT", "5m", candles, params)
	assert.Equal(t, state.Trend, state.Trend) // sanity: no panic computing trend

	cached, ok := cache.Get("BTCUSDT", "5m")
	require.True(t, ok)
	assert.Equal(t, state.UpdatedAt, cached.UpdatedAt)
}
