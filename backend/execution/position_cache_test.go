package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func TestPositionCache_GetMissBeforeAnyUpdate(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	_, ok := cache.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestPositionCache_UpdateThenGetReturnsPosition(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: d(0.5), EntryPrice: d(50000)}

	cache.UpdateFromWebSocket([]models.Position{pos}, map[string]bool{"BTCUSDT": true})

	got, ok := cache.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.True(t, got.Quantity.Equal(d(0.5)))
}

func TestPositionCache_UpdateDropsSymbolsOutsideAllowlist(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	pos := models.Position{Symbol: "ETHUSDT", Side: models.PositionLong, Quantity: d(1)}

	cache.UpdateFromWebSocket([]models.Position{pos}, map[string]bool{"BTCUSDT": true})

	_, ok := cache.Get("ETHUSDT")
	assert.False(t, ok)
}

func TestPositionCache_ZeroQuantityUpdateClearsEntry(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	allowed := map[string]bool{"BTCUSDT": true}
	cache.UpdateFromWebSocket([]models.Position{{Symbol: "BTCUSDT", Quantity: d(1)}}, allowed)
	cache.UpdateFromWebSocket([]models.Position{{Symbol: "BTCUSDT", Quantity: d(0)}}, allowed)

	_, ok := cache.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestPositionCache_GetReportsStaleEntryAsMiss(t *testing.T) {
	cache := NewPositionCache(10 * time.Millisecond)
	cache.UpdateFromWebSocket([]models.Position{{Symbol: "BTCUSDT", Quantity: d(1)}}, map[string]bool{"BTCUSDT": true})

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get("BTCUSDT")
	assert.False(t, ok)

	_, refreshedAt, ok := cache.GetFresh("BTCUSDT")
	require.True(t, ok)
	assert.True(t, time.Since(refreshedAt) >= 10*time.Millisecond)
}

func TestPositionCache_InvalidateForcesUncertainState(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	cache.UpdateFromWebSocket([]models.Position{{Symbol: "BTCUSDT", Quantity: d(1)}}, map[string]bool{"BTCUSDT": true})

	cache.Invalidate("BTCUSDT")

	_, ok := cache.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestPositionCache_Cooldown(t *testing.T) {
	cache := NewPositionCache(5 * time.Second)
	assert.False(t, cache.InCooldown("BTCUSDT"))

	cache.StartCooldown("BTCUSDT", 20*time.Millisecond)
	assert.True(t, cache.InCooldown("BTCUSDT"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, cache.InCooldown("BTCUSDT"))
}
