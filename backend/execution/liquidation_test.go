package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func defaultLiquidationSettings() config.LiquidationSettings {
	return config.LiquidationSettings{
		EmergencyLiquidation: true,
		ClosePositions:       true,
		CancelOrders:         true,
		TimeoutSeconds:       5,
		MaxRetries:           2,
		RetryDelaySeconds:    0.01,
	}
}

func TestLiquidationManager_SkippedWhenDisabled(t *testing.T) {
	fake := &fakeExchangeClient{}
	gw := NewGateway(fake, nil)
	cache := NewPositionCache(5 * time.Second)
	cfg := defaultLiquidationSettings()
	cfg.EmergencyLiquidation = false

	mgr := NewLiquidationManager(gw, cache, nil, cfg)
	result := mgr.ExecuteLiquidation([]string{"BTCUSDT"})

	assert.Equal(t, models.LiquidationSkipped, result.State)
	assert.Equal(t, models.LiquidationIdle, mgr.State())
}

func TestLiquidationManager_CompletesWithNoOpenPositionsOrOrders(t *testing.T) {
	fake := &fakeExchangeClient{position: models.Position{Symbol: "BTCUSDT", Quantity: d(0)}}
	gw := NewGateway(fake, nil)
	cache := NewPositionCache(5 * time.Second)

	mgr := NewLiquidationManager(gw, cache, nil, defaultLiquidationSettings())
	result := mgr.ExecuteLiquidation([]string{"BTCUSDT"})

	assert.Equal(t, models.LiquidationCompleted, result.State)
	assert.Equal(t, 0, result.PositionsClosed)
}

func TestLiquidationManager_ClosesOpenPositionAndInvalidatesCache(t *testing.T) {
	fake := &fakeExchangeClient{
		position: models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: d(0.1), EntryPrice: d(50000)},
	}
	gw := NewGateway(fake, nil)
	cache := NewPositionCache(5 * time.Second)
	cache.UpdateFromWebSocket([]models.Position{fake.position}, map[string]bool{"BTCUSDT": true})

	mgr := NewLiquidationManager(gw, cache, nil, defaultLiquidationSettings())
	result := mgr.ExecuteLiquidation([]string{"BTCUSDT"})

	require.Equal(t, models.LiquidationCompleted, result.State)
	assert.Equal(t, 1, result.PositionsClosed)

	_, ok := cache.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestLiquidationManager_RejectsReentrantCall(t *testing.T) {
	fake := &fakeExchangeClient{}
	gw := NewGateway(fake, nil)
	cache := NewPositionCache(5 * time.Second)
	mgr := NewLiquidationManager(gw, cache, nil, defaultLiquidationSettings())

	mgr.mu.Lock()
	mgr.state = models.LiquidationInProgress
	mgr.mu.Unlock()

	result := mgr.ExecuteLiquidation([]string{"BTCUSDT"})
	assert.Equal(t, models.LiquidationFailed, result.State)
	assert.Contains(t, result.ErrorMessage, "already in progress")
}

func TestLiquidationManager_NeverPanicsAndReturnsWithinTimeout(t *testing.T) {
	fake := &fakeExchangeClient{}
	gw := NewGateway(fake, nil)
	cache := NewPositionCache(5 * time.Second)
	cfg := defaultLiquidationSettings()
	cfg.TimeoutSeconds = 1

	mgr := NewLiquidationManager(gw, cache, nil, cfg)

	start := time.Now()
	assert.NotPanics(t, func() {
		result := mgr.ExecuteLiquidation([]string{"BTCUSDT"})
		assert.NotEqual(t, models.LiquidationState(""), result.State)
	})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.LiquidationIdle, mgr.State())
}
