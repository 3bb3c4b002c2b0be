package ict

import (
	"sync"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// SymbolIndicatorState is the detector output cached for one symbol on one
// interval, recomputed once per closed candle instead of on every read.
type SymbolIndicatorState struct {
	BullishFVGs []models.FairValueGap
	BearishFVGs []models.FairValueGap
	OrderBlocks []models.OrderBlock
	SwingHighs  []models.SwingPoint
	SwingLows   []models.SwingPoint
	Trend       models.Trend
	UpdatedAt   int64 // unix nanos of the candle that produced this state
}

// IndicatorCache stores the latest SymbolIndicatorState per (symbol,
// interval) pair behind a single mutex; strategies read it once per candle
// from the engine's single-threaded per-symbol processing loop, so
// contention is limited to the rare cross-goroutine inspection (e.g. the
// operator HTTP surface).
type IndicatorCache struct {
	mu    sync.RWMutex
	state map[string]SymbolIndicatorState
}

// NewIndicatorCache builds an empty cache.
func NewIndicatorCache() *IndicatorCache {
	return &IndicatorCache{state: make(map[string]SymbolIndicatorState)}
}

func cacheKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// Get returns the cached state for (symbol, interval), if any.
func (c *IndicatorCache) Get(symbol, interval string) (SymbolIndicatorState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.state[cacheKey(symbol, interval)]
	return s, ok
}

// Set stores the state for (symbol, interval).
func (c *IndicatorCache) Set(symbol, interval string, state SymbolIndicatorState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[cacheKey(symbol, interval)] = state
}

// Recompute runs the full detector suite over candles and stores the
// result, returning it for immediate use by the caller.
func Recompute(cache *IndicatorCache, symbol, interval string, candles []models.Candle, params DetectorParams) SymbolIndicatorState {
	bullish, bearish := DetectAllFVG(candles, symbol, interval, params.FVGMinGapPercent)
	obs := UpdateOrderBlockStatus(
		DetectOrderBlocks(candles, symbol, interval, params.SwingLookback, params.DisplacementRatio),
		candles,
	)
	highs := IdentifySwingHighs(candles, params.SwingLookback, params.SwingLookback)
	lows := IdentifySwingLows(candles, params.SwingLookback, params.SwingLookback)
	trend := GetCurrentTrend(candles, params.SwingLookback, 2)

	var updatedAt int64
	if len(candles) > 0 {
		updatedAt = candles[len(candles)-1].CloseTime.UnixNano()
	}

	state := SymbolIndicatorState{
		BullishFVGs: bullish,
		BearishFVGs: bearish,
		OrderBlocks: obs,
		SwingHighs:  highs,
		SwingLows:   lows,
		Trend:       trend,
		UpdatedAt:   updatedAt,
	}
	cache.Set(symbol, interval, state)
	return state
}
