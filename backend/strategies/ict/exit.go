package ict

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
)

const exitDeterminerName = "ict"

// ExitStrategy selects which of the four exit rules ICTExitDeterminer
// evaluates on every closed candle.
type ExitStrategy string

const (
	ExitTrailingStop   ExitStrategy = "trailing_stop"
	ExitBreakeven      ExitStrategy = "breakeven"
	ExitTimed          ExitStrategy = "timed"
	ExitIndicatorBased ExitStrategy = "indicator_based"
)

// ICTExitDeterminer evaluates one of four exit rules against an open
// position: a ratcheting trailing stop, a breakeven stop-out, a maximum
// holding period, or an ICT indicator-reversal exit. Only one strategy is
// active per instance; wire several instances if a strategy needs more than
// one exit rule.
type ICTExitDeterminer struct {
	Strategy ExitStrategy

	TrailingActivation float64 // fractional move required before the stop starts trailing
	TrailingDistance   float64 // fractional distance the stop trails behind price

	BreakevenEnabled bool
	BreakevenOffset  float64 // fractional profit required before moving SL to entry

	TimeoutMinutes float64

	SwingLookback     int
	DisplacementRatio decimal.Decimal
	MTFInterval       string
	HTFInterval       string
	Cache             *IndicatorCache

	mu       sync.Mutex
	trailing map[string]decimal.Decimal
}

// NewICTExitDeterminer builds a determiner from a loosely-typed parameter map.
func NewICTExitDeterminer(params map[string]any) (*ICTExitDeterminer, error) {
	strategy := ExitStrategy(paramString(params, "exit_strategy", string(ExitIndicatorBased)))
	switch strategy {
	case ExitTrailingStop, ExitBreakeven, ExitTimed, ExitIndicatorBased:
	default:
		return nil, fmt.Errorf("unknown exit strategy: %s", strategy)
	}

	d := &ICTExitDeterminer{
		Strategy:           strategy,
		TrailingActivation: paramFloat(params, "trailing_activation", 0.01),
		TrailingDistance:   paramFloat(params, "trailing_distance", 0.02),
		BreakevenEnabled:   paramBool(params, "breakeven_enabled", true),
		BreakevenOffset:    paramFloat(params, "breakeven_offset", 0.005),
		TimeoutMinutes:     paramFloat(params, "timeout_minutes", 240),
		SwingLookback:      paramInt(params, "swing_lookback", 5),
		DisplacementRatio:  paramDecimal(params, "displacement_ratio", 1.5),
		MTFInterval:        paramString(params, "mtf_interval", "1h"),
		HTFInterval:        paramString(params, "htf_interval", "4h"),
		trailing:           map[string]decimal.Decimal{},
	}
	if cache, ok := params["cache"].(*IndicatorCache); ok {
		d.Cache = cache
	}
	return d, nil
}

func init() {
	strategies.RegisterExit(exitDeterminerName, func(params map[string]any) (strategies.ExitDeterminer, error) {
		return NewICTExitDeterminer(params)
	})
}

// Name identifies the determiner in the strategy registry.
func (d *ICTExitDeterminer) Name() string { return exitDeterminerName }

// Requirements declares the timeframe history the indicator-based exit
// strategy needs; the other three strategies only read the position and the
// current candle, so the requirement is unconditional to keep the buffer
// available if the strategy is switched at runtime.
func (d *ICTExitDeterminer) Requirements() models.ModuleRequirements {
	return models.NewModuleRequirements(map[string]int{
		d.MTFInterval: 50,
		d.HTFInterval: 50,
	})
}

// TrailingLevels implements strategies.TrailingLevelProvider.
func (d *ICTExitDeterminer) TrailingLevels() map[string]decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(d.trailing))
	for k, v := range d.trailing {
		out[k] = v
	}
	return out
}

func trailKey(symbol string, side models.PositionSide) string {
	return fmt.Sprintf("%s_%s", symbol, side)
}

// ShouldExit evaluates the configured exit strategy against the open position.
func (d *ICTExitDeterminer) ShouldExit(ctx strategies.ExitContext) (*models.Signal, error) {
	if !ctx.Candle.IsClosed {
		return nil, nil
	}

	switch d.Strategy {
	case ExitTrailingStop:
		return d.checkTrailingStop(ctx), nil
	case ExitBreakeven:
		return d.checkBreakeven(ctx), nil
	case ExitTimed:
		return d.checkTimed(ctx), nil
	case ExitIndicatorBased:
		return d.checkIndicatorBased(ctx), nil
	default:
		return nil, fmt.Errorf("unknown exit strategy: %s", d.Strategy)
	}
}

func closeSignal(kind models.SignalKind, ctx strategies.ExitContext, reason string) *models.Signal {
	return &models.Signal{
		Kind:         kind,
		Symbol:       ctx.Symbol,
		EntryPrice:   ctx.Candle.Close,
		StrategyName: "ict",
		Timestamp:    ctx.Timestamp,
		ExitReason:   reason,
	}
}

func (d *ICTExitDeterminer) checkTrailingStop(ctx strategies.ExitContext) *models.Signal {
	pos := ctx.Position
	key := trailKey(ctx.Symbol, pos.Side)
	closePx := ctx.Candle.Close

	d.mu.Lock()
	defer d.mu.Unlock()

	activation := decimal.NewFromFloat(d.TrailingActivation)
	distance := decimal.NewFromFloat(d.TrailingDistance)
	one := decimal.NewFromInt(1)

	if pos.Side == models.PositionLong {
		initialStop := pos.EntryPrice.Mul(one.Sub(distance))
		stop, ok := d.trailing[key]
		if !ok {
			stop = initialStop
		}

		activationPrice := pos.EntryPrice.Mul(one.Add(activation))
		if closePx.GreaterThan(activationPrice) {
			newStop := closePx.Mul(one.Sub(distance))
			if newStop.GreaterThan(stop) {
				stop = newStop
			}
		}
		d.trailing[key] = stop

		if closePx.LessThanOrEqual(stop) {
			delete(d.trailing, key)
			return closeSignal(models.SignalCloseLong, ctx, "trailing_stop")
		}
		return nil
	}

	initialStop := pos.EntryPrice.Mul(one.Add(distance))
	stop, ok := d.trailing[key]
	if !ok {
		stop = initialStop
	}

	activationPrice := pos.EntryPrice.Mul(one.Sub(activation))
	if closePx.LessThan(activationPrice) {
		newStop := closePx.Mul(one.Add(distance))
		if newStop.LessThan(stop) {
			stop = newStop
		}
	}
	d.trailing[key] = stop

	if closePx.GreaterThanOrEqual(stop) {
		delete(d.trailing, key)
		return closeSignal(models.SignalCloseShort, ctx, "trailing_stop")
	}
	return nil
}

func (d *ICTExitDeterminer) checkBreakeven(ctx strategies.ExitContext) *models.Signal {
	if !d.BreakevenEnabled {
		return nil
	}
	pos := ctx.Position
	closePx := ctx.Candle.Close
	breakeven := pos.EntryPrice
	profitThreshold := pos.EntryPrice.Mul(decimal.NewFromFloat(d.BreakevenOffset))

	if pos.Side == models.PositionLong {
		if closePx.GreaterThan(pos.EntryPrice.Add(profitThreshold)) && closePx.LessThanOrEqual(breakeven) {
			return closeSignal(models.SignalCloseLong, ctx, "breakeven")
		}
		return nil
	}

	if closePx.LessThan(pos.EntryPrice.Sub(profitThreshold)) && closePx.GreaterThanOrEqual(breakeven) {
		return closeSignal(models.SignalCloseShort, ctx, "breakeven")
	}
	return nil
}

func (d *ICTExitDeterminer) checkTimed(ctx strategies.ExitContext) *models.Signal {
	pos := ctx.Position
	if pos.EntryTime.IsZero() {
		return nil
	}
	elapsed := ctx.Candle.OpenTime.Sub(pos.EntryTime)
	timeout := time.Duration(d.TimeoutMinutes * float64(time.Minute))
	if elapsed < timeout {
		return nil
	}

	if pos.Side == models.PositionLong {
		return closeSignal(models.SignalCloseLong, ctx, "timed")
	}
	return closeSignal(models.SignalCloseShort, ctx, "timed")
}

func (d *ICTExitDeterminer) checkIndicatorBased(ctx strategies.ExitContext) *models.Signal {
	buffer := ctx.Buffers[d.MTFInterval]
	if len(buffer) < 50 {
		return nil
	}

	trend := d.resolveTrend(ctx.Symbol, buffer)
	if trend == "" {
		return nil
	}

	displacements := detectDisplacements(buffer, d.SwingLookback, d.DisplacementRatio)

	var swings []models.SwingPoint
	swings = append(swings, IdentifySwingHighs(buffer, d.SwingLookback, d.SwingLookback)...)
	swings = append(swings, IdentifySwingLows(buffer, d.SwingLookback, d.SwingLookback)...)
	pools := append(DetectEqualHighs(swings, decimal.NewFromFloat(0.001)), DetectEqualLows(swings, decimal.NewFromFloat(0.001))...)
	inducements := detectInducements(buffer, pools, 10)
	inducementDirs := make([]models.Direction, len(inducements))
	for i, ev := range inducements {
		inducementDirs[i] = ev.Direction
	}

	pos := ctx.Position
	var reason string
	exit := false

	if pos.Side == models.PositionLong {
		if trend == models.TrendBearish {
			exit, reason = true, "htf_trend_reversal"
		}
		bearishCount := 0
		for _, ev := range displacements {
			if ev.Direction == models.DirectionBearish {
				bearishCount++
			}
		}
		if bearishCount >= 2 {
			exit, reason = true, "bearish_displacement"
		}
		if recentDirection(models.DirectionBullish, inducementDirs, 3) {
			exit, reason = true, "bullish_inducement"
		}
		if !exit {
			return nil
		}
		return closeSignal(models.SignalCloseLong, ctx, reason)
	}

	if trend == models.TrendBullish {
		exit, reason = true, "htf_trend_reversal"
	}
	bullishCount := 0
	for _, ev := range displacements {
		if ev.Direction == models.DirectionBullish {
			bullishCount++
		}
	}
	if bullishCount >= 2 {
		exit, reason = true, "bullish_displacement"
	}
	if recentDirection(models.DirectionBearish, inducementDirs, 3) {
		exit, reason = true, "bearish_inducement"
	}
	if !exit {
		return nil
	}
	return closeSignal(models.SignalCloseShort, ctx, reason)
}

func (d *ICTExitDeterminer) resolveTrend(symbol string, buffer []models.Candle) models.Trend {
	if d.Cache != nil {
		if htf, ok := d.Cache.Get(symbol, d.HTFInterval); ok && htf.Trend != "" {
			return htf.Trend
		}
		if mtf, ok := d.Cache.Get(symbol, d.MTFInterval); ok && mtf.Trend != "" {
			return mtf.Trend
		}
	}
	return GetCurrentTrend(buffer, d.SwingLookback, 2)
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}
