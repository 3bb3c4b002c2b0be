package ict

import (
	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// IdentifySwingHighs returns every index i (leftBars <= i < len-rightBars)
// whose high is strictly greater than every high in the leftBars candles
// before it and the rightBars candles after it — a fractal swing point.
func IdentifySwingHighs(candles []models.Candle, leftBars, rightBars int) []models.SwingPoint {
	var out []models.SwingPoint
	needed := leftBars + rightBars + 1
	if len(candles) < needed {
		return out
	}

	for i := leftBars; i < len(candles)-rightBars; i++ {
		pivot := candles[i].High
		isSwing := true
		for j := i - leftBars; j < i; j++ {
			if candles[j].High.GreaterThanOrEqual(pivot) {
				isSwing = false
				break
			}
		}
		if isSwing {
			for j := i + 1; j <= i+rightBars; j++ {
				if candles[j].High.GreaterThanOrEqual(pivot) {
					isSwing = false
					break
				}
			}
		}
		if isSwing {
			out = append(out, models.SwingPoint{
				Index:     i,
				Price:     pivot,
				Kind:      models.SwingHigh,
				Timestamp: candles[i].OpenTime,
			})
		}
	}
	return out
}

// IdentifySwingLows mirrors IdentifySwingHighs for local minima.
func IdentifySwingLows(candles []models.Candle, leftBars, rightBars int) []models.SwingPoint {
	var out []models.SwingPoint
	needed := leftBars + rightBars + 1
	if len(candles) < needed {
		return out
	}

	for i := leftBars; i < len(candles)-rightBars; i++ {
		pivot := candles[i].Low
		isSwing := true
		for j := i - leftBars; j < i; j++ {
			if candles[j].Low.LessThanOrEqual(pivot) {
				isSwing = false
				break
			}
		}
		if isSwing {
			for j := i + 1; j <= i+rightBars; j++ {
				if candles[j].Low.LessThanOrEqual(pivot) {
					isSwing = false
					break
				}
			}
		}
		if isSwing {
			out = append(out, models.SwingPoint{
				Index:     i,
				Price:     pivot,
				Kind:      models.SwingLow,
				Timestamp: candles[i].OpenTime,
			})
		}
	}
	return out
}

// DetectBOS (Break of Structure) walks consecutive swing highs/lows and
// reports a bullish event whenever a swing high exceeds the prior swing
// high (continuation), and a bearish event whenever a swing low undercuts
// the prior swing low.
func DetectBOS(candles []models.Candle, swingLookback int) []models.StructureEvent {
	var out []models.StructureEvent

	highs := IdentifySwingHighs(candles, swingLookback, swingLookback)
	for i := 1; i < len(highs); i++ {
		if highs[i].Price.GreaterThan(highs[i-1].Price) {
			out = append(out, models.StructureEvent{
				Type:      "BOS",
				Direction: models.DirectionBullish,
				Index:     highs[i].Index,
				Timestamp: highs[i].Timestamp,
			})
		}
	}

	lows := IdentifySwingLows(candles, swingLookback, swingLookback)
	for i := 1; i < len(lows); i++ {
		if lows[i].Price.LessThan(lows[i-1].Price) {
			out = append(out, models.StructureEvent{
				Type:      "BOS",
				Direction: models.DirectionBearish,
				Index:     lows[i].Index,
				Timestamp: lows[i].Timestamp,
			})
		}
	}

	return out
}

// DetectCHoCH (Change of Character) reports a bullish reversal when price
// breaks back above the most recent swing high after a run of declining
// swing highs, and a bearish reversal symmetrically for swing lows. An
// empty result is valid: strongly trending data has no character change
// to detect.
func DetectCHoCH(candles []models.Candle, swingLookback int) []models.StructureEvent {
	var out []models.StructureEvent

	highs := IdentifySwingHighs(candles, swingLookback, swingLookback)
	for i := 2; i < len(highs); i++ {
		decliningBefore := highs[i-1].Price.LessThan(highs[i-2].Price)
		breaksAbovePrior := highs[i].Price.GreaterThan(highs[i-2].Price)
		if decliningBefore && breaksAbovePrior {
			out = append(out, models.StructureEvent{
				Type:      "CHoCH",
				Direction: models.DirectionBullish,
				Index:     highs[i].Index,
				Timestamp: highs[i].Timestamp,
			})
		}
	}

	lows := IdentifySwingLows(candles, swingLookback, swingLookback)
	for i := 2; i < len(lows); i++ {
		risingBefore := lows[i-1].Price.GreaterThan(lows[i-2].Price)
		breaksBelowPrior := lows[i].Price.LessThan(lows[i-2].Price)
		if risingBefore && breaksBelowPrior {
			out = append(out, models.StructureEvent{
				Type:      "CHoCH",
				Direction: models.DirectionBearish,
				Index:     lows[i].Index,
				Timestamp: lows[i].Timestamp,
			})
		}
	}

	return out
}

// GetCurrentTrend reports the market structure bias: bullish when both
// swing highs and swing lows are each monotonically increasing across the
// last minSwings points, bearish when both are monotonically decreasing,
// and "" (no trend) for consolidation or insufficient data.
func GetCurrentTrend(candles []models.Candle, swingLookback, minSwings int) models.Trend {
	highs := IdentifySwingHighs(candles, swingLookback, swingLookback)
	lows := IdentifySwingLows(candles, swingLookback, swingLookback)

	if len(highs) < minSwings || len(lows) < minSwings {
		return ""
	}

	highsRising := monotonic(highs, true)
	lowsRising := monotonic(lows, true)
	if highsRising && lowsRising {
		return models.TrendBullish
	}

	highsFalling := monotonic(highs, false)
	lowsFalling := monotonic(lows, false)
	if highsFalling && lowsFalling {
		return models.TrendBearish
	}

	return ""
}

func monotonic(points []models.SwingPoint, increasing bool) bool {
	if len(points) < 2 {
		return false
	}
	for i := 1; i < len(points); i++ {
		if increasing {
			if !points[i].Price.GreaterThan(points[i-1].Price) {
				return false
			}
		} else {
			if !points[i].Price.LessThan(points[i-1].Price) {
				return false
			}
		}
	}
	return true
}
