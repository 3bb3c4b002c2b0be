package ict

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// DetectBullishFVG scans candles for 3-candle bullish imbalances: a gap
// between candle[i].High and candle[i+2].Low. minGapPercent filters out
// gaps smaller than that fraction of the gap's average price.
func DetectBullishFVG(candles []models.Candle, symbol, interval string, minGapPercent decimal.Decimal) []models.FairValueGap {
	var out []models.FairValueGap
	if len(candles) < 3 {
		return out
	}

	for i := 0; i <= len(candles)-3; i++ {
		first := candles[i]
		middle := candles[i+1]
		third := candles[i+2]

		if first.High.GreaterThanOrEqual(third.Low) {
			continue
		}

		gapLow := first.High
		gapHigh := third.Low
		gapSize := gapHigh.Sub(gapLow)
		avgPrice := gapLow.Add(gapHigh).Div(decimal.NewFromInt(2))
		if avgPrice.IsZero() {
			continue
		}
		gapPct := gapSize.Div(avgPrice)
		if gapPct.LessThan(minGapPercent) {
			continue
		}

		out = append(out, models.FairValueGap{
			ID:        fmt.Sprintf("%s_%s_%d_bullish", symbol, interval, middle.OpenTime.Unix()),
			Symbol:    symbol,
			Interval:  interval,
			Direction: models.DirectionBullish,
			GapLow:    gapLow,
			GapHigh:   gapHigh,
			FormedAt:  middle.OpenTime,
			Index:     i + 1,
			Status:    models.ZoneActive,
		})
	}
	return out
}

// DetectBearishFVG scans candles for 3-candle bearish imbalances: a gap
// between candle[i+2].High and candle[i].Low.
func DetectBearishFVG(candles []models.Candle, symbol, interval string, minGapPercent decimal.Decimal) []models.FairValueGap {
	var out []models.FairValueGap
	if len(candles) < 3 {
		return out
	}

	for i := 0; i <= len(candles)-3; i++ {
		first := candles[i]
		middle := candles[i+1]
		third := candles[i+2]

		if third.High.GreaterThanOrEqual(first.Low) {
			continue
		}

		gapHigh := first.Low
		gapLow := third.High
		gapSize := gapHigh.Sub(gapLow)
		avgPrice := gapLow.Add(gapHigh).Div(decimal.NewFromInt(2))
		if avgPrice.IsZero() {
			continue
		}
		gapPct := gapSize.Div(avgPrice)
		if gapPct.LessThan(minGapPercent) {
			continue
		}

		out = append(out, models.FairValueGap{
			ID:        fmt.Sprintf("%s_%s_%d_bearish", symbol, interval, middle.OpenTime.Unix()),
			Symbol:    symbol,
			Interval:  interval,
			Direction: models.DirectionBearish,
			GapLow:    gapLow,
			GapHigh:   gapHigh,
			FormedAt:  middle.OpenTime,
			Index:     i + 1,
			Status:    models.ZoneActive,
		})
	}
	return out
}

// DetectAllFVG detects both directions and updates fill status against the
// same candle slice in one pass.
func DetectAllFVG(candles []models.Candle, symbol, interval string, minGapPercent decimal.Decimal) (bullish, bearish []models.FairValueGap) {
	bullish = UpdateFVGStatus(DetectBullishFVG(candles, symbol, interval, minGapPercent), candles)
	bearish = UpdateFVGStatus(DetectBearishFVG(candles, symbol, interval, minGapPercent), candles)
	return bullish, bearish
}

// UpdateFVGStatus marks each FVG filled once a later candle trades back
// into its gap band. Terminal statuses are left untouched.
func UpdateFVGStatus(fvgs []models.FairValueGap, candles []models.Candle) []models.FairValueGap {
	out := make([]models.FairValueGap, len(fvgs))
	for i, fvg := range fvgs {
		if fvg.Status.Terminal() {
			out[i] = fvg
			continue
		}
		filled := false
		for j := fvg.Index + 2; j < len(candles); j++ {
			c := candles[j]
			if c.Low.LessThanOrEqual(fvg.GapHigh) && c.High.GreaterThanOrEqual(fvg.GapLow) {
				filled = true
				break
			}
		}
		if filled {
			fvg.Status = models.ZoneFilled
			fvg.FillPct = decimal.NewFromInt(1)
		}
		out[i] = fvg
	}
	return out
}

// IsFVGFilled reports whether price currently sits inside the gap band or
// the gap's recorded status is already terminal-filled.
func IsFVGFilled(fvg models.FairValueGap, price decimal.Decimal) bool {
	return fvg.ContainsPrice(price) || fvg.Status == models.ZoneFilled
}

// FindNearestFVG returns the FVG of the given direction whose midpoint is
// closest to price. When onlyUnfilled is true, terminal-status gaps are
// excluded.
func FindNearestFVG(fvgs []models.FairValueGap, price decimal.Decimal, direction models.Direction, onlyUnfilled bool) *models.FairValueGap {
	var nearest *models.FairValueGap
	var nearestDist decimal.Decimal

	for i := range fvgs {
		fvg := fvgs[i]
		if fvg.Direction != direction {
			continue
		}
		if onlyUnfilled && fvg.Status.Terminal() {
			continue
		}
		dist := fvg.Midpoint().Sub(price).Abs()
		if nearest == nil || dist.LessThan(nearestDist) {
			nearest = &fvgs[i]
			nearestDist = dist
		}
	}
	return nearest
}

// EntryZone returns the optimal entry band within an FVG: the lower
// zonePercent of a bullish gap, or the upper zonePercent of a bearish gap.
func EntryZone(fvg models.FairValueGap, zonePercent decimal.Decimal) (low, high decimal.Decimal) {
	zoneSize := fvg.Size().Mul(zonePercent)
	if fvg.Direction == models.DirectionBullish {
		return fvg.GapLow, fvg.GapLow.Add(zoneSize)
	}
	return fvg.GapHigh.Sub(zoneSize), fvg.GapHigh
}
