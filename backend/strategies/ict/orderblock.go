package ict

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// DetectDisplacement reports whether candle i is a displacement: its range
// exceeds the average range of the preceding lookback candles by at least
// minRatio, in the given direction.
func DetectDisplacement(candles []models.Candle, i, lookback int, minRatio decimal.Decimal) bool {
	if i < lookback || i >= len(candles) {
		return false
	}

	sum := decimal.Zero
	for j := i - lookback; j < i; j++ {
		sum = sum.Add(candles[j].Range())
	}
	avgRange := sum.Div(decimal.NewFromInt(int64(lookback)))
	if avgRange.IsZero() {
		return false
	}

	ratio := candles[i].Range().Div(avgRange)
	return ratio.GreaterThanOrEqual(minRatio)
}

// DetectOrderBlocks scans for the last opposite-direction candle before a
// displacement move: a bearish candle immediately preceding a bullish
// displacement is a bullish order block (and symmetrically for bearish).
func DetectOrderBlocks(candles []models.Candle, symbol, interval string, lookback int, minStrength decimal.Decimal) []models.OrderBlock {
	var out []models.OrderBlock

	for i := lookback; i < len(candles); i++ {
		if !DetectDisplacement(candles, i, lookback, minStrength) {
			continue
		}
		if i == 0 {
			continue
		}
		prior := candles[i-1]
		displacement := candles[i]

		var direction models.Direction
		switch {
		case displacement.Bullish() && prior.Bearish():
			direction = models.DirectionBullish
		case displacement.Bearish() && prior.Bullish():
			direction = models.DirectionBearish
		default:
			continue
		}

		strength, _ := displacement.Range().Div(prior.Range().Add(decimal.New(1, -8))).Float64()

		out = append(out, models.OrderBlock{
			ID:               fmt.Sprintf("%s_%s_%d_%s", symbol, interval, prior.OpenTime.Unix(), direction),
			Symbol:           symbol,
			Interval:         interval,
			Direction:        direction,
			High:             prior.High,
			Low:              prior.Low,
			DisplacementSize: displacement.Range(),
			Strength:         decimal.NewFromFloat(strength),
			FormedAt:         prior.OpenTime,
			Index:            i - 1,
			Status:           models.ZoneActive,
		})
	}

	return out
}

// FindNearestOB returns the non-terminal order block of the given direction
// whose midpoint is closest to price.
func FindNearestOB(obs []models.OrderBlock, price decimal.Decimal, direction models.Direction) *models.OrderBlock {
	var nearest *models.OrderBlock
	var nearestDist decimal.Decimal

	for i := range obs {
		ob := obs[i]
		if ob.Direction != direction || ob.Status.Terminal() {
			continue
		}
		dist := ob.Midpoint().Sub(price).Abs()
		if nearest == nil || dist.LessThan(nearestDist) {
			nearest = &obs[i]
			nearestDist = dist
		}
	}
	return nearest
}

// UpdateOrderBlockStatus marks each block mitigated once a later candle
// trades back through its body.
func UpdateOrderBlockStatus(blocks []models.OrderBlock, candles []models.Candle) []models.OrderBlock {
	out := make([]models.OrderBlock, len(blocks))
	for i, ob := range blocks {
		if ob.Status.Terminal() {
			out[i] = ob
			continue
		}
		mitigated := false
		for j := ob.Index + 1; j < len(candles); j++ {
			c := candles[j]
			if c.Low.LessThanOrEqual(ob.High) && c.High.GreaterThanOrEqual(ob.Low) {
				mitigated = true
				break
			}
		}
		if mitigated {
			ob.Status = models.ZoneMitigated
		}
		out[i] = ob
	}
	return out
}
