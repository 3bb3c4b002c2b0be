package ict

import (
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// DetectEqualHighs clusters swing highs whose prices sit within tolerance
// (as a fraction of price) of each other into liquidity pools resting
// above the market — classic buy-side liquidity.
func DetectEqualHighs(swings []models.SwingPoint, tolerance decimal.Decimal) []models.LiquidityPool {
	return clusterSwings(swings, models.SwingHigh, models.DirectionBullish, tolerance)
}

// DetectEqualLows clusters swing lows into sell-side liquidity pools.
func DetectEqualLows(swings []models.SwingPoint, tolerance decimal.Decimal) []models.LiquidityPool {
	return clusterSwings(swings, models.SwingLow, models.DirectionBearish, tolerance)
}

func clusterSwings(swings []models.SwingPoint, kind models.SwingKind, direction models.Direction, tolerance decimal.Decimal) []models.LiquidityPool {
	var filtered []models.SwingPoint
	for _, s := range swings {
		if s.Kind == kind {
			filtered = append(filtered, s)
		}
	}

	var pools []models.LiquidityPool
	used := make([]bool, len(filtered))

	for i, s := range filtered {
		if used[i] {
			continue
		}
		cluster := []models.SwingPoint{s}
		used[i] = true

		for j := i + 1; j < len(filtered); j++ {
			if used[j] {
				continue
			}
			diff := s.Price.Sub(filtered[j].Price).Abs()
			tolPrice := s.Price.Mul(tolerance)
			if diff.LessThanOrEqual(tolPrice) {
				cluster = append(cluster, filtered[j])
				used[j] = true
			}
		}

		if len(cluster) >= 2 {
			avg := decimal.Zero
			for _, c := range cluster {
				avg = avg.Add(c.Price)
			}
			avg = avg.Div(decimal.NewFromInt(int64(len(cluster))))
			pools = append(pools, models.LiquidityPool{
				Direction: direction,
				Price:     avg,
				Touches:   cluster,
			})
		}
	}

	return pools
}

// DetectInducement reports whether a liquidity sweep occurred at candle i:
// price briefly trades beyond a pool's level then closes back on the
// opposite side, suggesting the move was designed to trigger stops before
// reversing.
func DetectInducement(candles []models.Candle, i int, pool models.LiquidityPool) bool {
	if i < 0 || i >= len(candles) {
		return false
	}
	c := candles[i]

	if pool.Direction == models.DirectionBullish {
		// Sweep above a buy-side pool, then close back below it.
		return c.High.GreaterThan(pool.Price) && c.Close.LessThan(pool.Price)
	}
	// Sweep below a sell-side pool, then close back above it.
	return c.Low.LessThan(pool.Price) && c.Close.GreaterThan(pool.Price)
}
