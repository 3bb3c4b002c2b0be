package ict

import (
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
)

const (
	zoneStopLossName           = "zone_based_sl"
	displacementTakeProfitName = "displacement_tp"
)

// ZoneBasedStopLoss anchors the stop outside an FVG or order block zone
// carried in PriceContext.Extras, falling back to a flat percentage when no
// zone was extracted. A buffer widens the zone edge slightly so normal wicks
// don't stop the position out, and the result is clamped to a configurable
// minimum/maximum distance from entry.
type ZoneBasedStopLoss struct {
	BufferPercent   decimal.Decimal
	FallbackPercent decimal.Decimal
	MinSLPercent    decimal.Decimal
	MaxSLPercent    decimal.Decimal
}

// NewZoneBasedStopLoss builds a determiner from a loosely-typed parameter map.
func NewZoneBasedStopLoss(params map[string]any) (*ZoneBasedStopLoss, error) {
	return &ZoneBasedStopLoss{
		BufferPercent:   paramDecimal(params, "buffer_percent", 0.001),
		FallbackPercent: paramDecimal(params, "fallback_percent", 0.01),
		MinSLPercent:    paramDecimal(params, "min_sl_percent", 0.005),
		MaxSLPercent:    paramDecimal(params, "max_sl_percent", 0.02),
	}, nil
}

func init() {
	strategies.RegisterStopLoss(zoneStopLossName, func(params map[string]any) (strategies.StopLossDeterminer, error) {
		return NewZoneBasedStopLoss(params)
	})
}

// Name identifies the determiner in the strategy registry.
func (z *ZoneBasedStopLoss) Name() string { return zoneStopLossName }

// CalculateStopLoss prefers the FVG zone over the OB zone over a flat
// fallback percentage, per the extras priority an entry determiner fills in.
func (z *ZoneBasedStopLoss) CalculateStopLoss(ctx strategies.PriceContext) decimal.Decimal {
	zone, ok := zoneFromExtras(ctx.Extras)
	if !ok {
		return percentageStopLoss(ctx, z.FallbackPercent)
	}
	return z.applyBuffer(ctx, zone)
}

func zoneFromExtras(extras map[string]any) (ZoneRange, bool) {
	if z, ok := extras["fvg_zone"].(ZoneRange); ok {
		return z, true
	}
	if z, ok := extras["ob_zone"].(ZoneRange); ok {
		return z, true
	}
	return ZoneRange{}, false
}

func percentageStopLoss(ctx strategies.PriceContext, pct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if ctx.Side == models.PositionLong {
		return ctx.EntryPrice.Mul(one.Sub(pct))
	}
	return ctx.EntryPrice.Mul(one.Add(pct))
}

func (z *ZoneBasedStopLoss) applyBuffer(ctx strategies.PriceContext, zone ZoneRange) decimal.Decimal {
	buffer := ctx.EntryPrice.Mul(z.BufferPercent)
	one := decimal.NewFromInt(1)

	if ctx.Side == models.PositionLong {
		sl := zone.Low.Sub(buffer)
		if sl.GreaterThanOrEqual(ctx.EntryPrice) {
			return ctx.EntryPrice.Mul(one.Sub(z.FallbackPercent))
		}
		distancePct := ctx.EntryPrice.Sub(sl).Div(ctx.EntryPrice)
		if distancePct.LessThan(z.MinSLPercent) {
			return ctx.EntryPrice.Mul(one.Sub(z.MinSLPercent))
		}
		if distancePct.GreaterThan(z.MaxSLPercent) {
			return ctx.EntryPrice.Mul(one.Sub(z.MaxSLPercent))
		}
		return sl
	}

	sl := zone.High.Add(buffer)
	if sl.LessThanOrEqual(ctx.EntryPrice) {
		return ctx.EntryPrice.Mul(one.Add(z.FallbackPercent))
	}
	distancePct := sl.Sub(ctx.EntryPrice).Div(ctx.EntryPrice)
	if distancePct.LessThan(z.MinSLPercent) {
		return ctx.EntryPrice.Mul(one.Add(z.MinSLPercent))
	}
	if distancePct.GreaterThan(z.MaxSLPercent) {
		return ctx.EntryPrice.Mul(one.Add(z.MaxSLPercent))
	}
	return sl
}

// DisplacementTakeProfit sizes the reward leg off the larger of the actual
// stop-loss distance and the displacement move that triggered entry, so the
// realized risk-reward ratio is never worse than advertised even when the
// zone-based stop landed closer than the displacement would imply.
type DisplacementTakeProfit struct {
	RiskRewardRatio     decimal.Decimal
	FallbackRiskPercent decimal.Decimal
}

// NewDisplacementTakeProfit builds a determiner from a loosely-typed parameter map.
func NewDisplacementTakeProfit(params map[string]any) (*DisplacementTakeProfit, error) {
	return &DisplacementTakeProfit{
		RiskRewardRatio:     paramDecimal(params, "risk_reward_ratio", 2.0),
		FallbackRiskPercent: paramDecimal(params, "fallback_risk_percent", 0.02),
	}, nil
}

func init() {
	strategies.RegisterTakeProfit(displacementTakeProfitName, func(params map[string]any) (strategies.TakeProfitDeterminer, error) {
		return NewDisplacementTakeProfit(params)
	})
}

// Name identifies the determiner in the strategy registry.
func (t *DisplacementTakeProfit) Name() string { return displacementTakeProfitName }

// CalculateTakeProfit projects a reward equal to riskAmount * RiskRewardRatio
// from entry, where riskAmount is the larger of the SL distance and the
// displacement size (or a flat fallback risk when neither is available).
func (t *DisplacementTakeProfit) CalculateTakeProfit(ctx strategies.PriceContext, stopLoss decimal.Decimal) decimal.Decimal {
	slDistance := ctx.EntryPrice.Sub(stopLoss).Abs()

	displacementRisk := ctx.EntryPrice.Mul(t.FallbackRiskPercent)
	if size, ok := ctx.Extras["displacement_size"].(decimal.Decimal); ok && size.IsPositive() {
		displacementRisk = size
	}

	riskAmount := displacementRisk
	if slDistance.IsPositive() && slDistance.GreaterThan(displacementRisk) {
		riskAmount = slDistance
	}

	rewardAmount := riskAmount.Mul(t.RiskRewardRatio)

	if ctx.Side == models.PositionLong {
		tp := ctx.EntryPrice.Add(rewardAmount)
		if tp.GreaterThan(ctx.EntryPrice) {
			return tp
		}
		return ctx.EntryPrice.Mul(decimal.NewFromFloat(1.02))
	}

	tp := ctx.EntryPrice.Sub(rewardAmount)
	if tp.LessThan(ctx.EntryPrice) {
		return tp
	}
	return ctx.EntryPrice.Mul(decimal.NewFromFloat(0.98))
}
