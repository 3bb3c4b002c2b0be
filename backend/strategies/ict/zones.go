package ict

import (
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// PremiumDiscountLevel splits a swing range into premium (upper half) and
// discount (lower half) zones around the midpoint — the ICT convention for
// where longs (discount) and shorts (premium) are considered favorable.
type PremiumDiscountLevel struct {
	High      decimal.Decimal
	Low       decimal.Decimal
	Midpoint  decimal.Decimal
}

// NewPremiumDiscountLevel builds a level from a swing high/low range.
func NewPremiumDiscountLevel(swingHigh, swingLow decimal.Decimal) PremiumDiscountLevel {
	return PremiumDiscountLevel{
		High:     swingHigh,
		Low:      swingLow,
		Midpoint: swingHigh.Add(swingLow).Div(decimal.NewFromInt(2)),
	}
}

// IsDiscount reports whether price sits in the lower (discount) half of the range.
func (p PremiumDiscountLevel) IsDiscount(price decimal.Decimal) bool {
	return price.LessThanOrEqual(p.Midpoint)
}

// IsPremium reports whether price sits in the upper (premium) half of the range.
func (p PremiumDiscountLevel) IsPremium(price decimal.Decimal) bool {
	return price.GreaterThan(p.Midpoint)
}

// PremiumDiscountFromCandles derives a level from the high/low extremes of
// the given candle window.
func PremiumDiscountFromCandles(candles []models.Candle) PremiumDiscountLevel {
	if len(candles) == 0 {
		return PremiumDiscountLevel{}
	}
	high := candles[0].High
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return NewPremiumDiscountLevel(high, low)
}
