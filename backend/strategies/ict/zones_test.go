package ict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func TestPremiumDiscountLevel_DiscountAndPremium(t *testing.T) {
	level := NewPremiumDiscountLevel(d(110), d(90))
	assert.True(t, level.Midpoint.Equal(d(100)))
	assert.True(t, level.IsDiscount(d(95)))
	assert.False(t, level.IsPremium(d(95)))
	assert.True(t, level.IsPremium(d(105)))
}

func TestPremiumDiscountFromCandles_UsesRangeExtremes(t *testing.T) {
	candles := []models.Candle{
		mkCandle(0, 100, 110, 95, 105),
		mkCandle(1, 105, 120, 90, 100),
	}
	level := PremiumDiscountFromCandles(candles)
	assert.True(t, level.High.Equal(d(120)))
	assert.True(t, level.Low.Equal(d(90)))
}
