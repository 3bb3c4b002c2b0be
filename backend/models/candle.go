// Package models provides shared domain models for the trading engine.
// These models are used across all packages for consistent data representation.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV record for a (symbol, interval) pair.
//
// IsClosed distinguishes a finalized bar from a live in-progress update: only
// closed candles are appended to strategy buffers, live updates are for
// cache/UI consumption only.
type Candle struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Interval  string          `json:"interval" db:"interval"`
	OpenTime  time.Time       `json:"open_time" db:"open_time"`
	CloseTime time.Time       `json:"close_time" db:"close_time"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    decimal.Decimal `json:"volume" db:"volume"`
	IsClosed  bool            `json:"is_closed" db:"is_closed"`
}

// Valid reports whether the candle satisfies the OHLC bounds invariant:
// low is the minimum extreme and high is the maximum extreme, and volume
// is non-negative.
func (c Candle) Valid() bool {
	minOC := decimal.Min(c.Open, c.Close)
	maxOC := decimal.Max(c.Open, c.Close)
	if c.Low.GreaterThan(minOC) || c.High.LessThan(maxOC) {
		return false
	}
	return c.Volume.Sign() >= 0
}

// Range returns High - Low.
func (c Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close.GreaterThan(c.Open)
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close.LessThan(c.Open)
}
