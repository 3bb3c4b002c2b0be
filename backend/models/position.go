package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide distinguishes a long exposure from a short one.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderSide returns the order side that would open this position side.
func (s PositionSide) OrderSide() OrderSide {
	if s == PositionLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Position is live exposure for a symbol, as tracked by the position cache.
type Position struct {
	Symbol          string          `json:"symbol" db:"symbol"`
	Side            PositionSide    `json:"side" db:"side"`
	EntryPrice      decimal.Decimal `json:"entry_price" db:"entry_price"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	Leverage        int             `json:"leverage" db:"leverage"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	LiquidationPx   decimal.Decimal `json:"liquidation_price,omitempty" db:"liquidation_price"`
	EntryTime       time.Time       `json:"entry_time,omitempty" db:"entry_time"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Notional returns quantity * entry price.
func (p Position) Notional() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPrice)
}

// MarginUsed returns notional / leverage.
func (p Position) MarginUsed() decimal.Decimal {
	if p.Leverage <= 0 {
		return p.Notional()
	}
	return p.Notional().Div(decimal.NewFromInt(int64(p.Leverage)))
}

// IsZero reports whether the position has no open quantity.
func (p Position) IsZero() bool {
	return p.Quantity.IsZero()
}

// PositionEntryData records the fill details of a position's opening trade,
// used to compute realized PnL and holding duration when a bracket order
// later closes it.
type PositionEntryData struct {
	Symbol          string          `json:"symbol"`
	Side            PositionSide    `json:"side"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"`
	EntryTime       time.Time       `json:"entry_time"`
	EntryOrderID    string          `json:"entry_order_id"`
}

// RealizedPnL computes the profit/loss of closing FilledQuantity at exitPrice.
func (e PositionEntryData) RealizedPnL(exitPrice decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(e.EntryPrice)
	if e.Side == PositionShort {
		diff = e.EntryPrice.Sub(exitPrice)
	}
	return diff.Mul(e.FilledQuantity)
}
