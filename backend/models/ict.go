package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the bias of an ICT zone or detected structure.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBullish {
		return DirectionBearish
	}
	return DirectionBullish
}

// ZoneStatus tracks the lifecycle of a price zone (FVG or order block) as
// subsequent candles interact with it.
type ZoneStatus string

const (
	ZoneActive      ZoneStatus = "active"
	ZoneTouched     ZoneStatus = "touched"
	ZoneMitigated   ZoneStatus = "mitigated"
	ZoneFilled      ZoneStatus = "filled"
	ZoneInvalidated ZoneStatus = "invalidated"
)

// Terminal reports whether the zone will no longer be considered for entries.
func (s ZoneStatus) Terminal() bool {
	return s == ZoneMitigated || s == ZoneFilled || s == ZoneInvalidated
}

// FairValueGap is a 3-candle price imbalance.
type FairValueGap struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	Direction  Direction       `json:"direction"`
	GapLow     decimal.Decimal `json:"gap_low"`
	GapHigh    decimal.Decimal `json:"gap_high"`
	FormedAt   time.Time       `json:"formed_at"`
	Index      int             `json:"index"`
	Status     ZoneStatus      `json:"status"`
	FillPct    decimal.Decimal `json:"fill_percent"`
}

// Midpoint returns the center of the gap band.
func (f FairValueGap) Midpoint() decimal.Decimal {
	return f.GapLow.Add(f.GapHigh).Div(decimal.NewFromInt(2))
}

// Size returns GapHigh - GapLow.
func (f FairValueGap) Size() decimal.Decimal {
	return f.GapHigh.Sub(f.GapLow)
}

// ContainsPrice reports whether price falls inside the gap band.
func (f FairValueGap) ContainsPrice(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(f.GapLow) && price.LessThanOrEqual(f.GapHigh)
}

// OrderBlock is the last opposite-direction candle before a displacement.
type OrderBlock struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Interval         string          `json:"interval"`
	Direction        Direction       `json:"direction"`
	High             decimal.Decimal `json:"high"`
	Low              decimal.Decimal `json:"low"`
	DisplacementSize decimal.Decimal `json:"displacement_size"`
	Strength         decimal.Decimal `json:"strength"`
	FormedAt         time.Time       `json:"formed_at"`
	Index            int             `json:"index"`
	Status           ZoneStatus      `json:"status"`
}

// Midpoint returns the center of the block.
func (o OrderBlock) Midpoint() decimal.Decimal {
	return o.Low.Add(o.High).Div(decimal.NewFromInt(2))
}

// Trend is the market-structure bias for an interval.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// SwingKind distinguishes a local high from a local low.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local price extreme identified by a fractal window scan.
type SwingPoint struct {
	Index     int             `json:"index"`
	Price     decimal.Decimal `json:"price"`
	Kind      SwingKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
}

// StructureEvent is a detected BOS or CHoCH occurrence.
type StructureEvent struct {
	Type      string    `json:"type"` // "BOS" or "CHoCH"
	Direction Direction `json:"direction"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketStructure is the per-interval trend snapshot with its supporting swings.
type MarketStructure struct {
	Symbol         string     `json:"symbol"`
	Interval       string     `json:"interval"`
	Trend          Trend      `json:"trend"`
	LastSwingHigh  SwingPoint `json:"last_swing_high"`
	LastSwingLow   SwingPoint `json:"last_swing_low"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LiquidityPool is a cluster of equal highs or equal lows.
type LiquidityPool struct {
	Direction Direction       `json:"direction"` // Bullish = equal highs, Bearish = equal lows
	Price     decimal.Decimal `json:"price"`
	Touches   []SwingPoint    `json:"touches"`
}

// ModuleRequirements is a frozen declaration of the intervals and minimum
// candle counts a determiner needs. Constructed once at strategy init,
// never mutated on the hot path.
type ModuleRequirements struct {
	Timeframes map[string]struct{}
	MinCandles map[string]int
}

// NewModuleRequirements builds a requirements set from interval -> min-candles pairs.
func NewModuleRequirements(minCandles map[string]int) ModuleRequirements {
	tf := make(map[string]struct{}, len(minCandles))
	for interval := range minCandles {
		tf[interval] = struct{}{}
	}
	return ModuleRequirements{Timeframes: tf, MinCandles: minCandles}
}

// EmptyModuleRequirements is the zero-dependency requirement set.
func EmptyModuleRequirements() ModuleRequirements {
	return ModuleRequirements{Timeframes: map[string]struct{}{}, MinCandles: map[string]int{}}
}

// MergeModuleRequirements unions timeframes and takes the max min-candles
// per timeframe across all of a strategy's determiners.
func MergeModuleRequirements(reqs ...ModuleRequirements) ModuleRequirements {
	tf := make(map[string]struct{})
	minCandles := make(map[string]int)
	for _, r := range reqs {
		for interval := range r.Timeframes {
			tf[interval] = struct{}{}
		}
		for interval, count := range r.MinCandles {
			if count > minCandles[interval] {
				minCandles[interval] = count
			}
		}
	}
	return ModuleRequirements{Timeframes: tf, MinCandles: minCandles}
}
