package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the reduce-only closing side for a position side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of order understood by the exchange gateway.
type OrderType string

const (
	OrderTypeMarket           OrderType = "market"
	OrderTypeLimit            OrderType = "limit"
	OrderTypeStopMarket       OrderType = "stop_market"
	OrderTypeTakeProfitMarket OrderType = "take_profit_market"
	OrderTypeStopLimit        OrderType = "stop_limit"
	OrderTypeTakeProfitLimit  OrderType = "take_profit_limit"
	OrderTypeTrailingStopMkt  OrderType = "trailing_stop_market"
)

// OrderStatus represents the current state of an order as observed via
// REST response or the user-data stream.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status will never transition further.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Order is a request to, or observed state from, the exchange.
type Order struct {
	ID             string          `json:"id" db:"id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           OrderSide       `json:"side" db:"side"`
	Type           OrderType       `json:"type" db:"type"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	Price          decimal.Decimal `json:"price" db:"price"`
	StopPrice      decimal.Decimal `json:"stop_price,omitempty" db:"stop_price"`
	ReduceOnly     bool            `json:"reduce_only" db:"reduce_only"`
	Status         OrderStatus     `json:"status" db:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity" db:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price" db:"average_price"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is a completed fill against an order.
type Trade struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       OrderSide       `json:"side" db:"side"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// Balance is an account equity snapshot.
type Balance struct {
	Asset         string          `json:"asset" db:"asset"`
	AvailableCash decimal.Decimal `json:"available_cash" db:"available_cash"`
	Equity        decimal.Decimal `json:"equity" db:"equity"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
