package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind enumerates the decisions a strategy can emit.
type SignalKind string

const (
	SignalLongEntry  SignalKind = "long_entry"
	SignalShortEntry SignalKind = "short_entry"
	SignalCloseLong  SignalKind = "close_long"
	SignalCloseShort SignalKind = "close_short"
)

// IsEntry reports whether the signal kind opens a new position.
func (k SignalKind) IsEntry() bool {
	return k == SignalLongEntry || k == SignalShortEntry
}

// IsExit reports whether the signal kind closes an existing position.
func (k SignalKind) IsExit() bool {
	return k == SignalCloseLong || k == SignalCloseShort
}

// Signal is a strategy's decision to enter or exit a position.
//
// For entry signals, TakeProfit and StopLoss are required and must satisfy
// the side-appropriate ordering against EntryPrice. Exit signals carry only
// a target price and an ExitReason; TakeProfit/StopLoss are zero.
type Signal struct {
	Kind         SignalKind      `json:"kind"`
	Symbol       string          `json:"symbol"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	TakeProfit   decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss     decimal.Decimal `json:"stop_loss,omitempty"`
	StrategyName string          `json:"strategy_name"`
	Timestamp    time.Time       `json:"timestamp"`
	Confidence   float64         `json:"confidence"`
	ExitReason   string          `json:"exit_reason,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Valid checks the side-appropriate TP/entry/SL ordering invariant for
// entry signals. Exit signals are always considered valid by this check.
func (s Signal) Valid() bool {
	switch s.Kind {
	case SignalLongEntry:
		return s.TakeProfit.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.StopLoss)
	case SignalShortEntry:
		return s.StopLoss.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.TakeProfit)
	default:
		return true
	}
}

// RiskRewardRatio returns |TP-entry| / |entry-SL|. Callers must guard
// against a zero SL distance before relying on this value.
func (s Signal) RiskRewardRatio() decimal.Decimal {
	reward := s.TakeProfit.Sub(s.EntryPrice).Abs()
	risk := s.EntryPrice.Sub(s.StopLoss).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return reward.Div(risk)
}
