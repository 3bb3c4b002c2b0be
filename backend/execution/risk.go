// Package execution hosts the risk guard, position cache, order gateway,
// and audit logger that sit between a signal leaving a strategy and an
// order reaching the exchange.
package execution

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// minSLDistance is the floor applied to the stop-loss distance percentage
// before it is used as a sizing divisor, so an entry and stop on (or
// extremely near) the same price can't blow up the division.
var minSLDistance = decimal.NewFromFloat(0.001)

// LotSize describes an exchange symbol's quantity quantization rules.
type LotSize struct {
	Step      decimal.Decimal
	Precision int32
}

// RiskConfig bounds the risk guard's sizing and validation behavior.
//
// MaxRiskPerTrade must be in (0, 0.1]; MaxLeverage in [1, 125];
// MaxPositionSizePercent is typically 0.1 (10% of equity at 1x, scaled by
// leverage in the sizing formula).
type RiskConfig struct {
	MaxRiskPerTrade        decimal.Decimal
	MaxLeverage            int
	MaxPositionSizePercent decimal.Decimal
}

// RiskGuard validates signals against the current position book and sizes
// approved entries against account equity. It never executes orders; it
// only decides whether a signal may proceed and how large the resulting
// position should be.
type RiskGuard struct {
	config RiskConfig
	audit  *AuditLogger
}

// NewRiskGuard constructs a RiskGuard. audit may be nil in tests that don't
// care about the audit trail.
func NewRiskGuard(config RiskConfig, audit *AuditLogger) *RiskGuard {
	return &RiskGuard{config: config, audit: audit}
}

func (r *RiskGuard) logEvent(ev AuditEvent) {
	if r.audit != nil {
		r.audit.LogEvent(ev)
	}
}

// ValidateSignal checks a strategy-produced signal against the risk guard's
// rules before it is allowed to proceed to sizing and execution.
//
// Entry signals are rejected when a position already exists for the symbol,
// or when the take-profit/stop-loss ordering on the requested side is
// invalid. Exit signals are rejected when no position exists, or when the
// existing position's side doesn't match the exit's target side.
func (r *RiskGuard) ValidateSignal(signal models.Signal, position *models.Position) error {
	if signal.Kind.IsExit() {
		return r.validateExit(signal, position)
	}
	return r.validateEntry(signal, position)
}

func (r *RiskGuard) validateEntry(signal models.Signal, position *models.Position) error {
	if position != nil {
		log.Warn().Str("symbol", signal.Symbol).Str("position_side", string(position.Side)).
			Msg("signal rejected: existing position for symbol")
		r.logEvent(AuditEvent{
			EventType: AuditRiskRejection,
			Operation: "validate_signal",
			Symbol:    signal.Symbol,
			OrderData: map[string]any{"signal_kind": signal.Kind, "entry_price": signal.EntryPrice},
			Error:     map[string]any{"reason": "existing_position", "position_side": position.Side, "position_entry": position.EntryPrice},
		})
		return fmt.Errorf("existing position for %s", signal.Symbol)
	}

	switch signal.Kind {
	case models.SignalLongEntry:
		if !signal.TakeProfit.GreaterThan(signal.EntryPrice) {
			return r.rejectLevels(signal, "LONG_TP")
		}
		if !signal.StopLoss.LessThan(signal.EntryPrice) {
			return r.rejectLevels(signal, "LONG_SL")
		}
	case models.SignalShortEntry:
		if !signal.TakeProfit.LessThan(signal.EntryPrice) {
			return r.rejectLevels(signal, "SHORT_TP")
		}
		if !signal.StopLoss.GreaterThan(signal.EntryPrice) {
			return r.rejectLevels(signal, "SHORT_SL")
		}
	}

	r.logEvent(AuditEvent{
		EventType: AuditRiskValidation,
		Operation: "validate_signal",
		Symbol:    signal.Symbol,
		OrderData: map[string]any{"signal_kind": signal.Kind, "entry_price": signal.EntryPrice, "take_profit": signal.TakeProfit, "stop_loss": signal.StopLoss},
		Data:      map[string]any{"validation_passed": true},
	})
	return nil
}

func (r *RiskGuard) rejectLevels(signal models.Signal, failed string) error {
	log.Warn().Str("symbol", signal.Symbol).Str("failed", failed).Msg("signal rejected: invalid tp/sl levels")
	r.logEvent(AuditEvent{
		EventType: AuditRiskRejection,
		Operation: "validate_signal",
		Symbol:    signal.Symbol,
		OrderData: map[string]any{"signal_kind": signal.Kind, "entry_price": signal.EntryPrice, "take_profit": signal.TakeProfit, "stop_loss": signal.StopLoss},
		Error:     map[string]any{"reason": "invalid_tp_sl_levels", "validation_failed": failed},
	})
	return fmt.Errorf("invalid %s tp/sl levels for %s", failed, signal.Symbol)
}

func (r *RiskGuard) validateExit(signal models.Signal, position *models.Position) error {
	if position == nil {
		log.Warn().Str("symbol", signal.Symbol).Msg("exit signal rejected: no position")
		r.logEvent(AuditEvent{
			EventType: AuditRiskRejection,
			Operation: "validate_exit_signal",
			Symbol:    signal.Symbol,
			OrderData: map[string]any{"signal_kind": signal.Kind, "exit_reason": signal.ExitReason},
			Error:     map[string]any{"reason": "no_position_to_exit"},
		})
		return fmt.Errorf("no position to exit for %s", signal.Symbol)
	}

	expected := models.PositionLong
	if signal.Kind == models.SignalCloseShort {
		expected = models.PositionShort
	}
	if position.Side != expected {
		log.Warn().Str("symbol", signal.Symbol).Str("expected_side", string(expected)).Str("actual_side", string(position.Side)).
			Msg("exit signal rejected: position side mismatch")
		r.logEvent(AuditEvent{
			EventType: AuditRiskRejection,
			Operation: "validate_exit_signal",
			Symbol:    signal.Symbol,
			OrderData: map[string]any{"signal_kind": signal.Kind, "exit_reason": signal.ExitReason},
			Error:     map[string]any{"reason": "position_side_mismatch", "expected_side": expected, "actual_side": position.Side},
		})
		return fmt.Errorf("exit signal side mismatch for %s: want %s, have %s", signal.Symbol, expected, position.Side)
	}

	r.logEvent(AuditEvent{
		EventType: AuditRiskValidation,
		Operation: "validate_exit_signal",
		Symbol:    signal.Symbol,
		OrderData: map[string]any{"signal_kind": signal.Kind, "exit_reason": signal.ExitReason},
		Data:      map[string]any{"validation_passed": true, "position_side": position.Side, "position_quantity": position.Quantity},
	})
	return nil
}

// PositionSize computes a risk-bounded entry quantity for a validated entry
// signal.
//
//	risk_usdt    = equity × MaxRiskPerTrade
//	sl_distance  = |entry - stop| / entry      (floored at 0.1%, warns)
//	position_val = risk_usdt / sl_distance
//	quantity     = position_val / entry
//	max_val      = equity × MaxPositionSizePercent × leverage
//	quantity     = min(quantity, max_val / entry), floored to lot size
func (r *RiskGuard) PositionSize(equity decimal.Decimal, signal models.Signal, leverage int, lot LotSize) (decimal.Decimal, error) {
	if equity.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("account equity must be > 0, got %s", equity)
	}
	if signal.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("entry price must be > 0, got %s", signal.EntryPrice)
	}
	if signal.StopLoss.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("stop loss price must be > 0, got %s", signal.StopLoss)
	}
	if leverage < 1 || leverage > r.config.MaxLeverage {
		return decimal.Zero, fmt.Errorf("leverage must be between 1 and %d, got %d", r.config.MaxLeverage, leverage)
	}

	slDistance := signal.EntryPrice.Sub(signal.StopLoss).Abs().Div(signal.EntryPrice)
	if slDistance.IsZero() {
		log.Warn().Str("symbol", signal.Symbol).Msg("zero SL distance, using minimum 0.1% to avoid division blow-up")
		slDistance = minSLDistance
	}

	riskUSDT := equity.Mul(r.config.MaxRiskPerTrade)
	positionVal := riskUSDT.Div(slDistance)
	quantity := positionVal.Div(signal.EntryPrice)

	maxVal := equity.Mul(r.config.MaxPositionSizePercent).Mul(decimal.NewFromInt(int64(leverage)))
	maxQuantity := maxVal.Div(signal.EntryPrice)

	if quantity.GreaterThan(maxQuantity) {
		requested := quantity
		log.Warn().Str("symbol", signal.Symbol).
			Str("requested", requested.String()).Str("capped", maxQuantity.String()).
			Msg("position size exceeds maximum, capping")
		r.logEvent(AuditEvent{
			EventType: AuditPositionSizeCapped,
			Operation: "calculate_position_size",
			Symbol:    signal.Symbol,
			Data: map[string]any{
				"requested_quantity": requested,
				"capped_quantity":    maxQuantity,
				"max_position_pct":   r.config.MaxPositionSizePercent,
				"leverage":           leverage,
				"account_equity":     equity,
			},
		})
		quantity = maxQuantity
	}

	quantity = floorToLotSize(quantity, lot)

	r.logEvent(AuditEvent{
		EventType: AuditPositionSizeCalculated,
		Operation: "calculate_position_size",
		Symbol:    signal.Symbol,
		Data: map[string]any{
			"account_equity":  equity,
			"entry_price":     signal.EntryPrice,
			"stop_loss_price": signal.StopLoss,
			"leverage":        leverage,
			"risk_usdt":       riskUSDT,
			"sl_distance_pct": slDistance,
			"position_value":  positionVal,
			"final_quantity":  quantity,
		},
	})

	return quantity, nil
}

// floorToLotSize floors quantity to the nearest multiple of the symbol's
// step size, then rounds to its reported precision.
func floorToLotSize(quantity decimal.Decimal, lot LotSize) decimal.Decimal {
	step := lot.Step
	if step.IsZero() {
		step = decimal.NewFromFloat(0.001)
	}
	precision := lot.Precision
	if precision == 0 {
		precision = 3
	}

	remainder := quantity.Mod(step)
	floored := quantity.Sub(remainder)
	return floored.Round(precision)
}
