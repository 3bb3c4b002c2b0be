// Package strategies provides the composable strategy framework: pluggable
// entry, stop-loss, take-profit, and exit determiners assembled into a
// single ComposableStrategy per symbol.
package strategies

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// EntryContext is the read-only view an EntryDeterminer analyzes. Buffers
// holds closed candles per interval, most recent last.
type EntryContext struct {
	Symbol    string
	Candle    models.Candle
	Buffers   map[string][]models.Candle
	Timestamp time.Time
}

// EntryDecision is the result of an EntryDeterminer firing: a side, an
// entry price, and an opaque extras map carrying zone data (fvg_zone,
// ob_zone, displacement_size) for downstream pricing determiners to
// consume without the entry determiner needing to know which pricing
// strategy is wired in.
type EntryDecision struct {
	Kind       models.SignalKind
	EntryPrice decimal.Decimal
	Confidence float64
	Extras     map[string]any
	Metadata   map[string]any
}

// EntryDeterminer decides whether and where to enter a position.
type EntryDeterminer interface {
	Name() string
	Requirements() models.ModuleRequirements
	Analyze(ctx EntryContext) (*EntryDecision, error)
}

// PriceContext is passed to pricing determiners after an entry decision
// has fired. Extras carries the entry determiner's opaque zone data.
type PriceContext struct {
	Symbol     string
	Side       models.PositionSide
	EntryPrice decimal.Decimal
	Extras     map[string]any
}

// StopLossDeterminer computes a stop-loss price for a pending entry.
type StopLossDeterminer interface {
	Name() string
	CalculateStopLoss(ctx PriceContext) decimal.Decimal
}

// TakeProfitDeterminer computes a take-profit price given the already
// resolved stop-loss, so risk-reward based determiners can use the SL
// distance.
type TakeProfitDeterminer interface {
	Name() string
	CalculateTakeProfit(ctx PriceContext, stopLoss decimal.Decimal) decimal.Decimal
}

// ExitContext is the read-only view an ExitDeterminer analyzes for an
// open position.
type ExitContext struct {
	Symbol    string
	Candle    models.Candle
	Position  models.Position
	Buffers   map[string][]models.Candle
	Timestamp time.Time
}

// ExitDeterminer decides whether an open position should be closed now,
// independent of the bracket TP/SL orders resting at the exchange.
type ExitDeterminer interface {
	Name() string
	Requirements() models.ModuleRequirements
	ShouldExit(ctx ExitContext) (*models.Signal, error)
}

// TrailingLevelProvider is implemented by exit determiners that maintain a
// per-symbol trailing stop level, so operators can inspect it without
// reaching into determiner internals.
type TrailingLevelProvider interface {
	TrailingLevels() map[string]decimal.Decimal
}

// ModuleConfig bundles the four determiners that make up one composable
// strategy instance.
type ModuleConfig struct {
	EntryDeterminer      EntryDeterminer
	StopLossDeterminer   StopLossDeterminer
	TakeProfitDeterminer TakeProfitDeterminer
	ExitDeterminer       ExitDeterminer
}

// AggregatedRequirements unions the data requirements of every determiner
// that declares one (entry and exit; pricing determiners are stateless
// with respect to buffer history).
func (m ModuleConfig) AggregatedRequirements() models.ModuleRequirements {
	return models.MergeModuleRequirements(
		m.EntryDeterminer.Requirements(),
		m.ExitDeterminer.Requirements(),
	)
}

// ComposableStrategy orchestrates the four determiners for one symbol:
// entry determination, SL/TP calculation, risk-reward filtering, and exit
// determination on every closed candle.
type ComposableStrategy struct {
	Symbol     string
	Modules    ModuleConfig
	MinRRRatio float64
}

// NewComposableStrategy builds a strategy instance for symbol from the
// given determiner set. minRRRatio filters out entries whose reward/risk
// falls below the threshold before a signal is ever emitted.
func NewComposableStrategy(symbol string, modules ModuleConfig, minRRRatio float64) *ComposableStrategy {
	if minRRRatio <= 0 {
		minRRRatio = 1.5
	}
	return &ComposableStrategy{Symbol: symbol, Modules: modules, MinRRRatio: minRRRatio}
}

// Analyze runs the entry→SL→TP→RR-filter pipeline for one closed candle
// and returns a signal, or nil if no entry fired or the result failed the
// risk-reward filter.
func (s *ComposableStrategy) Analyze(ctx EntryContext) (*models.Signal, error) {
	if !ctx.Candle.IsClosed {
		return nil, nil
	}

	decision, err := s.Modules.EntryDeterminer.Analyze(ctx)
	if err != nil {
		return nil, fmt.Errorf("entry determiner %s: %w", s.Modules.EntryDeterminer.Name(), err)
	}
	if decision == nil {
		return nil, nil
	}

	side := models.PositionLong
	if decision.Kind == models.SignalShortEntry {
		side = models.PositionShort
	}

	priceCtx := PriceContext{
		Symbol:     s.Symbol,
		Side:       side,
		EntryPrice: decision.EntryPrice,
		Extras:     decision.Extras,
	}

	stopLoss := s.Modules.StopLossDeterminer.CalculateStopLoss(priceCtx)
	takeProfit := s.Modules.TakeProfitDeterminer.CalculateTakeProfit(priceCtx, stopLoss)

	risk := decision.EntryPrice.Sub(stopLoss).Abs()
	if risk.IsZero() {
		return nil, nil
	}

	reward := takeProfit.Sub(decision.EntryPrice).Abs()
	rrRatio, _ := reward.Div(risk).Float64()
	if rrRatio < s.MinRRRatio {
		return nil, nil
	}

	metadata := decision.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["rr_ratio"] = rrRatio

	return &models.Signal{
		Kind:         decision.Kind,
		Symbol:       s.Symbol,
		EntryPrice:   decision.EntryPrice,
		TakeProfit:   takeProfit,
		StopLoss:     stopLoss,
		StrategyName: fmt.Sprintf("composed(%s)", s.Modules.EntryDeterminer.Name()),
		Timestamp:    ctx.Timestamp,
		Confidence:   decision.Confidence,
		Metadata:     metadata,
	}, nil
}

// CheckExit delegates exit determination to the configured exit determiner.
func (s *ComposableStrategy) CheckExit(ctx ExitContext) (*models.Signal, error) {
	if !ctx.Candle.IsClosed {
		return nil, nil
	}
	return s.Modules.ExitDeterminer.ShouldExit(ctx)
}

// TrailingLevels returns the exit determiner's current trailing levels, or
// an empty map if it doesn't track any.
func (s *ComposableStrategy) TrailingLevels() map[string]decimal.Decimal {
	if provider, ok := s.Modules.ExitDeterminer.(TrailingLevelProvider); ok {
		return provider.TrailingLevels()
	}
	return map[string]decimal.Decimal{}
}

// EntryFactory builds an EntryDeterminer from a parameter set.
type EntryFactory func(params map[string]any) (EntryDeterminer, error)

// ExitFactory builds an ExitDeterminer from a parameter set.
type ExitFactory func(params map[string]any) (ExitDeterminer, error)

// StopLossFactory builds a StopLossDeterminer from a parameter set.
type StopLossFactory func(params map[string]any) (StopLossDeterminer, error)

// TakeProfitFactory builds a TakeProfitDeterminer from a parameter set.
type TakeProfitFactory func(params map[string]any) (TakeProfitDeterminer, error)

var (
	entryRegistry      = map[string]EntryFactory{}
	exitRegistry       = map[string]ExitFactory{}
	stopLossRegistry   = map[string]StopLossFactory{}
	takeProfitRegistry = map[string]TakeProfitFactory{}
)

// RegisterEntry adds an entry determiner constructor to the package-level
// registry. Determiner packages call this from an init() function so the
// strategy assembler can look them up by name without an import cycle.
func RegisterEntry(name string, factory EntryFactory) {
	entryRegistry[name] = factory
}

// RegisterExit adds an exit determiner constructor to the registry.
func RegisterExit(name string, factory ExitFactory) {
	exitRegistry[name] = factory
}

// RegisterStopLoss adds a stop-loss determiner constructor to the registry.
func RegisterStopLoss(name string, factory StopLossFactory) {
	stopLossRegistry[name] = factory
}

// RegisterTakeProfit adds a take-profit determiner constructor to the registry.
func RegisterTakeProfit(name string, factory TakeProfitFactory) {
	takeProfitRegistry[name] = factory
}

// BuildEntry constructs a registered entry determiner by name.
func BuildEntry(name string, params map[string]any) (EntryDeterminer, error) {
	factory, ok := entryRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown entry determiner: %s", name)
	}
	return factory(params)
}

// BuildExit constructs a registered exit determiner by name.
func BuildExit(name string, params map[string]any) (ExitDeterminer, error) {
	factory, ok := exitRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown exit determiner: %s", name)
	}
	return factory(params)
}

// BuildStopLoss constructs a registered stop-loss determiner by name.
func BuildStopLoss(name string, params map[string]any) (StopLossDeterminer, error) {
	factory, ok := stopLossRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown stop-loss determiner: %s", name)
	}
	return factory(params)
}

// BuildTakeProfit constructs a registered take-profit determiner by name.
func BuildTakeProfit(name string, params map[string]any) (TakeProfitDeterminer, error) {
	factory, ok := takeProfitRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown take-profit determiner: %s", name)
	}
	return factory(params)
}
