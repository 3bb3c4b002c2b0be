package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/errs"
	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// ExchangeClient is the minimal surface of the perpetual-futures REST API
// the gateway needs. It exists so the gateway can be driven by a fake in
// tests instead of a live exchange connection, the same seam the teacher's
// BinanceAPI interface provided over the spot client.
type ExchangeClient interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol string, isolated bool) error
	PlaceOrder(ctx context.Context, order models.Order) (models.Order, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetPosition(ctx context.Context, symbol string) (models.Position, error)
	GetAllPositions(ctx context.Context) ([]models.Position, error)
	GetAccountBalance(ctx context.Context) (models.Balance, error)
}

// Gateway is a thin, stateless facade over the exchange. It never holds
// position or order state of its own — position state lives exclusively in
// PositionCache — and never makes a trading decision; it only executes the
// one it is handed.
type Gateway struct {
	client ExchangeClient
	audit  *AuditLogger

	leverageSet   map[string]int
	marginTypeSet map[string]bool
}

// NewGateway constructs a Gateway over client. audit may be nil in tests.
func NewGateway(client ExchangeClient, audit *AuditLogger) *Gateway {
	return &Gateway{
		client:        client,
		audit:         audit,
		leverageSet:   make(map[string]int),
		marginTypeSet: make(map[string]bool),
	}
}

func (g *Gateway) logEvent(ev AuditEvent) {
	if g.audit != nil {
		g.audit.LogEvent(ev)
	}
}

// withRetry runs op, retrying on transient errors only, up to maxAttempts
// times with exponential backoff. Any other error (auth, validation,
// margin) returns immediately without retry.
func (g *Gateway) withRetry(ctx context.Context, operation string, maxAttempts int, op func() error) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !errs.Retryable(err) {
			return err
		}

		delay := b.Duration()
		g.logEvent(AuditEvent{
			EventType:    AuditRetryAttempt,
			Operation:    operation,
			Error:        err.Error(),
			RetryAttempt: intPtr(attempt),
			Data:         map[string]any{"max_attempts": maxAttempts, "delay_seconds": delay.Seconds()},
		})
		log.Warn().Str("operation", operation).Int("attempt", attempt).Err(err).Msg("transient error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func intPtr(v int) *int { return &v }

// SetLeverage configures a symbol's leverage. Idempotent: repeated calls
// with the same leverage for a symbol are a no-op against the exchange.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if current, ok := g.leverageSet[symbol]; ok && current == leverage {
		return nil
	}
	err := g.withRetry(ctx, "set_leverage", 3, func() error {
		return g.client.SetLeverage(ctx, symbol, leverage)
	})
	if err != nil {
		return fmt.Errorf("set leverage %s to %dx: %w", symbol, leverage, err)
	}
	g.leverageSet[symbol] = leverage
	return nil
}

// SetMarginType configures a symbol's margin mode. Idempotent.
func (g *Gateway) SetMarginType(ctx context.Context, symbol string, isolated bool) error {
	if current, ok := g.marginTypeSet[symbol]; ok && current == isolated {
		return nil
	}
	err := g.withRetry(ctx, "set_margin_type", 3, func() error {
		return g.client.SetMarginType(ctx, symbol, isolated)
	})
	if err != nil {
		return fmt.Errorf("set margin type %s isolated=%v: %w", symbol, isolated, err)
	}
	g.marginTypeSet[symbol] = isolated
	return nil
}

// ExecuteSignal places the entry order for an approved, sized signal,
// followed by its reduce-only take-profit and stop-loss bracket orders.
// A failure placing a bracket order is logged, not treated as a fatal
// error: the entry has already filled or is live, so the caller must still
// know about it.
func (g *Gateway) ExecuteSignal(ctx context.Context, signal models.Signal, quantity decimal.Decimal) (models.Order, []models.Order, error) {
	side := models.OrderSideBuy
	if signal.Kind == models.SignalShortEntry {
		side = models.OrderSideSell
	}

	entry := models.Order{
		Symbol:   signal.Symbol,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: quantity,
	}

	var placed models.Order
	err := g.withRetry(ctx, "place_entry_order", 3, func() error {
		var placeErr error
		placed, placeErr = g.client.PlaceOrder(ctx, entry)
		return placeErr
	})
	if err != nil {
		g.logEvent(AuditEvent{EventType: AuditTradeExecutionFailed, Operation: "execute_signal", Symbol: signal.Symbol, Error: err.Error()})
		return models.Order{}, nil, fmt.Errorf("place entry order for %s: %w", signal.Symbol, err)
	}
	g.logEvent(AuditEvent{EventType: AuditOrderPlaced, Operation: "execute_signal", Symbol: signal.Symbol, OrderData: entry, Response: placed})

	brackets := make([]models.Order, 0, 2)
	bracketSide := side.Opposite()

	tp := models.Order{Symbol: signal.Symbol, Side: bracketSide, Type: models.OrderTypeTakeProfitMarket, Quantity: quantity, StopPrice: signal.TakeProfit, ReduceOnly: true}
	if placedTP, tpErr := g.placeBracket(ctx, signal.Symbol, tp); tpErr == nil {
		brackets = append(brackets, placedTP)
	}

	sl := models.Order{Symbol: signal.Symbol, Side: bracketSide, Type: models.OrderTypeStopMarket, Quantity: quantity, StopPrice: signal.StopLoss, ReduceOnly: true}
	if placedSL, slErr := g.placeBracket(ctx, signal.Symbol, sl); slErr == nil {
		brackets = append(brackets, placedSL)
	}

	return placed, brackets, nil
}

func (g *Gateway) placeBracket(ctx context.Context, symbol string, order models.Order) (models.Order, error) {
	var placed models.Order
	err := g.withRetry(ctx, "place_bracket_order", 3, func() error {
		var placeErr error
		placed, placeErr = g.client.PlaceOrder(ctx, order)
		return placeErr
	})
	if err != nil {
		log.Error().Str("symbol", symbol).Str("type", string(order.Type)).Err(err).Msg("bracket order placement failed, continuing with partial bracket set")
		g.logEvent(AuditEvent{EventType: AuditOrderRejected, Operation: "place_bracket_order", Symbol: symbol, OrderData: order, Error: err.Error()})
		return models.Order{}, err
	}
	g.logEvent(AuditEvent{EventType: AuditOrderPlaced, Operation: "place_bracket_order", Symbol: symbol, OrderData: order, Response: placed})
	return placed, nil
}

// ExecuteMarketClose closes an existing position at market, reduce-only.
func (g *Gateway) ExecuteMarketClose(ctx context.Context, position models.Position) (models.Order, error) {
	order := models.Order{
		Symbol:     position.Symbol,
		Side:       position.Side.OrderSide().Opposite(),
		Type:       models.OrderTypeMarket,
		Quantity:   position.Quantity,
		ReduceOnly: true,
	}

	var placed models.Order
	err := g.withRetry(ctx, "execute_market_close", 3, func() error {
		var placeErr error
		placed, placeErr = g.client.PlaceOrder(ctx, order)
		return placeErr
	})
	if err != nil {
		g.logEvent(AuditEvent{EventType: AuditTradeExecutionFailed, Operation: "execute_market_close", Symbol: position.Symbol, Error: err.Error()})
		return models.Order{}, fmt.Errorf("close position %s: %w", position.Symbol, err)
	}
	g.logEvent(AuditEvent{EventType: AuditPositionClosed, Operation: "execute_market_close", Symbol: position.Symbol, OrderData: order, Response: placed})
	return placed, nil
}

// CancelAllOrders cancels every open order for symbol. Cancelling when none
// are open is not an error.
func (g *Gateway) CancelAllOrders(ctx context.Context, symbol string) error {
	err := g.withRetry(ctx, "cancel_all_orders", 3, func() error {
		return g.client.CancelAllOpenOrders(ctx, symbol)
	})
	if err != nil {
		return fmt.Errorf("cancel all orders for %s: %w", symbol, err)
	}
	g.logEvent(AuditEvent{EventType: AuditOrderCancelled, Operation: "cancel_all_orders", Symbol: symbol})
	return nil
}

// GetPosition queries the exchange directly for a symbol's position. Used
// to reconcile PositionCache, never as the hot path for trading decisions.
func (g *Gateway) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	var pos models.Position
	err := g.withRetry(ctx, "get_position", 3, func() error {
		var getErr error
		pos, getErr = g.client.GetPosition(ctx, symbol)
		return getErr
	})
	return pos, err
}

// GetAllPositions queries the exchange directly for every open position.
func (g *Gateway) GetAllPositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	err := g.withRetry(ctx, "get_all_positions", 3, func() error {
		var getErr error
		positions, getErr = g.client.GetAllPositions(ctx)
		return getErr
	})
	return positions, err
}

// GetAccountBalance queries the exchange directly for account equity.
func (g *Gateway) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	var balance models.Balance
	err := g.withRetry(ctx, "get_account_balance", 3, func() error {
		var getErr error
		balance, getErr = g.client.GetAccountBalance(ctx)
		return getErr
	})
	return balance, err
}
