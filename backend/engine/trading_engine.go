package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/execution"
	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
	"github.com/ocho011/ict-2025-sub000/backend/tracing"
)

// postExitCooldown withholds new entries for a symbol for a short window
// after any exit, so the candle that triggered the close can't also fire a
// same-bar re-entry off stale buffer state.
const postExitCooldown = 30 * time.Second

// State is a lifecycle stage of the trading engine.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Streamer is the subset of data.PublicMarketStreamer the engine drives.
type Streamer interface {
	Stream(symbol, interval string)
	Stop()
}

// UserStreamer is the subset of data.PrivateUserStreamer the engine drives.
type UserStreamer interface {
	Run()
	Stop()
}

// Broadcaster is the subset of realtime.WebSocketManager the engine pushes
// operator-dashboard updates through. It is entirely separate from the
// exchange-facing streams: nothing read from it drives trading decisions.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// symbolBuffer holds the closed-candle ring buffers for one symbol, keyed by
// interval, bounded by the strategy's declared minimum candle counts.
type symbolBuffer struct {
	mu      sync.Mutex
	candles map[string][]models.Candle
	limits  map[string]int
}

func newSymbolBuffer(limits map[string]int) *symbolBuffer {
	return &symbolBuffer{candles: make(map[string][]models.Candle), limits: limits}
}

func (b *symbolBuffer) push(interval string, c models.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := b.limits[interval]
	if limit <= 0 {
		limit = 200
	}
	buf := append(b.candles[interval], c)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	b.candles[interval] = buf
}

func (b *symbolBuffer) snapshot() map[string][]models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]models.Candle, len(b.candles))
	for k, v := range b.candles {
		cp := make([]models.Candle, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// TradingEngine wires the event bus, per-symbol composable strategies, risk
// guard, position cache, and order gateway into the live trading loop. It
// moves through a fixed lifecycle: Created -> Initialized -> Running ->
// Stopping -> Stopped. Each transition method rejects being called from the
// wrong state rather than silently no-op'ing.
type TradingEngine struct {
	cfg         *config.Config
	bus         *Bus
	gateway     *execution.Gateway
	risk        *execution.RiskGuard
	cache       *execution.PositionCache
	liquidation *execution.LiquidationManager
	audit       *execution.AuditLogger
	lotSizes    map[string]execution.LotSize

	mu         sync.RWMutex
	state      State
	strategies map[string]*strategies.ComposableStrategy
	buffers    map[string]*symbolBuffer

	entriesMu sync.Mutex
	entries   map[string]models.PositionEntryData // symbol -> open entry fill data
	brackets  map[string][]string                 // symbol -> bracket order IDs awaiting a fill

	publicStream Streamer
	userStream   UserStreamer
	broadcaster  Broadcaster
}

// NewTradingEngine constructs an engine in the Created state. Strategies are
// wired in at Initialize, once the configured intervals are known.
func NewTradingEngine(
	cfg *config.Config,
	gateway *execution.Gateway,
	risk *execution.RiskGuard,
	cache *execution.PositionCache,
	liquidation *execution.LiquidationManager,
	audit *execution.AuditLogger,
	lotSizes map[string]execution.LotSize,
) *TradingEngine {
	return &TradingEngine{
		cfg:         cfg,
		bus:         NewBus(256),
		gateway:     gateway,
		risk:        risk,
		cache:       cache,
		liquidation: liquidation,
		audit:       audit,
		lotSizes:    lotSizes,
		state:       StateCreated,
		strategies:  make(map[string]*strategies.ComposableStrategy),
		buffers:     make(map[string]*symbolBuffer),
		entries:     make(map[string]models.PositionEntryData),
		brackets:    make(map[string][]string),
	}
}

// Bus exposes the underlying event bus so callers can wire streamers to it
// without reaching into engine internals.
func (e *TradingEngine) Bus() *Bus { return e.bus }

// State reports the engine's current lifecycle stage.
func (e *TradingEngine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *TradingEngine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Initialize assembles one ComposableStrategy per configured symbol,
// rejects any determiner requiring an interval that isn't in the
// configured INTERVALS list, configures leverage and margin mode per
// symbol, and subscribes the bus handlers. It must be called exactly once,
// from the Created state.
func (e *TradingEngine) Initialize(ctx context.Context, modulesBySymbol map[string]strategies.ModuleConfig, minRRRatio float64) error {
	if e.State() != StateCreated {
		return fmt.Errorf("engine must be in created state to initialize, got %s", e.State())
	}

	configured := make(map[string]bool, len(e.cfg.Intervals))
	for _, iv := range e.cfg.Intervals {
		configured[iv] = true
	}

	for symbol, modules := range modulesBySymbol {
		reqs := modules.AggregatedRequirements()
		for interval := range reqs.Timeframes {
			if !configured[interval] {
				return fmt.Errorf("symbol %s strategy requires interval %s, which is not in configured INTERVALS", symbol, interval)
			}
		}

		strat := strategies.NewComposableStrategy(symbol, modules, minRRRatio)

		e.mu.Lock()
		e.strategies[symbol] = strat
		e.buffers[symbol] = newSymbolBuffer(reqs.MinCandles)
		e.mu.Unlock()

		isolated := e.cfg.MarginType == config.MarginIsolated
		if err := e.gateway.SetMarginType(ctx, symbol, isolated); err != nil {
			return fmt.Errorf("configure margin type for %s: %w", symbol, err)
		}
		if err := e.gateway.SetLeverage(ctx, symbol, e.cfg.Leverage); err != nil {
			return fmt.Errorf("configure leverage for %s: %w", symbol, err)
		}
	}

	e.bus.Subscribe(models.EventKindData, e.onCandleClosed)
	e.bus.Subscribe(models.EventKindSignal, e.onSignalGenerated)
	e.bus.Subscribe(models.EventKindOrder, e.onOrderEvent)

	e.setState(StateInitialized)
	log.Info().Int("symbols", len(modulesBySymbol)).Strs("intervals", e.cfg.Intervals).Msg("trading engine initialized")
	return nil
}

// AttachStreamers wires the public market and private user streamers the
// engine starts and stops as part of its own lifecycle. Call before Run;
// either argument may be nil (useful in tests that drive the bus directly).
func (e *TradingEngine) AttachStreamers(public Streamer, user UserStreamer) {
	e.publicStream = public
	e.userStream = user
}

// SetBroadcaster attaches the operator-dashboard push channel. Optional: if
// never called, engine events simply aren't broadcast anywhere.
func (e *TradingEngine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

func (e *TradingEngine) broadcast(msgType string, payload interface{}) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(msgType, payload)
	}
}

// Run starts the bus processors and every configured market/user stream. It
// does not block; the caller waits on its own shutdown signal and then
// calls Shutdown.
func (e *TradingEngine) Run(ctx context.Context) error {
	if e.State() != StateInitialized {
		return fmt.Errorf("engine must be initialized before running, got %s", e.State())
	}

	e.bus.Start(ctx)

	e.mu.RLock()
	symbols := make([]string, 0, len(e.strategies))
	for symbol := range e.strategies {
		symbols = append(symbols, symbol)
	}
	e.mu.RUnlock()

	if e.publicStream != nil {
		for _, symbol := range symbols {
			for _, interval := range e.cfg.Intervals {
				e.publicStream.Stream(symbol, interval)
			}
		}
	}
	if e.userStream != nil {
		e.userStream.Run()
	}

	e.setState(StateRunning)
	log.Info().Strs("symbols", symbols).Msg("trading engine running")
	return nil
}

// Shutdown stops accepting new stream ticks, drains the bus, and — if the
// configured liquidation settings call for it — runs the emergency
// liquidation sweep before declaring the engine stopped. Shutdown never
// fails the whole sequence because of a liquidation result other than
// success; the result is logged and shutdown proceeds regardless, since
// ExecuteLiquidation already carries its own fail-safe guarantee.
func (e *TradingEngine) Shutdown(ctx context.Context) error {
	if e.State() != StateRunning {
		return fmt.Errorf("engine must be running to shut down, got %s", e.State())
	}
	e.setState(StateStopping)
	log.Info().Msg("trading engine shutdown initiated")

	if e.publicStream != nil {
		e.publicStream.Stop()
	}
	if e.userStream != nil {
		e.userStream.Stop()
	}

	e.bus.Shutdown(e.cfg.ShutdownTimeout)

	if e.cfg.Liquidation.EmergencyLiquidation {
		e.mu.RLock()
		symbols := make([]string, 0, len(e.strategies))
		for symbol := range e.strategies {
			symbols = append(symbols, symbol)
		}
		e.mu.RUnlock()

		result := e.liquidation.ExecuteLiquidation(symbols)
		log.Info().Str("state", string(result.State)).Int("positions_closed", result.PositionsClosed).
			Int("orders_cancelled", result.OrdersCancelled).Str("correlation_id", result.CorrelationID).
			Msg("shutdown liquidation sweep complete")
	}

	e.setState(StateStopped)
	log.Info().Msg("trading engine stopped")
	return nil
}

func (e *TradingEngine) allowedSymbols() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]bool, len(e.strategies))
	for symbol := range e.strategies {
		out[symbol] = true
	}
	return out
}

func (e *TradingEngine) invalidateAllPositions() {
	for symbol := range e.allowedSymbols() {
		e.cache.Invalidate(symbol)
	}
}

// onCandleClosed is the data-queue handler: it appends every tick, closed or
// not, to the symbol/interval ring buffer, and on a closed candle runs
// exit-then-entry evaluation for that symbol. Exit is always checked before
// entry so a strategy never opens a new position in the same tick it could
// have closed one.
func (e *TradingEngine) onCandleClosed(ctx context.Context, ev models.Event) error {
	candle, ok := ev.Payload.(models.Candle)
	if !ok {
		return fmt.Errorf("data event payload is not a Candle: %T", ev.Payload)
	}

	e.mu.RLock()
	strat, stratOK := e.strategies[ev.Symbol]
	buf, bufOK := e.buffers[ev.Symbol]
	e.mu.RUnlock()
	if !stratOK || !bufOK {
		return fmt.Errorf("candle for unconfigured symbol %s", ev.Symbol)
	}

	buf.push(candle.Interval, candle)
	if !candle.IsClosed {
		return nil
	}

	logger := tracing.Logger(ctx)
	buffers := buf.snapshot()

	position, hasPosition := e.cache.Get(ev.Symbol)

	if hasPosition {
		exitCtx := strategies.ExitContext{Symbol: ev.Symbol, Candle: candle, Position: position, Buffers: buffers, Timestamp: candle.CloseTime}
		exitSignal, err := strat.CheckExit(exitCtx)
		if err != nil {
			return fmt.Errorf("exit determiner for %s: %w", ev.Symbol, err)
		}
		if exitSignal != nil {
			e.bus.Publish(models.Event{Kind: models.EventKindSignal, Symbol: ev.Symbol, Payload: *exitSignal, Timestamp: candle.CloseTime})
		}
		return nil
	}

	if e.cache.InCooldown(ev.Symbol) {
		return nil
	}

	entryCtx := strategies.EntryContext{Symbol: ev.Symbol, Candle: candle, Buffers: buffers, Timestamp: candle.CloseTime}
	signal, err := strat.Analyze(entryCtx)
	if err != nil {
		return fmt.Errorf("entry determiner for %s: %w", ev.Symbol, err)
	}
	if signal == nil {
		return nil
	}

	logger.Info().Str("symbol", ev.Symbol).Str("kind", string(signal.Kind)).Str("entry", signal.EntryPrice.String()).
		Msg("signal generated")
	e.broadcast("signal", signal)
	e.bus.Publish(models.Event{Kind: models.EventKindSignal, Symbol: ev.Symbol, Payload: *signal, Timestamp: candle.CloseTime})
	return nil
}

// onSignalGenerated is the signal-queue handler: it validates the signal
// against the risk guard and the current cached position, then routes to
// entry sizing/execution or exit execution.
func (e *TradingEngine) onSignalGenerated(ctx context.Context, ev models.Event) error {
	signal, ok := ev.Payload.(models.Signal)
	if !ok {
		return fmt.Errorf("signal event payload is not a Signal: %T", ev.Payload)
	}
	logger := tracing.Logger(ctx)

	position, hasPosition := e.cache.Get(signal.Symbol)
	var posPtr *models.Position
	if hasPosition {
		posPtr = &position
	}

	if err := e.risk.ValidateSignal(signal, posPtr); err != nil {
		logger.Warn().Err(err).Str("symbol", signal.Symbol).Msg("signal rejected by risk guard")
		return nil
	}

	if signal.Kind.IsExit() {
		return e.executeExit(ctx, signal, position)
	}
	return e.executeEntry(ctx, signal)
}

func (e *TradingEngine) executeEntry(ctx context.Context, signal models.Signal) error {
	logger := tracing.Logger(ctx)

	balance, err := e.gateway.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch account balance for sizing %s: %w", signal.Symbol, err)
	}

	quantity, err := e.risk.PositionSize(balance.Equity, signal, e.cfg.Leverage, e.lotSizes[signal.Symbol])
	if err != nil {
		return fmt.Errorf("size entry for %s: %w", signal.Symbol, err)
	}
	if quantity.IsZero() {
		logger.Warn().Str("symbol", signal.Symbol).Msg("sized quantity is zero, skipping entry")
		return nil
	}

	entryOrder, brackets, err := e.gateway.ExecuteSignal(ctx, signal, quantity)
	if err != nil {
		return fmt.Errorf("execute entry for %s: %w", signal.Symbol, err)
	}

	side := models.PositionLong
	if signal.Kind == models.SignalShortEntry {
		side = models.PositionShort
	}
	bracketIDs := make([]string, 0, len(brackets))
	for _, b := range brackets {
		bracketIDs = append(bracketIDs, b.ID)
	}

	e.entriesMu.Lock()
	e.entries[signal.Symbol] = models.PositionEntryData{
		Symbol:         signal.Symbol,
		Side:           side,
		EntryPrice:     signal.EntryPrice,
		FilledQuantity: entryOrder.FilledQuantity,
		EntryOrderID:   entryOrder.ID,
	}
	e.brackets[signal.Symbol] = bracketIDs
	e.entriesMu.Unlock()

	logger.Info().Str("symbol", signal.Symbol).Str("quantity", quantity.String()).Int("brackets", len(brackets)).
		Msg("entry executed")
	e.broadcast("position_opened", entryOrder)
	return nil
}

func (e *TradingEngine) executeExit(ctx context.Context, signal models.Signal, position models.Position) error {
	logger := tracing.Logger(ctx)

	if err := e.gateway.CancelAllOrders(ctx, signal.Symbol); err != nil {
		logger.Warn().Err(err).Str("symbol", signal.Symbol).Msg("failed to cancel resting brackets before exit")
	}

	order, err := e.gateway.ExecuteMarketClose(ctx, position)
	if err != nil {
		return fmt.Errorf("execute exit for %s: %w", signal.Symbol, err)
	}

	e.entriesMu.Lock()
	entry, hadEntry := e.entries[signal.Symbol]
	delete(e.entries, signal.Symbol)
	delete(e.brackets, signal.Symbol)
	e.entriesMu.Unlock()

	e.cache.Invalidate(signal.Symbol)
	e.cache.StartCooldown(signal.Symbol, postExitCooldown)

	if hadEntry {
		pnl := entry.RealizedPnL(order.AveragePrice)
		if e.audit != nil {
			e.audit.LogTradeClosed(signal.Symbol, signal.ExitReason, pnl)
		}
		logger.Info().Str("symbol", signal.Symbol).Str("realized_pnl", pnl.String()).Msg("position closed via strategy exit")
	}
	e.broadcast("position_closed", order)
	return nil
}

// onOrderEvent is the order-queue handler: it receives both position
// snapshots and order-fill notifications from the private user streamer,
// distinguished by payload type since both share the order queue to
// preserve delivery order against entry/exit execution.
func (e *TradingEngine) onOrderEvent(ctx context.Context, ev models.Event) error {
	switch payload := ev.Payload.(type) {
	case models.Position:
		if ev.Symbol == "" {
			// Resync marker published on stream reconnect: trust nothing
			// until fresh account-update events repopulate the cache.
			e.invalidateAllPositions()
			return nil
		}
		e.cache.UpdateFromWebSocket([]models.Position{payload}, e.allowedSymbols())
		return nil
	case models.Order:
		return e.onOrderUpdate(ctx, payload)
	default:
		return fmt.Errorf("order event payload has unexpected type %T", ev.Payload)
	}
}

func (e *TradingEngine) onOrderUpdate(ctx context.Context, order models.Order) error {
	logger := tracing.Logger(ctx)

	e.entriesMu.Lock()
	entry, isTrackedEntry := e.entries[order.Symbol]
	isTrackedEntry = isTrackedEntry && entry.EntryOrderID == order.ID
	bracketIDs := e.brackets[order.Symbol]
	e.entriesMu.Unlock()

	isBracket := false
	for _, id := range bracketIDs {
		if id == order.ID {
			isBracket = true
			break
		}
	}

	switch {
	case isTrackedEntry:
		return e.onEntryOrderUpdate(order)
	case isBracket:
		return e.onBracketOrderUpdate(ctx, order)
	default:
		logger.Debug().Str("order_id", order.ID).Str("symbol", order.Symbol).Msg("order update for untracked order, ignoring")
		return nil
	}
}

// onEntryOrderUpdate tracks partial fills on the entry order, keeping the
// original fill timestamp across successive partials.
func (e *TradingEngine) onEntryOrderUpdate(order models.Order) error {
	switch order.Status {
	case models.OrderStatusPartiallyFilled, models.OrderStatusFilled:
		e.entriesMu.Lock()
		entry := e.entries[order.Symbol]
		entry.FilledQuantity = order.FilledQuantity
		if entry.EntryTime.IsZero() {
			entry.EntryTime = order.UpdatedAt
		}
		if order.Status == models.OrderStatusFilled && !order.AveragePrice.IsZero() {
			entry.EntryPrice = order.AveragePrice
		}
		e.entries[order.Symbol] = entry
		e.entriesMu.Unlock()
	case models.OrderStatusRejected, models.OrderStatusCanceled, models.OrderStatusExpired:
		e.entriesMu.Lock()
		delete(e.entries, order.Symbol)
		delete(e.brackets, order.Symbol)
		e.entriesMu.Unlock()
		log.Warn().Str("symbol", order.Symbol).Str("status", string(order.Status)).Msg("entry order did not fill")
	}
	return nil
}

// onBracketOrderUpdate handles a fill notification on either bracket order.
// A terminal fill on one bracket means the position is closed; the opposite
// bracket is still resting at the exchange and must be cancelled so it
// can't also fire and double-close a since-reopened position.
func (e *TradingEngine) onBracketOrderUpdate(ctx context.Context, order models.Order) error {
	if !order.Status.Terminal() {
		return nil
	}
	logger := tracing.Logger(ctx)

	e.entriesMu.Lock()
	entry, hadEntry := e.entries[order.Symbol]
	delete(e.entries, order.Symbol)
	delete(e.brackets, order.Symbol)
	e.entriesMu.Unlock()

	if order.Status != models.OrderStatusFilled {
		return nil
	}

	if err := e.gateway.CancelAllOrders(ctx, order.Symbol); err != nil {
		logger.Error().Err(err).Str("symbol", order.Symbol).Msg("failed to cancel orphan bracket order")
	}
	e.cache.Invalidate(order.Symbol)
	e.cache.StartCooldown(order.Symbol, postExitCooldown)

	if hadEntry {
		pnl := entry.RealizedPnL(order.AveragePrice)
		if e.audit != nil {
			e.audit.LogTradeClosed(order.Symbol, "bracket_fill", pnl)
		}
		logger.Info().Str("symbol", order.Symbol).Str("realized_pnl", pnl.String()).Msg("position closed via bracket order")
	}
	e.broadcast("position_closed", order)
	return nil
}
