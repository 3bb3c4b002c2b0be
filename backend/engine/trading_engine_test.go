package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/execution"
	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// fakeEntry fires a long entry decision the first time Analyze is called
// when armed, then goes quiet.
type fakeEntry struct {
	armed bool
}

func (f *fakeEntry) Name() string { return "fake_entry" }
func (f *fakeEntry) Requirements() models.ModuleRequirements {
	return models.NewModuleRequirements(map[string]int{"5m": 1})
}
func (f *fakeEntry) Analyze(ctx strategies.EntryContext) (*strategies.EntryDecision, error) {
	if !f.armed {
		return nil, nil
	}
	f.armed = false
	return &strategies.EntryDecision{Kind: models.SignalLongEntry, EntryPrice: ctx.Candle.Close, Confidence: 0.9}, nil
}

type fakeExit struct {
	armed bool
}

func (f *fakeExit) Name() string { return "fake_exit" }
func (f *fakeExit) Requirements() models.ModuleRequirements {
	return models.NewModuleRequirements(map[string]int{"5m": 1})
}
func (f *fakeExit) ShouldExit(ctx strategies.ExitContext) (*models.Signal, error) {
	if !f.armed {
		return nil, nil
	}
	f.armed = false
	return &models.Signal{Kind: models.SignalCloseLong, Symbol: ctx.Symbol, EntryPrice: ctx.Candle.Close, ExitReason: "fake_exit", Timestamp: ctx.Timestamp}, nil
}

type fakeStopLoss struct{ offset decimal.Decimal }

func (f *fakeStopLoss) Name() string { return "fake_sl" }
func (f *fakeStopLoss) CalculateStopLoss(ctx strategies.PriceContext) decimal.Decimal {
	if ctx.Side == models.PositionShort {
		return ctx.EntryPrice.Add(f.offset)
	}
	return ctx.EntryPrice.Sub(f.offset)
}

type fakeTakeProfit struct{ offset decimal.Decimal }

func (f *fakeTakeProfit) Name() string { return "fake_tp" }
func (f *fakeTakeProfit) CalculateTakeProfit(ctx strategies.PriceContext, stopLoss decimal.Decimal) decimal.Decimal {
	if ctx.Side == models.PositionShort {
		return ctx.EntryPrice.Sub(f.offset)
	}
	return ctx.EntryPrice.Add(f.offset)
}

func fakeModules(entryArmed, exitArmed bool) strategies.ModuleConfig {
	return strategies.ModuleConfig{
		EntryDeterminer:      &fakeEntry{armed: entryArmed},
		ExitDeterminer:       &fakeExit{armed: exitArmed},
		StopLossDeterminer:   &fakeStopLoss{offset: d(1000)},
		TakeProfitDeterminer: &fakeTakeProfit{offset: d(3000)},
	}
}

type fakeClient struct {
	position        models.Position
	balance         models.Balance
	placeOrderCalls int
	cancelCalls     int
	leverageCalls   int
	marginCalls     int
}

func (f *fakeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.leverageCalls++
	return nil
}
func (f *fakeClient) SetMarginType(ctx context.Context, symbol string, isolated bool) error {
	f.marginCalls++
	return nil
}
func (f *fakeClient) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	f.placeOrderCalls++
	order.ID = "order-" + string(order.Type)
	order.Status = models.OrderStatusNew
	order.FilledQuantity = order.Quantity
	return order, nil
}
func (f *fakeClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	f.cancelCalls++
	return nil
}
func (f *fakeClient) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	return f.position, nil
}
func (f *fakeClient) GetAllPositions(ctx context.Context) ([]models.Position, error) {
	return []models.Position{f.position}, nil
}
func (f *fakeClient) GetAccountBalance(ctx context.Context) (models.Balance, error) {
	return f.balance, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Symbols:         []string{"BTCUSDT"},
		Intervals:       []string{"5m"},
		Leverage:        10,
		MarginType:      config.MarginIsolated,
		ShutdownTimeout: 100 * time.Millisecond,
		Liquidation:     config.LiquidationSettings{EmergencyLiquidation: false},
	}
}

func testEngine(t *testing.T, client *fakeClient) *TradingEngine {
	t.Helper()
	gw := execution.NewGateway(client, nil)
	risk := execution.NewRiskGuard(execution.RiskConfig{MaxRiskPerTrade: d(0.01), MaxLeverage: 20, MaxPositionSizePercent: d(0.5)}, nil)
	cache := execution.NewPositionCache(5 * time.Second)
	liq := execution.NewLiquidationManager(gw, cache, nil, config.LiquidationSettings{})
	lots := map[string]execution.LotSize{"BTCUSDT": {Step: d(0.001), Precision: 3}}
	return NewTradingEngine(testConfig(), gw, risk, cache, liq, nil, lots)
}

func TestTradingEngine_Initialize_RejectsUnconfiguredInterval(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	cfg := testConfig()
	cfg.Intervals = []string{"1h"}
	e.cfg = cfg

	err := e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5m")
}

func TestTradingEngine_Initialize_ConfiguresLeverageAndMargin(t *testing.T) {
	client := &fakeClient{}
	e := testEngine(t, client)

	err := e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.5)
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, e.State())
	assert.Equal(t, 1, client.leverageCalls)
	assert.Equal(t, 1, client.marginCalls)
}

func TestTradingEngine_RunRejectsWrongState(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	err := e.Run(context.Background())
	require.Error(t, err)
}

func TestTradingEngine_ShutdownRejectsWrongState(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	err := e.Shutdown(context.Background())
	require.Error(t, err)
}

func TestTradingEngine_OnCandleClosed_NoSignalLeavesCacheEmpty(t *testing.T) {
	client := &fakeClient{balance: models.Balance{Equity: d(10000)}}
	e := testEngine(t, client)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	candle := models.Candle{Symbol: "BTCUSDT", Interval: "5m", Close: d(50000), IsClosed: true, CloseTime: time.Now()}
	ev := models.Event{Kind: models.EventKindData, Symbol: "BTCUSDT", Payload: candle, Timestamp: time.Now()}

	require.NoError(t, e.onCandleClosed(context.Background(), ev))

	_, hasPos := e.cache.Get("BTCUSDT")
	assert.False(t, hasPos)
	assert.Equal(t, 0, client.placeOrderCalls)
}

func TestTradingEngine_OnCandleClosed_RejectsUnconfiguredSymbol(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	candle := models.Candle{Symbol: "ETHUSDT", Interval: "5m", IsClosed: true}
	ev := models.Event{Kind: models.EventKindData, Symbol: "ETHUSDT", Payload: candle}

	err := e.onCandleClosed(context.Background(), ev)
	require.Error(t, err)
}

func TestTradingEngine_OnSignalGenerated_ExecutesEntryAndTracksBrackets(t *testing.T) {
	client := &fakeClient{balance: models.Balance{Equity: d(10000)}}
	e := testEngine(t, client)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	signal := models.Signal{Kind: models.SignalLongEntry, Symbol: "BTCUSDT", EntryPrice: d(50000), TakeProfit: d(53000), StopLoss: d(49000), Timestamp: time.Now()}
	ev := models.Event{Kind: models.EventKindSignal, Symbol: "BTCUSDT", Payload: signal, Timestamp: time.Now()}

	require.NoError(t, e.onSignalGenerated(context.Background(), ev))

	assert.Equal(t, 3, client.placeOrderCalls) // entry + TP + SL
	e.entriesMu.Lock()
	_, tracked := e.entries["BTCUSDT"]
	brackets := e.brackets["BTCUSDT"]
	e.entriesMu.Unlock()
	assert.True(t, tracked)
	assert.Len(t, brackets, 2)
}

func TestTradingEngine_OnSignalGenerated_RejectsEntryWithExistingPosition(t *testing.T) {
	client := &fakeClient{}
	e := testEngine(t, client)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: d(0.1), EntryPrice: d(48000)}
	e.cache.UpdateFromWebSocket([]models.Position{pos}, map[string]bool{"BTCUSDT": true})

	signal := models.Signal{Kind: models.SignalLongEntry, Symbol: "BTCUSDT", EntryPrice: d(50000), TakeProfit: d(53000), StopLoss: d(49000)}
	ev := models.Event{Kind: models.EventKindSignal, Symbol: "BTCUSDT", Payload: signal}

	require.NoError(t, e.onSignalGenerated(context.Background(), ev))
	assert.Equal(t, 0, client.placeOrderCalls)
}

func TestTradingEngine_OnSignalGenerated_ExecutesExitAndClearsPosition(t *testing.T) {
	client := &fakeClient{}
	e := testEngine(t, client)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: d(0.1), EntryPrice: d(50000)}
	e.cache.UpdateFromWebSocket([]models.Position{pos}, map[string]bool{"BTCUSDT": true})
	e.entriesMu.Lock()
	e.entries["BTCUSDT"] = models.PositionEntryData{Symbol: "BTCUSDT", Side: models.PositionLong, EntryPrice: d(50000), FilledQuantity: d(0.1)}
	e.entriesMu.Unlock()

	signal := models.Signal{Kind: models.SignalCloseLong, Symbol: "BTCUSDT", ExitReason: "fake_exit"}
	ev := models.Event{Kind: models.EventKindSignal, Symbol: "BTCUSDT", Payload: signal}

	require.NoError(t, e.onSignalGenerated(context.Background(), ev))

	_, ok := e.cache.Get("BTCUSDT")
	assert.False(t, ok)
	assert.True(t, e.cache.InCooldown("BTCUSDT"))
}

func TestTradingEngine_OnOrderEvent_AccountUpdateCachesPosition(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	pos := models.Position{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: d(0.1), EntryPrice: d(50000), UpdatedAt: time.Now()}
	ev := models.Event{Kind: models.EventKindOrder, Symbol: "BTCUSDT", Payload: pos}

	require.NoError(t, e.onOrderEvent(context.Background(), ev))

	cached, ok := e.cache.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, cached.Quantity.Equal(d(0.1)))
}

func TestTradingEngine_OnOrderEvent_ResyncMarkerInvalidatesCache(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	pos := models.Position{Symbol: "BTCUSDT", Quantity: d(0.1)}
	e.cache.UpdateFromWebSocket([]models.Position{pos}, map[string]bool{"BTCUSDT": true})

	resync := models.Event{Kind: models.EventKindOrder, Symbol: "", Payload: models.Position{}}
	require.NoError(t, e.onOrderEvent(context.Background(), resync))

	_, ok := e.cache.Get("BTCUSDT")
	assert.False(t, ok)
}

func TestTradingEngine_OnBracketOrderUpdate_FillClosesAndCancelsOrphan(t *testing.T) {
	client := &fakeClient{}
	e := testEngine(t, client)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	e.entriesMu.Lock()
	e.entries["BTCUSDT"] = models.PositionEntryData{Symbol: "BTCUSDT", Side: models.PositionLong, EntryPrice: d(50000), FilledQuantity: d(0.1), EntryOrderID: "entry-1"}
	e.brackets["BTCUSDT"] = []string{"tp-1", "sl-1"}
	e.entriesMu.Unlock()
	e.cache.UpdateFromWebSocket([]models.Position{{Symbol: "BTCUSDT", Quantity: d(0.1)}}, map[string]bool{"BTCUSDT": true})

	fill := models.Order{ID: "tp-1", Symbol: "BTCUSDT", Status: models.OrderStatusFilled, AveragePrice: d(53000)}
	require.NoError(t, e.onOrderUpdate(context.Background(), fill))

	assert.Equal(t, 1, client.cancelCalls)
	_, ok := e.cache.Get("BTCUSDT")
	assert.False(t, ok)
	e.entriesMu.Lock()
	_, stillTracked := e.entries["BTCUSDT"]
	e.entriesMu.Unlock()
	assert.False(t, stillTracked)
}

func TestTradingEngine_OnOrderUpdate_IgnoresUntrackedOrder(t *testing.T) {
	e := testEngine(t, &fakeClient{})
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(false, false)}, 1.0))

	stray := models.Order{ID: "unrelated", Symbol: "BTCUSDT", Status: models.OrderStatusFilled}
	require.NoError(t, e.onOrderUpdate(context.Background(), stray))
}

type recordingBroadcaster struct {
	messages []string
}

func (b *recordingBroadcaster) Broadcast(msgType string, payload interface{}) {
	b.messages = append(b.messages, msgType)
}

func TestTradingEngine_SignalGeneration_BroadcastsToOperatorChannel(t *testing.T) {
	client := &fakeClient{balance: models.Balance{Equity: d(10000)}}
	e := testEngine(t, client)
	broadcaster := &recordingBroadcaster{}
	e.SetBroadcaster(broadcaster)
	require.NoError(t, e.Initialize(context.Background(), map[string]strategies.ModuleConfig{"BTCUSDT": fakeModules(true, false)}, 1.0))

	candle := models.Candle{Symbol: "BTCUSDT", Interval: "5m", Close: d(50000), IsClosed: true, CloseTime: time.Now()}
	ev := models.Event{Kind: models.EventKindData, Symbol: "BTCUSDT", Payload: candle, Timestamp: time.Now()}

	require.NoError(t, e.onCandleClosed(context.Background(), ev))
	assert.Contains(t, broadcaster.messages, "signal")
}
