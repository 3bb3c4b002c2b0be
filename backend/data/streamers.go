// Package data hosts the market-data and user-data streamers that feed the
// event bus, plus the local candle/order persistence layer.
package data

import (
	"fmt"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// Publisher is the subset of engine.Bus a streamer needs: the ability to
// push an event onto a logical queue. Kept as an interface so streamers can
// be tested against a recording fake instead of a live bus.
type Publisher interface {
	Publish(ev models.Event) bool
}

// wsKlineStream abstracts go-binance/v2/futures's generated WS connector
// function so it can be swapped for a fake in tests.
type wsKlineStream func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error)

// PublicMarketStreamer maintains one kline WebSocket connection per
// (symbol, interval) pair and publishes a Candle event to the bus on every
// tick, closed or not. It never evaluates strategies or makes decisions —
// it only translates exchange ticks into bus events.
type PublicMarketStreamer struct {
	bus       Publisher
	connect   wsKlineStream
	backoff   *backoffPolicy
	stopFuncs []chan struct{}
}

// NewPublicMarketStreamer constructs a streamer publishing onto bus. connect
// is normally futures.WsKlineServe; tests inject a fake.
func NewPublicMarketStreamer(bus Publisher, connect wsKlineStream) *PublicMarketStreamer {
	return &PublicMarketStreamer{bus: bus, connect: connect, backoff: newBackoffPolicy()}
}

// Stream opens (or reopens, after a dropped connection) a kline stream for
// symbol/interval. It does not replay missed history on reconnect — the
// engine relies on its own historical backfill for that, not the streamer.
func (s *PublicMarketStreamer) Stream(symbol, interval string) {
	go s.runWithReconnect(symbol, interval)
}

func (s *PublicMarketStreamer) runWithReconnect(symbol, interval string) {
	for {
		doneC, stopC, err := s.connect(symbol, interval, s.handleKline(symbol, interval), s.handleError(symbol, interval))
		if err != nil {
			delay := s.backoff.next()
			log.Error().Err(err).Str("symbol", symbol).Str("interval", interval).Dur("retry_in", delay).
				Msg("kline stream connect failed, retrying")
			time.Sleep(delay)
			continue
		}
		s.backoff.reset()
		s.stopFuncs = append(s.stopFuncs, stopC)
		<-doneC // connection closed; loop reconnects
		delay := s.backoff.next()
		log.Warn().Str("symbol", symbol).Str("interval", interval).Dur("retry_in", delay).Msg("kline stream closed, reconnecting")
		time.Sleep(delay)
	}
}

func (s *PublicMarketStreamer) handleKline(symbol, interval string) futures.WsKlineHandler {
	return func(event *futures.WsKlineEvent) {
		k := event.Kline
		candle := models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  msToTime(k.StartTime),
			CloseTime: msToTime(k.EndTime),
			Open:      mustDecimal(k.Open),
			High:      mustDecimal(k.High),
			Low:       mustDecimal(k.Low),
			Close:     mustDecimal(k.Close),
			Volume:    mustDecimal(k.Volume),
			IsClosed:  k.IsFinal,
		}
		s.bus.Publish(models.Event{Kind: models.EventKindData, Symbol: symbol, Payload: candle, Timestamp: time.Now()})
	}
}

func (s *PublicMarketStreamer) handleError(symbol, interval string) futures.ErrHandler {
	return func(err error) {
		log.Error().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("kline stream error")
	}
}

// Stop closes every open stream connection.
func (s *PublicMarketStreamer) Stop() {
	for _, stopC := range s.stopFuncs {
		close(stopC)
	}
	s.stopFuncs = nil
}

// UserDataClient is the subset of the futures REST client the private
// streamer needs to manage its listen key.
type UserDataClient interface {
	StartUserStream() (string, error)
	KeepaliveUserStream(listenKey string) error
}

type wsUserStream func(listenKey string, handler futures.WsUserDataHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error)

// PrivateUserStreamer tracks the account's listen key and translates
// ACCOUNT_UPDATE / ORDER_TRADE_UPDATE events into PositionUpdate / Order bus
// events. It holds no position or order state of its own; it is purely a
// translator from exchange wire events to bus events.
type PrivateUserStreamer struct {
	bus     Publisher
	client  UserDataClient
	connect wsUserStream
	backoff *backoffPolicy
	stopC   chan struct{}
}

// NewPrivateUserStreamer constructs a streamer. connect is normally
// futures.WsUserDataServe; tests inject a fake.
func NewPrivateUserStreamer(bus Publisher, client UserDataClient, connect wsUserStream) *PrivateUserStreamer {
	return &PrivateUserStreamer{bus: bus, client: client, connect: connect, backoff: newBackoffPolicy()}
}

// Run starts the listen-key lifecycle: obtain a key, open the stream,
// renew the key every 30 minutes (it expires after 60), and reconnect with
// backoff on any drop. On every reconnect it publishes a resync marker so
// the engine invalidates its entire position cache rather than trust
// possibly-missed updates.
func (s *PrivateUserStreamer) Run() {
	go s.loop()
}

func (s *PrivateUserStreamer) loop() {
	for {
		listenKey, err := s.client.StartUserStream()
		if err != nil {
			delay := s.backoff.next()
			log.Error().Err(err).Dur("retry_in", delay).Msg("failed to start user data stream")
			time.Sleep(delay)
			continue
		}

		s.publishResync()

		keepaliveStop := make(chan struct{})
		go s.keepalive(listenKey, keepaliveStop)

		doneC, stopC, err := s.connect(listenKey, s.handleUserEvent(), s.handleError())
		if err != nil {
			close(keepaliveStop)
			delay := s.backoff.next()
			log.Error().Err(err).Dur("retry_in", delay).Msg("user data stream connect failed")
			time.Sleep(delay)
			continue
		}
		s.backoff.reset()
		s.stopC = stopC

		<-doneC
		close(keepaliveStop)
		delay := s.backoff.next()
		log.Warn().Dur("retry_in", delay).Msg("user data stream closed, reconnecting")
		time.Sleep(delay)
	}
}

func (s *PrivateUserStreamer) keepalive(listenKey string, stop chan struct{}) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.client.KeepaliveUserStream(listenKey); err != nil {
				log.Error().Err(err).Msg("failed to renew user data listen key")
			}
		}
	}
}

func (s *PrivateUserStreamer) publishResync() {
	s.bus.Publish(models.Event{
		Kind:      models.EventKindOrder,
		Payload:   models.Position{}, // resync marker carries no symbol-specific data
		Timestamp: time.Now(),
	})
}

func (s *PrivateUserStreamer) handleUserEvent() futures.WsUserDataHandler {
	return func(event *futures.WsUserDataEvent) {
		switch event.Event {
		case futures.UserDataEventTypeAccountUpdate:
			for _, p := range event.AccountUpdate.Positions {
				pos := models.Position{
					Symbol:     p.Symbol,
					Quantity:   mustDecimal(p.Amount).Abs(),
					EntryPrice: mustDecimal(p.EntryPrice),
					UpdatedAt:  time.Now(),
				}
				if mustDecimal(p.Amount).IsNegative() {
					pos.Side = models.PositionShort
				} else {
					pos.Side = models.PositionLong
				}
				s.bus.Publish(models.Event{Kind: models.EventKindOrder, Symbol: p.Symbol, Payload: pos, Timestamp: time.Now()})
			}
		case futures.UserDataEventTypeOrderTradeUpdate:
			o := event.OrderTradeUpdate
			order := models.Order{
				ID:             fmt.Sprintf("%d", o.ID),
				Symbol:         o.Symbol,
				Side:           mapOrderSide(string(o.Side)),
				Status:         mapOrderStatus(string(o.Status)),
				FilledQuantity: mustDecimal(o.AccumulatedFilledQty),
				AveragePrice:   mustDecimal(o.AveragePrice),
				UpdatedAt:      time.Now(),
			}
			s.bus.Publish(models.Event{Kind: models.EventKindOrder, Symbol: o.Symbol, Payload: order, Timestamp: time.Now()})
		}
	}
}

func (s *PrivateUserStreamer) handleError() futures.ErrHandler {
	return func(err error) {
		log.Error().Err(err).Msg("user data stream error")
	}
}

// Stop closes the user-data connection.
func (s *PrivateUserStreamer) Stop() {
	if s.stopC != nil {
		close(s.stopC)
	}
}

func mapOrderSide(side string) models.OrderSide {
	if strings.EqualFold(side, "SELL") {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

func mapOrderStatus(status string) models.OrderStatus {
	switch strings.ToUpper(status) {
	case "FILLED":
		return models.OrderStatusFilled
	case "PARTIALLY_FILLED":
		return models.OrderStatusPartiallyFilled
	case "CANCELED":
		return models.OrderStatusCanceled
	case "REJECTED":
		return models.OrderStatusRejected
	case "EXPIRED":
		return models.OrderStatusExpired
	default:
		return models.OrderStatusNew
	}
}

func mustDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// backoffPolicy is a simple doubling reconnect delay, capped, used by both
// streamers to avoid hammering the exchange on repeated connection drops.
type backoffPolicy struct {
	current time.Duration
	min     time.Duration
	max     time.Duration
}

func newBackoffPolicy() *backoffPolicy {
	return &backoffPolicy{min: time.Second, max: 60 * time.Second}
}

func (b *backoffPolicy) next() time.Duration {
	if b.current == 0 {
		b.current = b.min
	}
	delay := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

func (b *backoffPolicy) reset() {
	b.current = 0
}
