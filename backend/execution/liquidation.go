package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// LiquidationManager coordinates an emergency cancel-then-close sweep
// across symbols with a fail-safe guarantee: ExecuteLiquidation never
// panics and never returns an error to its caller. Every outcome, including
// total failure, is captured in the returned LiquidationResult so shutdown
// can always proceed.
type LiquidationManager struct {
	gateway *Gateway
	cache   *PositionCache
	audit   *AuditLogger
	config  config.LiquidationSettings

	mu           sync.Mutex
	state        models.LiquidationState
	executions   int
	lastDuration time.Duration
}

// NewLiquidationManager constructs a manager in the Idle state.
func NewLiquidationManager(gateway *Gateway, cache *PositionCache, audit *AuditLogger, cfg config.LiquidationSettings) *LiquidationManager {
	return &LiquidationManager{
		gateway: gateway,
		cache:   cache,
		audit:   audit,
		config:  cfg,
		state:   models.LiquidationIdle,
	}
}

// State returns the current lifecycle state.
func (m *LiquidationManager) State() models.LiquidationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *LiquidationManager) logEvent(ev AuditEvent) {
	if m.audit != nil {
		m.audit.LogEvent(ev)
	}
}

// ExecuteLiquidation runs the emergency cancel-then-close sequence for
// symbols. It is re-entrant-safe: a call while one is already in progress is
// rejected immediately as Failed rather than queued or run concurrently.
//
// Fail-safe invariant: this method never panics and never returns a Go
// error. Every failure mode — timeout, re-entrancy, an unexpected error from
// the gateway — is captured as a LiquidationResult.
func (m *LiquidationManager) ExecuteLiquidation(symbols []string) (result models.LiquidationResult) {
	started := time.Now()
	correlationID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			result = models.LiquidationResult{
				CorrelationID: correlationID,
				State:         models.LiquidationFailed,
				Symbols:       symbols,
				ErrorMessage:  fmt.Sprintf("panic during liquidation: %v", r),
				StartedAt:     started,
				FinishedAt:    time.Now(),
			}
		}
		m.mu.Lock()
		m.state = models.LiquidationIdle
		m.executions++
		m.lastDuration = result.FinishedAt.Sub(result.StartedAt)
		m.mu.Unlock()
		m.logEvent(AuditEvent{
			EventType: AuditLiquidationComplete,
			Operation: "emergency_liquidation",
			Data: map[string]any{
				"correlation_id": correlationID,
				"symbols":        symbols,
				"result":         result,
			},
		})
	}()

	m.mu.Lock()
	if m.state == models.LiquidationInProgress {
		m.mu.Unlock()
		log.Warn().Str("correlation_id", correlationID).Msg("liquidation already in progress, rejecting re-entrant call")
		return models.LiquidationResult{
			CorrelationID: correlationID,
			State:         models.LiquidationFailed,
			Symbols:       symbols,
			ErrorMessage:  "liquidation already in progress",
			StartedAt:     started,
			FinishedAt:    time.Now(),
		}
	}
	m.state = models.LiquidationInProgress
	m.mu.Unlock()

	if !m.config.EmergencyLiquidation {
		log.Info().Str("correlation_id", correlationID).Msg("emergency liquidation disabled, skipping")
		return models.LiquidationResult{
			CorrelationID: correlationID,
			State:         models.LiquidationSkipped,
			Symbols:       symbols,
			StartedAt:     started,
			FinishedAt:    time.Now(),
		}
	}

	timeoutSeconds := m.config.TimeoutSeconds
	if timeoutSeconds < 1 || timeoutSeconds > 30 {
		timeoutSeconds = 5
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds*float64(time.Second)))
	defer cancel()

	done := make(chan models.LiquidationResult, 1)
	go func() {
		done <- m.runSequence(ctx, symbols, correlationID)
	}()

	select {
	case result = <-done:
		result.StartedAt = started
		result.FinishedAt = time.Now()
		return result
	case <-ctx.Done():
		log.Error().Str("correlation_id", correlationID).Dur("elapsed", time.Since(started)).Msg("liquidation timed out")
		return models.LiquidationResult{
			CorrelationID: correlationID,
			State:         models.LiquidationFailed,
			Symbols:       symbols,
			ErrorMessage:  fmt.Sprintf("timeout after %s", time.Since(started)),
			StartedAt:     started,
			FinishedAt:    time.Now(),
		}
	}
}

func (m *LiquidationManager) runSequence(ctx context.Context, symbols []string, correlationID string) models.LiquidationResult {
	result := models.LiquidationResult{CorrelationID: correlationID, State: models.LiquidationInProgress, Symbols: symbols}

	var ordersCancelled, ordersFailed, positionsClosed, positionsFailed int
	var realizedTotal decimal.Decimal

	if m.config.CancelOrders {
		for _, symbol := range symbols {
			if m.retryOp(ctx, correlationID, m.config.MaxRetries, func() error {
				return m.gateway.CancelAllOrders(ctx, symbol)
			}) {
				ordersCancelled++
			} else {
				ordersFailed++
			}
		}
	}

	if m.config.ClosePositions {
		positions, err := m.gateway.GetAllPositions(ctx)
		if err != nil {
			log.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to query positions for liquidation")
			positionsFailed += len(symbols)
		} else {
			for _, pos := range positions {
				if pos.IsZero() {
					continue
				}
				closed, pnl := m.closeOneWithRetry(ctx, pos, correlationID)
				if closed {
					positionsClosed++
					realizedTotal = realizedTotal.Add(pnl)
					m.cache.Invalidate(pos.Symbol)
				} else {
					positionsFailed++
				}
			}
		}
	}

	total := ordersCancelled + ordersFailed + positionsClosed + positionsFailed
	result.OrdersCancelled = ordersCancelled
	result.PositionsClosed = positionsClosed
	result.Failures = ordersFailed + positionsFailed
	result.RealizedPnL = realizedTotal.String()

	switch {
	case total == 0:
		result.State = models.LiquidationCompleted
	case ordersFailed == 0 && positionsFailed == 0:
		result.State = models.LiquidationCompleted
	case ordersCancelled > 0 || positionsClosed > 0:
		result.State = models.LiquidationPartial
		result.ErrorMessage = fmt.Sprintf("partial liquidation: %d orders failed, %d positions failed", ordersFailed, positionsFailed)
	default:
		result.State = models.LiquidationFailed
		result.ErrorMessage = "all liquidation operations failed"
	}

	return result
}

func (m *LiquidationManager) retryOp(ctx context.Context, correlationID string, maxRetries int, op func() error) bool {
	if maxRetries < 1 {
		maxRetries = 1
	}
	delay := time.Duration(m.config.RetryDelaySeconds * float64(time.Second))
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := op(); err == nil {
			return true
		} else {
			log.Error().Err(err).Str("correlation_id", correlationID).Int("attempt", attempt+1).Msg("liquidation operation failed")
			if attempt+1 >= maxRetries {
				return false
			}
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay * time.Duration(1<<attempt)):
			}
		}
	}
	return false
}

func (m *LiquidationManager) closeOneWithRetry(ctx context.Context, pos models.Position, correlationID string) (bool, decimal.Decimal) {
	maxRetries := m.config.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	delay := time.Duration(m.config.RetryDelaySeconds * float64(time.Second))
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := m.gateway.ExecuteMarketClose(ctx, pos)
		if err == nil {
			pnl := decimal.Zero
			exitPrice := order.AveragePrice
			if !exitPrice.IsZero() {
				entry := models.PositionEntryData{Symbol: pos.Symbol, Side: pos.Side, EntryPrice: pos.EntryPrice, FilledQuantity: pos.Quantity}
				pnl = entry.RealizedPnL(exitPrice)
			}
			m.logEvent(AuditEvent{
				EventType: AuditTradeClosed,
				Operation: "liquidation_close_position",
				Symbol:    pos.Symbol,
				Data: map[string]any{
					"correlation_id": correlationID,
					"exit_reason":    "emergency_liquidation",
					"realized_pnl":   pnl,
					"order_id":       order.ID,
				},
			})
			return true, pnl
		}

		log.Error().Err(err).Str("symbol", pos.Symbol).Str("correlation_id", correlationID).Int("attempt", attempt+1).
			Msg("failed to close position during liquidation")
		if attempt+1 >= maxRetries {
			return false, decimal.Zero
		}
		select {
		case <-ctx.Done():
			return false, decimal.Zero
		case <-time.After(delay * time.Duration(1<<attempt)):
		}
	}
	return false, decimal.Zero
}

// Metrics reports execution count, last run duration, and current state for
// the operator metrics surface.
func (m *LiquidationManager) Metrics() (executions int, lastDuration time.Duration, state models.LiquidationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions, m.lastDuration, m.state
}
