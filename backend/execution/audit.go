package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType enumerates the kinds of operational events recorded to the
// audit trail.
type AuditEventType string

const (
	AuditOrderPlaced            AuditEventType = "order_placed"
	AuditOrderRejected          AuditEventType = "order_rejected"
	AuditOrderCancelled         AuditEventType = "order_cancelled"
	AuditRetryAttempt           AuditEventType = "retry_attempt"
	AuditRateLimit              AuditEventType = "rate_limit"
	AuditSignalProcessing       AuditEventType = "signal_processing"
	AuditRiskRejection          AuditEventType = "risk_rejection"
	AuditRiskValidation         AuditEventType = "risk_validation"
	AuditPositionSizeCalculated AuditEventType = "position_size_calculated"
	AuditPositionSizeCapped     AuditEventType = "position_size_capped"
	AuditTradeExecuted          AuditEventType = "trade_executed"
	AuditTradeExecutionFailed   AuditEventType = "trade_execution_failed"
	AuditTradeClosed            AuditEventType = "trade_closed"
	AuditLiquidationComplete    AuditEventType = "liquidation_complete"
	AuditAPIError               AuditEventType = "api_error"
	AuditPositionClosed         AuditEventType = "position_closed"
)

// AuditEvent is one line of the JSON-lines audit trail.
type AuditEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	EventType     AuditEventType `json:"event_type"`
	Operation     string         `json:"operation"`
	Symbol        string         `json:"symbol,omitempty"`
	OrderData     any            `json:"order_data,omitempty"`
	Response      any            `json:"response,omitempty"`
	Error         any            `json:"error,omitempty"`
	RetryAttempt  *int           `json:"retry_attempt,omitempty"`
	AdditionalData any           `json:"additional_data,omitempty"`
	Data          any            `json:"data,omitempty"`
}

// AuditLogger writes one JSON object per line to a daily audit file. Safe
// for concurrent use; every component that needs to record an audit event
// is handed the same instance via constructor injection rather than
// reaching for a package-level singleton.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens (creating if needed) today's audit log file under
// dir, named audit_YYYYMMDD.jsonl.
func NewAuditLogger(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("audit_%s.jsonl", time.Now().Format("20060102")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &AuditLogger{file: f}, nil
}

// LogEvent appends one audit event as a single JSON line. A marshal error
// is swallowed to a stderr write: audit logging must never interrupt the
// operation it is recording.
func (a *AuditLogger) LogEvent(ev AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal failed: %v\n", err)
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write failed: %v\n", err)
	}
}

// LogOrderPlaced records a successfully placed order.
func (a *AuditLogger) LogOrderPlaced(symbol string, orderData, response any) {
	a.LogEvent(AuditEvent{EventType: AuditOrderPlaced, Operation: "place_order", Symbol: symbol, OrderData: orderData, Response: response})
}

// LogOrderRejected records an order the exchange rejected.
func (a *AuditLogger) LogOrderRejected(symbol string, orderData, errData any) {
	a.LogEvent(AuditEvent{EventType: AuditOrderRejected, Operation: "place_order", Symbol: symbol, OrderData: orderData, Error: errData})
}

// LogRetryAttempt records one retry of a failed operation.
func (a *AuditLogger) LogRetryAttempt(operation string, attempt, maxRetries int, errData any, delay time.Duration) {
	n := attempt
	a.LogEvent(AuditEvent{
		EventType:    AuditRetryAttempt,
		Operation:    operation,
		Error:        errData,
		RetryAttempt: &n,
		AdditionalData: map[string]any{
			"max_retries":   maxRetries,
			"delay_seconds": delay.Seconds(),
		},
	})
}

// LogRateLimit records a rate-limit rejection from the exchange.
func (a *AuditLogger) LogRateLimit(operation string, errData any) {
	a.LogEvent(AuditEvent{EventType: AuditRateLimit, Operation: operation, Error: errData})
}

// LogRiskRejection records a signal the risk guard refused to act on.
func (a *AuditLogger) LogRiskRejection(symbol, reason string) {
	a.LogEvent(AuditEvent{EventType: AuditRiskRejection, Operation: "validate_signal", Symbol: symbol, AdditionalData: map[string]any{"reason": reason}})
}

// LogTradeClosed records a position close with its realized PnL.
func (a *AuditLogger) LogTradeClosed(symbol, exitReason string, realizedPnL any) {
	a.LogEvent(AuditEvent{
		EventType: AuditTradeClosed,
		Operation: "close_position",
		Symbol:    symbol,
		AdditionalData: map[string]any{
			"exit_reason":  exitReason,
			"realized_pnl": realizedPnL,
		},
	})
}

// Close flushes and closes the underlying file. Safe to call once at
// shutdown.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
