// Package errs defines the error taxonomy used across the trading engine.
// Each error kind carries enough structure for callers to decide whether to
// retry, halt, or surface the failure to an operator, without string-matching
// error messages.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid or missing configuration value,
// discovered at load time or on hot-reload. It is never retryable.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Message)
}

// ValidationError aggregates one or more field-level validation failures
// discovered together, so a caller can report every problem in one pass
// instead of fixing fields one at a time.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d validation issue(s): %s", len(e.Issues), strings.Join(e.Issues, "; "))
}

// Add appends a formatted issue to the aggregate.
func (e *ValidationError) Add(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

// HasIssues reports whether any issue has been recorded.
func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// OrderExecutionError reports a failure placing, amending, or cancelling an
// order at the exchange. Code carries the exchange's numeric error code
// when known, for downstream classification.
type OrderExecutionError struct {
	Symbol  string
	OrderID string
	Code    int
	Message string
}

func (e *OrderExecutionError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("order execution error [%s order=%s code=%d]: %s", e.Symbol, e.OrderID, e.Code, e.Message)
	}
	return fmt.Sprintf("order execution error [%s code=%d]: %s", e.Symbol, e.Code, e.Message)
}

// TransientApiError reports a failure that is expected to succeed on retry:
// rate limiting, timeouts, or a 5xx from the exchange. RetryAfter is the
// server-advised backoff, if any was supplied.
type TransientApiError struct {
	Code       int
	Message    string
	RetryAfter int // seconds, 0 if not advised
}

func (e *TransientApiError) Error() string {
	return fmt.Sprintf("transient API error [code=%d]: %s", e.Code, e.Message)
}

// retryableErrorCodes mirrors the exchange error codes considered safe to
// retry without risking a duplicate order (rate limits and timeouts, not
// rejections).
var retryableErrorCodes = map[int]struct{}{
	-1003: {}, // too many requests
	-1001: {}, // disconnected
}

// retryableHTTPStatus is the set of HTTP statuses treated as retryable.
var retryableHTTPStatus = map[int]struct{}{
	429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// IsRetryableCode reports whether an exchange error code is known-retryable.
func IsRetryableCode(code int) bool {
	_, ok := retryableErrorCodes[code]
	return ok
}

// IsRetryableHTTPStatus reports whether an HTTP status is known-retryable.
func IsRetryableHTTPStatus(status int) bool {
	_, ok := retryableHTTPStatus[status]
	return ok
}

// AuthenticationError reports a rejected or expired credential. It is never
// retryable without operator intervention.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// IntegrityError reports that internally tracked state has diverged from
// what the exchange reports (position cache vs. account snapshot, order
// book gap, out-of-order sequence number). Callers should treat cached
// state as stale until reconciled.
type IntegrityError struct {
	Component string
	Message   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error [%s]: %s", e.Component, e.Message)
}

// Retryable reports whether err is known to be safe to retry: a
// TransientApiError, or an OrderExecutionError/generic error carrying a
// retryable exchange code.
func Retryable(err error) bool {
	var transient *TransientApiError
	if errors.As(err, &transient) {
		return true
	}
	var orderErr *OrderExecutionError
	if errors.As(err, &orderErr) {
		return IsRetryableCode(orderErr.Code)
	}
	return false
}
