package models

import "time"

// EventKind identifies which logical queue an event belongs to.
type EventKind string

const (
	EventKindData  EventKind = "data"
	EventKindSignal EventKind = "signal"
	EventKindOrder  EventKind = "order"
)

// Event is the envelope carried on the engine's internal queues. Payload is
// a Candle, Ticker, Signal, or order-fill notification depending on Kind.
type Event struct {
	Kind      EventKind `json:"kind"`
	Symbol    string    `json:"symbol"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// LiquidationState is the lifecycle state of an emergency liquidation run.
type LiquidationState string

const (
	LiquidationIdle       LiquidationState = "idle"
	LiquidationInProgress LiquidationState = "in_progress"
	LiquidationCompleted  LiquidationState = "completed"
	LiquidationPartial    LiquidationState = "partial"
	LiquidationFailed     LiquidationState = "failed"
	LiquidationSkipped    LiquidationState = "skipped"
)

// LiquidationResult is the outcome of one execute-liquidation run.
type LiquidationResult struct {
	CorrelationID   string           `json:"correlation_id"`
	State           LiquidationState `json:"state"`
	Symbols         []string         `json:"symbols"`
	OrdersCancelled int              `json:"orders_cancelled"`
	PositionsClosed int              `json:"positions_closed"`
	Failures        int              `json:"failures"`
	RealizedPnL     string           `json:"realized_pnl"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

// IsSuccess reports whether the run fully completed with no failures.
func (r LiquidationResult) IsSuccess() bool {
	return r.State == LiquidationCompleted
}

// IsPartial reports whether the run closed/cancelled some but not all targets.
func (r LiquidationResult) IsPartial() bool {
	return r.State == LiquidationPartial
}

// ValidationLevel is the severity of a configuration validation finding.
type ValidationLevel string

const (
	ValidationInfo     ValidationLevel = "info"
	ValidationWarning  ValidationLevel = "warning"
	ValidationError    ValidationLevel = "error"
	ValidationCritical ValidationLevel = "critical"
)

// ValidationCategory groups findings by the concern they touch.
type ValidationCategory string

const (
	ValidationSecurity      ValidationCategory = "security"
	ValidationPerformance   ValidationCategory = "performance"
	ValidationConfiguration ValidationCategory = "configuration"
	ValidationDeployment    ValidationCategory = "deployment"
)

// ValidationIssue is a single configuration validation finding.
type ValidationIssue struct {
	Level          ValidationLevel    `json:"level"`
	Category       ValidationCategory `json:"category"`
	Field          string             `json:"field"`
	Message        string             `json:"message"`
	Recommendation string             `json:"recommendation,omitempty"`
}

func (i ValidationIssue) String() string {
	if i.Recommendation == "" {
		return string(i.Level) + ": " + i.Message
	}
	return string(i.Level) + ": " + i.Message + " (" + i.Recommendation + ")"
}

// ValidationResult aggregates every issue found for one environment.
type ValidationResult struct {
	Environment string            `json:"environment"`
	Issues      []ValidationIssue `json:"issues"`
}

// IsValid reports that no error or critical level issue was found.
func (r ValidationResult) IsValid() bool {
	return !r.HasErrors()
}

// HasErrors reports whether any error or critical issue is present.
func (r ValidationResult) HasErrors() bool {
	for _, iss := range r.Issues {
		if iss.Level == ValidationError || iss.Level == ValidationCritical {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any warning-level issue is present.
func (r ValidationResult) HasWarnings() bool {
	for _, iss := range r.Issues {
		if iss.Level == ValidationWarning {
			return true
		}
	}
	return false
}

// ByLevel filters issues by severity.
func (r ValidationResult) ByLevel(level ValidationLevel) []ValidationIssue {
	var out []ValidationIssue
	for _, iss := range r.Issues {
		if iss.Level == level {
			out = append(out, iss)
		}
	}
	return out
}

// ByCategory filters issues by category.
func (r ValidationResult) ByCategory(cat ValidationCategory) []ValidationIssue {
	var out []ValidationIssue
	for _, iss := range r.Issues {
		if iss.Category == cat {
			out = append(out, iss)
		}
	}
	return out
}

// ConfigChange describes one field's value transition between two loaded
// configurations, with an assessed operational impact.
type ConfigChange struct {
	Field       string `json:"field"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
	Impact      ValidationLevel `json:"impact"`
	Description string `json:"description"`
}

// DeploymentReadiness is the aggregate go/no-go verdict for a configuration.
type DeploymentReadiness struct {
	IsReady         bool     `json:"is_ready"`
	Environment     string   `json:"environment"`
	Blockers        []string `json:"blockers"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}
