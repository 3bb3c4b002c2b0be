package config

import (
	"fmt"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// Deployment-time bounds for the liquidation timeout/retry knobs. Testnet
// tolerates a wider range since operators iterate on these values there.
const (
	minTimeoutProd   = 3.0
	maxTimeoutProd   = 30.0
	minRetriesProd   = 1
	maxRetriesProd   = 5
	minTimeoutTest   = 1.0
	maxTimeoutTest   = 60.0
	minRetriesTest   = 0
	maxRetriesTest   = 10
	standardTimeout  = 5.0
	standardRetries  = 3
)

// ValidateDeployment runs the liquidation-focused deployment checks against
// c and returns every finding (info through critical) in one pass. isTestnet
// relaxes the performance bounds and downgrades the emergency-liquidation
// finding from critical to warning.
func ValidateDeployment(c *Config, isTestnet bool) models.ValidationResult {
	env := "production"
	if isTestnet {
		env = "testnet"
	}

	var issues []models.ValidationIssue
	issues = append(issues, validateSecurity(c, isTestnet)...)
	issues = append(issues, validatePerformance(c, isTestnet)...)
	issues = append(issues, validateConsistency(c, isTestnet)...)
	if !isTestnet {
		issues = append(issues, validateDeploymentDefaults(c)...)
	}

	return models.ValidationResult{Environment: env, Issues: issues}
}

func validateSecurity(c *Config, isTestnet bool) []models.ValidationIssue {
	var out []models.ValidationIssue
	l := c.Liquidation

	if !l.EmergencyLiquidation {
		level := models.ValidationCritical
		if isTestnet {
			level = models.ValidationWarning
		}
		out = append(out, models.ValidationIssue{
			Level:          level,
			Category:       models.ValidationSecurity,
			Field:          "liquidation.emergency_liquidation",
			Message:        "emergency liquidation is disabled: positions remain open after shutdown",
			Recommendation: "enable emergency_liquidation unless this is a deliberate test/dev configuration",
		})
	}

	if !l.ClosePositions && !l.CancelOrders {
		out = append(out, models.ValidationIssue{
			Level:          models.ValidationCritical,
			Category:       models.ValidationSecurity,
			Field:          "liquidation.close_positions,liquidation.cancel_orders",
			Message:        "both close_positions and cancel_orders are disabled: shutdown performs no cleanup at all",
			Recommendation: "enable at least one of close_positions or cancel_orders",
		})
	}

	return out
}

func validatePerformance(c *Config, isTestnet bool) []models.ValidationIssue {
	var out []models.ValidationIssue
	l := c.Liquidation

	minTimeout, maxTimeout := minTimeoutProd, maxTimeoutProd
	minRetries, maxRetries := minRetriesProd, maxRetriesProd
	if isTestnet {
		minTimeout, maxTimeout = minTimeoutTest, maxTimeoutTest
		minRetries, maxRetries = minRetriesTest, maxRetriesTest
	}

	if l.TimeoutSeconds < minTimeout || l.TimeoutSeconds > maxTimeout {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationError,
			Category: models.ValidationPerformance,
			Field:    "liquidation.timeout_seconds",
			Message:  fmt.Sprintf("timeout_seconds %.1f is outside the %.1f-%.1f range for this environment", l.TimeoutSeconds, minTimeout, maxTimeout),
		})
	}

	if l.MaxRetries < minRetries || l.MaxRetries > maxRetries {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationError,
			Category: models.ValidationPerformance,
			Field:    "liquidation.max_retries",
			Message:  fmt.Sprintf("max_retries %d is outside the %d-%d range for this environment", l.MaxRetries, minRetries, maxRetries),
		})
	}

	worstCase := l.RetryDelaySeconds * float64(int(1)<<uint(l.MaxRetries)-1) // geometric sum approximation, matches backoff doubling
	if !isTestnet && worstCase > 30.0 {
		out = append(out, models.ValidationIssue{
			Level:          models.ValidationWarning,
			Category:       models.ValidationPerformance,
			Field:          "liquidation.retry_delay_seconds",
			Message:        fmt.Sprintf("worst-case retry backoff (~%.1fs) exceeds 30s in production", worstCase),
			Recommendation: "lower max_retries or retry_delay_seconds",
		})
	}

	return out
}

func validateConsistency(c *Config, isTestnet bool) []models.ValidationIssue {
	var out []models.ValidationIssue
	l := c.Liquidation

	if l.EmergencyLiquidation && !l.ClosePositions {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationWarning,
			Category: models.ValidationConfiguration,
			Field:    "liquidation.close_positions",
			Message:  "emergency liquidation is enabled but close_positions is disabled: only orders will be cancelled on shutdown",
		})
	}

	if l.EmergencyLiquidation && !l.CancelOrders {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationInfo,
			Category: models.ValidationConfiguration,
			Field:    "liquidation.cancel_orders",
			Message:  "cancel_orders is disabled: resting orders remain active after shutdown",
		})
	}

	return out
}

func validateDeploymentDefaults(c *Config) []models.ValidationIssue {
	var out []models.ValidationIssue
	l := c.Liquidation

	if l.TimeoutSeconds != standardTimeout {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationInfo,
			Category: models.ValidationDeployment,
			Field:    "liquidation.timeout_seconds",
			Message:  fmt.Sprintf("timeout_seconds %.1f deviates from the standard production default of %.1f", l.TimeoutSeconds, standardTimeout),
		})
	}
	if l.MaxRetries != standardRetries {
		out = append(out, models.ValidationIssue{
			Level:    models.ValidationInfo,
			Category: models.ValidationDeployment,
			Field:    "liquidation.max_retries",
			Message:  fmt.Sprintf("max_retries %d deviates from the standard production default of %d", l.MaxRetries, standardRetries),
		})
	}
	return out
}

// DetectConfigChanges diffs the liquidation-relevant fields of two configs
// into a list of ConfigChange entries, each tagged with its operational
// impact. Flipping emergency_liquidation is always CRITICAL; everything
// else is informational.
func DetectConfigChanges(old, new *Config) []models.ConfigChange {
	var changes []models.ConfigChange

	if old.Liquidation.EmergencyLiquidation != new.Liquidation.EmergencyLiquidation {
		changes = append(changes, models.ConfigChange{
			Field:       "liquidation.emergency_liquidation",
			OldValue:    fmt.Sprintf("%v", old.Liquidation.EmergencyLiquidation),
			NewValue:    fmt.Sprintf("%v", new.Liquidation.EmergencyLiquidation),
			Impact:      models.ValidationCritical,
			Description: "toggling emergency liquidation changes whether positions are protected on shutdown",
		})
	}
	if old.Liquidation.ClosePositions != new.Liquidation.ClosePositions {
		changes = append(changes, models.ConfigChange{
			Field:       "liquidation.close_positions",
			OldValue:    fmt.Sprintf("%v", old.Liquidation.ClosePositions),
			NewValue:    fmt.Sprintf("%v", new.Liquidation.ClosePositions),
			Impact:      models.ValidationWarning,
			Description: "changes whether open positions are closed during emergency liquidation",
		})
	}
	if old.Liquidation.TimeoutSeconds != new.Liquidation.TimeoutSeconds {
		changes = append(changes, models.ConfigChange{
			Field:       "liquidation.timeout_seconds",
			OldValue:    fmt.Sprintf("%.2f", old.Liquidation.TimeoutSeconds),
			NewValue:    fmt.Sprintf("%.2f", new.Liquidation.TimeoutSeconds),
			Impact:      models.ValidationInfo,
			Description: "changes how long shutdown waits for liquidation to complete",
		})
	}

	return changes
}

// CheckDeploymentReadiness aggregates ValidateDeployment's findings into a
// single go/no-go verdict: any error-or-critical issue is a blocker.
func CheckDeploymentReadiness(c *Config, isTestnet bool) models.DeploymentReadiness {
	result := ValidateDeployment(c, isTestnet)

	readiness := models.DeploymentReadiness{
		Environment: result.Environment,
	}

	for _, iss := range result.Issues {
		switch iss.Level {
		case models.ValidationCritical, models.ValidationError:
			readiness.Blockers = append(readiness.Blockers, iss.Message)
		case models.ValidationWarning:
			readiness.Warnings = append(readiness.Warnings, iss.Message)
		}
		if iss.Recommendation != "" {
			readiness.Recommendations = append(readiness.Recommendations, iss.Recommendation)
		}
	}

	if !isTestnet {
		readiness.Recommendations = append(readiness.Recommendations,
			"test configuration changes on testnet before deploying to production",
			"ensure monitoring and alerting is active before enabling live trading",
			"review the liquidation runbook with the on-call operator",
		)
	}

	readiness.IsReady = len(readiness.Blockers) == 0
	return readiness
}
