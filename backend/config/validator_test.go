package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func TestValidateDeployment_SecurityFirstConfigHasNoBlockers(t *testing.T) {
	cfg := validDryRunConfig()
	result := ValidateDeployment(cfg, false)
	assert.False(t, result.HasErrors())
}

func TestValidateDeployment_EmergencyDisabledIsCriticalInProd(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.EmergencyLiquidation = false
	cfg.Liquidation.ClosePositions = false
	cfg.Liquidation.CancelOrders = false
	result := ValidateDeployment(cfg, false)

	critical := result.ByLevel(models.ValidationCritical)
	assert.NotEmpty(t, critical)
}

func TestValidateDeployment_EmergencyDisabledIsWarningOnTestnet(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.EmergencyLiquidation = false
	cfg.Liquidation.ClosePositions = false
	cfg.Liquidation.CancelOrders = false
	result := ValidateDeployment(cfg, true)

	assert.Empty(t, result.ByLevel(models.ValidationCritical))
	assert.NotEmpty(t, result.ByLevel(models.ValidationWarning))
}

func TestValidateDeployment_BothCleanupDisabledIsCritical(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.ClosePositions = false
	cfg.Liquidation.CancelOrders = false
	result := ValidateDeployment(cfg, false)
	assert.NotEmpty(t, result.ByLevel(models.ValidationCritical))
}

func TestValidateDeployment_TimeoutOutOfProdRange(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.TimeoutSeconds = 1.0 // below 3.0 prod floor
	result := ValidateDeployment(cfg, false)
	assert.True(t, result.HasErrors())
}

func TestValidateDeployment_TimeoutOkOnTestnet(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.TimeoutSeconds = 1.0 // valid on testnet
	result := ValidateDeployment(cfg, true)
	assert.False(t, result.HasErrors())
}

func TestCheckDeploymentReadiness_BlocksOnCritical(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.EmergencyLiquidation = false
	cfg.Liquidation.ClosePositions = false
	cfg.Liquidation.CancelOrders = false
	readiness := CheckDeploymentReadiness(cfg, false)

	assert.False(t, readiness.IsReady)
	assert.NotEmpty(t, readiness.Blockers)
}

func TestCheckDeploymentReadiness_ReadyForSecurityFirstConfig(t *testing.T) {
	cfg := validDryRunConfig()
	readiness := CheckDeploymentReadiness(cfg, false)
	assert.True(t, readiness.IsReady)
	assert.NotEmpty(t, readiness.Recommendations)
}

func TestDetectConfigChanges_EmergencyToggleIsCritical(t *testing.T) {
	oldCfg := validDryRunConfig()
	newCfg := validDryRunConfig()
	newCfg.Liquidation.EmergencyLiquidation = false

	changes := DetectConfigChanges(oldCfg, newCfg)
	assert.Len(t, changes, 1)
	assert.Equal(t, models.ValidationCritical, changes[0].Impact)
}

func TestDetectConfigChanges_NoChanges(t *testing.T) {
	cfg := validDryRunConfig()
	changes := DetectConfigChanges(cfg, cfg)
	assert.Empty(t, changes)
}
