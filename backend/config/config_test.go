package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/errs"
)

func validDryRunConfig() *Config {
	return &Config{
		TradingMode:        ModeDryRun,
		ServerPort:         8099,
		Symbols:            []string{"BTCUSDT"},
		Intervals:          []string{"5m", "15m"},
		Leverage:           5,
		MarginType:         MarginIsolated,
		MaxRiskPerTrade:    0.01,
		MaxPositionSizePct: 0.5,
		ActiveProfile:      ProfileBalanced,
		DatabasePath:       "./data/engine.db",
		LogLevel:           "info",
		BinanceAPIKey:      "key",
		BinanceAPISecret:   "secret",
		Liquidation: LiquidationSettings{
			EmergencyLiquidation: true,
			ClosePositions:       true,
			CancelOrders:         true,
			TimeoutSeconds:       5.0,
			MaxRetries:           3,
			RetryDelaySeconds:    0.5,
		},
	}
}

func TestValidate_ValidDryRunConfig(t *testing.T) {
	require.NoError(t, validDryRunConfig().Validate())
}

func TestValidate_InvalidTradingMode(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.TradingMode = "invalid"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADING_MODE")
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.ServerPort = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestValidate_ValidLogLevels(t *testing.T) {
	levels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			cfg := validDryRunConfig()
			cfg.LogLevel = level
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestValidate_NoSymbols(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Symbols = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYMBOLS")
}

func TestValidate_InvalidLeverage(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Leverage = 200
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEVERAGE")
}

func TestValidate_InvalidMarginType(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.MarginType = "hedged"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARGIN_TYPE")
}

func TestValidate_InvalidProfile(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.ActiveProfile = "aggressive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ICT_PROFILE")
}

func TestValidate_MissingBinanceCredentials(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.BinanceAPIKey = ""
	cfg.BinanceAPISecret = ""
	err := cfg.Validate()
	require.Error(t, err)

	var ve *errs.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve.Issues), 2)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET")
}

func TestValidate_LiquidationTimeoutOutOfRange(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.TimeoutSeconds = 60.0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIQUIDATION_TIMEOUT_SECONDS")
}

func TestValidate_LiquidationInconsistentWhenDisabled(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.Liquidation.EmergencyLiquidation = false
	cfg.Liquidation.ClosePositions = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent liquidation config")
}

func TestValidate_LiveModeMissingAPIKey(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.TradingMode = ModeLive
	cfg.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestValidate_LiveModeWithAPIKey(t *testing.T) {
	cfg := validDryRunConfig()
	cfg.TradingMode = ModeLive
	cfg.APIKey = "operator-key"
	require.NoError(t, cfg.Validate())
}

func TestIsDryRunIsLive(t *testing.T) {
	cfg := validDryRunConfig()
	assert.True(t, cfg.IsDryRun())
	assert.False(t, cfg.IsLive())

	cfg.TradingMode = ModeLive
	assert.False(t, cfg.IsDryRun())
	assert.True(t, cfg.IsLive())
}

func TestGetICTParameters(t *testing.T) {
	for _, name := range []ICTProfileName{ProfileStrict, ProfileBalanced, ProfileRelaxed} {
		params, err := GetICTParameters(name)
		require.NoError(t, err)
		assert.Greater(t, params.SwingLookback, 0)
		assert.Greater(t, params.RiskRewardRatio, 0.0)
	}

	_, err := GetICTParameters("unknown")
	require.Error(t, err)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT"}, parseList("BTCUSDT"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, parseList("BTCUSDT, ETHUSDT"))
	assert.Equal(t, []string{}, parseList(""))
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
}
