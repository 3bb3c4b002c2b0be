// Package config provides configuration management for the trading engine.
// It loads settings from environment variables and .env files.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ocho011/ict-2025-sub000/backend/errs"
)

// TradingMode represents the operating mode of the trading engine.
type TradingMode string

const (
	// ModeDryRun indicates paper trading mode (no real money).
	ModeDryRun TradingMode = "dry_run"
	// ModeLive indicates live trading mode with real money.
	ModeLive TradingMode = "live"
)

// MarginType is the exchange margin mode for a symbol's futures position.
type MarginType string

const (
	MarginIsolated MarginType = "isolated"
	MarginCrossed  MarginType = "crossed"
)

// ICTProfileName selects a pre-tuned ICT parameter set.
type ICTProfileName string

const (
	ProfileStrict   ICTProfileName = "strict"
	ProfileBalanced ICTProfileName = "balanced"
	ProfileRelaxed  ICTProfileName = "relaxed"
)

// validLogLevels is the set of accepted zerolog log levels.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
	"panic": true, "disabled": true,
}

// validMarginTypes is the set of accepted futures margin modes.
var validMarginTypes = map[string]bool{
	"isolated": true, "crossed": true,
}

// validProfiles is the set of accepted ICT parameter profile names.
var validProfiles = map[string]bool{
	"strict": true, "balanced": true, "relaxed": true,
}

// LiquidationSettings configures the emergency-liquidation manager. Defaults
// favor capital protection: every field defaults to the safest choice, and
// disabling emergency_liquidation while still closing positions or
// cancelling orders is treated as an inconsistency by Validate.
type LiquidationSettings struct {
	EmergencyLiquidation bool
	ClosePositions       bool
	CancelOrders         bool
	TimeoutSeconds       float64
	MaxRetries           int
	RetryDelaySeconds    float64
}

// ReloadChange describes a single configuration change detected during hot-reload.
type ReloadChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
	Applied  bool        `json:"applied"`
}

// ReloadResult summarizes what happened during a configuration hot-reload.
type ReloadResult struct {
	Changes         []ReloadChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"`
	RestartReasons  []string       `json:"restart_reasons,omitempty"`
}

// Config holds all configuration for the trading engine.
type Config struct {
	mu sync.RWMutex // protects hot-reloadable fields during concurrent access

	// Server settings
	ServerPort int
	ServerHost string
	APIKey     string

	// Trading settings
	TradingMode TradingMode
	Symbols     []string // perpetual futures symbols traded, e.g. BTCUSDT
	Intervals   []string // candle intervals subscribed, e.g. 5m,15m,1h
	Leverage    int
	MarginType  MarginType

	// Risk settings
	MaxRiskPerTrade      float64 // fraction of equity risked per trade, e.g. 0.01
	MaxPositionSizePct   float64 // fraction of equity allowed as position notional
	MinStopDistancePct   float64 // floor applied to stop distance before sizing

	// ICT strategy settings
	ActiveProfile ICTProfileName

	// Database settings
	DatabasePath string

	// Exchange credentials
	BinanceAPIKey    string
	BinanceAPISecret string
	UseBinanceTestnet bool

	// Logging
	LogLevel string

	// Liquidation settings
	Liquidation LiquidationSettings

	// Shutdown settings
	ShutdownTimeout time.Duration

	// Internal settings
	EnvFile string
}

// Load reads configuration from environment variables and .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		ServerPort:   getEnvInt("PORT", 8099),
		ServerHost:   getEnv("HOST", "0.0.0.0"),
		APIKey:       os.Getenv("API_KEY"),
		TradingMode:  TradingMode(getEnv("TRADING_MODE", "dry_run")),
		Symbols:      parseList(getEnv("SYMBOLS", "BTCUSDT")),
		Intervals:    parseList(getEnv("INTERVALS", "5m,15m,1h")),
		Leverage:     getEnvInt("LEVERAGE", 5),
		MarginType:   MarginType(getEnv("MARGIN_TYPE", "isolated")),

		MaxRiskPerTrade:    getEnvFloat("MAX_RISK_PER_TRADE", 0.01),
		MaxPositionSizePct: getEnvFloat("MAX_POSITION_SIZE_PERCENT", 0.5),
		MinStopDistancePct: getEnvFloat("MIN_STOP_DISTANCE_PERCENT", 0.001),

		ActiveProfile: ICTProfileName(getEnv("ICT_PROFILE", "balanced")),

		DatabasePath: getEnv("DATABASE_PATH", "./data/engine.db"),

		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		UseBinanceTestnet: getEnv("BINANCE_USE_TESTNET", "true") == "true",

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Liquidation: LiquidationSettings{
			EmergencyLiquidation: getEnv("LIQUIDATION_EMERGENCY", "true") == "true",
			ClosePositions:       getEnv("LIQUIDATION_CLOSE_POSITIONS", "true") == "true",
			CancelOrders:         getEnv("LIQUIDATION_CANCEL_ORDERS", "true") == "true",
			TimeoutSeconds:       getEnvFloat("LIQUIDATION_TIMEOUT_SECONDS", 5.0),
			MaxRetries:           getEnvInt("LIQUIDATION_MAX_RETRIES", 3),
			RetryDelaySeconds:    getEnvFloat("LIQUIDATION_RETRY_DELAY_SECONDS", 0.5),
		},

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		EnvFile: ".env",
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs fail-fast aggregate validation of every field. All
// issues are collected and returned together as a single *errs.ValidationError
// so operators can fix everything in one pass instead of one field at a time.
func (c *Config) Validate() error {
	ve := &errs.ValidationError{}

	if c.TradingMode != ModeDryRun && c.TradingMode != ModeLive {
		ve.Add("invalid TRADING_MODE '%s': must be 'dry_run' or 'live'", c.TradingMode)
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		ve.Add("invalid PORT %d: must be between 1 and 65535", c.ServerPort)
	}

	if c.DatabasePath == "" {
		ve.Add("DATABASE_PATH is empty: set DATABASE_PATH in .env (e.g. DATABASE_PATH=./data/engine.db)")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		ve.Add("invalid LOG_LEVEL '%s': must be one of trace, debug, info, warn, error, fatal, panic, disabled", c.LogLevel)
	}

	if len(c.Symbols) == 0 {
		ve.Add("SYMBOLS must list at least one trading symbol")
	}

	if len(c.Intervals) == 0 {
		ve.Add("INTERVALS must list at least one candle interval")
	}

	if c.Leverage < 1 || c.Leverage > 125 {
		ve.Add("invalid LEVERAGE %d: must be between 1 and 125", c.Leverage)
	}

	if !validMarginTypes[string(c.MarginType)] {
		ve.Add("invalid MARGIN_TYPE '%s': must be 'isolated' or 'crossed'", c.MarginType)
	}

	if !validProfiles[string(c.ActiveProfile)] {
		ve.Add("invalid ICT_PROFILE '%s': must be 'strict', 'balanced', or 'relaxed'", c.ActiveProfile)
	}

	if c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 0.1 {
		ve.Add("invalid MAX_RISK_PER_TRADE %.4f: must be between 0 and 0.1 (10%% of equity)", c.MaxRiskPerTrade)
	}

	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 1.0 {
		ve.Add("invalid MAX_POSITION_SIZE_PERCENT %.4f: must be between 0 and 1.0", c.MaxPositionSizePct)
	}

	ve.Issues = append(ve.Issues, c.validateExchange()...)
	ve.Issues = append(ve.Issues, c.validateLiquidation()...)
	ve.Issues = append(ve.Issues, c.validateMode()...)

	if ve.HasIssues() {
		return ve
	}
	return nil
}

// validateExchange checks that exchange credentials are present.
func (c *Config) validateExchange() []string {
	var out []string
	if c.BinanceAPIKey == "" {
		out = append(out, "BINANCE_API_KEY is required: set BINANCE_API_KEY in .env")
	}
	if c.BinanceAPISecret == "" {
		out = append(out, "BINANCE_API_SECRET is required: set BINANCE_API_SECRET in .env")
	}
	return out
}

// validateLiquidation checks the emergency-liquidation settings against the
// same bounds the liquidation validator enforces at deployment-readiness
// time (timeout/retry ranges, the emergency-off consistency rule).
func (c *Config) validateLiquidation() []string {
	var out []string
	l := c.Liquidation

	if l.TimeoutSeconds < 1.0 || l.TimeoutSeconds > 30.0 {
		out = append(out, fmt.Sprintf("invalid LIQUIDATION_TIMEOUT_SECONDS %.2f: must be 1.0-30.0", l.TimeoutSeconds))
	}
	if l.MaxRetries < 0 || l.MaxRetries > 10 {
		out = append(out, fmt.Sprintf("invalid LIQUIDATION_MAX_RETRIES %d: must be 0-10", l.MaxRetries))
	}
	if l.RetryDelaySeconds < 0.1 || l.RetryDelaySeconds > 5.0 {
		out = append(out, fmt.Sprintf("invalid LIQUIDATION_RETRY_DELAY_SECONDS %.2f: must be 0.1-5.0", l.RetryDelaySeconds))
	}
	if !l.EmergencyLiquidation && (l.ClosePositions || l.CancelOrders) {
		out = append(out, "inconsistent liquidation config: emergency_liquidation=false but close_positions or cancel_orders is true")
	}
	return out
}

// validateMode checks mode-specific requirements. Live mode requires an
// operator-facing API key for the HTTP surface.
func (c *Config) validateMode() []string {
	var out []string
	if c.IsLive() && c.APIKey == "" {
		out = append(out, "live mode requires API_KEY for authentication: set API_KEY in .env")
	}
	return out
}

// IsDryRun returns true if the engine is in paper trading mode.
func (c *Config) IsDryRun() bool {
	return c.TradingMode == ModeDryRun
}

// IsLive returns true if the engine is in live trading mode.
func (c *Config) IsLive() bool {
	return c.TradingMode == ModeLive
}

// Reload re-reads configuration from environment variables and .env files,
// applying only hot-reloadable fields to the live config. Structural fields
// (symbols, intervals, leverage, margin type, database path, trading mode)
// are detected but NOT applied — the caller receives a RequiresRestart advisory.
func (c *Config) Reload() (*ReloadResult, error) {
	envFile := c.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Overload(envFile)

	newCfg := &Config{
		ServerPort:   getEnvInt("PORT", 8099),
		ServerHost:   getEnv("HOST", "0.0.0.0"),
		APIKey:       os.Getenv("API_KEY"),
		TradingMode:  TradingMode(getEnv("TRADING_MODE", "dry_run")),
		Symbols:      parseList(getEnv("SYMBOLS", "BTCUSDT")),
		Intervals:    parseList(getEnv("INTERVALS", "5m,15m,1h")),
		Leverage:     getEnvInt("LEVERAGE", 5),
		MarginType:   MarginType(getEnv("MARGIN_TYPE", "isolated")),

		MaxRiskPerTrade:    getEnvFloat("MAX_RISK_PER_TRADE", 0.01),
		MaxPositionSizePct: getEnvFloat("MAX_POSITION_SIZE_PERCENT", 0.5),
		MinStopDistancePct: getEnvFloat("MIN_STOP_DISTANCE_PERCENT", 0.001),

		ActiveProfile: ICTProfileName(getEnv("ICT_PROFILE", "balanced")),

		DatabasePath: getEnv("DATABASE_PATH", "./data/engine.db"),

		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		UseBinanceTestnet: getEnv("BINANCE_USE_TESTNET", "true") == "true",

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Liquidation: LiquidationSettings{
			EmergencyLiquidation: getEnv("LIQUIDATION_EMERGENCY", "true") == "true",
			ClosePositions:       getEnv("LIQUIDATION_CLOSE_POSITIONS", "true") == "true",
			CancelOrders:         getEnv("LIQUIDATION_CANCEL_ORDERS", "true") == "true",
			TimeoutSeconds:       getEnvFloat("LIQUIDATION_TIMEOUT_SECONDS", 5.0),
			MaxRetries:           getEnvInt("LIQUIDATION_MAX_RETRIES", 3),
			RetryDelaySeconds:    getEnvFloat("LIQUIDATION_RETRY_DELAY_SECONDS", 0.5),
		},

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		EnvFile:         envFile,
	}

	if err := newCfg.Validate(); err != nil {
		return nil, fmt.Errorf("reloaded config validation failed: %w", err)
	}

	result := &ReloadResult{Changes: make([]ReloadChange, 0)}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.detectRestartChange(result, "Symbols", c.Symbols, newCfg.Symbols)
	c.detectRestartChange(result, "Intervals", c.Intervals, newCfg.Intervals)
	c.detectRestartChange(result, "Leverage", c.Leverage, newCfg.Leverage)
	c.detectRestartChange(result, "MarginType", string(c.MarginType), string(newCfg.MarginType))
	c.detectRestartChange(result, "TradingMode", string(c.TradingMode), string(newCfg.TradingMode))
	c.detectRestartChange(result, "DatabasePath", c.DatabasePath, newCfg.DatabasePath)

	// LogLevel is hot-reloadable and also updates zerolog's global level.
	if c.LogLevel != newCfg.LogLevel {
		result.Changes = append(result.Changes, ReloadChange{
			Field: "LogLevel", OldValue: c.LogLevel, NewValue: newCfg.LogLevel, Applied: true,
		})
		c.LogLevel = newCfg.LogLevel
		if lvl, err := zerolog.ParseLevel(newCfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}

	if c.MaxRiskPerTrade != newCfg.MaxRiskPerTrade {
		result.Changes = append(result.Changes, ReloadChange{
			Field: "MaxRiskPerTrade", OldValue: c.MaxRiskPerTrade, NewValue: newCfg.MaxRiskPerTrade, Applied: true,
		})
		c.MaxRiskPerTrade = newCfg.MaxRiskPerTrade
	}

	if c.ActiveProfile != newCfg.ActiveProfile {
		result.Changes = append(result.Changes, ReloadChange{
			Field: "ActiveProfile", OldValue: c.ActiveProfile, NewValue: newCfg.ActiveProfile, Applied: true,
		})
		c.ActiveProfile = newCfg.ActiveProfile
	}

	if c.Liquidation != newCfg.Liquidation {
		result.Changes = append(result.Changes, ReloadChange{
			Field: "Liquidation", OldValue: c.Liquidation, NewValue: newCfg.Liquidation, Applied: true,
		})
		c.Liquidation = newCfg.Liquidation
	}

	if c.BinanceAPIKey != newCfg.BinanceAPIKey {
		result.Changes = append(result.Changes, ReloadChange{Field: "BinanceAPIKey", OldValue: "[redacted]", NewValue: "[redacted]", Applied: true})
		c.BinanceAPIKey = newCfg.BinanceAPIKey
	}
	if c.BinanceAPISecret != newCfg.BinanceAPISecret {
		result.Changes = append(result.Changes, ReloadChange{Field: "BinanceAPISecret", OldValue: "[redacted]", NewValue: "[redacted]", Applied: true})
		c.BinanceAPISecret = newCfg.BinanceAPISecret
	}

	log.Info().
		Int("total_changes", len(result.Changes)).
		Bool("requires_restart", result.RequiresRestart).
		Msg("configuration reloaded")

	return result, nil
}

// detectRestartChange checks if a field value changed and records it as a
// restart-required change (not applied to the live config).
func (c *Config) detectRestartChange(result *ReloadResult, field string, oldVal, newVal interface{}) {
	if fmt.Sprintf("%v", oldVal) != fmt.Sprintf("%v", newVal) {
		result.Changes = append(result.Changes, ReloadChange{
			Field: field, OldValue: oldVal, NewValue: newVal, Applied: false,
		})
		result.RequiresRestart = true
		result.RestartReasons = append(result.RestartReasons, field+" changed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseList splits a comma-separated env value, trimming whitespace and
// dropping empty entries.
func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GenerateAPIKey generates a secure random API key of 32 bytes (64 hex characters).
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// RotateAPIKey generates a new API key, updates the config, and persists it to the .env file.
func (c *Config) RotateAPIKey() (string, error) {
	newKey, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}

	c.APIKey = newKey

	envFile := c.EnvFile
	if envFile == "" {
		envFile = ".env"
	}

	content, err := os.ReadFile(envFile)
	if err != nil {
		if os.IsNotExist(err) {
			return newKey, os.WriteFile(envFile, []byte("API_KEY="+newKey+"\n"), 0644)
		}
		return "", err
	}

	lines := strings.Split(string(content), "\n")
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, "API_KEY=") {
			lines[i] = "API_KEY=" + newKey
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, "API_KEY="+newKey)
	}

	if err := os.WriteFile(envFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", fmt.Errorf("failed to write .env file: %w", err)
	}

	return newKey, nil
}
