// Package main is the entry point for the Sherwood perpetual-futures
// trading engine. It wires configuration, persistence, the exchange
// gateway, the ICT composable strategies, and the operator HTTP surface
// together and drives the process lifecycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/api"
	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/data"
	"github.com/ocho011/ict-2025-sub000/backend/engine"
	"github.com/ocho011/ict-2025-sub000/backend/execution"
	"github.com/ocho011/ict-2025-sub000/backend/realtime"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
	_ "github.com/ocho011/ict-2025-sub000/backend/strategies/ict"
)

// userStreamClient adapts *futures.Client's context-taking listen-key
// services to data.UserDataClient's synchronous signature.
type userStreamClient struct {
	client *futures.Client
}

func (c userStreamClient) StartUserStream() (string, error) {
	return c.client.NewStartUserStreamService().Do(context.Background())
}

func (c userStreamClient) KeepaliveUserStream(listenKey string) error {
	return c.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(context.Background())
}

// buildModules assembles the four ICT determiners for one symbol from the
// active profile's tuned parameters. Every symbol currently shares the same
// profile; per-symbol overrides would slot in here.
func buildModules(cfg *config.Config) (strategies.ModuleConfig, error) {
	profile, err := config.GetICTParameters(cfg.ActiveProfile)
	if err != nil {
		return strategies.ModuleConfig{}, fmt.Errorf("load ICT profile: %w", err)
	}

	entry, err := strategies.BuildEntry("ict", map[string]any{
		"swing_lookback":      profile.SwingLookback,
		"displacement_ratio":  profile.DisplacementRatio,
		"fvg_min_gap_percent": profile.FVGMinGapPercent,
		"ob_min_strength":     profile.OBMinStrength,
		"liquidity_tolerance": profile.LiquidityTolerance,
	})
	if err != nil {
		return strategies.ModuleConfig{}, fmt.Errorf("build entry determiner: %w", err)
	}

	exit, err := strategies.BuildExit("ict", map[string]any{"exit_strategy": "indicator_based"})
	if err != nil {
		return strategies.ModuleConfig{}, fmt.Errorf("build exit determiner: %w", err)
	}

	stopLoss, err := strategies.BuildStopLoss("zone_based_sl", map[string]any{})
	if err != nil {
		return strategies.ModuleConfig{}, fmt.Errorf("build stop-loss determiner: %w", err)
	}

	takeProfit, err := strategies.BuildTakeProfit("displacement_tp", map[string]any{
		"risk_reward_ratio": profile.RiskRewardRatio,
	})
	if err != nil {
		return strategies.ModuleConfig{}, fmt.Errorf("build take-profit determiner: %w", err)
	}

	return strategies.ModuleConfig{
		EntryDeterminer:      entry,
		StopLossDeterminer:   stopLoss,
		TakeProfitDeterminer: takeProfit,
		ExitDeterminer:       exit,
	}, nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting Sherwood perpetual-futures trading engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.TradingMode == config.ModeLive {
		log.Warn().Msg("LIVE TRADING MODE - real funds at risk")
	} else {
		log.Info().Msg("dry-run mode, no orders reach the exchange account")
	}

	db, err := data.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()
	orderStore := data.NewOrderStore(db)

	audit, err := execution.NewAuditLogger("logs/audit")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit logger")
	}

	restClient := futures.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
	if cfg.UseBinanceTestnet {
		restClient.BaseURL = "https://testnet.binancefuture.com"
	}
	exchangeClient := execution.NewBinanceClient(restClient)

	gateway := execution.NewGateway(exchangeClient, audit)
	riskGuard := execution.NewRiskGuard(execution.RiskConfig{
		MaxRiskPerTrade:        decimal.NewFromFloat(cfg.MaxRiskPerTrade),
		MaxLeverage:            cfg.Leverage,
		MaxPositionSizePercent: decimal.NewFromFloat(cfg.MaxPositionSizePct),
	}, audit)
	positionCache := execution.NewPositionCache(30 * time.Second)
	liquidation := execution.NewLiquidationManager(gateway, positionCache, audit, cfg.Liquidation)

	lotSizes := make(map[string]execution.LotSize, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		lotSizes[symbol] = execution.LotSize{Step: decimal.NewFromFloat(0.001), Precision: 3}
	}

	tradingEngine := engine.NewTradingEngine(cfg, gateway, riskGuard, positionCache, liquidation, audit, lotSizes)

	modulesBySymbol := make(map[string]strategies.ModuleConfig, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		modules, err := buildModules(cfg)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("failed to build strategy modules")
		}
		modulesBySymbol[symbol] = modules
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tradingEngine.Initialize(ctx, modulesBySymbol, 1.5); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize trading engine")
	}

	wsManager := realtime.NewWebSocketManager()
	go wsManager.Run()
	tradingEngine.SetBroadcaster(wsManager)

	publicStreamer := data.NewPublicMarketStreamer(tradingEngine.Bus(), futures.WsKlineServe)
	for _, symbol := range cfg.Symbols {
		for _, interval := range cfg.Intervals {
			publicStreamer.Stream(symbol, interval)
		}
	}
	userStreamer := data.NewPrivateUserStreamer(tradingEngine.Bus(), userStreamClient{client: restClient}, futures.WsUserDataServe)
	tradingEngine.AttachStreamers(publicStreamer, userStreamer)

	if err := tradingEngine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start trading engine")
	}
	go userStreamer.Run()

	router := api.NewRouter(cfg, tradingEngine, orderStore, wsManager)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("operator HTTP surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("operator HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := tradingEngine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("engine shutdown reported an error")
	}
	userStreamer.Stop()
	publicStreamer.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("operator HTTP server forced to shut down")
	}

	log.Info().Msg("server exited gracefully")
}
