package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/config"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/binanceclient"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/logger"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/sqlite"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/app"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/engine"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/feed"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/risk"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/strategy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := cfg.RequireAPIKeys(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Symbol:               cfg.Symbol,
		ExpectedFeeRate:      cfg.FeeRate,
		FeeTolerance:         cfg.FeeTolerance,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize repository")
		log.Fatalf("FATAL: Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	manager, err := engine.NewOrderManager(engine.Config{
		Symbol:   cfg.Symbol,
		FeeRate:  cfg.FeeRate,
		Exchange: client,
		Logger:   appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize order manager: %v", err)
	}

	riskMgr, err := risk.NewManager(risk.Config{
		MaxPositionSize:  cfg.MaxPositionSize,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxDailyTrades:   cfg.MaxDailyTrades,
		MaxDailyLoss:     cfg.MaxDailyLoss,
		PositionSizePct:  cfg.PositionSizePct,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	strat, err := strategy.NewMomentum(strategy.MomentumConfig{
		FastEMAPeriod:   cfg.StrategyFastEMAPeriod,
		SlowEMAPeriod:   cfg.StrategySlowEMAPeriod,
		RSIPeriod:       cfg.StrategyRSIPeriod,
		RSIFloor:        cfg.StrategyRSIFloor,
		RSICeiling:      cfg.StrategyRSICeiling,
		StopLossPct:     cfg.StopLossPct,
		TakeProfitPct:   cfg.TakeProfitPct,
		UseTrailingStop: cfg.UseTrailingStop,
		SizePct:         cfg.PositionSizePct,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}

	klineFeed, err := feed.NewLive(ctx, client, cfg.Interval, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start kline feed")
		log.Fatalf("FATAL: Failed to start kline feed: %v", err)
	}

	svc, err := app.NewTradingService(app.Config{
		Symbol:                cfg.Symbol,
		Interval:              cfg.Interval,
		CurrencyCode:          cfg.CurrencyCode,
		AssetCode:             cfg.AssetCode,
		CloseOnShutdown:       cfg.CloseOnShutdown,
		DustCurrencyThreshold: cfg.DustCurrencyThreshold,
		DustAssetThreshold:    cfg.DustAssetThreshold,
	}, appLogger, client, klineFeed, manager, strat, riskMgr, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// Preload history so the strategy can evaluate from the first live candle.
	history, err := client.GetKlines(ctx, cfg.Interval, strat.RequiredDataPoints())
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load initial klines")
		log.Fatalf("FATAL: Failed to load initial klines: %v", err)
	}
	svc.Seed(history)

	if err := svc.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("Trading service exited with error: %v", err)
	}
	appLogger.Info(ctx, "Trading service stopped")
}
