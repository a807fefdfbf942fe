// Command papertrade runs the trading engine against live market data with
// a simulated exchange: real candles, fake money.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/config"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/binanceclient"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/logger"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/paper"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/app"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/engine"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/feed"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/risk"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/strategy"
)

func main() {
	initialCurrency := flag.Float64("balance", 10000, "starting quote balance for the simulated account")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Market data comes from public endpoints; no API keys needed.
	client, err := binanceclient.New(binanceclient.Config{
		UseTestnet:           cfg.IsTestnet,
		Symbol:               cfg.Symbol,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	exchange, err := paper.New(paper.Config{
		Pair:            cfg.Symbol,
		InitialCurrency: *initialCurrency,
		FeeRate:         cfg.FeeRate,
		CurrencyCode:    cfg.CurrencyCode,
		AssetCode:       cfg.AssetCode,
		Logger:          appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper exchange: %v", err)
	}

	manager, err := engine.NewOrderManager(engine.Config{
		Symbol:   cfg.Symbol,
		FeeRate:  cfg.FeeRate,
		Exchange: exchange,
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
	}, appLogger, exchange, klineFeed, manager, strat, riskMgr, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	history, err := client.GetKlines(ctx, cfg.Interval, strat.RequiredDataPoints())
	if err != nil {
		log.Fatalf("FATAL: Failed to load initial klines: %v", err)
	}
	svc.Seed(history)

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Paper trading session exited with error: %v", err)
	}

	appLogger.Info(ctx, "Paper trading session finished", map[string]interface{}{
		"currency": exchange.Currency(),
		"asset":    exchange.Asset(),
	})
}
