// Command replay runs the trading engine over a recorded candle series from
// a CSV file, against the simulated exchange. The run is deterministic:
// the same file and configuration always produce the same trades.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/config"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/logger"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/paper"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/app"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/engine"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/feed"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/risk"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/strategy"
)

func main() {
	csvPath := flag.String("file", "./data/klines.csv", "CSV file with recorded klines")
	initialCurrency := flag.Float64("balance", 10000, "starting quote balance for the simulated account")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	klineFeed, err := feed.NewReplayFromCSV(*csvPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load candle series: %v", err)
	}
	if klineFeed.Len() == 0 {
		log.Fatalf("FATAL: %s contains no candles", *csvPath)
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

	svc, err := app.NewTradingService(app.Config{
		Symbol:          cfg.Symbol,
		Interval:        cfg.Interval,
		CurrencyCode:    cfg.CurrencyCode,
		AssetCode:       cfg.AssetCode,
		CloseOnShutdown: true, // flatten at the last candle so results are complete
	}, appLogger, exchange, klineFeed, manager, strat, riskMgr, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Replay exited with error: %v", err)
	}

	stats := manager.Stats()
	appLogger.Info(ctx, "Replay finished", map[string]interface{}{
		"candles":     klineFeed.Len(),
		"totalTrades": stats.TotalTrades,
		"winRate":     stats.WinRate,
		"totalPnL":    stats.TotalPnL,
		"currency":    exchange.Currency(),
		"asset":       exchange.Asset(),
	})
}
