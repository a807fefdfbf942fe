// Command fetchklines downloads recent candles for the configured symbol
// and writes them to a CSV file consumable by the replay command.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/config"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/binanceclient"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/logger"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/utils"
)

func main() {
	out := flag.String("out", "./data/klines.csv", "output CSV file")
	limit := flag.Int("limit", 1000, "number of candles to fetch")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

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

	klines, err := client.GetKlines(ctx, cfg.Interval, *limit)
	if err != nil {
		log.Fatalf("FATAL: Failed to fetch klines: %v", err)
	}

	if err := utils.WriteKlinesToCSV(klines, *out); err != nil {
		log.Fatalf("FATAL: Failed to write CSV: %v", err)
	}

	appLogger.Info(ctx, "Klines written", map[string]interface{}{
		"symbol": cfg.Symbol, "interval": cfg.Interval, "count": len(klines), "file": *out,
	})
}
