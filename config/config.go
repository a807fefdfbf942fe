package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Symbol       string
	Interval     string  // kline interval, e.g. "1m"
	CurrencyCode string  // quote asset, e.g. "USDT"
	AssetCode    string  // base asset, e.g. "ETH"
	FeeRate      float64 // expected taker fee as a decimal (0.001 = 0.1%)
	FeeTolerance float64 // acceptable deviation from FeeRate

	// Bracket Parameters
	StopLossPct     float64 // e.g., 0.02 for 2%
	TakeProfitPct   float64 // e.g., 0.05 for 5%
	UseTrailingStop bool

	// Risk Parameters
	PositionSizePct  float64 // capital fraction per entry
	MaxPositionSize  float64 // cap in base asset units, 0 = unlimited
	MaxOpenPositions int
	MaxDailyTrades   int
	MaxDailyLoss     float64 // fraction of balance, 0 = unlimited

	// Strategy Parameters
	StrategyFastEMAPeriod int     // e.g., 8
	StrategySlowEMAPeriod int     // e.g., 21
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIFloor      float64 // e.g., 35.0
	StrategyRSICeiling    float64 // e.g., 68.0

	// Shutdown / holdings
	CloseOnShutdown       bool
	DustCurrencyThreshold float64
	DustAssetThreshold    float64

	// Database
	DBPath string

	// Logging
	LogLevel       logger.LogLevel
	LogDevelopment bool // console encoder instead of JSON

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Trading Parameters
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Interval = getEnv("INTERVAL", "1m")
	cfg.CurrencyCode = getEnv("CURRENCY_CODE", "USDT")
	cfg.AssetCode = getEnv("ASSET_CODE", "ETH")

	cfg.FeeRate, err = getEnvAsFloatRequired("FEE_RATE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_RATE: %v", err))
	} else if cfg.FeeRate < 0 || cfg.FeeRate >= 1.0 {
		errs = append(errs, "FEE_RATE must be in [0.0, 1.0)")
	}
	cfg.FeeTolerance = getEnvAsFloat("FEE_TOLERANCE", 0.0001)

	// Bracket Parameters
	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	} else if cfg.TakeProfitPct <= 0 {
		errs = append(errs, "TAKE_PROFIT_PCT must be positive")
	}

	cfg.UseTrailingStop = getEnvAsBool("USE_TRAILING_STOP", false)

	// Risk Parameters
	cfg.PositionSizePct, err = getEnvAsFloatRequired("POSITION_SIZE_PCT", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POSITION_SIZE_PCT: %v", err))
	} else if cfg.PositionSizePct <= 0 || cfg.PositionSizePct > 1.0 {
		errs = append(errs, "POSITION_SIZE_PCT must be in (0.0, 1.0]")
	}

	cfg.MaxPositionSize = getEnvAsFloat("MAX_POSITION_SIZE", 0)
	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 1)
	cfg.MaxDailyTrades = getEnvAsInt("MAX_DAILY_TRADES", 10)
	cfg.MaxDailyLoss = getEnvAsFloat("MAX_DAILY_LOSS", 0.05)

	// Strategy Parameters
	cfg.StrategyFastEMAPeriod = getEnvAsInt("STRATEGY_FAST_EMA_PERIOD", 8)
	cfg.StrategySlowEMAPeriod = getEnvAsInt("STRATEGY_SLOW_EMA_PERIOD", 21)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIFloor = getEnvAsFloat("STRATEGY_RSI_FLOOR", 35.0)
	cfg.StrategyRSICeiling = getEnvAsFloat("STRATEGY_RSI_CEILING", 68.0)

	if cfg.StrategyFastEMAPeriod <= 0 || cfg.StrategySlowEMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (EMA, RSI) must be positive")
	}
	if cfg.StrategyFastEMAPeriod >= cfg.StrategySlowEMAPeriod {
		errs = append(errs, "STRATEGY_FAST_EMA_PERIOD must be less than STRATEGY_SLOW_EMA_PERIOD")
	}
	if cfg.StrategyRSICeiling <= cfg.StrategyRSIFloor || cfg.StrategyRSICeiling > 100 || cfg.StrategyRSIFloor < 0 {
		errs = append(errs, "invalid RSI thresholds (Ceiling must be > Floor, between 0-100)")
	}

	// Shutdown / holdings
	cfg.CloseOnShutdown = getEnvAsBool("CLOSE_ON_SHUTDOWN", false)
	cfg.DustCurrencyThreshold = getEnvAsFloat("DUST_CURRENCY_THRESHOLD", 1.0)
	cfg.DustAssetThreshold = getEnvAsFloat("DUST_ASSET_THRESHOLD", 0.001)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trading_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogDevelopment = getEnvAsBool("LOG_DEVELOPMENT", false)

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// RequireAPIKeys validates that API credentials are present. Live trading
// needs them; paper and replay sessions do not.
func (c *Config) RequireAPIKeys() error {
	if c.APIKey == "" || c.SecretKey == "" {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET must be set for live trading")
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
