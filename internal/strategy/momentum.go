package strategy

import (
	"context"
	"fmt"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// MomentumConfig holds configuration for the momentum strategy.
type MomentumConfig struct {
	FastEMAPeriod int // e.g., 8
	SlowEMAPeriod int // e.g., 21
	RSIPeriod     int // e.g., 14

	// RSI band considered healthy for a long entry.
	RSIFloor   float64 // e.g., 35
	RSICeiling float64 // e.g., 68

	// Risk parameters attached to every signal, as decimal fractions.
	StopLossPct     float64
	TakeProfitPct   float64
	UseTrailingStop bool

	// SizePct is the capital fraction proposed per entry (0 defers to the
	// risk manager's default).
	SizePct float64
}

// Momentum is a long-only EMA crossover strategy with an RSI filter. It
// enters when the fast EMA crosses above the slow EMA while RSI sits in a
// healthy band, and proposes an early exit on the opposite crossover.
type Momentum struct {
	config MomentumConfig
	logger ports.Logger
}

// NewMomentum creates a momentum strategy instance.
func NewMomentum(config MomentumConfig, logger ports.Logger) (*Momentum, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if config.FastEMAPeriod <= 0 || config.SlowEMAPeriod <= 0 || config.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if config.FastEMAPeriod >= config.SlowEMAPeriod {
		return nil, fmt.Errorf("fast EMA period must be less than slow EMA period")
	}
	if config.RSIFloor < 0 || config.RSICeiling > 100 || config.RSICeiling <= config.RSIFloor {
		return nil, fmt.Errorf("RSI band must satisfy 0 <= floor < ceiling <= 100, got [%v, %v]",
			config.RSIFloor, config.RSICeiling)
	}
	return &Momentum{config: config, logger: logger}, nil
}

// Name returns the name of the strategy.
func (m *Momentum) Name() string {
	return "EMA Momentum"
}

// RequiredDataPoints returns the minimum number of klines needed before the
// strategy can produce signals.
func (m *Momentum) RequiredDataPoints() int {
	max := m.config.SlowEMAPeriod
	if m.config.RSIPeriod > max {
		max = m.config.RSIPeriod
	}
	return max + 5 // buffer for the crossover lookback
}

// ShouldEnter returns an entry proposal, or nil for no entry.
func (m *Momentum) ShouldEnter(ctx context.Context, klines []*domain.Kline, currentPrice float64) *domain.EntrySignal {
	if len(klines) < m.RequiredDataPoints() {
		m.logger.Debug(ctx, "not enough kline data for strategy evaluation",
			map[string]interface{}{"available": len(klines), "required": m.RequiredDataPoints()})
		return nil
	}

	closes := closePrices(klines)

	fast := ema(closes, m.config.FastEMAPeriod)
	slow := ema(closes, m.config.SlowEMAPeriod)
	prevFast := ema(closes[:len(closes)-1], m.config.FastEMAPeriod)
	prevSlow := ema(closes[:len(closes)-1], m.config.SlowEMAPeriod)

	crossedAbove := fast > slow && prevFast <= prevSlow
	if !crossedAbove {
		return nil
	}

	r := rsi(closes, m.config.RSIPeriod)
	if r < m.config.RSIFloor || r > m.config.RSICeiling {
		m.logger.Debug(ctx, "crossover rejected by RSI filter", map[string]interface{}{
			"rsi": r, "floor": m.config.RSIFloor, "ceiling": m.config.RSICeiling,
		})
		return nil
	}

	if currentPrice < fast {
		// Price already falling back through the fast EMA; stale crossover.
		return nil
	}

	m.logger.Info(ctx, "entry conditions met", map[string]interface{}{
		"currentPrice": currentPrice, "fastEMA": fast, "slowEMA": slow, "rsi": r,
	})

	return &domain.EntrySignal{
		Side:            domain.Long,
		StopLossPct:     m.config.StopLossPct,
		TakeProfitPct:   m.config.TakeProfitPct,
		UseTrailingStop: m.config.UseTrailingStop,
		SizePct:         m.config.SizePct,
		Reason:          fmt.Sprintf("fast EMA %.2f crossed above slow EMA %.2f, RSI %.1f", fast, slow, r),
	}
}

// ShouldExitEarly reports whether an open position should be closed ahead
// of its stop/target levels.
func (m *Momentum) ShouldExitEarly(ctx context.Context, klines []*domain.Kline, currentPrice, entryPrice float64, side domain.PositionSide) bool {
	if side != domain.Long || len(klines) < m.RequiredDataPoints() {
		return false
	}

	closes := closePrices(klines)
	fast := ema(closes, m.config.FastEMAPeriod)
	slow := ema(closes, m.config.SlowEMAPeriod)
	prevFast := ema(closes[:len(closes)-1], m.config.FastEMAPeriod)
	prevSlow := ema(closes[:len(closes)-1], m.config.SlowEMAPeriod)

	crossedBelow := fast < slow && prevFast >= prevSlow
	if !crossedBelow {
		return false
	}

	// Only surrender the position to the crossover while it is profitable;
	// losing positions are left to the protective stop.
	inProfit := currentPrice > entryPrice
	if inProfit {
		m.logger.Info(ctx, "early exit on bearish crossover", map[string]interface{}{
			"currentPrice": currentPrice, "entryPrice": entryPrice, "fastEMA": fast, "slowEMA": slow,
		})
	}
	return inProfit
}

func closePrices(klines []*domain.Kline) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}

// ema computes an exponential moving average seeded with a simple average
// of the first period values.
func ema(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	current := seed / float64(period)

	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		current = v*k + current*(1-k)
	}
	return current
}

// rsi computes the relative strength index over the trailing period.
func rsi(values []float64, period int) float64 {
	if len(values) <= period {
		return 50
	}

	var sumGain, sumLoss float64
	start := len(values) - period
	for i := start; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			sumGain += change
		} else {
			sumLoss -= change
		}
	}

	if sumLoss == 0 {
		return 100
	}
	rs := sumGain / sumLoss
	return 100 - (100 / (1 + rs))
}
