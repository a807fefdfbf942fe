package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// Limit-breach sentinels. The orchestrator treats every one of them as
// "skip this entry", not as a session failure.
var (
	ErrMaxOpenPositions = errors.New("open position limit reached")
	ErrMaxDailyTrades   = errors.New("daily trade limit reached")
	ErrDailyLossLimit   = errors.New("daily loss limit reached")
)

// Config holds risk management limits. Zero values disable a limit.
type Config struct {
	// MaxPositionSize caps a single position in base asset units.
	MaxPositionSize float64
	// MaxOpenPositions caps concurrently open brackets.
	MaxOpenPositions int
	// MaxDailyTrades caps round trips per UTC day.
	MaxDailyTrades int
	// MaxDailyLoss is a fraction of account balance; once the day's net
	// P&L falls below -MaxDailyLoss*balance, new entries stop.
	MaxDailyLoss float64
	// PositionSizePct is the default capital fraction committed per entry
	// when the strategy signal does not specify one.
	PositionSizePct float64
}

// Manager gates new entries against configured limits and tracks the
// running day's results. Daily counters roll over at UTC midnight.
type Manager struct {
	cfg    Config
	logger ports.Logger

	mu          sync.Mutex
	day         time.Time
	dailyPnL    float64
	dailyTrades int
}

// NewManager creates a risk manager.
func NewManager(cfg Config, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if cfg.PositionSizePct <= 0 || cfg.PositionSizePct > 1 {
		return nil, fmt.Errorf("position size percent must be in (0, 1], got %f", cfg.PositionSizePct)
	}
	return &Manager{cfg: cfg, logger: logger, day: startOfDay(time.Now())}, nil
}

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// rollover resets daily counters when the UTC day has advanced.
// Callers must hold m.mu.
func (m *Manager) rollover(now time.Time) {
	if day := startOfDay(now); day.After(m.day) {
		m.day = day
		m.dailyPnL = 0
		m.dailyTrades = 0
	}
}

// AllowEntry reports whether a new bracket may be opened given the number
// of currently open positions and the account balance.
func (m *Manager) AllowEntry(ctx context.Context, openPositions int, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(time.Now())

	if m.cfg.MaxOpenPositions > 0 && openPositions >= m.cfg.MaxOpenPositions {
		return fmt.Errorf("%d open, limit %d: %w", openPositions, m.cfg.MaxOpenPositions, ErrMaxOpenPositions)
	}
	if m.cfg.MaxDailyTrades > 0 && m.dailyTrades >= m.cfg.MaxDailyTrades {
		return fmt.Errorf("%d trades today, limit %d: %w", m.dailyTrades, m.cfg.MaxDailyTrades, ErrMaxDailyTrades)
	}
	if m.cfg.MaxDailyLoss > 0 && m.dailyPnL < -m.cfg.MaxDailyLoss*balance {
		return fmt.Errorf("daily P&L %.2f below limit %.2f: %w", m.dailyPnL, -m.cfg.MaxDailyLoss*balance, ErrDailyLossLimit)
	}
	return nil
}

// PositionSize converts available balance into a base asset quantity using
// the signal's capital fraction, falling back to the configured default.
func (m *Manager) PositionSize(balance, price, sizePct float64) float64 {
	if price <= 0 || balance <= 0 {
		return 0
	}
	pct := sizePct
	if pct <= 0 || pct > 1 {
		pct = m.cfg.PositionSizePct
	}
	size := balance * pct / price
	if m.cfg.MaxPositionSize > 0 {
		size = math.Min(size, m.cfg.MaxPositionSize)
	}
	return size
}

// RecordTrade folds a completed round trip into the day's statistics.
func (m *Manager) RecordTrade(ctx context.Context, trade *domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(time.Now())

	m.dailyPnL += trade.NetPnL
	m.dailyTrades++
	m.logger.Debug(ctx, "risk stats updated", map[string]interface{}{
		"dailyPnL": m.dailyPnL, "dailyTrades": m.dailyTrades,
	})
}

// DailyPnL returns the running net P&L for the current UTC day.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(time.Now())
	return m.dailyPnL
}

// DailyTrades returns the number of round trips closed today.
func (m *Manager) DailyTrades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(time.Now())
	return m.dailyTrades
}
