package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.PositionSizePct == 0 {
		cfg.PositionSizePct = 0.1
	}
	m, err := NewManager(cfg, &mockLogger{})
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{PositionSizePct: 0.1}, nil)
	assert.Error(t, err)

	_, err = NewManager(Config{PositionSizePct: 0}, &mockLogger{})
	assert.Error(t, err)

	_, err = NewManager(Config{PositionSizePct: 1.5}, &mockLogger{})
	assert.Error(t, err)
}

func TestAllowEntry_OpenPositionLimit(t *testing.T) {
	m := newTestManager(t, Config{MaxOpenPositions: 2})
	ctx := context.Background()

	assert.NoError(t, m.AllowEntry(ctx, 0, 1000))
	assert.NoError(t, m.AllowEntry(ctx, 1, 1000))

	err := m.AllowEntry(ctx, 2, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxOpenPositions)
}

func TestAllowEntry_DailyTradeLimit(t *testing.T) {
	m := newTestManager(t, Config{MaxDailyTrades: 2})
	ctx := context.Background()

	trade := &domain.Trade{NetPnL: 1.0}
	m.RecordTrade(ctx, trade)
	assert.NoError(t, m.AllowEntry(ctx, 0, 1000))

	m.RecordTrade(ctx, trade)
	err := m.AllowEntry(ctx, 0, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxDailyTrades)
}

func TestAllowEntry_DailyLossLimit(t *testing.T) {
	m := newTestManager(t, Config{MaxDailyLoss: 0.05})
	ctx := context.Background()

	m.RecordTrade(ctx, &domain.Trade{NetPnL: -40})
	assert.NoError(t, m.AllowEntry(ctx, 0, 1000), "loss within 5%% of 1000")

	m.RecordTrade(ctx, &domain.Trade{NetPnL: -20})
	err := m.AllowEntry(ctx, 0, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDailyLossLimit)
	assert.InDelta(t, -60, m.DailyPnL(), 1e-9)
}

func TestAllowEntry_ZeroLimitsDisabled(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	m.RecordTrade(ctx, &domain.Trade{NetPnL: -500})
	assert.NoError(t, m.AllowEntry(ctx, 50, 100))
}

func TestPositionSize(t *testing.T) {
	m := newTestManager(t, Config{PositionSizePct: 0.2, MaxPositionSize: 3})

	// Signal fraction takes precedence over the default.
	assert.InDelta(t, 0.5, m.PositionSize(1000, 100, 0.05), 1e-9)

	// Default fraction when the signal carries none.
	assert.InDelta(t, 2.0, m.PositionSize(1000, 100, 0), 1e-9)

	// Hard cap in base asset units.
	assert.InDelta(t, 3.0, m.PositionSize(100000, 100, 0.9), 1e-9)

	// Degenerate inputs yield zero.
	assert.Zero(t, m.PositionSize(0, 100, 0.1))
	assert.Zero(t, m.PositionSize(1000, 0, 0.1))
}

func TestRecordTrade_Counters(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	m.RecordTrade(ctx, &domain.Trade{NetPnL: 10})
	m.RecordTrade(ctx, &domain.Trade{NetPnL: -4})

	assert.InDelta(t, 6, m.DailyPnL(), 1e-9)
	assert.Equal(t, 2, m.DailyTrades())
}
