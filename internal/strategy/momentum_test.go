package strategy

import (
	"context"
	"testing"
	"time"

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

func klinesFromCloses(closes []float64) []*domain.Kline {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		open := base.Add(time.Duration(i) * time.Minute)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Minute),
			Symbol:    "ETHUSDT",
			Interval:  "1m",
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
			IsFinal:   true,
		}
	}
	return klines
}

func newTestStrategy(t *testing.T, cfg MomentumConfig) *Momentum {
	t.Helper()
	if cfg.FastEMAPeriod == 0 {
		cfg = MomentumConfig{
			FastEMAPeriod: 3,
			SlowEMAPeriod: 5,
			RSIPeriod:     3,
			RSIFloor:      1,
			RSICeiling:    99,
			StopLossPct:   0.02,
			TakeProfitPct: 0.05,
		}
	}
	s, err := NewMomentum(cfg, &mockLogger{})
	require.NoError(t, err)
	return s
}

func TestNewMomentum_Validation(t *testing.T) {
	_, err := NewMomentum(MomentumConfig{FastEMAPeriod: 3, SlowEMAPeriod: 5, RSIPeriod: 3}, nil)
	assert.Error(t, err, "logger required")

	_, err = NewMomentum(MomentumConfig{FastEMAPeriod: 0, SlowEMAPeriod: 5, RSIPeriod: 3}, &mockLogger{})
	assert.Error(t, err, "periods must be positive")

	_, err = NewMomentum(MomentumConfig{FastEMAPeriod: 5, SlowEMAPeriod: 5, RSIPeriod: 3}, &mockLogger{})
	assert.Error(t, err, "fast must be below slow")

	_, err = NewMomentum(MomentumConfig{FastEMAPeriod: 3, SlowEMAPeriod: 5, RSIPeriod: 3}, &mockLogger{})
	assert.Error(t, err, "empty RSI band is a config error, not a default")

	_, err = NewMomentum(MomentumConfig{FastEMAPeriod: 3, SlowEMAPeriod: 5, RSIPeriod: 3, RSIFloor: 70, RSICeiling: 35}, &mockLogger{})
	assert.Error(t, err, "inverted RSI band")
}

// Decline followed by a sharp reversal: the fast EMA crosses above the slow
// EMA on the last candle.
var crossoverCloses = []float64{100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 105}

func TestShouldEnter_CrossoverFires(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{})
	klines := klinesFromCloses(crossoverCloses)

	sig := s.ShouldEnter(context.Background(), klines, 105)
	require.NotNil(t, sig)
	assert.Equal(t, domain.Long, sig.Side)
	assert.Equal(t, 0.02, sig.StopLossPct)
	assert.Equal(t, 0.05, sig.TakeProfitPct)
	assert.Zero(t, sig.EntryPrice, "market entry")
	assert.NotEmpty(t, sig.Reason)
}

func TestShouldEnter_NoCrossoverNoSignal(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{})

	// Steady uptrend: fast EMA already above slow, no fresh crossover.
	rising := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	assert.Nil(t, s.ShouldEnter(context.Background(), klinesFromCloses(rising), 110))
}

func TestShouldEnter_RSIFilterRejects(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{
		FastEMAPeriod: 3,
		SlowEMAPeriod: 5,
		RSIPeriod:     3,
		RSIFloor:      1,
		RSICeiling:    50, // reversal candle pushes RSI well above this
	})

	assert.Nil(t, s.ShouldEnter(context.Background(), klinesFromCloses(crossoverCloses), 105))
}

func TestShouldEnter_InsufficientData(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{})
	short := klinesFromCloses([]float64{100, 101, 102})
	assert.Nil(t, s.ShouldEnter(context.Background(), short, 102))
}

// Rally followed by a crash: the fast EMA crosses below the slow EMA on the
// last candle.
var breakdownCloses = []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 95}

func TestShouldExitEarly(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{})
	klines := klinesFromCloses(breakdownCloses)
	ctx := context.Background()

	// Profitable position surrenders to the bearish crossover.
	assert.True(t, s.ShouldExitEarly(ctx, klines, 95, 90, domain.Long))

	// Losing position is left to its protective stop.
	assert.False(t, s.ShouldExitEarly(ctx, klines, 95, 100, domain.Long))

	// No crossover, no early exit.
	rising := klinesFromCloses([]float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110})
	assert.False(t, s.ShouldExitEarly(ctx, rising, 110, 100, domain.Long))

	// Short positions are outside this strategy's remit.
	assert.False(t, s.ShouldExitEarly(ctx, klines, 95, 90, domain.Short))
}

func TestRequiredDataPoints(t *testing.T) {
	s := newTestStrategy(t, MomentumConfig{})
	assert.Equal(t, 10, s.RequiredDataPoints())

	wideRSI, err := NewMomentum(MomentumConfig{FastEMAPeriod: 3, SlowEMAPeriod: 5, RSIPeriod: 20, RSIFloor: 35, RSICeiling: 68}, &mockLogger{})
	require.NoError(t, err)
	assert.Equal(t, 25, wideRSI.RequiredDataPoints())
}
