package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition_Validation(t *testing.T) {
	valid := PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05}

	tests := []struct {
		name   string
		mutate func(*PositionParams)
	}{
		{"flat side", func(p *PositionParams) { p.Side = Flat }},
		{"empty side", func(p *PositionParams) { p.Side = "" }},
		{"zero entry price", func(p *PositionParams) { p.EntryPrice = 0 }},
		{"negative entry price", func(p *PositionParams) { p.EntryPrice = -1 }},
		{"zero size", func(p *PositionParams) { p.Size = 0 }},
		{"negative stop pct", func(p *PositionParams) { p.StopLossPct = -0.01 }},
		{"long stop above entry", func(p *PositionParams) { p.StopLossPrice = 101 }},
		{"long stop at entry", func(p *PositionParams) { p.StopLossPrice = 100 }},
		{"long target below entry", func(p *PositionParams) { p.TakeProfitPrice = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := NewPosition(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	// Short positions mirror the level constraints.
	_, err := NewPosition(PositionParams{Side: Short, EntryPrice: 100, Size: 1, StopLossPrice: 99})
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewPosition(PositionParams{Side: Short, EntryPrice: 100, Size: 1, TakeProfitPrice: 101})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewPosition(valid)
	assert.NoError(t, err)
}

func TestNewPosition_DerivesLevelsFromPercentages(t *testing.T) {
	long, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05})
	require.NoError(t, err)
	assert.InDelta(t, 98.0, long.StopLossPrice, 1e-9)
	assert.InDelta(t, 105.0, long.TakeProfitPrice, 1e-9)
	assert.Equal(t, 100.0, long.HighestPrice)

	short, err := NewPosition(PositionParams{Side: Short, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05})
	require.NoError(t, err)
	assert.InDelta(t, 102.0, short.StopLossPrice, 1e-9)
	assert.InDelta(t, 95.0, short.TakeProfitPrice, 1e-9)
	assert.Equal(t, 100.0, short.LowestPrice)
}

func TestNewPosition_ExplicitLevelsKeptWithoutPercentages(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPrice: 97.5, TakeProfitPrice: 110})
	require.NoError(t, err)
	assert.Equal(t, 97.5, p.StopLossPrice)
	assert.Equal(t, 110.0, p.TakeProfitPrice)
}

func TestFill_RederivesLevelsFromFillPrice(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05})
	require.NoError(t, err)

	// Slippage: requested 100, filled at 102. Levels follow the fill.
	p.Fill(102)
	assert.True(t, p.IsFilled)
	assert.Equal(t, 102.0, p.EntryPrice)
	assert.InDelta(t, 102*0.98, p.StopLossPrice, 1e-9)
	assert.InDelta(t, 102*1.05, p.TakeProfitPrice, 1e-9)
	assert.Equal(t, 102.0, p.HighestPrice)
}

func TestUpdatePrice_IgnoredUntilFilled(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02})
	require.NoError(t, err)
	assert.Equal(t, ExitReasonNone, p.UpdatePrice(50))
}

func TestUpdatePrice_StopAndTargetTriggers(t *testing.T) {
	newFilled := func(t *testing.T, side PositionSide) *Position {
		t.Helper()
		p, err := NewPosition(PositionParams{Side: side, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05})
		require.NoError(t, err)
		p.Fill(100)
		return p
	}

	long := newFilled(t, Long)
	assert.Equal(t, ExitReasonNone, long.UpdatePrice(101))
	assert.Equal(t, ExitReasonNone, long.UpdatePrice(98.01))
	assert.Equal(t, ExitReasonStopLoss, long.UpdatePrice(98))

	long = newFilled(t, Long)
	assert.Equal(t, ExitReasonTakeProfit, long.UpdatePrice(105))

	short := newFilled(t, Short)
	assert.Equal(t, ExitReasonNone, short.UpdatePrice(101.99))
	assert.Equal(t, ExitReasonStopLoss, short.UpdatePrice(102))

	short = newFilled(t, Short)
	assert.Equal(t, ExitReasonTakeProfit, short.UpdatePrice(95))
}

// A tick that satisfies both levels resolves to the stop: the stop check
// runs first so replays settle adverse fills deterministically.
func TestUpdatePrice_StopWinsOverTarget(t *testing.T) {
	p := &Position{
		Side:            Long,
		EntryPrice:      100,
		Size:            1,
		IsFilled:        true,
		StopLossPrice:   100,
		TakeProfitPrice: 95,
	}
	assert.Equal(t, ExitReasonStopLoss, p.UpdatePrice(96))
}

func TestUpdatePrice_TrailingStopRatchet(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TrailingStopPct: 0.05})
	require.NoError(t, err)
	p.Fill(100)
	assert.InDelta(t, 98.0, p.StopLossPrice, 1e-9)

	// Price advance ratchets the stop in the position's favor.
	assert.Equal(t, ExitReasonNone, p.UpdatePrice(110))
	assert.Equal(t, 110.0, p.HighestPrice)
	assert.InDelta(t, 104.5, p.StopLossPrice, 1e-9)

	// Pullback never loosens the stop.
	assert.Equal(t, ExitReasonNone, p.UpdatePrice(106))
	assert.InDelta(t, 104.5, p.StopLossPrice, 1e-9)
	assert.Equal(t, 110.0, p.HighestPrice)

	// Falling through the ratcheted stop exits as TRAILING_STOP.
	assert.Equal(t, ExitReasonTrailingStop, p.UpdatePrice(104.5))
}

func TestUpdatePrice_TrailingStopShort(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Short, EntryPrice: 100, Size: 1, TrailingStopPct: 0.05})
	require.NoError(t, err)
	p.Fill(100)

	assert.Equal(t, ExitReasonNone, p.UpdatePrice(90))
	assert.Equal(t, 90.0, p.LowestPrice)
	assert.InDelta(t, 94.5, p.StopLossPrice, 1e-9)

	assert.Equal(t, ExitReasonNone, p.UpdatePrice(93))
	assert.InDelta(t, 94.5, p.StopLossPrice, 1e-9)

	assert.Equal(t, ExitReasonTrailingStop, p.UpdatePrice(94.5))
}

func TestClose_OneShot(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 2, StopLossPct: 0.02, TakeProfitPct: 0.05})
	require.NoError(t, err)
	p.Fill(100)

	require.NoError(t, p.Close(105, ExitReasonTakeProfit))
	assert.True(t, p.IsClosed())
	assert.Equal(t, 105.0, p.ExitPrice)
	assert.Equal(t, ExitReasonTakeProfit, p.ExitReason)

	// The second close fails and leaves the first exit untouched.
	err = p.Close(90, ExitReasonStopLoss)
	require.Error(t, err)
	assert.Equal(t, 105.0, p.ExitPrice)
	assert.Equal(t, ExitReasonTakeProfit, p.ExitReason)

	// A closed position ignores further ticks.
	assert.Equal(t, ExitReasonNone, p.UpdatePrice(50))
}

func TestRealizedPnL(t *testing.T) {
	long, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 2, TakeProfitPct: 0.05})
	require.NoError(t, err)
	assert.Zero(t, long.RealizedPnL(), "no P&L before fill")
	long.Fill(100)
	assert.Zero(t, long.RealizedPnL(), "no P&L before close")
	require.NoError(t, long.Close(105, ExitReasonTakeProfit))
	assert.InDelta(t, 10.0, long.RealizedPnL(), 1e-9)
	assert.InDelta(t, 5.0, long.PnLPercent(), 1e-9)

	short, err := NewPosition(PositionParams{Side: Short, EntryPrice: 100, Size: 2, TakeProfitPct: 0.05})
	require.NoError(t, err)
	short.Fill(100)
	require.NoError(t, short.Close(95, ExitReasonTakeProfit))
	assert.InDelta(t, 10.0, short.RealizedPnL(), 1e-9)
}

func TestRiskRewardRatio(t *testing.T) {
	p, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, StopLossPct: 0.02, TakeProfitPct: 0.05})
	require.NoError(t, err)

	rr, ok := p.RiskRewardRatio()
	require.True(t, ok)
	assert.InDelta(t, 2.5, rr, 1e-9)

	noStop, err := NewPosition(PositionParams{Side: Long, EntryPrice: 100, Size: 1, TakeProfitPct: 0.05})
	require.NoError(t, err)
	_, ok = noStop.RiskRewardRatio()
	assert.False(t, ok)
}
