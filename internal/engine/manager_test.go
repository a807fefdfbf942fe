package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

// fakeExchange records placements and cancellations so tests can assert on
// the exact order flow the manager produced.
type fakeExchange struct {
	placed    []ports.OrderRequest
	placedIDs []string
	cancelled []string

	failPlace      bool
	cancelNotFound bool
	nextID         int
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req ports.OrderRequest) (string, error) {
	if f.failPlace {
		return "", ports.ErrInvalidRequest
	}
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	f.placed = append(f.placed, req)
	f.placedIDs = append(f.placedIDs, id)
	return id, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	if f.cancelNotFound {
		return ports.ErrOrderNotFound
	}
	return nil
}

func (f *fakeExchange) GetOrderStatus(_ context.Context, orderID string) (*ports.OrderStatusInfo, error) {
	return &ports.OrderStatusInfo{OrderID: orderID, Status: domain.OrderStatusOpen}, nil
}

func (f *fakeExchange) GetBalance(context.Context, string) (float64, error) { return 0, nil }

func newManager(t *testing.T, exch ports.Exchange) *OrderManager {
	t.Helper()
	m, err := NewOrderManager(Config{
		Symbol:   "ETHUSDT",
		FeeRate:  0.001,
		Exchange: exch,
		Logger:   nopLogger{},
	})
	require.NoError(t, err)
	return m
}

func marketLong(size, entry float64) BracketParams {
	return BracketParams{
		Side:          domain.Long,
		Size:          size,
		EntryPrice:    entry,
		StopLossPct:   0.02,
		TakeProfitPct: 0.05,
		OrderType:     domain.OrderTypeMarket,
	}
}

func TestNewOrderManager_Validation(t *testing.T) {
	_, err := NewOrderManager(Config{Logger: nopLogger{}})
	assert.Error(t, err)
	_, err = NewOrderManager(Config{Exchange: &fakeExchange{}})
	assert.Error(t, err)
	_, err = NewOrderManager(Config{Exchange: &fakeExchange{}, Logger: nopLogger{}, FeeRate: -1})
	assert.Error(t, err)
}

func TestOpenBracket_PlacesEntry(t *testing.T) {
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(context.Background(), marketLong(1, 100))
	require.NoError(t, err)

	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Buy, exch.placed[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, exch.placed[0].Type)
	assert.Len(t, m.ActiveBrackets(), 1)
	assert.False(t, b.Position.IsFilled)
	assert.True(t, b.EntryOrder.IsActive())
	assert.Len(t, m.PendingEntries(), 1)
	assert.Empty(t, m.OpenPositions())
}

func TestOpenBracket_PlacementFailureRegistersNothing(t *testing.T) {
	exch := &fakeExchange{failPlace: true}
	m := newManager(t, exch)

	_, err := m.OpenBracket(context.Background(), marketLong(1, 100))
	require.Error(t, err)
	assert.Empty(t, m.ActiveBrackets())
}

func TestUpdate_MarketEntryFillPlacesProtectivePair(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)

	m.Update(ctx, 100)

	assert.True(t, b.Position.IsFilled)
	assert.Equal(t, 100.0, b.Position.EntryPrice)
	require.Len(t, exch.placed, 3, "entry + stop loss + take profit")

	sl := exch.placed[1]
	assert.Equal(t, domain.OrderTypeStop, sl.Type)
	assert.Equal(t, domain.Sell, sl.Side)
	assert.InDelta(t, 98.0, sl.StopPrice, 1e-9)

	tp := exch.placed[2]
	assert.Equal(t, domain.OrderTypeLimit, tp.Type)
	assert.Equal(t, domain.Sell, tp.Side)
	assert.InDelta(t, 105.0, tp.Price, 1e-9)

	require.NotNil(t, b.StopLossOrder)
	require.NotNil(t, b.TakeProfitOrder)
	assert.Len(t, m.OpenPositions(), 1)
}

func TestUpdate_TakeProfitExitCancelsStopSibling(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	// Tick through the target.
	m.Update(ctx, 106)

	assert.True(t, b.IsComplete())
	assert.Equal(t, domain.ExitReasonTakeProfit, b.Position.ExitReason)
	assert.Equal(t, 106.0, b.Position.ExitPrice)
	assert.Equal(t, domain.OrderStatusFilled, b.TakeProfitOrder.Status)
	assert.Equal(t, domain.OrderStatusCancelled, b.StopLossOrder.Status)
	assert.Equal(t, []string{b.StopLossOrder.ID}, exch.cancelled)
	assert.Empty(t, m.ActiveBrackets())
	assert.Len(t, m.ClosedBrackets(), 1)

	trades := m.DrainTrades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "ETHUSDT", tr.Symbol)
	assert.InDelta(t, 6.0, tr.GrossPnL, 1e-9)
	assert.InDelta(t, 0.1+0.106, tr.Fees, 1e-9)
	assert.InDelta(t, 6.0-0.206, tr.NetPnL, 1e-9)
	assert.Equal(t, domain.ExitReasonTakeProfit, tr.ExitReason)

	assert.Empty(t, m.DrainTrades(), "drain clears the pending queue")

	s := m.Stats()
	assert.Equal(t, 1, s.TotalTrades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1.0, s.WinRate)
	assert.Equal(t, 1, s.TakeProfitExits)
	assert.Equal(t, 0, s.StopLossExits)
}

func TestUpdate_StopLossExitCancelsTargetSibling(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, marketLong(2, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	m.Update(ctx, 97)

	assert.Equal(t, domain.ExitReasonStopLoss, b.Position.ExitReason)
	assert.Equal(t, domain.OrderStatusFilled, b.StopLossOrder.Status)
	assert.Equal(t, domain.OrderStatusCancelled, b.TakeProfitOrder.Status)
	assert.Equal(t, []string{b.TakeProfitOrder.ID}, exch.cancelled)

	s := m.Stats()
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.StopLossExits)
	assert.Equal(t, 0.0, s.WinRate)
	assert.Less(t, s.TotalPnL, 0.0)
}

func TestUpdate_LimitEntryRestsUntilTouched(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, BracketParams{
		Side:          domain.Long,
		Size:          1,
		EntryPrice:    99,
		StopLossPct:   0.02,
		TakeProfitPct: 0.05,
		OrderType:     domain.OrderTypeLimit,
	})
	require.NoError(t, err)

	m.Update(ctx, 100)
	assert.False(t, b.Position.IsFilled, "price above buy limit must not fill")
	assert.Len(t, m.PendingEntries(), 1)

	m.Update(ctx, 98.5)
	assert.True(t, b.Position.IsFilled)
	assert.Equal(t, 99.0, b.Position.EntryPrice, "maker fill at the limit price")
	assert.InDelta(t, 99*0.98, b.Position.StopLossPrice, 1e-9)
	assert.InDelta(t, 99*1.05, b.Position.TakeProfitPrice, 1e-9)
}

func TestUpdate_EntryFillAndExitOnSameTick(t *testing.T) {
	// A fill whose very first tick already breaches the stop closes the
	// bracket within the same Update pass.
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, BracketParams{
		Side:          domain.Long,
		Size:          1,
		EntryPrice:    105,
		StopLossPct:   0.02,
		TakeProfitPct: 0.05,
		OrderType:     domain.OrderTypeLimit,
	})
	require.NoError(t, err)

	// Tick far below the limit: fills at 105 but 95 is through the stop.
	m.Update(ctx, 95)
	assert.True(t, b.IsComplete())
	assert.Equal(t, domain.ExitReasonStopLoss, b.Position.ExitReason)
}

func TestCancelEntry(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, BracketParams{
		Side: domain.Long, Size: 1, EntryPrice: 90,
		StopLossPct: 0.02, OrderType: domain.OrderTypeLimit,
	})
	require.NoError(t, err)

	require.NoError(t, m.CancelEntry(ctx, b))
	assert.Empty(t, m.ActiveBrackets())
	assert.Empty(t, m.ClosedBrackets(), "a cancelled entry produced no trade")
	assert.Equal(t, []string{b.EntryOrder.ID}, exch.cancelled)
	assert.Empty(t, m.DrainTrades())
}

func TestCancelEntry_FilledEntryRefused(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &fakeExchange{})

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	assert.Error(t, m.CancelEntry(ctx, b))
	assert.Len(t, m.ActiveBrackets(), 1)
}

func TestCloseAll_SkipsUnfilledEntries(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	filled, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	pending, err := m.OpenBracket(ctx, BracketParams{
		Side: domain.Long, Size: 1, EntryPrice: 50,
		StopLossPct: 0.02, OrderType: domain.OrderTypeLimit,
	})
	require.NoError(t, err)

	m.Update(ctx, 100)

	m.CloseAll(ctx, 101, domain.ExitReasonManual)

	assert.True(t, filled.IsComplete())
	assert.Equal(t, domain.ExitReasonManual, filled.Position.ExitReason)
	assert.False(t, pending.Position.IsFilled)
	assert.Len(t, m.PendingEntries(), 1)
	assert.Len(t, m.ClosedBrackets(), 1)
}

func TestCloseBracket_StrategyExitCancelsBothProtectiveOrders(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	m.CloseBracket(ctx, b, 103, domain.ExitReasonStrategyExit)

	assert.Equal(t, domain.OrderStatusCancelled, b.StopLossOrder.Status)
	assert.Equal(t, domain.OrderStatusCancelled, b.TakeProfitOrder.Status)
	assert.ElementsMatch(t, []string{b.StopLossOrder.ID, b.TakeProfitOrder.ID}, exch.cancelled)
}

func TestCloseBracket_SiblingAlreadyGoneOnExchange(t *testing.T) {
	ctx := context.Background()
	exch := &fakeExchange{cancelNotFound: true}
	m := newManager(t, exch)

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	// The exchange reporting the sibling gone is tolerated; the bracket
	// still settles locally.
	m.Update(ctx, 106)
	assert.True(t, b.IsComplete())
	assert.Len(t, m.ClosedBrackets(), 1)
}

func TestCloseBracket_SecondCloseIgnored(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &fakeExchange{})

	b, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)

	m.CloseBracket(ctx, b, 106, domain.ExitReasonTakeProfit)
	m.CloseBracket(ctx, b, 90, domain.ExitReasonStopLoss)

	assert.Equal(t, domain.ExitReasonTakeProfit, b.Position.ExitReason)
	assert.Len(t, m.ClosedBrackets(), 1)
	assert.Len(t, m.DrainTrades(), 1)
}

func TestStats_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &fakeExchange{})

	// Winner: 100 -> 106.
	w, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)
	m.Update(ctx, 106)
	require.True(t, w.IsComplete())

	// Loser: 100 -> 97.
	l, err := m.OpenBracket(ctx, marketLong(1, 100))
	require.NoError(t, err)
	m.Update(ctx, 100)
	m.Update(ctx, 97)
	require.True(t, l.IsComplete())

	s := m.Stats()
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 0.5, s.WinRate)
	assert.Equal(t, 1, s.TakeProfitExits)
	assert.Equal(t, 1, s.StopLossExits)
	assert.InDelta(t, s.TotalPnL/2, s.AvgPnL, 1e-9)
}
