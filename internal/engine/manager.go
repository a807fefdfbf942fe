package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// Config holds configuration for the order manager.
type Config struct {
	Symbol   string
	FeeRate  float64 // trading fee as a decimal (0.0025 = 0.25%)
	Exchange ports.Exchange
	Logger   ports.Logger
}

// OrderManager owns the collection of brackets for one instrument. It
// drives per-tick evaluation: entry-fill detection, stop/target checks and
// cancellation of orphaned protective orders.
//
// A bracket lives in exactly one of the active or closed sets. The manager
// is not safe for concurrent use; callers serialize ticks (the orchestrator
// holds one mutex across each tick).
type OrderManager struct {
	cfg    Config
	logger ports.Logger

	active []*Bracket
	closed []*Bracket

	// Trades recorded since the last Drain, waiting to be persisted.
	pendingTrades []*domain.Trade
}

// NewOrderManager creates an order manager.
func NewOrderManager(cfg Config) (*OrderManager, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange is required for order manager")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for order manager")
	}
	if cfg.FeeRate < 0 {
		return nil, fmt.Errorf("fee rate cannot be negative")
	}
	return &OrderManager{cfg: cfg, logger: cfg.Logger}, nil
}

// BracketParams describes a new bracket to open.
type BracketParams struct {
	Side            domain.PositionSide
	Size            float64
	EntryPrice      float64
	StopLossPct     float64
	TakeProfitPct   float64
	UseTrailingStop bool
	OrderType       domain.OrderType // MARKET or LIMIT entry
}

// OpenBracket constructs an un-filled Position and its entry order, submits
// the entry to the exchange and registers the bracket in the active set.
// If submission fails, nothing is registered and the error is returned; the
// caller may retry with adjusted parameters.
func (m *OrderManager) OpenBracket(ctx context.Context, p BracketParams) (*Bracket, error) {
	trailingPct := 0.0
	if p.UseTrailingStop {
		trailingPct = p.StopLossPct
	}
	pos, err := domain.NewPosition(domain.PositionParams{
		Side:            p.Side,
		EntryPrice:      p.EntryPrice,
		Size:            p.Size,
		StopLossPct:     p.StopLossPct,
		TakeProfitPct:   p.TakeProfitPct,
		TrailingStopPct: trailingPct,
	})
	if err != nil {
		return nil, err
	}

	req := ports.OrderRequest{
		Symbol: m.cfg.Symbol,
		Side:   p.Side.EntrySide(),
		Type:   p.OrderType,
		Size:   p.Size,
	}
	if p.OrderType == domain.OrderTypeLimit {
		req.Price = p.EntryPrice
	}

	orderID, err := m.cfg.Exchange.PlaceOrder(ctx, req)
	if err != nil {
		m.logger.Error(ctx, err, "OpenBracket: entry order placement failed", map[string]interface{}{
			"side": p.Side, "size": p.Size, "entryPrice": p.EntryPrice,
		})
		return nil, fmt.Errorf("entry order placement failed: %w", err)
	}

	entry := domain.NewOrder(orderID, req.Side, p.OrderType, p.Size)
	entry.Price = req.Price
	if err := entry.Activate(); err != nil {
		return nil, err
	}
	pos.EntryOrderID = orderID

	b := &Bracket{Position: pos, EntryOrder: entry}
	m.active = append(m.active, b)

	m.logger.Info(ctx, "Entry order placed", map[string]interface{}{
		"orderID": orderID, "side": req.Side, "type": p.OrderType,
		"size": p.Size, "entryPrice": p.EntryPrice,
	})
	return b, nil
}

// ConfirmEntryFill records an entry fill the exchange itself reported (a
// live adapter that waited on the order) rather than one inferred from a
// tick. No-op when the entry already filled or is no longer active.
func (m *OrderManager) ConfirmEntryFill(ctx context.Context, b *Bracket, fillPrice float64) {
	if b.Position.IsFilled || !b.EntryOrder.IsActive() {
		return
	}
	m.onEntryFilled(ctx, b, fillPrice)
}

// Update advances every active bracket by one tick, in insertion order:
// un-filled entries are checked against their fill condition, filled
// positions against their stop/target levels.
func (m *OrderManager) Update(ctx context.Context, currentPrice float64) {
	// Copy so closing a bracket can mutate the active set mid-iteration.
	for _, b := range append([]*Bracket(nil), m.active...) {
		if b.IsComplete() {
			continue
		}

		if !b.Position.IsFilled && b.EntryOrder != nil {
			if fillPrice, ok := m.checkEntryFill(b, currentPrice); ok {
				m.onEntryFilled(ctx, b, fillPrice)
			}
		}

		if b.Position.IsFilled {
			if reason := b.Position.UpdatePrice(currentPrice); reason != domain.ExitReasonNone {
				m.CloseBracket(ctx, b, currentPrice, reason)
			}
		}
	}
}

// checkEntryFill evaluates the entry order's fill condition at the current
// price: MARKET entries always fill, LIMIT entries by level test and at the
// limit price (resting maker order, no slippage).
func (m *OrderManager) checkEntryFill(b *Bracket, price float64) (float64, bool) {
	entry := b.EntryOrder
	if !entry.IsActive() {
		return 0, false
	}
	switch entry.Type {
	case domain.OrderTypeMarket:
		return price, true
	case domain.OrderTypeLimit:
		if entry.Side == domain.Buy && price <= entry.Price {
			return entry.Price, true
		}
		if entry.Side == domain.Sell && price >= entry.Price {
			return entry.Price, true
		}
	}
	return 0, false
}

// onEntryFilled corrects the position to the actual fill price, re-derives
// its stop/target levels from that price and places the protective pair.
func (m *OrderManager) onEntryFilled(ctx context.Context, b *Bracket, fillPrice float64) {
	now := time.Now().UTC()
	if err := b.EntryOrder.Fill(fillPrice, now); err != nil {
		m.logger.Error(ctx, err, "onEntryFilled: entry order in unexpected state", map[string]interface{}{"orderID": b.EntryOrder.ID})
		return
	}
	b.Position.Fill(fillPrice)

	m.logger.Info(ctx, "Entry filled", map[string]interface{}{
		"orderID": b.EntryOrder.ID, "fillPrice": fillPrice,
		"stopLoss": b.Position.StopLossPrice, "takeProfit": b.Position.TakeProfitPrice,
	})

	m.placeProtectiveOrders(ctx, b)
}

// placeProtectiveOrders submits the stop-loss (STOP) and take-profit
// (LIMIT) orders sized and priced at the corrected levels. Placement
// failures are logged, not fatal: the engine still enforces the levels
// itself on every tick.
func (m *OrderManager) placeProtectiveOrders(ctx context.Context, b *Bracket) {
	pos := b.Position
	exitSide := pos.Side.ExitSide()

	if pos.StopLossPrice > 0 {
		id, err := m.cfg.Exchange.PlaceOrder(ctx, ports.OrderRequest{
			Symbol:    m.cfg.Symbol,
			Side:      exitSide,
			Type:      domain.OrderTypeStop,
			Size:      pos.Size,
			StopPrice: pos.StopLossPrice,
		})
		if err != nil {
			m.logger.Error(ctx, err, "Failed to place stop loss order", map[string]interface{}{"stopPrice": pos.StopLossPrice})
		} else {
			sl := domain.NewOrder(id, exitSide, domain.OrderTypeStop, pos.Size)
			sl.StopPrice = pos.StopLossPrice
			sl.Status = domain.OrderStatusOpen
			b.StopLossOrder = sl
			pos.StopLossOrderID = id
		}
	}

	if pos.TakeProfitPrice > 0 {
		id, err := m.cfg.Exchange.PlaceOrder(ctx, ports.OrderRequest{
			Symbol: m.cfg.Symbol,
			Side:   exitSide,
			Type:   domain.OrderTypeLimit,
			Size:   pos.Size,
			Price:  pos.TakeProfitPrice,
		})
		if err != nil {
			m.logger.Error(ctx, err, "Failed to place take profit order", map[string]interface{}{"price": pos.TakeProfitPrice})
		} else {
			tp := domain.NewOrder(id, exitSide, domain.OrderTypeLimit, pos.Size)
			tp.Price = pos.TakeProfitPrice
			tp.Status = domain.OrderStatusOpen
			b.TakeProfitOrder = tp
			pos.TakeProfitOrderID = id
		}
	}
}

// CloseBracket settles a bracket: the position is closed once, the
// triggered protective order is marked filled, its sibling is cancelled in
// the same step, net P&L is computed and the bracket moves from the active
// set to the closed set.
func (m *OrderManager) CloseBracket(ctx context.Context, b *Bracket, exitPrice float64, reason domain.ExitReason) {
	pos := b.Position
	if err := pos.Close(exitPrice, reason); err != nil {
		m.logger.Warn(ctx, "CloseBracket called on closed position", map[string]interface{}{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	switch {
	case reason.IsStop():
		if b.StopLossOrder != nil {
			_ = b.StopLossOrder.Fill(exitPrice, now)
		}
	case reason == domain.ExitReasonTakeProfit:
		if b.TakeProfitOrder != nil {
			_ = b.TakeProfitOrder.Fill(exitPrice, now)
		}
	default:
		// Exit not driven by a protective order (strategy, manual,
		// timeout): both protective orders are orphaned.
		m.cancelProtective(ctx, b, b.StopLossOrder)
		m.cancelProtective(ctx, b, b.TakeProfitOrder)
	}

	if sibling := b.protectiveSibling(reason); sibling != nil {
		m.cancelProtective(ctx, b, sibling)
	}

	gross := pos.RealizedPnL()
	entryFee := pos.EntryPrice * pos.Size * m.cfg.FeeRate
	exitFee := exitPrice * pos.Size * m.cfg.FeeRate
	net := gross - entryFee - exitFee

	trade := &domain.Trade{
		Symbol:     m.cfg.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       pos.Size,
		GrossPnL:   gross,
		Fees:       entryFee + exitFee,
		NetPnL:     net,
		EntryTime:  pos.EntryTime,
		ExitTime:   pos.ExitTime,
		ExitReason: reason,
	}
	m.pendingTrades = append(m.pendingTrades, trade)

	m.removeActive(b)
	m.closed = append(m.closed, b)

	m.logger.Info(ctx, "Bracket closed", map[string]interface{}{
		"reason": reason, "entry": pos.EntryPrice, "exit": exitPrice,
		"grossPnL": gross, "netPnL": net,
	})
}

// cancelProtective cancels a protective order locally and on the exchange.
func (m *OrderManager) cancelProtective(ctx context.Context, b *Bracket, order *domain.Order) {
	if order == nil || !order.IsActive() {
		return
	}
	if err := order.Cancel(); err != nil {
		m.logger.Warn(ctx, "Protective order cancel skipped", map[string]interface{}{"orderID": order.ID, "error": err.Error()})
		return
	}
	if err := m.cfg.Exchange.CancelOrder(ctx, order.ID); err != nil {
		// Already filled or gone on the exchange side is acceptable here;
		// anything else is surfaced loudly for manual follow-up.
		if errors.Is(err, ports.ErrOrderNotFound) {
			m.logger.Debug(ctx, "Protective order already gone on exchange", map[string]interface{}{"orderID": order.ID})
			return
		}
		m.logger.Error(ctx, err, "Failed to cancel protective order on exchange", map[string]interface{}{"orderID": order.ID})
	}
}

// CancelEntry cancels a bracket whose entry has not filled and discards it.
// The bracket never reaches the closed set; it produced no trade.
func (m *OrderManager) CancelEntry(ctx context.Context, b *Bracket) error {
	if b.Position.IsFilled {
		return fmt.Errorf("entry already filled for order %s", b.EntryOrder.ID)
	}
	if err := b.EntryOrder.Cancel(); err != nil {
		return err
	}
	if err := m.cfg.Exchange.CancelOrder(ctx, b.EntryOrder.ID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		m.logger.Error(ctx, err, "Failed to cancel entry order on exchange", map[string]interface{}{"orderID": b.EntryOrder.ID})
		return err
	}
	m.removeActive(b)
	m.logger.Info(ctx, "Entry cancelled, bracket discarded", map[string]interface{}{"orderID": b.EntryOrder.ID})
	return nil
}

// CloseAll force-closes every filled bracket at the given price. Un-filled
// brackets are left as-is; their entries can be cancelled separately.
func (m *OrderManager) CloseAll(ctx context.Context, currentPrice float64, reason domain.ExitReason) {
	for _, b := range append([]*Bracket(nil), m.active...) {
		if b.Position.IsFilled && !b.IsComplete() {
			m.CloseBracket(ctx, b, currentPrice, reason)
		}
	}
}

func (m *OrderManager) removeActive(b *Bracket) {
	for i, cur := range m.active {
		if cur == b {
			m.active = append(m.active[:i], m.active[i+1:]...)
			return
		}
	}
}

// OpenPositions returns the positions of filled, still-active brackets.
func (m *OrderManager) OpenPositions() []*domain.Position {
	var out []*domain.Position
	for _, b := range m.active {
		if b.Position.IsFilled {
			out = append(out, b.Position)
		}
	}
	return out
}

// PendingEntries returns active brackets whose entry has not filled yet.
func (m *OrderManager) PendingEntries() []*Bracket {
	var out []*Bracket
	for _, b := range m.active {
		if !b.Position.IsFilled {
			out = append(out, b)
		}
	}
	return out
}

// ActiveBrackets returns the active set in insertion order.
func (m *OrderManager) ActiveBrackets() []*Bracket { return m.active }

// ClosedBrackets returns the append-only closed set.
func (m *OrderManager) ClosedBrackets() []*Bracket { return m.closed }

// DrainTrades returns the trades recorded since the previous call and
// clears the pending queue. The caller persists them.
func (m *OrderManager) DrainTrades() []*domain.Trade {
	out := m.pendingTrades
	m.pendingTrades = nil
	return out
}
