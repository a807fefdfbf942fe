package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// Config holds configuration for the simulated exchange.
type Config struct {
	Pair            string  // e.g. "ETHUSDT"
	InitialCurrency float64 // starting quote balance
	InitialAsset    float64 // starting base balance
	FeeRate         float64 // trading fee as a decimal (0.0025 = 0.25%)
	CurrencyCode    string  // e.g. "USDT"
	AssetCode       string  // e.g. "ETH"
	Logger          ports.Logger
}

// Exchange simulates a trading venue for paper sessions and replays. It
// implements ports.Exchange and ports.PriceSink: resting orders are matched
// against every price tick, fills are fee-gated against the tracked
// balances, and a fill's balance mutation happens atomically with its
// status transition.
type Exchange struct {
	cfg    Config
	logger ports.Logger

	mu        sync.Mutex
	currency  float64
	asset     float64
	lastPrice float64
	orders    map[string]*domain.Order // resting (PENDING/OPEN) orders
	sequence  []string                 // order IDs in placement order, for deterministic matching
	filled    []*domain.Order
	rejected  []*domain.Order
	fees      map[string]float64 // orderID -> fee charged on fill
}

// New creates a simulated exchange.
func New(cfg Config) (*Exchange, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper exchange")
	}
	if cfg.FeeRate < 0 {
		return nil, fmt.Errorf("fee rate cannot be negative")
	}
	if cfg.InitialCurrency < 0 || cfg.InitialAsset < 0 {
		return nil, fmt.Errorf("initial balances cannot be negative")
	}
	return &Exchange{
		cfg:      cfg,
		logger:   cfg.Logger,
		currency: cfg.InitialCurrency,
		asset:    cfg.InitialAsset,
		orders:   make(map[string]*domain.Order),
		fees:     make(map[string]float64),
	}, nil
}

// UpdatePrice absorbs one price tick and matches every resting order
// against it, using the previous tick's price for crossing tests.
func (e *Exchange) UpdatePrice(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldPrice := e.lastPrice
	e.lastPrice = price

	for _, order := range e.restingLocked() {
		if fillPrice, ok := order.CheckFill(oldPrice, price); ok {
			e.fillLocked(order, fillPrice)
		}
	}
}

// restingLocked snapshots the resting orders in placement order so a tick
// matches them deterministically and fills can mutate the book.
func (e *Exchange) restingLocked() []*domain.Order {
	out := make([]*domain.Order, 0, len(e.orders))
	live := e.sequence[:0]
	for _, id := range e.sequence {
		o, ok := e.orders[id]
		if !ok {
			continue
		}
		live = append(live, id)
		if o.IsActive() {
			out = append(out, o)
		}
	}
	e.sequence = live
	return out
}

// fillLocked executes a fill: the fee-gated balance check, the balance
// mutation and the status transition happen inside one critical section so
// no reader can observe a half-updated state.
func (e *Exchange) fillLocked(order *domain.Order, fillPrice float64) {
	fee := order.Size * fillPrice * e.cfg.FeeRate

	if order.Side == domain.Buy {
		cost := order.Size*fillPrice + fee
		if cost > e.currency {
			e.rejectLocked(order, fmt.Sprintf("need %.2f, have %.2f", cost, e.currency))
			return
		}
		e.currency -= cost
		e.asset += order.Size
	} else {
		if order.Size > e.asset {
			e.rejectLocked(order, fmt.Sprintf("need %v asset, have %v", order.Size, e.asset))
			return
		}
		e.currency += order.Size*fillPrice - fee
		e.asset -= order.Size
	}

	_ = order.Fill(fillPrice, time.Now().UTC())
	e.fees[order.ID] = fee
	delete(e.orders, order.ID)
	e.filled = append(e.filled, order)

	e.logger.Debug(context.Background(), "Paper fill", map[string]interface{}{
		"orderID": order.ID, "side": order.Side, "size": order.Size,
		"price": fillPrice, "fee": fee,
	})
}

func (e *Exchange) rejectLocked(order *domain.Order, why string) {
	_ = order.Reject()
	delete(e.orders, order.ID)
	e.rejected = append(e.rejected, order)
	e.logger.Warn(context.Background(), "Paper order rejected: insufficient balance", map[string]interface{}{
		"orderID": order.ID, "side": order.Side, "detail": why,
	})
}

// PlaceOrder registers an order in the simulated book. MARKET orders fill
// immediately at the last observed price.
func (e *Exchange) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	if req.Size <= 0 {
		return "", fmt.Errorf("order size must be positive: %w", ports.ErrInvalidRequest)
	}
	switch req.Type {
	case domain.OrderTypeLimit:
		if req.Price <= 0 {
			return "", fmt.Errorf("limit order requires a price: %w", ports.ErrInvalidRequest)
		}
	case domain.OrderTypeStop:
		if req.StopPrice <= 0 {
			return "", fmt.Errorf("stop order requires a stop price: %w", ports.ErrInvalidRequest)
		}
	case domain.OrderTypeStopLimit:
		if req.Price <= 0 || req.StopPrice <= 0 {
			return "", fmt.Errorf("stop-limit order requires price and stop price: %w", ports.ErrInvalidRequest)
		}
	}

	order := domain.NewOrder(uuid.NewString(), req.Side, req.Type, req.Size)
	order.Price = req.Price
	order.StopPrice = req.StopPrice
	order.Status = domain.OrderStatusOpen

	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.ID] = order
	e.sequence = append(e.sequence, order.ID)

	if req.Type == domain.OrderTypeMarket && e.lastPrice > 0 {
		e.fillLocked(order, e.lastPrice)
		if order.Status == domain.OrderStatusRejected {
			return "", fmt.Errorf("market order rejected: %w", ports.ErrInsufficientFunds)
		}
	}
	return order.ID, nil
}

// CancelOrder cancels a resting order.
func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok || !order.IsActive() {
		return fmt.Errorf("order %s: %w", orderID, ports.ErrOrderNotFound)
	}
	if err := order.Cancel(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ports.ErrOrderCancelFailed)
	}
	delete(e.orders, orderID)
	return nil
}

// GetOrderStatus reports the state of a resting or settled order.
func (e *Exchange) GetOrderStatus(ctx context.Context, orderID string) (*ports.OrderStatusInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[orderID]
	if !ok {
		for _, o := range e.filled {
			if o.ID == orderID {
				order = o
				break
			}
		}
		for _, o := range e.rejected {
			if o.ID == orderID {
				order = o
				break
			}
		}
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrOrderNotFound)
	}
	return &ports.OrderStatusInfo{
		OrderID:     order.ID,
		Status:      order.Status,
		FilledSize:  order.FilledSize,
		FilledPrice: order.FilledPrice,
		Fees:        e.fees[order.ID],
		UpdatedAt:   order.FilledAt,
	}, nil
}

// GetBalance returns the simulated balance for an asset code.
func (e *Exchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch asset {
	case e.cfg.CurrencyCode:
		return e.currency, nil
	case e.cfg.AssetCode:
		return e.asset, nil
	}
	return 0, fmt.Errorf("asset %s: %w", asset, ports.ErrNotFound)
}

// Currency returns the current quote balance.
func (e *Exchange) Currency() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currency
}

// Asset returns the current base balance.
func (e *Exchange) Asset() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.asset
}

// PortfolioValue returns the total value in quote currency at the given
// price, or at the last observed price when price is 0.
func (e *Exchange) PortfolioValue(price float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if price <= 0 {
		price = e.lastPrice
	}
	return e.currency + e.asset*price
}

// OpenOrders returns the resting orders.
func (e *Exchange) OpenOrders() []*domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restingLocked()
}

// Reset restores the initial balances and clears the book.
func (e *Exchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currency = e.cfg.InitialCurrency
	e.asset = e.cfg.InitialAsset
	e.lastPrice = 0
	e.orders = make(map[string]*domain.Order)
	e.sequence = nil
	e.filled = nil
	e.rejected = nil
	e.fees = make(map[string]float64)
}
