package domain

import (
	"fmt"
	"time"
)

// Order represents a single exchange order tracked through its lifecycle
// PENDING -> OPEN -> {FILLED, CANCELLED, REJECTED, EXPIRED}.
type Order struct {
	ID        string
	Side      OrderSide
	Type      OrderType
	Size      float64
	Price     float64 // limit price, required for LIMIT and STOP_LIMIT
	StopPrice float64 // trigger price, required for STOP and STOP_LIMIT

	Status      OrderStatus
	FilledPrice float64
	FilledSize  float64
	CreatedAt   time.Time
	FilledAt    time.Time
}

// NewOrder creates an order in PENDING state.
func NewOrder(id string, side OrderSide, typ OrderType, size float64) *Order {
	return &Order{
		ID:        id,
		Side:      side,
		Type:      typ,
		Size:      size,
		Status:    OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Activate moves the order from PENDING to OPEN.
func (o *Order) Activate() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("cannot activate order %s in status %s", o.ID, o.Status)
	}
	o.Status = OrderStatusOpen
	return nil
}

// IsActive reports whether the order can still fill.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusOpen
}

// transition enforces that terminal states are final.
func (o *Order) transition(to OrderStatus) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("order %s is %s, cannot transition to %s", o.ID, o.Status, to)
	}
	o.Status = to
	return nil
}

// Fill marks the order as fully filled at the given price.
func (o *Order) Fill(price float64, at time.Time) error {
	if err := o.transition(OrderStatusFilled); err != nil {
		return err
	}
	o.FilledPrice = price
	o.FilledSize = o.Size
	o.FilledAt = at
	return nil
}

// Cancel marks the order as cancelled.
func (o *Order) Cancel() error { return o.transition(OrderStatusCancelled) }

// Reject marks the order as rejected by the exchange.
func (o *Order) Reject() error { return o.transition(OrderStatusRejected) }

// Expire marks the order as expired.
func (o *Order) Expire() error { return o.transition(OrderStatusExpired) }

// CheckFill evaluates the order's fill condition against one price tick and
// returns the execution price when the order would fill.
//
// Semantics per order type:
//   - MARKET fills unconditionally at newPrice.
//   - LIMIT fills at the limit price itself (a resting maker order, no
//     slippage): BUY when newPrice <= limit, SELL when newPrice >= limit.
//   - STOP uses a crossing test, not a level test: BUY triggers when
//     oldPrice < stop <= newPrice, SELL when oldPrice > stop >= newPrice,
//     and fills at newPrice (stop-market execution, slippage possible).
//     A price already past the stop before this tick must not re-trigger.
//   - STOP_LIMIT uses the same crossing test; on trigger the order mutates
//     into a LIMIT order in place and is re-evaluated against the limit
//     rule with the same tick.
func (o *Order) CheckFill(oldPrice, newPrice float64) (float64, bool) {
	if !o.IsActive() {
		return 0, false
	}

	switch o.Type {
	case OrderTypeMarket:
		return newPrice, true

	case OrderTypeLimit:
		if o.Side == Buy && newPrice <= o.Price {
			return o.Price, true
		}
		if o.Side == Sell && newPrice >= o.Price {
			return o.Price, true
		}

	case OrderTypeStop:
		if o.crossed(oldPrice, newPrice) {
			return newPrice, true
		}

	case OrderTypeStopLimit:
		if o.crossed(oldPrice, newPrice) {
			o.Type = OrderTypeLimit
			o.Status = OrderStatusOpen
			return o.CheckFill(oldPrice, newPrice)
		}
	}

	return 0, false
}

// crossed reports whether the price crossed the stop trigger on this tick.
// Inclusive on the new price so a jump over the level still triggers.
// oldPrice 0 means no prior tick exists; a crossing needs two real prices,
// otherwise a resting BUY stop would fire on the first tick it ever sees.
func (o *Order) crossed(oldPrice, newPrice float64) bool {
	if oldPrice <= 0 {
		return false
	}
	if o.Side == Buy {
		return oldPrice < o.StopPrice && o.StopPrice <= newPrice
	}
	return oldPrice > o.StopPrice && o.StopPrice >= newPrice
}
