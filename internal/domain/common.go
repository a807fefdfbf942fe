package domain

// PositionSide represents the direction of a position.
type PositionSide string

const (
	Long  PositionSide = "LONG"  // Bought asset, profits when price rises
	Short PositionSide = "SHORT" // Sold asset, profits when price falls
	Flat  PositionSide = "FLAT"  // No position; never attached to a live Position
)

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide returns the order side that opens a position on this side.
func (s PositionSide) EntrySide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that closes a position opened on this side.
func (s PositionSide) ExitSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// OrderType represents how an order executes.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // Created, not yet active
	OrderStatusOpen      OrderStatus = "OPEN"      // Active in the market
	OrderStatusFilled    OrderStatus = "FILLED"    // Terminal
	OrderStatusCancelled OrderStatus = "CANCELLED" // Terminal
	OrderStatusRejected  OrderStatus = "REJECTED"  // Terminal
	OrderStatusExpired   OrderStatus = "EXPIRED"   // Terminal
)

// IsTerminal reports whether no further transition may leave this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitReasonNone         ExitReason = ""
	ExitReasonStopLoss     ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
	ExitReasonStrategyExit ExitReason = "STRATEGY_EXIT" // Strategy-driven early exit
	ExitReasonManual       ExitReason = "MANUAL"
	ExitReasonTimeout      ExitReason = "TIMEOUT"
)

// IsStop reports whether the reason is a stop-side exit (fixed or trailing).
func (r ExitReason) IsStop() bool {
	return r == ExitReasonStopLoss || r == ExitReasonTrailingStop
}
