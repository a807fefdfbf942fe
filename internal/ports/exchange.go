package ports

import (
	"context"
	"time"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// OrderRequest describes an order to be placed on the exchange.
type OrderRequest struct {
	Symbol    string
	Side      domain.OrderSide
	Type      domain.OrderType
	Size      float64
	Price     float64 // limit price, required for LIMIT and STOP_LIMIT
	StopPrice float64 // trigger price, required for STOP and STOP_LIMIT
}

// OrderStatusInfo is the exchange's view of an order.
type OrderStatusInfo struct {
	OrderID     string
	Status      domain.OrderStatus
	FilledSize  float64
	FilledPrice float64 // average fill price, 0 until (partially) filled
	Fees        float64
	UpdatedAt   time.Time
}

// Exchange is the capability the engine consumes to reach a trading venue.
// Production and simulated implementations sit behind this same contract;
// the engine never branches on which concrete backend it is talking to.
type Exchange interface {
	// PlaceOrder submits an order and returns the exchange-assigned ID.
	// Placement failures are non-fatal to the session: callers get the
	// error and decide whether to retry with adjusted parameters.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder cancels an open order. Cancelling an order that already
	// reached a terminal state returns ErrOrderNotFound.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderStatus retrieves the current state of an order.
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusInfo, error)

	// GetBalance retrieves the available balance for an asset code.
	GetBalance(ctx context.Context, asset string) (float64, error)
}

// PriceSink is implemented by simulated exchanges that must observe every
// price tick to drive their fill engine. The orchestrator feeds it before
// evaluating brackets so balance effects land ahead of bookkeeping.
type PriceSink interface {
	UpdatePrice(price float64)
}
