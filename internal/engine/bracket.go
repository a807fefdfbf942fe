package engine

import (
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// Bracket couples one Position with its three associated orders: the entry
// order that opens it and the protective stop-loss/take-profit pair that
// guards it. The protective orders exist only after the entry has filled,
// and at most one of them ever fills; when one does (or the position closes
// for any other reason) the sibling is cancelled in the same step.
type Bracket struct {
	Position *domain.Position

	EntryOrder      *domain.Order
	StopLossOrder   *domain.Order
	TakeProfitOrder *domain.Order
}

// IsComplete reports whether the bracket's position has been closed. A
// complete bracket is moved to the closed set and never mutated again.
func (b *Bracket) IsComplete() bool {
	return b.Position.IsClosed()
}

// protectiveSibling returns the protective order that did NOT trigger for
// the given exit reason, i.e. the one that must be cancelled.
func (b *Bracket) protectiveSibling(reason domain.ExitReason) *domain.Order {
	if reason.IsStop() {
		return b.TakeProfitOrder
	}
	if reason == domain.ExitReasonTakeProfit {
		return b.StopLossOrder
	}
	return nil
}
