package ports

import (
	"context"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// Strategy is the signal oracle consulted once per tick. It proposes
// entries and early exits; capital and position-count limits are enforced
// by the engine on top of whatever the strategy proposes.
type Strategy interface {
	// RequiredDataPoints returns the minimum number of klines needed
	// before the strategy can produce signals.
	RequiredDataPoints() int

	// ShouldEnter returns an entry proposal, or nil for no entry.
	ShouldEnter(ctx context.Context, klines []*domain.Kline, currentPrice float64) *domain.EntrySignal

	// ShouldExitEarly reports whether an open position should be closed
	// ahead of its stop/target levels.
	ShouldExitEarly(ctx context.Context, klines []*domain.Kline, currentPrice, entryPrice float64, side domain.PositionSide) bool
}
