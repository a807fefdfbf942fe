package ports

import (
	"context"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// KlineFeed produces an ordered sequence of candles: strictly increasing
// timestamps, no duplicates. A feed may drop un-delivered intermediate
// ticks under load but must never reorder.
type KlineFeed interface {
	// Next blocks until the next candle is available. It returns
	// (nil, nil) when the feed is exhausted (finite replay feeds only)
	// and an error when the context is cancelled or the feed fails.
	Next(ctx context.Context) (*domain.Kline, error)

	// Stop shuts the feed down and joins any background work. Safe to
	// call more than once.
	Stop()
}

// RestartableFeed is implemented by replay feeds that can resume from a
// stored offset. Live feeds are not restartable; resuming a live feed
// means re-subscribing going forward.
type RestartableFeed interface {
	KlineFeed

	// Offset returns the index of the next candle to be delivered.
	Offset() int

	// Seek repositions the feed at the given offset.
	Seek(offset int) error
}
