package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/utils"
)

// Replay is a finite, restartable feed over a pre-loaded candle series.
// It implements ports.RestartableFeed: the consumer can checkpoint Offset
// and later Seek back to it for a deterministic re-run.
type Replay struct {
	mu     sync.Mutex
	klines []*domain.Kline
	offset int
}

// NewReplay builds a replay feed over the given candles. Timestamps must be
// strictly increasing; duplicates and reordering are rejected up front so a
// replay never delivers what a live feed could not.
func NewReplay(klines []*domain.Kline) (*Replay, error) {
	for i := 1; i < len(klines); i++ {
		if klines[i].Timestamp() <= klines[i-1].Timestamp() {
			return nil, fmt.Errorf("candle %d timestamp %d does not advance past %d: %w",
				i, klines[i].Timestamp(), klines[i-1].Timestamp(), ports.ErrInvalidRequest)
		}
	}
	return &Replay{klines: klines}, nil
}

// NewReplayFromCSV loads a candle series from a CSV file written by
// utils.WriteKlinesToCSV and builds a replay feed over it.
func NewReplayFromCSV(path string) (*Replay, error) {
	klines, err := utils.ReadKlinesFromCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load klines from %s: %w", path, err)
	}
	return NewReplay(klines)
}

// Next returns the next candle, or (nil, nil) once the series is exhausted.
func (r *Replay) Next(ctx context.Context) (*domain.Kline, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("replay feed interrupted: %w", ports.ErrContextCanceled)
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offset >= len(r.klines) {
		return nil, nil
	}
	k := r.klines[r.offset]
	r.offset++
	return k, nil
}

// Stop is a no-op for replay feeds; there is no background work to join.
func (r *Replay) Stop() {}

// Offset returns the index of the next candle to be delivered.
func (r *Replay) Offset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

// Seek repositions the feed. Seeking to len(series) is valid and leaves the
// feed exhausted.
func (r *Replay) Seek(offset int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset < 0 || offset > len(r.klines) {
		return fmt.Errorf("offset %d out of range [0, %d]: %w", offset, len(r.klines), ports.ErrInvalidRequest)
	}
	r.offset = offset
	return nil
}

// Len returns the total number of candles in the series.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.klines)
}
