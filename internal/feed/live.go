package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

// KlineStreamer is the slice of the exchange client the live feed consumes.
type KlineStreamer interface {
	StreamKlines(ctx context.Context, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// Live bridges the exchange's push-style kline stream into the pull-style
// ports.KlineFeed contract. A single-slot mailbox holds the latest closed
// candle: if the consumer falls behind, intermediate candles are dropped in
// favor of the newest one, but delivery order is never violated.
type Live struct {
	mailbox    chan *domain.Kline
	quit       chan struct{}
	streamDone chan struct{}
	streamStop chan struct{}
	logger     ports.Logger

	mu      sync.Mutex
	lastTS  int64
	stopped bool
}

// NewLive subscribes to the kline stream and starts delivering only closed
// candles. Stop must be called to release the stream.
func NewLive(ctx context.Context, streamer KlineStreamer, interval string, logger ports.Logger) (*Live, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for live feed")
	}

	f := &Live{
		mailbox: make(chan *domain.Kline, 1),
		quit:    make(chan struct{}),
		logger:  logger,
	}

	handler := func(k *domain.Kline) {
		if !k.IsFinal {
			return
		}
		f.deliver(k)
	}
	errHandler := func(err error) {
		logger.Warn(ctx, "live feed stream error", map[string]interface{}{"error": err.Error()})
	}

	doneCh, stopCh, err := streamer.StreamKlines(ctx, interval, handler, errHandler)
	if err != nil {
		return nil, fmt.Errorf("failed to start kline stream: %w", err)
	}
	f.streamDone = doneCh
	f.streamStop = stopCh
	return f, nil
}

// deliver replaces any undelivered candle with the newer one.
func (f *Live) deliver(k *domain.Kline) {
	for {
		select {
		case f.mailbox <- k:
			return
		default:
			select {
			case <-f.mailbox:
			default:
			}
		}
	}
}

// Next blocks until the next closed candle arrives. Candles that do not
// advance the clock are discarded, so timestamps seen by the caller are
// strictly increasing even across stream reconnects.
func (f *Live) Next(ctx context.Context) (*domain.Kline, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("live feed interrupted: %w", ports.ErrContextCanceled)
		case <-f.quit:
			return nil, fmt.Errorf("live feed stopped: %w", ports.ErrContextCanceled)
		case k := <-f.mailbox:
			f.mu.Lock()
			stale := k.Timestamp() <= f.lastTS && f.lastTS != 0
			if !stale {
				f.lastTS = k.Timestamp()
			}
			f.mu.Unlock()
			if stale {
				continue
			}
			return k, nil
		}
	}
}

// Stop shuts down the stream and joins the reconnection loop. Safe to call
// more than once.
func (f *Live) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.quit)
	select {
	case f.streamStop <- struct{}{}:
	default:
	}
	<-f.streamDone
}
