package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

func makeSeries(n int) []*domain.Kline {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*domain.Kline, n)
	for i := 0; i < n; i++ {
		open := base.Add(time.Duration(i) * time.Minute)
		klines[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Minute),
			Symbol:    "ETHUSDT",
			Interval:  "1m",
			Open:      2000 + float64(i),
			High:      2001 + float64(i),
			Low:       1999 + float64(i),
			Close:     2000.5 + float64(i),
			Volume:    10,
			IsFinal:   true,
		}
	}
	return klines
}

func TestReplay_DeliversInOrderThenExhausts(t *testing.T) {
	series := makeSeries(3)
	r, err := NewReplay(series)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		k, err := r.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, k)
		assert.Equal(t, series[i].Timestamp(), k.Timestamp())
	}

	k, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, k, "exhausted feed returns (nil, nil)")

	// Exhaustion is stable.
	k, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, k)
}

func TestReplay_RejectsNonIncreasingTimestamps(t *testing.T) {
	series := makeSeries(3)
	series[2].OpenTime = series[1].OpenTime // duplicate timestamp

	_, err := NewReplay(series)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestReplay_OffsetAndSeek(t *testing.T) {
	series := makeSeries(5)
	r, err := NewReplay(series)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, 0, r.Offset())

	_, err = r.Next(ctx)
	require.NoError(t, err)
	_, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Offset())

	// Checkpoint, run ahead, seek back: the same candle comes out again.
	checkpoint := r.Offset()
	ahead, err := r.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Seek(checkpoint))
	again, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ahead.Timestamp(), again.Timestamp())

	// Seeking to the end leaves the feed exhausted.
	require.NoError(t, r.Seek(r.Len()))
	k, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, k)

	assert.Error(t, r.Seek(-1))
	assert.Error(t, r.Seek(r.Len()+1))
}

func TestReplay_NextHonorsContext(t *testing.T) {
	r, err := NewReplay(makeSeries(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Next(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}
