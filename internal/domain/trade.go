package domain

import "time"

// Trade is the immutable record of a completed round trip, written when a
// bracket closes. Serialization must round-trip side, prices, sizes,
// timestamps and exit reason losslessly.
type Trade struct {
	ID         int64 // assigned by the repository
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	GrossPnL   float64
	Fees       float64 // entry fee + exit fee
	NetPnL     float64
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason ExitReason
}
