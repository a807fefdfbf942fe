package domain

// EntrySignal is a strategy's proposal to enter a position. The engine, not
// the strategy, applies capital and position-count limits on top of it.
type EntrySignal struct {
	Side PositionSide

	// EntryPrice of 0 requests a market entry; otherwise a limit entry at
	// the given price.
	EntryPrice float64

	// Risk parameters, as decimal fractions of the entry price.
	StopLossPct     float64
	TakeProfitPct   float64
	UseTrailingStop bool

	// SizePct is the fraction of available capital to commit (0..1].
	SizePct float64

	// Reason describes why the signal fired, for logging and analysis.
	Reason string
}
