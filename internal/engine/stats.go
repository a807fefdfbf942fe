package engine

import (
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// Stats aggregates the outcome of all closed brackets.
type Stats struct {
	TotalTrades     int
	Wins            int
	Losses          int
	WinRate         float64
	TotalPnL        float64 // net of fees
	AvgPnL          float64
	StopLossExits   int // fixed and trailing stops
	TakeProfitExits int
}

// Stats recomputes the aggregate from the closed set on every call.
// Nothing is accumulated incrementally, so the numbers cannot drift from
// the underlying records.
func (m *OrderManager) Stats() Stats {
	var s Stats
	s.TotalTrades = len(m.closed)
	if s.TotalTrades == 0 {
		return s
	}

	for _, b := range m.closed {
		pos := b.Position
		gross := pos.RealizedPnL()
		entryFee := pos.EntryPrice * pos.Size * m.cfg.FeeRate
		exitFee := pos.ExitPrice * pos.Size * m.cfg.FeeRate
		net := gross - entryFee - exitFee

		s.TotalPnL += net
		if net > 0 {
			s.Wins++
		} else {
			s.Losses++
		}

		switch {
		case pos.ExitReason.IsStop():
			s.StopLossExits++
		case pos.ExitReason == domain.ExitReasonTakeProfit:
			s.TakeProfitExits++
		}
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
	return s
}
