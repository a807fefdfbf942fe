package domain

import (
	"fmt"
	"time"
)

// PositionParams holds the raw inputs for constructing a Position.
// Stop and target levels may be given as explicit prices, as percentages
// relative to the entry price, or both (explicit prices win).
type PositionParams struct {
	Side       PositionSide
	EntryPrice float64
	Size       float64
	EntryTime  time.Time // zero value means time.Now().UTC()

	StopLossPrice   float64 // explicit level, 0 = unset
	TakeProfitPrice float64 // explicit level, 0 = unset

	StopLossPct     float64 // decimal fraction (0.02 = 2%), 0 = unset
	TakeProfitPct   float64
	TrailingStopPct float64 // enables trailing stop when > 0
}

// Position owns the economic state of one open trade: entry, size,
// stop/target levels, trailing-stop tracking and exit bookkeeping.
type Position struct {
	Side       PositionSide
	EntryPrice float64
	Size       float64
	EntryTime  time.Time

	StopLossPrice   float64
	TakeProfitPrice float64
	StopLossPct     float64
	TakeProfitPct   float64
	TrailingStopPct float64

	// Trailing anchors: highest price seen for LONG, lowest for SHORT.
	HighestPrice float64
	LowestPrice  float64

	// Order IDs assigned by the owning bracket once orders are placed.
	EntryOrderID      string
	StopLossOrderID   string
	TakeProfitOrderID string

	IsFilled   bool
	ExitReason ExitReason
	ExitPrice  float64
	ExitTime   time.Time
}

// NewPosition validates params and builds an un-filled Position with its
// stop/target levels derived. Construction and derivation are a single
// call site so derived levels can never drift from the stored percentages.
func NewPosition(p PositionParams) (*Position, error) {
	if p.Side != Long && p.Side != Short {
		return nil, fmt.Errorf("position side must be LONG or SHORT, got %q: %w", p.Side, ErrConfiguration)
	}
	if p.EntryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %v: %w", p.EntryPrice, ErrConfiguration)
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("size must be positive, got %v: %w", p.Size, ErrConfiguration)
	}
	if p.StopLossPct < 0 || p.TakeProfitPct < 0 || p.TrailingStopPct < 0 {
		return nil, fmt.Errorf("risk percentages cannot be negative: %w", ErrConfiguration)
	}
	// Explicit levels must sit on the correct side of the entry price:
	// stop on the losing side, target on the winning side.
	if p.StopLossPrice != 0 {
		if p.Side == Long && p.StopLossPrice >= p.EntryPrice {
			return nil, fmt.Errorf("LONG stop loss %v must be below entry %v: %w", p.StopLossPrice, p.EntryPrice, ErrConfiguration)
		}
		if p.Side == Short && p.StopLossPrice <= p.EntryPrice {
			return nil, fmt.Errorf("SHORT stop loss %v must be above entry %v: %w", p.StopLossPrice, p.EntryPrice, ErrConfiguration)
		}
	}
	if p.TakeProfitPrice != 0 {
		if p.Side == Long && p.TakeProfitPrice <= p.EntryPrice {
			return nil, fmt.Errorf("LONG take profit %v must be above entry %v: %w", p.TakeProfitPrice, p.EntryPrice, ErrConfiguration)
		}
		if p.Side == Short && p.TakeProfitPrice >= p.EntryPrice {
			return nil, fmt.Errorf("SHORT take profit %v must be below entry %v: %w", p.TakeProfitPrice, p.EntryPrice, ErrConfiguration)
		}
	}

	entryTime := p.EntryTime
	if entryTime.IsZero() {
		entryTime = time.Now().UTC()
	}

	pos := &Position{
		Side:            p.Side,
		EntryPrice:      p.EntryPrice,
		Size:            p.Size,
		EntryTime:       entryTime,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		StopLossPct:     p.StopLossPct,
		TakeProfitPct:   p.TakeProfitPct,
		TrailingStopPct: p.TrailingStopPct,
	}
	pos.derive(pos.EntryPrice)
	return pos, nil
}

// derive computes stop/target levels from the stored percentages against the
// given reference price and seeds the trailing anchor. Explicit levels that
// were already set are only overwritten when a percentage is configured.
func (p *Position) derive(refPrice float64) {
	if p.Side == Long {
		if p.StopLossPct > 0 {
			p.StopLossPrice = refPrice * (1 - p.StopLossPct)
		}
		if p.TakeProfitPct > 0 {
			p.TakeProfitPrice = refPrice * (1 + p.TakeProfitPct)
		}
		p.HighestPrice = refPrice
	} else {
		if p.StopLossPct > 0 {
			p.StopLossPrice = refPrice * (1 + p.StopLossPct)
		}
		if p.TakeProfitPct > 0 {
			p.TakeProfitPrice = refPrice * (1 - p.TakeProfitPct)
		}
		p.LowestPrice = refPrice
	}
}

// Fill marks the entry as executed. The entry price is corrected to the
// actual fill price and stop/target levels are re-derived from it, not from
// the originally requested price.
func (p *Position) Fill(fillPrice float64) {
	p.IsFilled = true
	p.EntryPrice = fillPrice
	p.derive(fillPrice)
}

// UpdatePrice advances the position by one tick. It ratchets the trailing
// stop, then evaluates the stop trigger, then the target trigger. The stop
// check runs before the target check so a tick satisfying both resolves to
// the adverse fill, keeping replays deterministic.
// Returns ExitReasonNone while the position should stay open.
func (p *Position) UpdatePrice(currentPrice float64) ExitReason {
	if !p.IsFilled || p.IsClosed() {
		return ExitReasonNone
	}

	switch p.Side {
	case Long:
		if p.TrailingStopPct > 0 && currentPrice > p.HighestPrice {
			p.HighestPrice = currentPrice
			// Ratchet only in the position's favor.
			if sl := p.HighestPrice * (1 - p.TrailingStopPct); sl > p.StopLossPrice {
				p.StopLossPrice = sl
			}
		}
		if p.StopLossPrice > 0 && currentPrice <= p.StopLossPrice {
			if p.TrailingStopPct > 0 {
				return ExitReasonTrailingStop
			}
			return ExitReasonStopLoss
		}
		if p.TakeProfitPrice > 0 && currentPrice >= p.TakeProfitPrice {
			return ExitReasonTakeProfit
		}

	case Short:
		if p.TrailingStopPct > 0 && currentPrice < p.LowestPrice {
			p.LowestPrice = currentPrice
			if sl := p.LowestPrice * (1 + p.TrailingStopPct); p.StopLossPrice == 0 || sl < p.StopLossPrice {
				p.StopLossPrice = sl
			}
		}
		if p.StopLossPrice > 0 && currentPrice >= p.StopLossPrice {
			if p.TrailingStopPct > 0 {
				return ExitReasonTrailingStop
			}
			return ExitReasonStopLoss
		}
		if p.TakeProfitPrice > 0 && currentPrice <= p.TakeProfitPrice {
			return ExitReasonTakeProfit
		}
	}

	return ExitReasonNone
}

// Close records the exit exactly once. A second call is a caller bug; it
// returns an error and leaves the first exit untouched.
func (p *Position) Close(price float64, reason ExitReason) error {
	if p.IsClosed() {
		return fmt.Errorf("position already closed with %s at %v", p.ExitReason, p.ExitPrice)
	}
	p.ExitPrice = price
	p.ExitReason = reason
	p.ExitTime = time.Now().UTC()
	return nil
}

// IsClosed reports whether the position has been closed.
func (p *Position) IsClosed() bool {
	return p.ExitReason != ExitReasonNone
}

// RealizedPnL returns the gross profit of the closed position, before fees.
// Zero while the position is open or un-filled.
func (p *Position) RealizedPnL() float64 {
	if !p.IsFilled || !p.IsClosed() {
		return 0
	}
	if p.Side == Long {
		return (p.ExitPrice - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - p.ExitPrice) * p.Size
}

// PnLPercent returns the gross profit as a percentage of the entry value.
func (p *Position) PnLPercent() float64 {
	if !p.IsFilled || p.EntryPrice == 0 {
		return 0
	}
	entryValue := p.EntryPrice * p.Size
	if entryValue == 0 {
		return 0
	}
	return p.RealizedPnL() / entryValue * 100
}

// RiskRewardRatio returns reward distance over risk distance using the
// entry/stop/target levels. The second return is false when either level is
// missing or the risk distance is not positive.
func (p *Position) RiskRewardRatio() (float64, bool) {
	if p.StopLossPrice == 0 || p.TakeProfitPrice == 0 {
		return 0, false
	}
	var risk, reward float64
	if p.Side == Long {
		risk = p.EntryPrice - p.StopLossPrice
		reward = p.TakeProfitPrice - p.EntryPrice
	} else {
		risk = p.StopLossPrice - p.EntryPrice
		reward = p.EntryPrice - p.TakeProfitPrice
	}
	if risk <= 0 {
		return 0, false
	}
	return reward / risk, true
}
