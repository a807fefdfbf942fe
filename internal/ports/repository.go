package ports

import (
	"context"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
)

// TradeRepository stores and retrieves completed trades. The closed-trade
// history is append-only; records are never mutated after creation.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// CountTodayBySymbol counts trades executed today for a symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
	// GetTotalProfit sums the net P&L of all recorded trades.
	GetTotalProfit(ctx context.Context) (float64, error)
}
