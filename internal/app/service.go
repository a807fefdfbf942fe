package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/engine"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/risk"
)

const (
	maxKlineCacheSize = 500 // Limit cache size to avoid memory issues

	// entryFillTimeout bounds how long a live MARKET entry may stay
	// unconfirmed before it is cancelled.
	entryFillTimeout = 30 * time.Second
)

// FeeVerifier is implemented by exchange adapters that can check the
// account's actual commission rate against the configured one.
type FeeVerifier interface {
	VerifyFeeRate(ctx context.Context) error
}

// FillWaiter is implemented by live exchange adapters that can poll an
// order to a terminal state, cancelling it on timeout. Simulated exchanges
// settle fills on the tick instead and do not implement it.
type FillWaiter interface {
	WaitForFill(ctx context.Context, orderID string, timeout time.Duration) (*ports.OrderStatusInfo, error)
}

// Config holds configuration for the trading service.
type Config struct {
	Symbol       string
	Interval     string
	CurrencyCode string // quote asset, e.g. "USDT"
	AssetCode    string // base asset, e.g. "ETH"

	// CloseOnShutdown force-closes open positions at the last seen price
	// when the service stops.
	CloseOnShutdown bool

	// Dust thresholds: balances at or below these are treated as zero when
	// resolving what the account actually holds.
	DustCurrencyThreshold float64
	DustAssetThreshold    float64
}

// TradingService orchestrates one instrument's trading session: it pulls
// candles from the feed, drives the order manager, consults the strategy
// and risk manager, and persists completed trades.
type TradingService struct {
	cfg       Config
	logger    ports.Logger
	exchange  ports.Exchange
	feed      ports.KlineFeed
	manager   *engine.OrderManager
	strategy  ports.Strategy
	riskMgr   *risk.Manager
	tradeRepo ports.TradeRepository // optional; nil disables persistence

	// mu serializes ticks: all engine state is touched under it.
	mu          sync.Mutex
	klineCache  []*domain.Kline
	lastPrice   float64
	haltEntries bool
	haltReason  error
}

// NewTradingService creates the application service.
func NewTradingService(
	cfg Config,
	logger ports.Logger,
	exchange ports.Exchange,
	feed ports.KlineFeed,
	manager *engine.OrderManager,
	strat ports.Strategy,
	riskMgr *risk.Manager,
	tradeRepo ports.TradeRepository,
) (*TradingService, error) {
	if logger == nil || exchange == nil || feed == nil || manager == nil || strat == nil || riskMgr == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("configuration Symbol is required")
	}
	if cfg.CurrencyCode == "" {
		return nil, fmt.Errorf("configuration CurrencyCode is required")
	}

	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		feed:       feed,
		manager:    manager,
		strategy:   strat,
		riskMgr:    riskMgr,
		tradeRepo:  tradeRepo,
		klineCache: make([]*domain.Kline, 0, maxKlineCacheSize),
	}, nil
}

// Seed preloads historical candles into the strategy cache so the first
// live candle already has enough context to evaluate.
func (s *TradingService) Seed(klines []*domain.Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range klines {
		s.cacheKline(k)
	}
}

// Run drives the session until the context is cancelled or the feed is
// exhausted, then shuts down cleanly.
func (s *TradingService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"symbol": s.cfg.Symbol, "interval": s.cfg.Interval,
	})

	if verifier, ok := s.exchange.(FeeVerifier); ok {
		if err := verifier.VerifyFeeRate(ctx); err != nil {
			if errors.Is(err, ports.ErrFeeMismatch) {
				// Existing positions keep their protective handling; only
				// new entries stop.
				s.haltNewEntries(ctx, err)
			} else {
				return fmt.Errorf("fee rate verification failed: %w", err)
			}
		}
	}

	s.logHoldings(ctx)

	for {
		k, err := s.feed.Next(ctx)
		if err != nil {
			if errors.Is(err, ports.ErrContextCanceled) {
				s.logger.Info(ctx, "Feed interrupted, shutting down")
				break
			}
			s.shutdown(context.Background())
			return fmt.Errorf("feed failed: %w", err)
		}
		if k == nil {
			s.logger.Info(ctx, "Feed exhausted, shutting down")
			break
		}
		s.onKline(ctx, k)
	}

	// Shutdown work runs on a fresh context: the session context is
	// typically already cancelled at this point.
	s.shutdown(context.Background())
	return nil
}

// onKline advances the whole engine by one candle. The ordering is fixed:
// the simulated exchange sees the price first so fills and balance effects
// land before bookkeeping, then brackets are evaluated, then the strategy
// is consulted for exits and entries.
func (s *TradingService) onKline(ctx context.Context, k *domain.Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheKline(k)
	price := k.Close
	s.lastPrice = price

	if sink, ok := s.exchange.(ports.PriceSink); ok {
		sink.UpdatePrice(price)
	}

	s.manager.Update(ctx, price)
	s.applyEarlyExits(ctx, price)
	s.persistTrades(ctx)

	if !s.haltEntries {
		if sig := s.strategy.ShouldEnter(ctx, s.klineCache, price); sig != nil {
			s.tryEnter(ctx, sig, price)
		}
	}
}

func (s *TradingService) cacheKline(k *domain.Kline) {
	s.klineCache = append(s.klineCache, k)
	if len(s.klineCache) > maxKlineCacheSize {
		s.klineCache = s.klineCache[len(s.klineCache)-maxKlineCacheSize:]
	}
}

// applyEarlyExits lets the strategy surrender open positions ahead of
// their stop/target levels.
func (s *TradingService) applyEarlyExits(ctx context.Context, price float64) {
	for _, b := range append([]*engine.Bracket(nil), s.manager.ActiveBrackets()...) {
		if !b.Position.IsFilled || b.IsComplete() {
			continue
		}
		if s.strategy.ShouldExitEarly(ctx, s.klineCache, price, b.Position.EntryPrice, b.Position.Side) {
			s.manager.CloseBracket(ctx, b, price, domain.ExitReasonStrategyExit)
		}
	}
}

// tryEnter runs the capacity and sizing gate and opens a bracket when it
// passes. Gate failures skip the entry; they are not session failures.
func (s *TradingService) tryEnter(ctx context.Context, sig *domain.EntrySignal, price float64) {
	open := len(s.manager.OpenPositions()) + len(s.manager.PendingEntries())

	balance, err := s.exchange.GetBalance(ctx, s.cfg.CurrencyCode)
	if err != nil {
		s.logger.Error(ctx, err, "Entry skipped: balance lookup failed")
		return
	}

	if err := s.riskMgr.AllowEntry(ctx, open, balance); err != nil {
		s.logger.Debug(ctx, "Entry skipped by risk limits", map[string]interface{}{"error": err.Error()})
		return
	}

	entryPrice := sig.EntryPrice
	orderType := domain.OrderTypeLimit
	if entryPrice == 0 {
		entryPrice = price
		orderType = domain.OrderTypeMarket
	}

	size := s.riskMgr.PositionSize(balance, entryPrice, sig.SizePct)
	if size <= 0 {
		s.logger.Warn(ctx, "Entry skipped: computed size is zero", map[string]interface{}{"balance": balance, "price": entryPrice})
		return
	}

	b, err := s.manager.OpenBracket(ctx, engine.BracketParams{
		Side:            sig.Side,
		Size:            size,
		EntryPrice:      entryPrice,
		StopLossPct:     sig.StopLossPct,
		TakeProfitPct:   sig.TakeProfitPct,
		UseTrailingStop: sig.UseTrailingStop,
		OrderType:       orderType,
	})
	if err != nil {
		if errors.Is(err, ports.ErrFeeMismatch) || errors.Is(err, ports.ErrUnconfirmedFill) {
			s.haltNewEntries(ctx, err)
			return
		}
		s.logger.Error(ctx, err, "Entry order failed", map[string]interface{}{"reason": sig.Reason})
		return
	}

	// Live MARKET entries are confirmed against the exchange instead of
	// inferred from the next tick; the confirmed price seeds the levels.
	if waiter, ok := s.exchange.(FillWaiter); ok && orderType == domain.OrderTypeMarket {
		if !s.confirmEntry(ctx, waiter, b) {
			return
		}
	}

	s.logger.Info(ctx, "Entered bracket", map[string]interface{}{
		"side": sig.Side, "size": size, "entryPrice": entryPrice, "reason": sig.Reason,
	})
}

// confirmEntry waits on the live exchange for the entry order to fill.
// A fill that cannot be confirmed after a failed cancellation means the
// account may hold inventory the engine does not know about; new entries
// halt for the rest of the session. A cleanly cancelled timeout just
// discards the bracket.
func (s *TradingService) confirmEntry(ctx context.Context, waiter FillWaiter, b *engine.Bracket) bool {
	info, err := waiter.WaitForFill(ctx, b.EntryOrder.ID, entryFillTimeout)
	if err != nil {
		if errors.Is(err, ports.ErrUnconfirmedFill) {
			s.haltNewEntries(ctx, err)
			return false
		}
		s.logger.Warn(ctx, "Entry did not fill, discarding bracket", map[string]interface{}{
			"orderID": b.EntryOrder.ID, "error": err.Error(),
		})
		if cerr := s.manager.CancelEntry(ctx, b); cerr != nil {
			s.logger.Error(ctx, cerr, "Failed to discard unfilled entry", map[string]interface{}{"orderID": b.EntryOrder.ID})
		}
		return false
	}
	s.manager.ConfirmEntryFill(ctx, b, info.FilledPrice)
	return true
}

// haltNewEntries stops the service from opening brackets for the rest of
// the session. Open positions keep being managed normally.
func (s *TradingService) haltNewEntries(ctx context.Context, reason error) {
	s.haltEntries = true
	s.haltReason = reason
	s.logger.Error(ctx, reason, "New entries halted for the remainder of the session")
}

// persistTrades drains completed trades into the risk manager and, when
// configured, the repository. Persistence failures are logged and do not
// stop trading; the trade is already reflected in closed-bracket state.
func (s *TradingService) persistTrades(ctx context.Context) {
	for _, tr := range s.manager.DrainTrades() {
		s.riskMgr.RecordTrade(ctx, tr)
		if s.tradeRepo == nil {
			continue
		}
		if _, err := s.tradeRepo.CreateTrade(ctx, tr); err != nil {
			s.logger.Error(ctx, err, "Failed to persist trade", map[string]interface{}{
				"symbol": tr.Symbol, "netPnL": tr.NetPnL,
			})
		}
	}
}

// logHoldings resolves what the account holds at startup. A stray base
// asset balance above dust means a previous session left inventory behind;
// that is logged loudly rather than silently traded over.
func (s *TradingService) logHoldings(ctx context.Context) {
	if s.cfg.AssetCode == "" {
		return
	}
	currencyBal, err := s.exchange.GetBalance(ctx, s.cfg.CurrencyCode)
	if err != nil {
		s.logger.Warn(ctx, "Could not read currency balance at startup", map[string]interface{}{"error": err.Error()})
		return
	}
	assetBal, err := s.exchange.GetBalance(ctx, s.cfg.AssetCode)
	if err != nil {
		s.logger.Warn(ctx, "Could not read asset balance at startup", map[string]interface{}{"error": err.Error()})
		return
	}

	side := resolveHolding(currencyBal, assetBal, s.lastPrice, s.cfg.DustCurrencyThreshold, s.cfg.DustAssetThreshold)
	fields := map[string]interface{}{
		"currency": currencyBal, "asset": assetBal, "resolved": side,
	}
	if side == domain.Long {
		s.logger.Warn(ctx, "Account already holds inventory above dust; was a previous session interrupted?", fields)
	} else {
		s.logger.Info(ctx, "Startup holdings resolved", fields)
	}
}

// resolveHolding classifies account balances as an existing long holding or
// flat. Balances below their dust threshold are ignored; when both sides
// are above dust, the larger value wins.
func resolveHolding(currencyBal, assetBal, price float64, currencyDust, assetDust float64) domain.PositionSide {
	hasCurrency := currencyBal > currencyDust
	hasAsset := assetBal > assetDust

	switch {
	case !hasAsset:
		return domain.Flat
	case !hasCurrency:
		return domain.Long
	default:
		assetValue := assetBal * price
		if price > 0 && assetValue > currencyBal {
			return domain.Long
		}
		return domain.Flat
	}
}

// shutdown cancels pending entries, optionally flattens open positions,
// persists the remaining trades and logs the session summary.
func (s *TradingService) shutdown(ctx context.Context) {
	s.feed.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range append([]*engine.Bracket(nil), s.manager.PendingEntries()...) {
		if err := s.manager.CancelEntry(ctx, b); err != nil {
			s.logger.Error(ctx, err, "Failed to cancel pending entry on shutdown")
		}
	}

	if s.cfg.CloseOnShutdown && s.lastPrice > 0 {
		s.manager.CloseAll(ctx, s.lastPrice, domain.ExitReasonManual)
	}

	s.persistTrades(ctx)
	s.logSummary(ctx)
}

// logSummary emits the session's aggregate results.
func (s *TradingService) logSummary(ctx context.Context) {
	stats := s.manager.Stats()
	fields := map[string]interface{}{
		"totalTrades":     stats.TotalTrades,
		"wins":            stats.Wins,
		"losses":          stats.Losses,
		"winRate":         stats.WinRate,
		"totalPnL":        stats.TotalPnL,
		"avgPnL":          stats.AvgPnL,
		"stopLossExits":   stats.StopLossExits,
		"takeProfitExits": stats.TakeProfitExits,
		"openPositions":   len(s.manager.OpenPositions()),
	}
	if s.haltEntries {
		fields["entriesHalted"] = s.haltReason.Error()
	}
	s.logger.Info(ctx, "Session summary", fields)
}
