package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"

	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/domain"
	"github.com/ACertainArchangel/trading-bot-framework-sub001/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Binance reports commission in basis points of 10000.
	commissionDenominator = 10000.0
)

// Client implements the ports.Exchange interface against the Binance spot
// API using the go-binance library.
type Client struct {
	spot                 *binance.Client
	logger               ports.Logger
	symbol               string
	expectedFeeRate      float64
	feeTolerance         float64
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Symbol     string

	// ExpectedFeeRate is the taker fee rate the session's profitability
	// checks assume. VerifyFeeRate compares it with the account's actual
	// commission and fails with ports.ErrFeeMismatch beyond FeeTolerance.
	ExpectedFeeRate float64
	FeeTolerance    float64

	Logger               ports.Logger
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// New creates a new Binance spot adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	feeTolerance := cfg.FeeTolerance
	if feeTolerance <= 0 {
		feeTolerance = 0.0001
	}

	return &Client{
		spot:                 client,
		logger:               cfg.Logger,
		symbol:               cfg.Symbol,
		expectedFeeRate:      cfg.ExpectedFeeRate,
		feeTolerance:         feeTolerance,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021:
			mappedErr = ports.ErrTimeout
		case -1022:
			mappedErr = ports.ErrAuthenticationFailed
		case -2010:
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011:
			mappedErr = ports.ErrOrderCancelFailed
		case -2013:
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015:
			mappedErr = ports.ErrAuthenticationFailed
		case -3005, -2019:
			mappedErr = ports.ErrInsufficientFunds
		case -1100, -1101, -1102, -1103, -1104, -1106, -1111, -1112, -1116, -1117, -1120, -1121, -1130:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// PlaceOrder submits an order to the spot API and returns its ID.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	op := "PlaceOrder"

	symbol := req.Symbol
	if symbol == "" {
		symbol = c.symbol
	}

	svc := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(req.Side)).
		Quantity(formatFloat(req.Size))

	switch req.Type {
	case domain.OrderTypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	case domain.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatFloat(req.Price))
	case domain.OrderTypeStop:
		// Stop-market execution: slippage possible once triggered.
		svc = svc.Type(binance.OrderTypeStopLoss).
			StopPrice(formatFloat(req.StopPrice))
	case domain.OrderTypeStopLimit:
		svc = svc.Type(binance.OrderTypeStopLossLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatFloat(req.Price)).
			StopPrice(formatFloat(req.StopPrice))
	default:
		return "", fmt.Errorf("unsupported order type %q: %w", req.Type, ports.ErrInvalidRequest)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	id := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": req.Side, "type": req.Type,
		"size": req.Size, "orderID": id, "status": order.Status,
	})
	return id, nil
}

// CancelOrder cancels an open order by its ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	op := "CancelOrder"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, ports.ErrInvalidRequest)
	}

	_, err = c.spot.NewCancelOrderService().Symbol(c.symbol).OrderID(id).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": orderID})
	return nil
}

// GetOrderStatus retrieves the current state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*ports.OrderStatusInfo, error) {
	op := "GetOrderStatus"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, ports.ErrInvalidRequest)
	}

	order, err := c.spot.NewGetOrderService().Symbol(c.symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// GetBalance retrieves the free balance for an asset code.
func (c *Client) GetBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetBalance"
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return free, nil
		}
	}
	return 0, c.handleError(ctx, fmt.Errorf("asset %s not found in account", asset), op)
}

// VerifyFeeRate compares the account's actual taker commission against the
// configured expected fee rate. A deviation beyond tolerance is fatal for
// the trading session: the economics behind every profitability check are
// no longer trustworthy.
func (c *Client) VerifyFeeRate(ctx context.Context) error {
	op := "VerifyFeeRate"
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	actual := float64(account.TakerCommission) / commissionDenominator
	if math.Abs(actual-c.expectedFeeRate) > c.feeTolerance {
		err := fmt.Errorf("expected %.4f%%, got %.4f%% (tolerance %.4f%%): %w",
			c.expectedFeeRate*100, actual*100, c.feeTolerance*100, ports.ErrFeeMismatch)
		c.logger.Error(ctx, err, op+": fee rate deviates from expected rate")
		return err
	}
	c.logger.Info(ctx, op+": fee rate confirmed", map[string]interface{}{"feeRate": actual})
	return nil
}

// WaitForFill polls an order until it reaches a terminal state, backing off
// between polls. On timeout it attempts to cancel the outstanding order as
// a cleanup step; if that cancellation itself fails, the caller receives
// ports.ErrUnconfirmedFill and must treat the inventory as unconfirmed
// rather than assume the cancel succeeded.
func (c *Client) WaitForFill(ctx context.Context, orderID string, timeout time.Duration) (*ports.OrderStatusInfo, error) {
	op := "WaitForFill"
	deadline := time.Now().Add(timeout)
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for time.Now().Before(deadline) {
		info, err := c.GetOrderStatus(ctx, orderID)
		if err != nil {
			if errors.Is(err, ports.ErrContextCanceled) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// Transient status-poll failures are retried with backoff.
			c.logger.Warn(ctx, op+": status poll failed, retrying", map[string]interface{}{"orderID": orderID, "error": err.Error()})
		} else {
			switch info.Status {
			case domain.OrderStatusFilled:
				return info, nil
			case domain.OrderStatusCancelled, domain.OrderStatusRejected, domain.OrderStatusExpired:
				return info, fmt.Errorf("order %s ended %s while waiting for fill: %w", orderID, info.Status, ports.ErrOrderPlacementFailed)
			}
			b.Reset()
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s interrupted: %w", op, ports.ErrContextCanceled)
		case <-time.After(b.Duration()):
		}
	}

	// Timed out: the order must not be forgotten mid-flight.
	c.logger.Warn(ctx, op+": timeout reached, cancelling order", map[string]interface{}{"orderID": orderID, "timeout": timeout.String()})
	if err := c.CancelOrder(ctx, orderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		return nil, fmt.Errorf("order %s: cancel after timeout failed: %w", orderID, ports.ErrUnconfirmedFill)
	}
	return nil, fmt.Errorf("order %s did not fill within %s: %w", orderID, timeout, ports.ErrTimeout)
}

// GetTickerPrice retrieves the last trade price for the configured symbol.
func (c *Client) GetTickerPrice(ctx context.Context) (float64, error) {
	op := "GetTickerPrice"
	prices, err := c.spot.NewListPricesService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", c.symbol), op)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err), op)
	}
	return price, nil
}

// Ping checks connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), "Ping")
	}
	return nil
}

// GetKlines retrieves historical klines for the configured symbol.
func (c *Client) GetKlines(ctx context.Context, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	raw, err := c.spot.NewKlinesService().Symbol(c.symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines := make([]*domain.Kline, 0, len(raw))
	for _, bk := range raw {
		dk, err := translateKline(bk, c.symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		klines = append(klines, dk)
	}
	return klines, nil
}

// StreamKlines starts a websocket kline stream with automatic reconnection
// and exponential backoff. The returned stop channel cancels the stream;
// the done channel closes once the reconnection loop has fully exited.
func (c *Client) StreamKlines(ctx context.Context, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamKlines"
	wsCtx, cancelWs := context.WithCancel(ctx)

	wsHandler := func(event *binance.WsKlineEvent) {
		dk, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": failed to translate kline event")
			return
		}
		handler(dk)
	}
	wsErrHandler := func(err error) {
		errHandler(c.handleError(wsCtx, err, op+" websocket"))
	}

	go func() {
		defer cancelWs()
		retry := &backoff.Backoff{Min: c.reconnectDelay, Max: time.Minute, Factor: 2, Jitter: true}
		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				return
			default:
			}

			innerDoneCh, innerStopCh, connectErr := binance.WsKlineServe(c.symbol, interval, wsHandler, wsErrHandler)
			if connectErr != nil {
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{"maxAttempts": c.maxReconnectAttempts})
					return
				}
				delay := retry.Duration()
				c.logger.Warn(wsCtx, op+": connection failed, retrying", map[string]interface{}{"attempt": attempt, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": websocket connected", map[string]interface{}{"symbol": c.symbol, "interval": interval})
			attempt = 0
			retry.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": websocket closed unexpectedly, reconnecting")
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()
	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation helpers ---

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func translateStatus(s binance.OrderStatusType) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusOpen
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return domain.OrderStatusCancelled
	case binance.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	case binance.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	}
	return domain.OrderStatusPending
}

func translateOrder(order *binance.Order) *ports.OrderStatusInfo {
	if order == nil {
		return nil
	}
	executed, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	avgPrice := 0.0
	if executed > 0 {
		avgPrice = quote / executed
	}

	return &ports.OrderStatusInfo{
		OrderID:     strconv.FormatInt(order.OrderID, 10),
		Status:      translateStatus(order.Status),
		FilledSize:  executed,
		FilledPrice: avgPrice,
		UpdatedAt:   time.UnixMilli(order.UpdateTime),
	}
}

func translateWsKline(event *binance.WsKlineEvent) (*domain.Kline, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(k.StartTime),
		CloseTime: time.UnixMilli(k.EndTime),
		Symbol:    k.Symbol,
		Interval:  k.Interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   k.IsFinal,
	}, nil
}

func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true,
	}, nil
}
