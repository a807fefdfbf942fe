package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// engine can classify failures without knowing which backend produced them.
var (
	// General
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Exchange
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// ErrFeeMismatch signals that the actual fee rate deviates from the
	// expected rate beyond tolerance. Fatal for the trading session: every
	// profitability check depends on the expected rate.
	ErrFeeMismatch = errors.New("actual fee rate deviates from expected rate")

	// ErrUnconfirmedFill signals that an order timed out waiting for a fill
	// and the cleanup cancellation also failed. The inventory attached to
	// that order is unconfirmed and must not be assumed flat.
	ErrUnconfirmedFill = errors.New("order state unconfirmed after failed cancellation")

	// Persistence
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
