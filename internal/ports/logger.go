package ports

import "context"

// Logger is the logging capability injected into every adapter and the
// engine. Two implementations exist: a zap-backed logger for the live bot
// and a plain-text one for the CLIs. Fields is a single optional map of
// structured key/value pairs; implementations ignore extra maps.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err alongside msg; err may carry a sentinel chain that the
	// implementation renders as a single field.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
