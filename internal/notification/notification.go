package notification

import (
	"context"
	"log/slog"
)

const (
	// KindSettlementCommitted indicates a settlement committed and paid out profit.
	KindSettlementCommitted = "settlement_committed"
	// KindReserveShortfall indicates a reserve fell below its provisioned liquidity.
	KindReserveShortfall = "reserve_shortfall"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. Shortfalls are
// logged at warn level.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.Kind == KindReserveShortfall {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}
