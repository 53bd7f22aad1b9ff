package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel records sends without delivering anywhere. Used when no
// real channel is configured so the queue still drains in development.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel constructs the log-only channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "log_channel").Logger()}
}

// Send logs the message and reports the idempotency key as delivery id.
func (l *LogChannel) Send(ctx context.Context, recipient, message, idempotencyKey string) (string, error) {
	l.logger.Info().
		Str("recipient", recipient).
		Str("idempotency_key", idempotencyKey).
		Str("message", message).
		Msg("notification logged (no delivery channel configured)")
	return idempotencyKey, nil
}

var _ Channel = (*LogChannel)(nil)
