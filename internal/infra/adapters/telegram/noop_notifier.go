package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs notifications instead of sending them. Used in dev and when no bot
// token is configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	compLog := logger.With().Str("component", "NoopNotifier").Logger()
	return &NoopNotifier{log: &compLog}
}

func (n *NoopNotifier) Notify(ctx context.Context, msg model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info().Str("kind", string(msg.Kind)).Str("account_id", msg.AccountID).Str("order_id", msg.OrderID).
		Int64("amount", msg.Amount).Msg(msg.String())
	return nil
}
