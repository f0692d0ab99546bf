package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/infra/metrics"
)

var _ adapter.Notifier = (*AsyncNotifier)(nil)

// AsyncNotifier hands notifications to the pool so settlement never waits on delivery.
// When the queue is full the notification is dropped and counted.
type AsyncNotifier struct {
	pool    *Pool
	next    adapter.Notifier
	timeout time.Duration
	log     *zerolog.Logger
}

func NewAsyncNotifier(pool *Pool, next adapter.Notifier, logger *zerolog.Logger) *AsyncNotifier {
	compLog := logger.With().Str("component", "AsyncNotifier").Logger()
	return &AsyncNotifier{pool: pool, next: next, timeout: 10 * time.Second, log: &compLog}
}

func (n *AsyncNotifier) Notify(_ context.Context, msg model.Notification) error {
	kind := string(msg.Kind)
	err := n.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.next.Notify(ctx, msg); err != nil {
			metrics.IncNotification(kind, "failed")
			return err
		}
		metrics.IncNotification(kind, "sent")
		return nil
	})
	if err != nil {
		metrics.IncNotification(kind, "dropped")
		n.log.Warn().Err(err).Str("kind", kind).Str("order_id", msg.OrderID).Msg("notification dropped")
	}
	return err
}
