package adapter

import (
	"context"

	"installment-engine/internal/domain/model"
)

// Notifier delivers fire-and-forget messages. Callers never fail on its errors.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}
