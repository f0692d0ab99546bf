package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"installment-engine/internal/usecase"
)

// Reconciler is the part of PaymentUseCase the reconciler drives.
type Reconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (usecase.ReconcileReport, error)
}

// Locker serializes passes across instances. nil means every instance reconciles.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentReconciler periodically asks the gateway about attempts the webhook never resolved
// and settles or fails them.
type PaymentReconciler struct {
	uc         Reconciler
	locker     Locker
	lockKey    string
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old an open attempt must be to check
	batch      int
	log        *zerolog.Logger
	now        func() time.Time
}

func NewPaymentReconciler(uc Reconciler, locker Locker, lockKey string, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc: uc, locker: locker, lockKey: lockKey,
		interval: interval, staleAfter: staleAfter, batch: batch,
		log: &compLog, now: time.Now,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, w.lockKey, w.interval)
		if err != nil {
			w.log.Debug().Err(err).Msg("reconcile pass skipped; lock not acquired")
			return
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), w.lockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconciler unlock failed")
			}
		}()
	}

	rep, err := w.uc.ReconcileStale(ctx, w.now().Add(-w.staleAfter), w.batch)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.log.Error().Err(err).Msg("reconcile pass failed")
		}
		return
	}
	if rep.Checked > 0 {
		w.log.Info().Int("checked", rep.Checked).Int("settled", rep.Settled).Int("failed", rep.Failed).Int("skipped", rep.Skipped).Msg("reconcile pass done")
	}
}
