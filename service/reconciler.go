package service

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/metrics"
)

// stalePayments is the part of Payments the reconciler drives
type stalePayments interface {
	StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
	poll(ctx context.Context, checkoutRequestID, source string) (Outcome, error)
}

// Reconciler queries the gateway for pushes whose callback never arrived
type Reconciler struct {
	payments stalePayments
	interval time.Duration
	after    time.Duration
	batch    int
	metrics  *metrics.Metrics
}

func NewReconciler(p *Payments, interval, after time.Duration, batch int, m *metrics.Metrics) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if after <= 0 {
		after = 2 * time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Reconciler{payments: p, interval: interval, after: after, batch: batch, metrics: m}
}

// Run reconciles every interval until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ReconcileAt(ctx, time.Now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReconcileAt polls transactions that were still PROCESSING at now minus the grace period.
// Exported for testability; Run passes wall-clock time.
func (r *Reconciler) ReconcileAt(ctx context.Context, now time.Time) int {
	stale, err := r.payments.StaleProcessing(ctx, now.Add(-r.after), r.batch)
	if err != nil {
		logger.Error("Failed to load stale transactions", err)
		return 0
	}

	settled := 0
	for _, t := range stale {
		if ctx.Err() != nil {
			break
		}
		outcome, err := r.payments.poll(ctx, t.TransactionID, SourceReconcile)
		r.metrics.IncrementReconcile(string(outcome))
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Reconcile query failed", logger.LogContext{
				Provider: "mpesa",
				Fields:   map[string]any{"checkout_request_id": t.TransactionID, "error": err.Error()},
			})
			continue
		}
		if outcome == OutcomeAccepted || outcome == OutcomeRejected {
			settled++
		}
	}
	return settled
}
