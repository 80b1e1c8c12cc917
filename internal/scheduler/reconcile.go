package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// ReconcilePaymentsJob settles pending payments that have been waiting
// longer than the configured grace period.
func (s *Scheduler) ReconcilePaymentsJob(ctx context.Context) error {
	cutoff := s.clock.Now(ctx).Add(-s.cfg.ReconcileGrace)

	res, err := s.payments.ReconcilePending(ctx, cutoff, s.cfg.ReconcileBatch)
	if err != nil {
		return err
	}
	if res.Checked == 0 {
		return nil
	}
	s.log.Info("reconciled pending payments",
		zap.Time("cutoff", cutoff),
		zap.Int("checked", res.Checked),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.Int("still_pending", res.StillPending),
		zap.Int("errors", res.Errors),
	)
	return nil
}
