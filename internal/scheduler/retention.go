package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// RetentionJob prunes the webhook delivery log. The pending queue and the
// idempotency ledger are never retention-pruned: the queue holds live work and
// the ledger is the permanent audit trail.
func (s *Scheduler) RetentionJob(ctx context.Context) {
	retentionDays := s.cfg.Sweep.RetentionDays
	if retentionDays <= 0 {
		s.log.Info("delivery log retention disabled", zap.Int("days", retentionDays))
		return
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.deliveryRepo.DeleteOlderThan(ctx, s.db, cutoff)
	if err != nil {
		s.log.Error("delivery log cleanup failed", zap.Error(err))
		return
	}

	s.log.Info("delivery log cleanup completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
}
