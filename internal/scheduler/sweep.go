package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepLeaseKey = "famly:reconcile:sweep:lease"

// SweepJob runs one reconciliation pass over the pending notification queue.
// Reentrancy is blocked in-process by an atomic flag and across replicas by a
// redis lease; losing either means this tick is skipped, not queued.
func (s *Scheduler) SweepJob(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.metrics.SweepRuns.WithLabelValues("skipped").Inc()
		s.log.Debug("sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Store(false)

	release, ok := s.acquireLease(ctx)
	if !ok {
		s.metrics.SweepRuns.WithLabelValues("skipped").Inc()
		s.log.Debug("sweep lease held elsewhere, skipping tick")
		return
	}
	defer release()

	started := s.clock.Now()
	res, err := s.reconciler.Sweep(ctx)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("error").Inc()
		s.log.Error("sweep failed", zap.Error(err))
		return
	}

	s.metrics.SweepRuns.WithLabelValues("ok").Inc()
	s.log.Info("sweep completed",
		zap.Int("listed", res.Listed),
		zap.Int("processed", res.Processed),
		zap.Int("unresolved", res.Unresolved),
		zap.Int("retained", res.Retained),
		zap.Int("failed", res.Failed),
		zap.Duration("took", s.clock.Now().Sub(started)))
}

func (s *Scheduler) acquireLease(ctx context.Context) (func(), bool) {
	if s.redis == nil {
		return func() {}, true
	}

	ttl := s.cfg.Sweep.LockTTL
	if ttl <= 0 {
		ttl = 4 * time.Minute
	}

	ok, err := s.redis.SetNX(ctx, sweepLeaseKey, s.clock.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		// Redis being down should not stop reconciliation on a single
		// replica deployment; the in-process flag still serializes.
		s.log.Warn("sweep lease acquisition failed, proceeding without it", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.redis.Del(context.WithoutCancel(ctx), sweepLeaseKey).Err(); err != nil {
			s.log.Warn("sweep lease release failed", zap.Error(err))
		}
	}, true
}
