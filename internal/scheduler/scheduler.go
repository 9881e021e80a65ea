package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/famlyhq/famly/internal/clock"
	"github.com/famlyhq/famly/internal/config"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Clock   clock.Clock
	Metrics *observability.Metrics

	Reconciler   reconciledomain.Service
	DeliveryRepo reconciledomain.DeliveryRepository
	Redis        *redis.Client `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	clock   clock.Clock
	metrics *observability.Metrics

	reconciler   reconciledomain.Service
	deliveryRepo reconciledomain.DeliveryRepository
	redis        *redis.Client

	sweeping atomic.Bool
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler"),
		cfg:     p.Cfg,
		clock:   p.Clock,
		metrics: p.Metrics,

		reconciler:   p.Reconciler,
		deliveryRepo: p.DeliveryRepo,
		redis:        p.Redis,
	}
}

// RunForever drives the fixed-interval jobs until ctx is canceled. Sweep
// ticks that fire while a sweep is still running are skipped, never stacked.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.Sweep.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	sweepTicker := time.NewTicker(interval)
	defer sweepTicker.Stop()
	retentionTicker := time.NewTicker(24 * time.Hour)
	defer retentionTicker.Stop()

	s.log.Info("scheduler started", zap.Duration("sweep_interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-sweepTicker.C:
			s.SweepJob(ctx)
		case <-retentionTicker.C:
			s.RetentionJob(ctx)
		}
	}
}
