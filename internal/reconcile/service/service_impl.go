package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	"github.com/famlyhq/famly/internal/clock"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *observability.Metrics

	Fetcher     billingdomain.Fetcher
	PendingRepo reconciledomain.PendingRepository
	LedgerRepo  reconciledomain.LedgerRepository
	TxRepo      reconciledomain.TransactionRepository
	UserRepo    userdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *observability.Metrics

	fetcher     billingdomain.Fetcher
	pendingRepo reconciledomain.PendingRepository
	ledgerRepo  reconciledomain.LedgerRepository
	txRepo      reconciledomain.TransactionRepository
	userRepo    userdomain.Repository
}

func NewService(p Params) reconciledomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reconcile"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		fetcher:     p.Fetcher,
		pendingRepo: p.PendingRepo,
		ledgerRepo:  p.LedgerRepo,
		txRepo:      p.TxRepo,
		userRepo:    p.UserRepo,
	}
}

func (s *Service) ProcessNotification(ctx context.Context, n *reconciledomain.Notification) (bool, error) {
	if n == nil || n.PurchaseToken == "" {
		return false, reconciledomain.ErrMissingToken
	}
	if n.EventTimeMS <= 0 {
		return false, reconciledomain.ErrMissingEventTime
	}

	userID, ok, err := s.resolveUser(ctx, n.PurchaseToken)
	if err != nil {
		return false, err
	}

	if !ok {
		// Expected steady state: the verify call that links this token to a
		// user may simply not have happened yet. Park the event verbatim.
		entry := &reconciledomain.PendingNotification{
			ID:               s.genID.Generate(),
			PurchaseToken:    n.PurchaseToken,
			RawPayload:       n.Raw,
			NotificationType: n.NotificationType,
			ReceivedAt:       s.clock.Now(),
		}
		if err := s.pendingRepo.Enqueue(ctx, s.db, entry); err != nil {
			return false, err
		}
		s.metrics.PendingEnqueued.Inc()
		s.log.Info("notification queued for unresolved token",
			zap.Int("notification_type", n.NotificationType),
			zap.String("purchase_token", n.PurchaseToken))
		return true, nil
	}

	return false, s.processResolved(ctx, userID, n.PurchaseToken, n.NotificationType, n.EventTimeMS)
}

// processResolved runs ledger check → fetch → record → apply for a
// notification whose user is known.
func (s *Service) processResolved(ctx context.Context, userID snowflake.ID, purchaseToken string, notificationType int, eventTimeMS int64) error {
	done, err := s.ledgerRepo.WasProcessed(ctx, s.db,
		reconciledomain.PlatformGooglePlay, purchaseToken, notificationType, eventTimeMS)
	if err != nil {
		return err
	}
	if done {
		s.metrics.NotificationsDedup.Inc()
		s.log.Info("duplicate notification, skipping",
			zap.Int("notification_type", notificationType),
			zap.Int64("event_time_ms", eventTimeMS),
			zap.String("purchase_token", purchaseToken))
		return nil
	}

	detail, err := s.fetcher.Fetch(ctx, purchaseToken)
	if err != nil {
		return err
	}

	if err := s.recordProcessed(ctx, purchaseToken, notificationType, eventTimeMS); err != nil {
		return err
	}

	return s.apply(ctx, userID, detail)
}

func (s *Service) recordProcessed(ctx context.Context, purchaseToken string, notificationType int, eventTimeMS int64) error {
	err := s.ledgerRepo.RecordProcessed(ctx, s.db, &reconciledomain.ProcessedNotification{
		ID:               s.genID.Generate(),
		Platform:         reconciledomain.PlatformGooglePlay,
		PurchaseToken:    purchaseToken,
		NotificationType: notificationType,
		EventTimeMS:      eventTimeMS,
		CreatedAt:        s.clock.Now(),
	})
	if errors.Is(err, reconciledomain.ErrAlreadyRecorded) {
		// A concurrent delivery of the same event won the race. The apply is
		// an idempotent overwrite, so the consequence is one extra audit row.
		s.log.Warn("ledger entry raced a duplicate delivery",
			zap.Int("notification_type", notificationType),
			zap.String("purchase_token", purchaseToken))
		return nil
	}
	return err
}

func (s *Service) VerifyPurchase(ctx context.Context, req reconciledomain.VerifyRequest) (reconciledomain.SubscriptionSnapshot, error) {
	if req.Platform != reconciledomain.PlatformGooglePlay {
		return reconciledomain.SubscriptionSnapshot{}, reconciledomain.ErrInvalidPlatform
	}
	if req.PurchaseToken == "" {
		return reconciledomain.SubscriptionSnapshot{}, reconciledomain.ErrMissingToken
	}

	detail, err := s.fetcher.Fetch(ctx, req.PurchaseToken)
	if err != nil {
		return reconciledomain.SubscriptionSnapshot{}, err
	}

	// Not a platform-pushed event, so the event time is synthesized from the
	// verification moment.
	eventTimeMS := s.clock.Now().UnixMilli()
	done, err := s.ledgerRepo.WasProcessed(ctx, s.db,
		reconciledomain.PlatformGooglePlay, req.PurchaseToken, reconciledomain.NotificationTypeVerify, eventTimeMS)
	if err != nil {
		return reconciledomain.SubscriptionSnapshot{}, err
	}
	if !done {
		if err := s.recordProcessed(ctx, req.PurchaseToken, reconciledomain.NotificationTypeVerify, eventTimeMS); err != nil {
			return reconciledomain.SubscriptionSnapshot{}, err
		}
	}

	if err := s.apply(ctx, req.UserID, detail); err != nil {
		return reconciledomain.SubscriptionSnapshot{}, err
	}

	// The transaction row just written makes the token resolvable, so queued
	// notifications for it can drain now. Drain outcomes do not gate the
	// response: the caller's own purchase is already applied.
	s.drainToken(ctx, req.UserID, req.PurchaseToken)

	return reconciledomain.SubscriptionSnapshot{
		Status:          detail.SubscriptionState,
		IsTrial:         detail.IsTrial,
		AutoRenewing:    detail.AutoRenewing,
		TrialStartDate:  detail.TrialStart,
		TrialEndDate:    detail.TrialEnd,
		SubscriptionEnd: detail.SubscriptionEnd,
	}, nil
}

// drainToken gives every queued entry for the token exactly one attempt and
// deletes it whatever the outcome.
func (s *Service) drainToken(ctx context.Context, userID snowflake.ID, purchaseToken string) {
	entries, err := s.pendingRepo.ListUnprocessed(ctx, s.db, purchaseToken)
	if err != nil {
		s.log.Error("listing pending notifications for drain failed",
			zap.String("purchase_token", purchaseToken),
			zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := s.replayEntry(ctx, userID, entry); err != nil {
			s.log.Warn("queued notification failed its drain attempt",
				zap.Int64("pending_id", int64(entry.ID)),
				zap.Error(err))
		}
		if err := s.pendingRepo.MarkHandled(ctx, s.db, entry.ID); err != nil {
			s.log.Error("removing drained pending notification failed",
				zap.Int64("pending_id", int64(entry.ID)),
				zap.Error(err))
			continue
		}
		s.metrics.PendingDrained.WithLabelValues("verify").Inc()
	}
}

func (s *Service) Sweep(ctx context.Context) (reconciledomain.SweepResult, error) {
	entries, err := s.pendingRepo.ListUnprocessed(ctx, s.db, "")
	if err != nil {
		return reconciledomain.SweepResult{}, err
	}

	res := reconciledomain.SweepResult{Listed: len(entries)}
	for _, entry := range entries {
		userID, ok, err := s.resolveUser(ctx, entry.PurchaseToken)
		if err != nil {
			res.Failed++
			s.log.Error("sweep resolution failed",
				zap.Int64("pending_id", int64(entry.ID)),
				zap.Error(err))
			continue
		}
		if !ok {
			// Still unattributable. Deleting here would lose the event for
			// good, so it stays queued for the next tick.
			res.Unresolved++
			continue
		}

		err = s.replayEntry(ctx, userID, entry)
		if errors.Is(err, billingdomain.ErrUpstreamUnavailable) {
			// The platform will answer eventually; keep the row and retry
			// on a later tick.
			res.Retained++
			s.log.Warn("sweep fetch hit unavailable upstream, retaining entry",
				zap.Int64("pending_id", int64(entry.ID)))
			continue
		}
		if err != nil {
			res.Failed++
			s.log.Error("sweep processing failed, discarding entry",
				zap.Int64("pending_id", int64(entry.ID)),
				zap.Error(err))
		} else {
			res.Processed++
		}

		if err := s.pendingRepo.MarkHandled(ctx, s.db, entry.ID); err != nil {
			s.log.Error("removing swept pending notification failed",
				zap.Int64("pending_id", int64(entry.ID)),
				zap.Error(err))
			continue
		}
		s.metrics.PendingDrained.WithLabelValues("sweep").Inc()
	}

	return res, nil
}

// replayEntry re-runs the pipeline for a queued notification using the stored
// payload, which is identical to the original delivery.
func (s *Service) replayEntry(ctx context.Context, userID snowflake.ID, entry *reconciledomain.PendingNotification) error {
	eventTimeMS, notificationType := entry.ReceivedAt.UnixMilli(), entry.NotificationType

	var replay struct {
		EventTimeMillis int64 `json:"eventTimeMillis,string"`
		SubscriptionNotification *struct {
			NotificationType int `json:"notificationType"`
		} `json:"subscriptionNotification"`
	}
	if err := json.Unmarshal(entry.RawPayload, &replay); err == nil && replay.EventTimeMillis > 0 {
		eventTimeMS = replay.EventTimeMillis
		if replay.SubscriptionNotification != nil {
			notificationType = replay.SubscriptionNotification.NotificationType
		}
	}

	return s.processResolved(ctx, userID, entry.PurchaseToken, notificationType, eventTimeMS)
}
