package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/famlyhq/famly/internal/clock"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pushEnvelope is the transport wrapper the platform's push delivery uses.
// The event itself rides base64-encoded in message.data.
type pushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// developerNotification is the decoded inner event. eventTimeMillis arrives as
// a decimal string.
type developerNotification struct {
	Version                  string `json:"version"`
	PackageName              string `json:"packageName"`
	EventTimeMillis          int64  `json:"eventTimeMillis,string"`
	SubscriptionNotification *struct {
		Version          string `json:"version"`
		NotificationType int    `json:"notificationType"`
		PurchaseToken    string `json:"purchaseToken"`
		SubscriptionID   string `json:"subscriptionId"`
	} `json:"subscriptionNotification,omitempty"`
	TestNotification *struct {
		Version string `json:"version"`
	} `json:"testNotification,omitempty"`
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *observability.Metrics

	Pipeline     reconciledomain.Service
	DeliveryRepo reconciledomain.DeliveryRepository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *observability.Metrics

	pipeline     reconciledomain.Service
	deliveryRepo reconciledomain.DeliveryRepository
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reconcile.webhook"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		pipeline:     p.Pipeline,
		deliveryRepo: p.DeliveryRepo,
	}
}

// Ingest decodes one push delivery and hands the event to the pipeline. Any
// returned error is for the HTTP handler to log only: the endpoint
// acknowledges every delivery, because redelivering an unusable payload
// forever helps nobody.
func (s *Service) Ingest(ctx context.Context, payload []byte) error {
	var envelope pushEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.recordDelivery(ctx, payload, reconciledomain.DeliveryOutcomeUnparseable)
		return fmt.Errorf("decode push envelope: %w", err)
	}

	inner, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		s.recordDelivery(ctx, payload, reconciledomain.DeliveryOutcomeUnparseable)
		return fmt.Errorf("decode event body: %w", err)
	}

	var event developerNotification
	if err := json.Unmarshal(inner, &event); err != nil {
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeUnparseable)
		return fmt.Errorf("decode notification: %w", err)
	}

	if event.TestNotification != nil {
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeTest)
		s.log.Info("test notification acknowledged",
			zap.String("message_id", envelope.Message.MessageID))
		return nil
	}

	sub := event.SubscriptionNotification
	if sub == nil || sub.PurchaseToken == "" {
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeUnparseable)
		return fmt.Errorf("notification carries no subscription event")
	}
	if event.EventTimeMillis <= 0 {
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeUnparseable)
		return reconciledomain.ErrMissingEventTime
	}

	queued, err := s.pipeline.ProcessNotification(ctx, &reconciledomain.Notification{
		Version:          event.Version,
		PackageName:      event.PackageName,
		EventTimeMS:      event.EventTimeMillis,
		PurchaseToken:    sub.PurchaseToken,
		SubscriptionID:   sub.SubscriptionID,
		NotificationType: sub.NotificationType,
		Raw:              inner,
	})
	switch {
	case err != nil:
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeFailed)
		return err
	case queued:
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeQueued)
	default:
		s.recordDelivery(ctx, inner, reconciledomain.DeliveryOutcomeProcessed)
	}
	return nil
}

func (s *Service) recordDelivery(ctx context.Context, body []byte, outcome string) {
	s.metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
	err := s.deliveryRepo.Append(ctx, s.db, &reconciledomain.WebhookDelivery{
		ID:         s.genID.Generate(),
		DeliveryID: uuid.NewString(),
		Platform:   reconciledomain.PlatformGooglePlay,
		Body:       string(body),
		Outcome:    outcome,
		ReceivedAt: s.clock.Now(),
	})
	if err != nil {
		s.log.Error("webhook delivery log append failed", zap.Error(err))
	}
}
