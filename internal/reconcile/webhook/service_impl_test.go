package webhook

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/famlyhq/famly/internal/clock"
	"github.com/famlyhq/famly/internal/observability"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"github.com/famlyhq/famly/internal/reconcile/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type pipelineStub struct {
	queued   bool
	err      error
	received []*reconciledomain.Notification
}

func (p *pipelineStub) ProcessNotification(ctx context.Context, n *reconciledomain.Notification) (bool, error) {
	p.received = append(p.received, n)
	return p.queued, p.err
}

func (p *pipelineStub) VerifyPurchase(ctx context.Context, req reconciledomain.VerifyRequest) (reconciledomain.SubscriptionSnapshot, error) {
	return reconciledomain.SubscriptionSnapshot{}, nil
}

func (p *pipelineStub) Sweep(ctx context.Context) (reconciledomain.SweepResult, error) {
	return reconciledomain.SweepResult{}, nil
}

func newTestWebhook(t *testing.T) (*Service, *pipelineStub, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&reconciledomain.WebhookDelivery{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pipeline := &pipelineStub{}
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.New(),
		Metrics: observability.NewMetrics(),

		Pipeline:     pipeline,
		DeliveryRepo: repository.ProvideDeliveries(),
	})
	return svc, pipeline, db
}

func envelope(t *testing.T, inner string) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(
		`{"message":{"data":"%s","messageId":"msg-1","publishTime":"2026-08-30T12:00:00Z"},"subscription":"projects/famly/subscriptions/rtdn"}`,
		base64.StdEncoding.EncodeToString([]byte(inner)),
	))
}

func deliveryOutcome(t *testing.T, db *gorm.DB) string {
	t.Helper()
	var outcome string
	require.NoError(t, db.Raw(
		`SELECT outcome FROM webhook_deliveries ORDER BY id DESC LIMIT 1`,
	).Scan(&outcome).Error)
	return outcome
}

func TestIngestSubscriptionNotification(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)

	payload := envelope(t,
		`{"version":"1.0","packageName":"app.famly","eventTimeMillis":"1724990400000","subscriptionNotification":{"version":"1.0","notificationType":2,"purchaseToken":"tok123","subscriptionId":"famly.premium.monthly"}}`)
	require.NoError(t, svc.Ingest(context.Background(), payload))

	require.Len(t, pipeline.received, 1)
	n := pipeline.received[0]
	assert.Equal(t, "tok123", n.PurchaseToken)
	assert.Equal(t, reconciledomain.NotificationTypeRenewed, n.NotificationType)
	assert.Equal(t, int64(1724990400000), n.EventTimeMS)
	assert.Equal(t, "famly.premium.monthly", n.SubscriptionID)

	assert.Equal(t, reconciledomain.DeliveryOutcomeProcessed, deliveryOutcome(t, db))
}

func TestIngestQueuedOutcome(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)
	pipeline.queued = true

	payload := envelope(t,
		`{"version":"1.0","packageName":"app.famly","eventTimeMillis":"1724990400000","subscriptionNotification":{"version":"1.0","notificationType":4,"purchaseToken":"tokX","subscriptionId":"famly.premium.monthly"}}`)
	require.NoError(t, svc.Ingest(context.Background(), payload))

	assert.Equal(t, reconciledomain.DeliveryOutcomeQueued, deliveryOutcome(t, db))
}

func TestIngestTestNotification(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)

	payload := envelope(t, `{"version":"1.0","packageName":"app.famly","eventTimeMillis":"1724990400000","testNotification":{"version":"1.0"}}`)
	require.NoError(t, svc.Ingest(context.Background(), payload))

	assert.Empty(t, pipeline.received)
	assert.Equal(t, reconciledomain.DeliveryOutcomeTest, deliveryOutcome(t, db))
}

func TestIngestMalformedEnvelope(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)

	err := svc.Ingest(context.Background(), []byte(`not json at all`))
	require.Error(t, err)
	assert.Empty(t, pipeline.received)
	assert.Equal(t, reconciledomain.DeliveryOutcomeUnparseable, deliveryOutcome(t, db))
}

func TestIngestBadBase64(t *testing.T) {
	svc, pipeline, _ := newTestWebhook(t)

	err := svc.Ingest(context.Background(), []byte(`{"message":{"data":"%%%not-base64%%%","messageId":"msg-1"}}`))
	require.Error(t, err)
	assert.Empty(t, pipeline.received)
}

func TestIngestEventWithoutSubscription(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)

	payload := envelope(t, `{"version":"1.0","packageName":"app.famly","eventTimeMillis":"1724990400000"}`)
	require.Error(t, svc.Ingest(context.Background(), payload))
	assert.Empty(t, pipeline.received)
	assert.Equal(t, reconciledomain.DeliveryOutcomeUnparseable, deliveryOutcome(t, db))
}

func TestIngestMissingEventTime(t *testing.T) {
	svc, _, _ := newTestWebhook(t)

	payload := envelope(t,
		`{"version":"1.0","packageName":"app.famly","subscriptionNotification":{"version":"1.0","notificationType":2,"purchaseToken":"tok123"}}`)
	err := svc.Ingest(context.Background(), payload)
	require.ErrorIs(t, err, reconciledomain.ErrMissingEventTime)
}

func TestIngestPipelineFailureStillRecorded(t *testing.T) {
	svc, pipeline, db := newTestWebhook(t)
	pipeline.err = assert.AnError

	payload := envelope(t,
		`{"version":"1.0","packageName":"app.famly","eventTimeMillis":"1724990400000","subscriptionNotification":{"version":"1.0","notificationType":3,"purchaseToken":"tok123","subscriptionId":"famly.premium.monthly"}}`)
	require.ErrorIs(t, svc.Ingest(context.Background(), payload), assert.AnError)

	assert.Equal(t, reconciledomain.DeliveryOutcomeFailed, deliveryOutcome(t, db))
}
