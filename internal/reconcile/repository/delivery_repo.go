package repository

import (
	"context"
	"time"

	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"gorm.io/gorm"
)

type deliveryRepo struct{}

func ProvideDeliveries() reconciledomain.DeliveryRepository {
	return &deliveryRepo{}
}

func (r *deliveryRepo) Append(ctx context.Context, db *gorm.DB, delivery *reconciledomain.WebhookDelivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries
			(id, delivery_id, platform, body, outcome, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		delivery.ID,
		delivery.DeliveryID,
		delivery.Platform,
		delivery.Body,
		delivery.Outcome,
		delivery.ReceivedAt,
	).Error
}

func (r *deliveryRepo) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM webhook_deliveries WHERE received_at < ?`, cutoff,
	)
	return result.RowsAffected, result.Error
}
