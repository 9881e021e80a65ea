package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"gorm.io/gorm"
)

type pendingRepo struct{}

func ProvidePending() reconciledomain.PendingRepository {
	return &pendingRepo{}
}

func (r *pendingRepo) Enqueue(ctx context.Context, db *gorm.DB, entry *reconciledomain.PendingNotification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pending_notifications
			(id, purchase_token, raw_payload, notification_type, received_at, processed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PurchaseToken,
		entry.RawPayload,
		entry.NotificationType,
		entry.ReceivedAt,
		entry.Processed,
	).Error
}

func (r *pendingRepo) ListUnprocessed(ctx context.Context, db *gorm.DB, purchaseToken string) ([]*reconciledomain.PendingNotification, error) {
	query := `SELECT id, purchase_token, raw_payload, notification_type, received_at, processed
		 FROM pending_notifications
		 WHERE processed = ?`
	args := []any{false}
	if purchaseToken != "" {
		query += ` AND purchase_token = ?`
		args = append(args, purchaseToken)
	}
	query += ` ORDER BY received_at ASC, id ASC`

	var entries []*reconciledomain.PendingNotification
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *pendingRepo) MarkHandled(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM pending_notifications WHERE id = ?`, id,
	).Error
}
