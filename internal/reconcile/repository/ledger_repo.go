package repository

import (
	"context"
	"strings"

	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"gorm.io/gorm"
)

type ledgerRepo struct{}

func ProvideLedger() reconciledomain.LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) WasProcessed(ctx context.Context, db *gorm.DB, platform, purchaseToken string, notificationType int, eventTimeMS int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM processed_notifications
		 WHERE platform = ? AND purchase_token = ? AND notification_type = ? AND event_time_ms = ?`,
		platform,
		purchaseToken,
		notificationType,
		eventTimeMS,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ledgerRepo) RecordProcessed(ctx context.Context, db *gorm.DB, entry *reconciledomain.ProcessedNotification) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO processed_notifications
			(id, platform, purchase_token, notification_type, event_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Platform,
		entry.PurchaseToken,
		entry.NotificationType,
		entry.EventTimeMS,
		entry.CreatedAt,
	).Error
	if err != nil && isUniqueViolation(err) {
		return reconciledomain.ErrAlreadyRecorded
	}
	return err
}

// isUniqueViolation matches both the postgres and sqlite constraint wording.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
