package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PendingRepository interface {
	Enqueue(ctx context.Context, db *gorm.DB, entry *PendingNotification) error
	// ListUnprocessed returns entries oldest first. An empty token lists the
	// whole queue; the replay order is original arrival order.
	ListUnprocessed(ctx context.Context, db *gorm.DB, purchaseToken string) ([]*PendingNotification, error)
	MarkHandled(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type LedgerRepository interface {
	WasProcessed(ctx context.Context, db *gorm.DB, platform, purchaseToken string, notificationType int, eventTimeMS int64) (bool, error)
	// RecordProcessed returns ErrAlreadyRecorded when the composite key
	// already exists. Callers treat that as a logged no-op, not a failure.
	RecordProcessed(ctx context.Context, db *gorm.DB, entry *ProcessedNotification) error
}

type TransactionRepository interface {
	Append(ctx context.Context, db *gorm.DB, tx *PaymentTransaction) error
	// FindUserByToken matches purchase tokens recorded as the primary
	// platform transaction id.
	FindUserByToken(ctx context.Context, db *gorm.DB, purchaseToken string) (snowflake.ID, error)
	// FindUserByLinkedToken covers renewals whose token differs from the
	// original purchase token.
	FindUserByLinkedToken(ctx context.Context, db *gorm.DB, purchaseToken string) (snowflake.ID, error)
	// FindLatest returns the most recent history row for a user/token pair,
	// or nil. History is one row per observed state change, so the updater
	// consults this before appending.
	FindLatest(ctx context.Context, db *gorm.DB, userID snowflake.ID, purchaseToken string) (*PaymentTransaction, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*PaymentTransaction, error)
}

type DeliveryRepository interface {
	Append(ctx context.Context, db *gorm.DB, delivery *WebhookDelivery) error
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
