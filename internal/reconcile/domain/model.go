package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const PlatformGooglePlay = "google_play"

// Subscription lifecycle notification types as delivered by the platform.
const (
	NotificationTypeRecovered     = 1
	NotificationTypeRenewed       = 2
	NotificationTypeCanceled      = 3
	NotificationTypePurchased     = 4
	NotificationTypeOnHold        = 5
	NotificationTypeInGracePeriod = 6
	NotificationTypeRestarted     = 7
	NotificationTypeRevoked       = 12
	NotificationTypeExpired       = 13

	// NotificationTypeVerify is synthesized for client-initiated verification
	// calls, which are not platform-pushed events.
	NotificationTypeVerify = 0
)

// PendingNotification is a lifecycle event that could not be attributed to a
// user at arrival time. RawPayload holds the decoded notification verbatim so
// a later pass can replay it byte for byte.
type PendingNotification struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	PurchaseToken    string         `json:"purchase_token" gorm:"type:text;not null;index"`
	RawPayload       datatypes.JSON `json:"raw_payload" gorm:"not null"`
	NotificationType int            `json:"notification_type" gorm:"not null"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"not null;index"`
	Processed        bool           `json:"processed" gorm:"not null;default:false"`
}

func (PendingNotification) TableName() string { return "pending_notifications" }

// ProcessedNotification is one idempotency ledger entry. The 4-tuple uniquely
// names one real-world event; rows are never updated or deleted.
type ProcessedNotification struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Platform         string       `json:"platform" gorm:"type:text;not null;uniqueIndex:ux_processed_event"`
	PurchaseToken    string       `json:"purchase_token" gorm:"type:text;not null;uniqueIndex:ux_processed_event"`
	NotificationType int          `json:"notification_type" gorm:"not null;uniqueIndex:ux_processed_event"`
	EventTimeMS      int64        `json:"event_time_ms" gorm:"not null;uniqueIndex:ux_processed_event"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (ProcessedNotification) TableName() string { return "processed_notifications" }

// PaymentTransaction is one append-only snapshot of subscription state. The
// full lifecycle of a purchase shows up as multiple rows per user/product.
type PaymentTransaction struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID                snowflake.ID `json:"user_id" gorm:"not null;index"`
	Platform              string       `json:"platform" gorm:"type:text;not null"`
	AmountMicros          int64        `json:"amount_micros" gorm:"not null"`
	Currency              string       `json:"currency" gorm:"type:text"`
	Description           string       `json:"description" gorm:"type:text"`
	PlatformTransactionID string       `json:"platform_transaction_id" gorm:"type:text;not null;index"`
	LinkedPurchaseToken   *string      `json:"linked_purchase_token" gorm:"type:text;index"`
	ProductID             string       `json:"product_id" gorm:"type:text;not null"`
	Status                string       `json:"status" gorm:"type:text;not null"`
	TransactionDate       time.Time    `json:"transaction_date" gorm:"not null"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// WebhookDelivery logs every inbound delivery, parseable or not. Pruned by the
// retention job; it is an operational log, not part of the ledger.
type WebhookDelivery struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	DeliveryID string       `json:"delivery_id" gorm:"type:text;not null"`
	Platform   string       `json:"platform" gorm:"type:text;not null"`
	// Body may be an arbitrary byte blob: unparseable deliveries are logged too.
	Body       string    `json:"body" gorm:"type:text"`
	Outcome    string    `json:"outcome" gorm:"type:text;not null"`
	ReceivedAt time.Time `json:"received_at" gorm:"not null;index"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

const (
	DeliveryOutcomeProcessed   = "processed"
	DeliveryOutcomeQueued      = "queued"
	DeliveryOutcomeTest        = "test"
	DeliveryOutcomeUnparseable = "unparseable"
	DeliveryOutcomeFailed      = "failed"
)
