package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// User carries only the identity and subscription fields this subsystem
// owns. The rest of the user entity (profile, family membership) belongs to
// the app backend and is not modeled here.
type User struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null"`
	APITokenHash string       `json:"-" gorm:"type:text;index"`

	SubscriptionStatus    string     `json:"subscription_status" gorm:"type:text"`
	SubscriptionPlatform  string     `json:"subscription_platform" gorm:"type:text"`
	PlatformTransactionID string     `json:"platform_transaction_id" gorm:"type:text"`
	TrialStartDate        *time.Time `json:"trial_start_date"`
	TrialEndDate          *time.Time `json:"trial_end_date"`
	SubscriptionStartDate *time.Time `json:"subscription_start_date"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// SubscriptionUpdate is the full overwrite the state updater applies.
type SubscriptionUpdate struct {
	Status                string
	Platform              string
	PlatformTransactionID string
	TrialStartDate        *time.Time
	TrialEndDate          *time.Time
	SubscriptionStartDate *time.Time
	SubscriptionEndDate   *time.Time
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByAPITokenHash(ctx context.Context, db *gorm.DB, hash string) (*User, error)
	UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update SubscriptionUpdate) error
}

var ErrUserNotFound = errors.New("user_not_found")
