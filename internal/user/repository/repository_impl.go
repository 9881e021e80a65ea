package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	var u userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM users WHERE id = ?`, id,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) FindByAPITokenHash(ctx context.Context, db *gorm.DB, hash string) (*userdomain.User, error) {
	var u userdomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM users WHERE api_token_hash = ? LIMIT 1`, hash,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update userdomain.SubscriptionUpdate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET
			subscription_status = ?,
			subscription_platform = ?,
			platform_transaction_id = ?,
			trial_start_date = ?,
			trial_end_date = ?,
			subscription_start_date = ?,
			subscription_end_date = ?,
			updated_at = ?
		 WHERE id = ?`,
		update.Status,
		update.Platform,
		update.PlatformTransactionID,
		update.TrialStartDate,
		update.TrialEndDate,
		update.SubscriptionStartDate,
		update.SubscriptionEndDate,
		time.Now().UTC(),
		id,
	).Error
}
