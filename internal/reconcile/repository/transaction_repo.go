package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	"gorm.io/gorm"
)

type transactionRepo struct{}

func ProvideTransactions() reconciledomain.TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) Append(ctx context.Context, db *gorm.DB, tx *reconciledomain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions
			(id, user_id, platform, amount_micros, currency, description,
			 platform_transaction_id, linked_purchase_token, product_id, status,
			 transaction_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.Platform,
		tx.AmountMicros,
		tx.Currency,
		tx.Description,
		tx.PlatformTransactionID,
		tx.LinkedPurchaseToken,
		tx.ProductID,
		tx.Status,
		tx.TransactionDate,
		tx.CreatedAt,
	).Error
}

func (r *transactionRepo) FindUserByToken(ctx context.Context, db *gorm.DB, purchaseToken string) (snowflake.ID, error) {
	var userID snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM payment_transactions
		 WHERE platform_transaction_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		purchaseToken,
	).Scan(&userID).Error
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (r *transactionRepo) FindUserByLinkedToken(ctx context.Context, db *gorm.DB, purchaseToken string) (snowflake.ID, error) {
	var userID snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT user_id FROM payment_transactions
		 WHERE linked_purchase_token = ?
		 ORDER BY created_at DESC LIMIT 1`,
		purchaseToken,
	).Scan(&userID).Error
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (r *transactionRepo) FindLatest(ctx context.Context, db *gorm.DB, userID snowflake.ID, purchaseToken string) (*reconciledomain.PaymentTransaction, error) {
	var row reconciledomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_transactions
		 WHERE user_id = ? AND platform_transaction_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID,
		purchaseToken,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *transactionRepo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*reconciledomain.PaymentTransaction, error) {
	var rows []*reconciledomain.PaymentTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_transactions
		 WHERE user_id = ?
		 ORDER BY transaction_date ASC, id ASC`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
