package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/famlyhq/famly/internal/billing/domain"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"go.uber.org/zap"
)

// apply overwrites the user's subscription fields from the fetched detail and
// appends a transaction-history row when the observed state changed. The
// fetched detail is the truth; the triggering notification only named the
// token.
func (s *Service) apply(ctx context.Context, userID snowflake.ID, detail billingdomain.PurchaseDetail) error {
	u, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return userdomain.ErrUserNotFound
	}

	start := detail.SubscriptionStart
	update := userdomain.SubscriptionUpdate{
		Status:                detail.SubscriptionState,
		Platform:              reconciledomain.PlatformGooglePlay,
		PlatformTransactionID: detail.PurchaseToken,
		TrialStartDate:        detail.TrialStart,
		TrialEndDate:          detail.TrialEnd,
		SubscriptionStartDate: &start,
		SubscriptionEndDate:   detail.SubscriptionEnd,
	}
	if err := s.userRepo.UpdateSubscription(ctx, s.db, userID, update); err != nil {
		return err
	}

	// History is one row per observed state change, not per notification. A
	// re-applied identical snapshot overwrites the user row above but adds
	// nothing to the trail.
	latest, err := s.txRepo.FindLatest(ctx, s.db, userID, detail.PurchaseToken)
	if err != nil {
		return err
	}
	if latest != nil &&
		latest.Status == detail.SubscriptionState &&
		latest.ProductID == detail.ProductID &&
		latest.AmountMicros == detail.PriceMicros {
		s.log.Debug("subscription state unchanged, no history row appended",
			zap.Int64("user_id", int64(userID)),
			zap.String("state", detail.SubscriptionState))
		return nil
	}

	var linked *string
	if detail.LinkedPurchaseToken != "" {
		token := detail.LinkedPurchaseToken
		linked = &token
	}

	now := s.clock.Now()
	tx := &reconciledomain.PaymentTransaction{
		ID:                    s.genID.Generate(),
		UserID:                userID,
		Platform:              reconciledomain.PlatformGooglePlay,
		AmountMicros:          detail.PriceMicros,
		Currency:              detail.Currency,
		Description:           detail.SubscriptionState,
		PlatformTransactionID: detail.PurchaseToken,
		LinkedPurchaseToken:   linked,
		ProductID:             detail.ProductID,
		Status:                detail.SubscriptionState,
		TransactionDate:       now,
		CreatedAt:             now,
	}
	if err := s.txRepo.Append(ctx, s.db, tx); err != nil {
		return err
	}

	s.metrics.TransitionsApplied.WithLabelValues(detail.SubscriptionState).Inc()
	s.log.Info("subscription state applied",
		zap.Int64("user_id", int64(userID)),
		zap.String("product_id", detail.ProductID),
		zap.String("state", detail.SubscriptionState),
		zap.Bool("is_trial", detail.IsTrial))
	return nil
}
