package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// resolveUser attributes a purchase token to a user via transaction history:
// first as a primary platform transaction id, then as a linked purchase token
// (a renewal token can differ from the original purchase token). A miss is a
// normal outcome, not an error.
func (s *Service) resolveUser(ctx context.Context, purchaseToken string) (snowflake.ID, bool, error) {
	userID, err := s.txRepo.FindUserByToken(ctx, s.db, purchaseToken)
	if err != nil {
		return 0, false, err
	}
	if userID != 0 {
		return userID, true, nil
	}

	userID, err = s.txRepo.FindUserByLinkedToken(ctx, s.db, purchaseToken)
	if err != nil {
		return 0, false, err
	}
	if userID != 0 {
		return userID, true, nil
	}

	return 0, false, nil
}
