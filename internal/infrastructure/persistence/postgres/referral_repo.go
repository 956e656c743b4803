package postgres

import (
	"context"
	"fmt"

	"github.com/drivehub/drivehub-api/internal/domain/referral"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ReferralRepository implements referral.Repository.
type ReferralRepository struct {
	q Querier
}

// Create inserts a referral. A referred user can appear only once.
func (r *ReferralRepository) Create(ctx context.Context, ref *referral.Referral) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO referrals (id, referrer_user_id, referred_user_id, code, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ref.ID, ref.ReferrerUserID, ref.ReferredUserID, ref.Code, ref.RedeemedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyReferred
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

// CountByReferrer counts redeemed referrals of a user.
func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerUserID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM referrals WHERE referrer_user_id = $1`, referrerUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return n, nil
}
