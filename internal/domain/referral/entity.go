// Package referral tracks referral-code redemptions between users.
package referral

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// CodeLength is the number of characters in a referral code.
const CodeLength = 8

// Referral links a referrer to the user who redeemed their code.
type Referral struct {
	ID             string    `json:"id"`
	ReferrerUserID string    `json:"referrerUserId"`
	ReferredUserID string    `json:"referredUserId"`
	Code           string    `json:"code"`
	RedeemedAt     time.Time `json:"redeemedAt"`
}

// NewReferral validates a redemption.
func NewReferral(id, referrerUserID, referredUserID, code string, now time.Time) (*Referral, error) {
	if referrerUserID == referredUserID {
		return nil, shared.ErrSelfReferral
	}
	return &Referral{
		ID:             id,
		ReferrerUserID: referrerUserID,
		ReferredUserID: referredUserID,
		Code:           NormalizeCode(code),
		RedeemedAt:     now,
	}, nil
}

// GenerateCode returns a fresh uppercase alphanumeric code.
func GenerateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:CodeLength])
}

// NormalizeCode trims and uppercases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository persists referrals.
type Repository interface {
	// Create returns ErrAlreadyReferred when the referred user already has a referral.
	Create(ctx context.Context, r *Referral) error

	// CountByReferrer counts successful referrals made by userID.
	CountByReferrer(ctx context.Context, referrerUserID string) (int, error)
}
