package gamification

import (
	"strings"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Student is the gamification aggregate of a learner account.
type Student struct {
	// ID - internal UUID.
	ID string `json:"id"`

	// UserID - owning account, unique.
	UserID string `json:"userId"`

	// Points - current balance.
	Points int `json:"points"`

	// Level - stored level, only ever raised.
	Level int `json:"level"`

	// Medals - granted medal ids in grant order, no duplicates.
	Medals []MedalID `json:"medals"`

	// ReferralCode - code other users redeem to credit this student.
	ReferralCode string `json:"referralCode"`

	// ReferredBy - user id of the referrer, empty when none.
	ReferredBy string `json:"referredBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewStudentParams holds the inputs for a fresh profile.
type NewStudentParams struct {
	ID           string
	UserID       string
	ReferralCode string
	Now          time.Time
}

// NewStudent creates a profile at level 1 with no points and no medals.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("student", "Create", shared.ErrEmptyValue, "student id is required")
	}
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if params.ReferralCode == "" {
		return nil, shared.NewDomainError("student", "Create", shared.ErrEmptyValue, "referral code is required")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Student{
		ID:           params.ID,
		UserID:       userID,
		Points:       0,
		Level:        MinLevel,
		Medals:       []MedalID{},
		ReferralCode: params.ReferralCode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// AddPoints applies amount to the balance and returns the new total.
// Any integer is accepted.
func (s *Student) AddPoints(amount int, now time.Time) int {
	s.Points += amount
	s.UpdatedAt = now
	return s.Points
}

// RaiseLevel stores level when it is above the current one.
// Returns false and leaves the level untouched otherwise.
func (s *Student) RaiseLevel(level int, now time.Time) bool {
	if level <= s.Level {
		return false
	}
	s.Level = level
	s.UpdatedAt = now
	return true
}

// HasMedal reports whether the medal was already granted.
func (s *Student) HasMedal(id MedalID) bool {
	for _, m := range s.Medals {
		if m == id {
			return true
		}
	}
	return false
}

// GrantMedal appends id once. Returns false when already held.
func (s *Student) GrantMedal(id MedalID, now time.Time) bool {
	if s.HasMedal(id) {
		return false
	}
	s.Medals = append(s.Medals, id)
	s.UpdatedAt = now
	return true
}

// SetReferrer records who referred this student. It can only be set once.
func (s *Student) SetReferrer(referrerUserID string, now time.Time) error {
	if referrerUserID == s.UserID {
		return shared.ErrSelfReferral
	}
	if s.ReferredBy != "" {
		return shared.ErrAlreadyReferred
	}
	s.ReferredBy = referrerUserID
	s.UpdatedAt = now
	return nil
}

// CurrentTier resolves the stored level to its table row.
func (s *Student) CurrentTier() LevelTier {
	tier, ok := TierFor(s.Level)
	if !ok {
		return ResolveLevel(s.Points)
	}
	return tier
}

// Clone returns a deep copy.
func (s *Student) Clone() *Student {
	c := *s
	c.Medals = append([]MedalID(nil), s.Medals...)
	return &c
}
