package gamification

import (
	"context"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores student progress.
type Repository interface {
	// Create returns ErrStudentAlreadyExists when the user already has a profile.
	Create(ctx context.Context, s *Student) error

	// GetByUserID returns ErrStudentNotFound when absent.
	GetByUserID(ctx context.Context, userID string) (*Student, error)

	// GetByUserIDForUpdate is GetByUserID holding a row lock until the transaction ends.
	GetByUserIDForUpdate(ctx context.Context, userID string) (*Student, error)

	// GetByReferralCode returns ErrReferralCodeNotFound when no profile owns the code.
	GetByReferralCode(ctx context.Context, code string) (*Student, error)

	// Update persists points, level, medals and referrer.
	Update(ctx context.Context, s *Student) error
}

// ActivityLog is the append-only audit trail.
type ActivityLog interface {
	// Append stores one entry.
	Append(ctx context.Context, entry ActivityLogEntry) error

	// ListByUser returns the newest entries first.
	ListByUser(ctx context.Context, userID string, limit int) ([]ActivityLogEntry, error)
}

// ProcessedEvents remembers idempotency keys.
type ProcessedEvents interface {
	// MarkProcessed records the key digest. It returns false when the key was seen before.
	MarkProcessed(ctx context.Context, digest string, at time.Time) (bool, error)
}

// UnitOfWork exposes every repository bound to one transaction.
type UnitOfWork interface {
	Students() Repository
	Activity() ActivityLog
	ProcessedEvents() ProcessedEvents
	Lessons() lesson.Repository
	Ratings() rating.Repository
	Referrals() referral.Repository
}

// UnitOfWorkFactory runs work inside transactions.
type UnitOfWorkFactory interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// ReadOnly runs fn without write guarantees.
	ReadOnly(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// Info is the "my progress" projection of a student.
type Info struct {
	UserID            string     `json:"userId"`
	Points            int        `json:"points"`
	Level             LevelTier  `json:"level"`
	NextLevel         *LevelTier `json:"nextLevel"`
	PointsToNextLevel int        `json:"pointsToNextLevel"`
	Medals            []Medal    `json:"medals"`
	TotalMedals       int        `json:"totalMedals"`
}

// BuildInfo projects a student into Info. Tiers are resolved from the point balance.
func BuildInfo(s *Student) Info {
	info := Info{
		UserID:            s.UserID,
		Points:            s.Points,
		Level:             ResolveLevel(s.Points),
		PointsToNextLevel: PointsToNextLevel(s.Points),
		Medals:            make([]Medal, 0, len(s.Medals)),
		TotalMedals:       TotalMedals(),
	}
	if next, ok := NextLevel(s.Points); ok {
		info.NextLevel = &next
	}
	for _, id := range s.Medals {
		if m, ok := LookupMedal(id); ok {
			info.Medals = append(info.Medals, m)
		}
	}
	return info
}

// InfoCache caches Info by user id.
//
// Every Invalidate bumps a per-user version. A reader takes Version before
// loading the snapshot it passes to Set, and Set discards the snapshot when
// the version moved in between, so a fill never outlives a newer commit.
type InfoCache interface {
	// Get returns an error wrapping a cache miss when absent.
	Get(ctx context.Context, userID string) (*Info, error)

	// Version returns the user's invalidation counter.
	Version(ctx context.Context, userID string) (int64, error)

	// Set stores info unless the user was invalidated after version was read.
	Set(ctx context.Context, info *Info, version int64, ttl time.Duration) error

	Invalidate(ctx context.Context, userID string) error
}
