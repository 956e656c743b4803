package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Store runs units of work in PostgreSQL transactions.
type Store struct {
	db *DB
}

var _ gamification.UnitOfWorkFactory = (*Store)(nil)

// NewStore creates a Store over an open pool.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a read-write transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	return s.db.WithTx(ctx, readWrite, func(tx pgx.Tx) error {
		return fn(ctx, unitOfWork{q: tx})
	})
}

// ReadOnly runs fn in a read-only transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, uow gamification.UnitOfWork) error) error {
	return s.db.WithTx(ctx, readOnly, func(tx pgx.Tx) error {
		return fn(ctx, unitOfWork{q: tx})
	})
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type unitOfWork struct {
	q Querier
}

func (u unitOfWork) Students() gamification.Repository             { return &StudentRepository{q: u.q} }
func (u unitOfWork) Activity() gamification.ActivityLog            { return &ActivityLogRepository{q: u.q} }
func (u unitOfWork) ProcessedEvents() gamification.ProcessedEvents { return &ProcessedEventRepository{q: u.q} }
func (u unitOfWork) Lessons() lesson.Repository                    { return &LessonRepository{q: u.q} }
func (u unitOfWork) Ratings() rating.Repository                    { return &RatingRepository{q: u.q} }
func (u unitOfWork) Referrals() referral.Repository                { return &ReferralRepository{q: u.q} }
