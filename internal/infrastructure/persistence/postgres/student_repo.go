package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements gamification.Repository for PostgreSQL.
type StudentRepository struct {
	q Querier
}

const studentColumns = `id, user_id, points, level, medals, referral_code, COALESCE(referred_by, ''), created_at, updated_at`

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *gamification.Student) error {
	query := `
		INSERT INTO students (
			id, user_id, points, level, medals, referral_code, referred_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`

	_, err := r.q.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.Points,
		s.Level,
		medalsToStrings(s.Medals),
		s.ReferralCode,
		s.ReferredBy,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			if strings.Contains(err.Error(), "referral_code") {
				return shared.NewDomainError("student", "Create", shared.ErrAlreadyExists, "referral code already taken")
			}
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByUserID returns a student by owning account.
func (r *StudentRepository) GetByUserID(ctx context.Context, userID string) (*gamification.Student, error) {
	row := r.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID)
	return scanStudent(row, shared.ErrStudentNotFound)
}

// GetByUserIDForUpdate locks the row until the transaction ends.
func (r *StudentRepository) GetByUserIDForUpdate(ctx context.Context, userID string) (*gamification.Student, error) {
	row := r.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE user_id = $1 FOR UPDATE`, userID)
	return scanStudent(row, shared.ErrStudentNotFound)
}

// GetByReferralCode returns the owner of a referral code.
func (r *StudentRepository) GetByReferralCode(ctx context.Context, code string) (*gamification.Student, error) {
	row := r.q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE referral_code = $1`, code)
	return scanStudent(row, shared.ErrReferralCodeNotFound)
}

// Update persists the mutable progress fields.
func (r *StudentRepository) Update(ctx context.Context, s *gamification.Student) error {
	query := `
		UPDATE students SET
			points = $1,
			level = $2,
			medals = $3,
			referred_by = NULLIF($4, ''),
			updated_at = $5
		WHERE user_id = $6
	`

	result, err := r.q.Exec(ctx, query,
		s.Points,
		s.Level,
		medalsToStrings(s.Medals),
		s.ReferredBy,
		s.UpdatedAt,
		s.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func scanStudent(row pgx.Row, notFound error) (*gamification.Student, error) {
	var s gamification.Student
	var medals []string

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Points,
		&s.Level,
		&medals,
		&s.ReferralCode,
		&s.ReferredBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.Medals = make([]gamification.MedalID, 0, len(medals))
	for _, m := range medals {
		s.Medals = append(s.Medals, gamification.MedalID(m))
	}
	return &s, nil
}

func medalsToStrings(medals []gamification.MedalID) []string {
	out := make([]string, len(medals))
	for i, m := range medals {
		out[i] = string(m)
	}
	return out
}
