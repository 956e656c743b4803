package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// LessonRepository implements lesson.Repository.
type LessonRepository struct {
	q Querier
}

const lessonColumns = `id, student_user_id, instructor_user_id, scheduled_at, status, completed_at, created_at, updated_at`

// Create inserts a lesson.
func (r *LessonRepository) Create(ctx context.Context, l *lesson.Lesson) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO lessons (`+lessonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.StudentUserID, l.InstructorUserID, l.ScheduledAt, string(l.Status), l.CompletedAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("lesson", "Create", shared.ErrAlreadyExists, "lesson already exists")
		}
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	return nil
}

// GetByID returns a lesson.
func (r *LessonRepository) GetByID(ctx context.Context, id string) (*lesson.Lesson, error) {
	return scanLesson(r.q.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
}

// GetByIDForUpdate returns a lesson holding its row lock.
func (r *LessonRepository) GetByIDForUpdate(ctx context.Context, id string) (*lesson.Lesson, error) {
	return scanLesson(r.q.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1 FOR UPDATE`, id))
}

// Update persists status changes.
func (r *LessonRepository) Update(ctx context.Context, l *lesson.Lesson) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE lessons SET status = $1, completed_at = $2, updated_at = $3
		WHERE id = $4
	`, string(l.Status), l.CompletedAt, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLessonNotFound
	}
	return nil
}

// CountCompletedByStudent counts finished lessons of a student.
func (r *LessonRepository) CountCompletedByStudent(ctx context.Context, studentUserID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM lessons WHERE student_user_id = $1 AND status = 'completed'
	`, studentUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count lessons: %w", err)
	}
	return n, nil
}

// ListByStudent returns lessons, latest scheduled first.
func (r *LessonRepository) ListByStudent(ctx context.Context, studentUserID string, limit int) ([]*lesson.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE student_user_id = $1 ORDER BY scheduled_at DESC`
	args := []interface{}{studentUserID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	lessons := make([]*lesson.Lesson, 0)
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

func scanLesson(row pgx.Row) (*lesson.Lesson, error) {
	var l lesson.Lesson
	var status string
	err := row.Scan(&l.ID, &l.StudentUserID, &l.InstructorUserID, &l.ScheduledAt, &status, &l.CompletedAt, &l.CreatedAt, &l.UpdatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lesson: %w", err)
	}
	l.Status = lesson.Status(status)
	return &l, nil
}
