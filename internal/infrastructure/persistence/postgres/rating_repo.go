package postgres

import (
	"context"
	"fmt"

	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// RatingRepository implements rating.Repository.
type RatingRepository struct {
	q Querier
}

// Create inserts a rating. The (lesson, rater) unique key rejects duplicates.
func (r *RatingRepository) Create(ctx context.Context, rt *rating.Rating) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ratings (id, lesson_id, rater_user_id, ratee_user_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rt.ID, rt.LessonID, rt.RaterUserID, rt.RateeUserID, rt.Score, rt.Comment, rt.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateRating
		}
		return fmt.Errorf("failed to create rating: %w", err)
	}
	return nil
}

// ExistsForLesson reports whether the rater already rated the lesson.
func (r *RatingRepository) ExistsForLesson(ctx context.Context, lessonID, raterUserID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ratings WHERE lesson_id = $1 AND rater_user_id = $2)
	`, lessonID, raterUserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check rating: %w", err)
	}
	return exists, nil
}

// CountPerfectReceived counts top scores received.
func (r *RatingRepository) CountPerfectReceived(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM ratings WHERE ratee_user_id = $1 AND score = $2
	`, userID, rating.MaxScore).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings: %w", err)
	}
	return n, nil
}

// GetSummary returns the stored summary or a zero one.
func (r *RatingRepository) GetSummary(ctx context.Context, userID string) (*rating.Summary, error) {
	s := rating.Summary{UserID: userID}
	err := r.q.QueryRow(ctx, `
		SELECT average, count, updated_at FROM rating_summaries WHERE user_id = $1
	`, userID).Scan(&s.Average, &s.Count, &s.UpdatedAt)
	if IsNoRows(err) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rating summary: %w", err)
	}
	return &s, nil
}

// GetSummaryForUpdate seeds an empty summary row when none exists and locks it.
// Without the seed a first rating would have no row to lock.
func (r *RatingRepository) GetSummaryForUpdate(ctx context.Context, userID string) (*rating.Summary, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO rating_summaries (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to seed rating summary: %w", err)
	}

	s := rating.Summary{UserID: userID}
	err = r.q.QueryRow(ctx, `
		SELECT average, count, updated_at FROM rating_summaries WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&s.Average, &s.Count, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to lock rating summary: %w", err)
	}
	return &s, nil
}

// SaveSummary upserts the summary.
func (r *RatingRepository) SaveSummary(ctx context.Context, s *rating.Summary) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO rating_summaries (user_id, average, count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET average = EXCLUDED.average, count = EXCLUDED.count, updated_at = EXCLUDED.updated_at
	`, s.UserID, s.Average, s.Count, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rating summary: %w", err)
	}
	return nil
}
