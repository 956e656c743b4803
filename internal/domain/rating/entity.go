// Package rating holds lesson ratings and the per-user rolling average.
package rating

import (
	"context"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Rating is one participant's score for the other after a lesson.
type Rating struct {
	ID          string    `json:"id"`
	LessonID    string    `json:"lessonId"`
	RaterUserID string    `json:"raterUserId"`
	RateeUserID string    `json:"rateeUserId"`
	Score       int       `json:"score"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRating validates the score and participants.
func NewRating(id, lessonID, raterUserID, rateeUserID string, score int, comment string, now time.Time) (*Rating, error) {
	if score < MinScore || score > MaxScore {
		return nil, shared.ErrInvalidRating
	}
	if raterUserID == rateeUserID {
		return nil, shared.ErrSelfRating
	}
	return &Rating{
		ID:          id,
		LessonID:    lessonID,
		RaterUserID: raterUserID,
		RateeUserID: rateeUserID,
		Score:       score,
		Comment:     comment,
		CreatedAt:   now,
	}, nil
}

// IsPerfect reports a top score.
func (r *Rating) IsPerfect() bool {
	return r.Score == MaxScore
}

// Summary is the rolling average of scores a user has received.
type Summary struct {
	UserID    string    `json:"userId"`
	Average   float64   `json:"average"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Add folds a new score into the average:
// total = avg*count; count++; avg = (total+score)/count.
func (s *Summary) Add(score int, now time.Time) {
	total := s.Average * float64(s.Count)
	s.Count++
	s.Average = (total + float64(score)) / float64(s.Count)
	s.UpdatedAt = now
}

// Repository persists ratings and summaries.
type Repository interface {
	// Create returns ErrDuplicateRating when (lesson, rater) already exists.
	Create(ctx context.Context, r *Rating) error

	// ExistsForLesson reports whether rater already rated the lesson.
	ExistsForLesson(ctx context.Context, lessonID, raterUserID string) (bool, error)

	// CountPerfectReceived counts top-score ratings received by userID.
	CountPerfectReceived(ctx context.Context, userID string) (int, error)

	// GetSummary returns a zero summary when the user has no ratings yet.
	GetSummary(ctx context.Context, userID string) (*Summary, error)

	// GetSummaryForUpdate is GetSummary holding a row lock until the
	// transaction ends, so concurrent ratings of one user apply in turn.
	GetSummaryForUpdate(ctx context.Context, userID string) (*Summary, error)

	// SaveSummary upserts the summary.
	SaveSummary(ctx context.Context, s *Summary) error
}
