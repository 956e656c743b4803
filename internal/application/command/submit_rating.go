package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT RATING COMMAND
// A participant scores the other after a completed lesson. The ratee's
// rolling average is updated and both sides are rewarded when they are students.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitRatingCommand contains the rating data.
type SubmitRatingCommand struct {
	LessonID    string
	RaterUserID string
	RateeUserID string
	Score       int
	Comment     string
}

// Validate validates the command.
func (c SubmitRatingCommand) Validate() error {
	if c.LessonID == "" {
		return shared.NewDomainError("rating", "Submit", shared.ErrInvalidID, "lesson id is required")
	}
	if c.RaterUserID == "" || c.RateeUserID == "" {
		return shared.ErrInvalidUserID
	}
	if c.Score < rating.MinScore || c.Score > rating.MaxScore {
		return shared.ErrInvalidRating
	}
	if c.RaterUserID == c.RateeUserID {
		return shared.ErrSelfRating
	}
	return nil
}

// SubmitRatingResult contains the stored rating and the ratee's new summary.
type SubmitRatingResult struct {
	Rating  *rating.Rating  `json:"rating"`
	Summary *rating.Summary `json:"summary"`
}

// SubmitRatingHandler handles SubmitRatingCommand.
type SubmitRatingHandler struct {
	engine *progress.Engine
	logger *slog.Logger
}

// NewSubmitRatingHandler creates a new SubmitRatingHandler.
func NewSubmitRatingHandler(engine *progress.Engine, logger *slog.Logger) *SubmitRatingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitRatingHandler{
		engine: engine,
		logger: logger.With("handler", "submit_rating"),
	}
}

// Handle executes the command.
func (h *SubmitRatingHandler) Handle(ctx context.Context, cmd SubmitRatingCommand) (*SubmitRatingResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result SubmitRatingResult
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		uow := s.UnitOfWork()

		l, err := uow.Lessons().GetByID(ctx, cmd.LessonID)
		if err != nil {
			return err
		}
		if l.Status != lesson.StatusCompleted {
			return shared.ErrLessonNotCompleted
		}
		if !l.HasParticipant(cmd.RaterUserID) || !l.HasParticipant(cmd.RateeUserID) {
			return shared.ErrNotLessonMember
		}

		exists, err := uow.Ratings().ExistsForLesson(ctx, cmd.LessonID, cmd.RaterUserID)
		if err != nil {
			return fmt.Errorf("check existing rating: %w", err)
		}
		if exists {
			return shared.ErrDuplicateRating
		}

		now := s.Now()
		r, err := rating.NewRating(s.NewID(), cmd.LessonID, cmd.RaterUserID, cmd.RateeUserID, cmd.Score, cmd.Comment, now)
		if err != nil {
			return err
		}
		if err := uow.Ratings().Create(ctx, r); err != nil {
			return err
		}

		summary, err := uow.Ratings().GetSummaryForUpdate(ctx, cmd.RateeUserID)
		if err != nil {
			return fmt.Errorf("load rating summary: %w", err)
		}
		summary.Add(r.Score, now)
		if err := uow.Ratings().SaveSummary(ctx, summary); err != nil {
			return fmt.Errorf("save rating summary: %w", err)
		}
		s.Emit(shared.NewRatingSubmittedEvent(r.LessonID, r.RaterUserID, r.RateeUserID, r.Score, summary.Average))

		if ok, err := isStudent(ctx, uow, r.RaterUserID); err != nil {
			return err
		} else if ok {
			if err := s.ProcessRatingGiven(ctx, r.RaterUserID); err != nil {
				return err
			}
		}
		if ok, err := isStudent(ctx, uow, r.RateeUserID); err != nil {
			return err
		} else if ok {
			if err := s.ProcessRatingReceived(ctx, r.RateeUserID, r.Score); err != nil {
				return err
			}
		}

		result = SubmitRatingResult{Rating: r, Summary: summary}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit_rating: %w", err)
	}

	h.logger.Info("rating submitted",
		"lesson_id", cmd.LessonID,
		"ratee_id", cmd.RateeUserID,
		"score", cmd.Score,
		"average", result.Summary.Average,
	)
	return &result, nil
}

// isStudent reports whether the user has a gamification profile.
// Instructors have none.
func isStudent(ctx context.Context, uow gamification.UnitOfWork, userID string) (bool, error) {
	_, err := uow.Students().GetByUserID(ctx, userID)
	if errors.Is(err, shared.ErrStudentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
