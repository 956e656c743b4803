package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/lesson"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRM / CANCEL / COMPLETE LESSON COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// LessonStatusHandler moves lessons through their status machine.
type LessonStatusHandler struct {
	engine *progress.Engine
	logger *slog.Logger
}

// NewLessonStatusHandler creates a new LessonStatusHandler.
func NewLessonStatusHandler(engine *progress.Engine, logger *slog.Logger) *LessonStatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LessonStatusHandler{
		engine: engine,
		logger: logger.With("handler", "lesson_status"),
	}
}

// Confirm moves a scheduled lesson to confirmed.
func (h *LessonStatusHandler) Confirm(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	l, err := h.transition(ctx, lessonID, func(s *progress.Session, l *lesson.Lesson) error {
		return l.Confirm(s.Now())
	})
	if err != nil {
		return nil, fmt.Errorf("confirm_lesson: %w", err)
	}
	return l, nil
}

// Cancel cancels a lesson that has not finished.
func (h *LessonStatusHandler) Cancel(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	l, err := h.transition(ctx, lessonID, func(s *progress.Session, l *lesson.Lesson) error {
		if err := l.Cancel(s.Now()); err != nil {
			return err
		}
		s.Emit(shared.NewLessonEvent(shared.EventLessonCancelled, l.ID, l.StudentUserID, l.InstructorUserID, s.Now()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel_lesson: %w", err)
	}
	return l, nil
}

func (h *LessonStatusHandler) transition(ctx context.Context, lessonID string, apply func(*progress.Session, *lesson.Lesson) error) (*lesson.Lesson, error) {
	if lessonID == "" {
		return nil, shared.NewDomainError("lesson", "UpdateStatus", shared.ErrInvalidID, "lesson id is required")
	}

	var l *lesson.Lesson
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		var err error
		l, err = s.UnitOfWork().Lessons().GetByIDForUpdate(ctx, lessonID)
		if err != nil {
			return err
		}
		if err := apply(s, l); err != nil {
			return err
		}
		return s.UnitOfWork().Lessons().Update(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CompleteLessonCommand finishes a lesson and rewards the student.
type CompleteLessonCommand struct {
	LessonID string

	// CompletedAt defaults to now.
	CompletedAt time.Time
}

// CompleteLessonResult contains the finished lesson and what it earned.
type CompleteLessonResult struct {
	Lesson *lesson.Lesson       `json:"lesson"`
	Reward progress.LessonReward `json:"reward"`
}

// Complete marks the lesson completed and runs the lesson reward in the same transaction.
// The lesson's scheduled start decides the time-of-day medals.
func (h *LessonStatusHandler) Complete(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	if cmd.LessonID == "" {
		return nil, shared.NewDomainError("lesson", "Complete", shared.ErrInvalidID, "lesson id is required")
	}

	var result CompleteLessonResult
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		lessons := s.UnitOfWork().Lessons()
		l, err := lessons.GetByIDForUpdate(ctx, cmd.LessonID)
		if err != nil {
			return err
		}

		completedAt := cmd.CompletedAt
		if completedAt.IsZero() {
			completedAt = s.Now()
		}
		if err := l.Complete(completedAt.UTC(), s.Now()); err != nil {
			return err
		}
		if err := lessons.Update(ctx, l); err != nil {
			return err
		}
		s.Emit(shared.NewLessonEvent(shared.EventLessonCompleted, l.ID, l.StudentUserID, l.InstructorUserID, completedAt))

		reward, err := s.ProcessLessonCompletion(ctx, l.StudentUserID, l.ID, l.ScheduledAt,
			progress.WithIdempotencyKey("lesson-completed:"+l.ID))
		if err != nil {
			return err
		}
		result = CompleteLessonResult{Lesson: l, Reward: reward}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	h.logger.Info("lesson completed",
		"lesson_id", result.Lesson.ID,
		"student_id", result.Lesson.StudentUserID,
		"points", result.Reward.PointsAwarded,
		"medals", len(result.Reward.Medals),
	)
	return &result, nil
}
