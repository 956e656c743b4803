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
// SCHEDULE LESSON COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleLessonCommand books a lesson between a student and an instructor.
type ScheduleLessonCommand struct {
	StudentUserID    string
	InstructorUserID string
	ScheduledAt      time.Time
}

// Validate validates the command.
func (c ScheduleLessonCommand) Validate() error {
	if c.StudentUserID == "" || c.InstructorUserID == "" {
		return shared.NewDomainError("lesson", "Schedule", shared.ErrEmptyValue, "student and instructor are required")
	}
	if c.StudentUserID == c.InstructorUserID {
		return shared.ErrSameParticipant
	}
	if c.ScheduledAt.IsZero() {
		return shared.NewDomainError("lesson", "Schedule", shared.ErrEmptyValue, "scheduled time is required")
	}
	return nil
}

// ScheduleLessonHandler handles ScheduleLessonCommand.
type ScheduleLessonHandler struct {
	engine *progress.Engine
	logger *slog.Logger
}

// NewScheduleLessonHandler creates a new ScheduleLessonHandler.
func NewScheduleLessonHandler(engine *progress.Engine, logger *slog.Logger) *ScheduleLessonHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleLessonHandler{
		engine: engine,
		logger: logger.With("handler", "schedule_lesson"),
	}
}

// Handle executes the command. The student must have a profile.
func (h *ScheduleLessonHandler) Handle(ctx context.Context, cmd ScheduleLessonCommand) (*lesson.Lesson, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var l *lesson.Lesson
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		uow := s.UnitOfWork()
		if _, err := uow.Students().GetByUserID(ctx, cmd.StudentUserID); err != nil {
			return err
		}

		var err error
		l, err = lesson.NewLesson(s.NewID(), cmd.StudentUserID, cmd.InstructorUserID, cmd.ScheduledAt.UTC(), s.Now())
		if err != nil {
			return err
		}
		if err := uow.Lessons().Create(ctx, l); err != nil {
			return err
		}
		s.Emit(shared.NewLessonEvent(shared.EventLessonScheduled, l.ID, l.StudentUserID, l.InstructorUserID, l.ScheduledAt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("schedule_lesson: %w", err)
	}

	h.logger.Debug("lesson scheduled", "lesson_id", l.ID, "student_id", l.StudentUserID)
	return l, nil
}
