// Package lesson models a scheduled driving lesson and its status lifecycle.
package lesson

import (
	"context"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// Status of a lesson.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal returns true for statuses without outgoing transitions.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Lesson is a single driving lesson between a student and an instructor.
type Lesson struct {
	ID               string     `json:"id"`
	StudentUserID    string     `json:"studentUserId"`
	InstructorUserID string     `json:"instructorUserId"`
	ScheduledAt      time.Time  `json:"scheduledAt"`
	Status           Status     `json:"status"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewLesson creates a scheduled lesson.
func NewLesson(id, studentUserID, instructorUserID string, scheduledAt, now time.Time) (*Lesson, error) {
	if id == "" || studentUserID == "" || instructorUserID == "" {
		return nil, shared.NewDomainError("lesson", "Schedule", shared.ErrEmptyValue, "lesson id and participants are required")
	}
	if studentUserID == instructorUserID {
		return nil, shared.ErrSameParticipant
	}
	if scheduledAt.IsZero() {
		return nil, shared.NewDomainError("lesson", "Schedule", shared.ErrEmptyValue, "scheduled time is required")
	}
	return &Lesson{
		ID:               id,
		StudentUserID:    studentUserID,
		InstructorUserID: instructorUserID,
		ScheduledAt:      scheduledAt,
		Status:           StatusScheduled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (l *Lesson) transition(next Status, now time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return shared.WrapError("lesson", "UpdateStatus", shared.ErrStateTransition,
			string(l.Status)+" -> "+string(next), shared.ErrInvalidLessonTransition)
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}

// Confirm moves a scheduled lesson to confirmed.
func (l *Lesson) Confirm(now time.Time) error {
	return l.transition(StatusConfirmed, now)
}

// Complete marks the lesson finished at completedAt.
func (l *Lesson) Complete(completedAt, now time.Time) error {
	if err := l.transition(StatusCompleted, now); err != nil {
		return err
	}
	at := completedAt
	l.CompletedAt = &at
	return nil
}

// Cancel marks the lesson cancelled.
func (l *Lesson) Cancel(now time.Time) error {
	return l.transition(StatusCancelled, now)
}

// HasParticipant reports whether userID is the student or the instructor.
func (l *Lesson) HasParticipant(userID string) bool {
	return userID == l.StudentUserID || userID == l.InstructorUserID
}

// Counterpart returns the other participant.
func (l *Lesson) Counterpart(userID string) (string, bool) {
	switch userID {
	case l.StudentUserID:
		return l.InstructorUserID, true
	case l.InstructorUserID:
		return l.StudentUserID, true
	default:
		return "", false
	}
}

// Repository persists lessons.
type Repository interface {
	// Create stores a new lesson.
	Create(ctx context.Context, l *Lesson) error

	// GetByID returns ErrLessonNotFound when absent.
	GetByID(ctx context.Context, id string) (*Lesson, error)

	// GetByIDForUpdate is GetByID holding a row lock until the transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*Lesson, error)

	// Update persists status changes.
	Update(ctx context.Context, l *Lesson) error

	// CountCompletedByStudent counts lessons in StatusCompleted for a student.
	CountCompletedByStudent(ctx context.Context, studentUserID string) (int, error)

	// ListByStudent returns a student's lessons, newest scheduled first.
	ListByStudent(ctx context.Context, studentUserID string, limit int) ([]*Lesson, error)
}
