package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drivehub/drivehub-api/internal/application/command"
)

type scheduleLessonRequest struct {
	StudentUserID    string    `json:"studentUserId" validate:"required,max=64"`
	InstructorUserID string    `json:"instructorUserId" validate:"required,max=64,nefield=StudentUserID"`
	ScheduledAt      time.Time `json:"scheduledAt" validate:"required"`
}

type lessonPathRequest struct {
	LessonID string `param:"id" validate:"required,uuid"`
}

type completeLessonRequest struct {
	LessonID    string     `param:"id" json:"-" validate:"required,uuid"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (s *Server) handleScheduleLesson(c echo.Context) error {
	var req scheduleLessonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	l, err := s.deps.ScheduleLesson.Handle(c.Request().Context(), command.ScheduleLessonCommand{
		StudentUserID:    req.StudentUserID,
		InstructorUserID: req.InstructorUserID,
		ScheduledAt:      req.ScheduledAt,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, l)
}

func (s *Server) handleConfirmLesson(c echo.Context) error {
	var req lessonPathRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	l, err := s.deps.LessonStatus.Confirm(c.Request().Context(), req.LessonID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, l)
}

func (s *Server) handleCancelLesson(c echo.Context) error {
	var req lessonPathRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	l, err := s.deps.LessonStatus.Cancel(c.Request().Context(), req.LessonID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, l)
}

func (s *Server) handleCompleteLesson(c echo.Context) error {
	var req completeLessonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	cmd := command.CompleteLessonCommand{LessonID: req.LessonID}
	if req.CompletedAt != nil {
		cmd.CompletedAt = *req.CompletedAt
	}

	result, err := s.deps.LessonStatus.Complete(c.Request().Context(), cmd)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}
