package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/drivehub/drivehub-api/internal/application/command"
	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/application/query"
)

// IdempotencyKeyHeader carries the optional award deduplication key.
const IdempotencyKeyHeader = "Idempotency-Key"

type createStudentRequest struct {
	UserID       string `json:"userId" validate:"required,max=64"`
	ReferralCode string `json:"referralCode" validate:"omitempty,alphanum,max=16"`
}

type userPathRequest struct {
	UserID string `param:"userId" validate:"required,max=64"`
}

type activityRequest struct {
	UserID string `param:"userId" validate:"required,max=64"`
	Limit  int    `query:"limit" validate:"gte=0,lte=100"`
}

type addPointsRequest struct {
	UserID string `param:"userId" json:"-" validate:"required,max=64"`
	Amount int    `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=64"`
}

type pointsResponse struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
}

// bindAndValidate binds path, query and body into req and validates it.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func (s *Server) handleCreateStudent(c echo.Context) error {
	var req createStudentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := s.deps.CreateStudentProfile.Handle(c.Request().Context(), command.CreateStudentProfileCommand{
		UserID:       req.UserID,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, result)
}

func (s *Server) handleGetGamificationInfo(c echo.Context) error {
	var req userPathRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	info, err := s.deps.GetGamificationInfo.Handle(c.Request().Context(), req.UserID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, info)
}

func (s *Server) handleGetActivity(c echo.Context) error {
	var req activityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	entries, err := s.deps.GetActivityHistory.Handle(c.Request().Context(), query.GetActivityHistoryQuery{
		UserID: req.UserID,
		Limit:  req.Limit,
	})
	if err != nil {
		return err
	}
	return respondWithMeta(c, http.StatusOK, entries, &ResponseMeta{Count: len(entries)})
}

func (s *Server) handleAddPoints(c echo.Context) error {
	var req addPointsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var opts []progress.AwardOption
	if key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader)); key != "" {
		opts = append(opts, progress.WithIdempotencyKey(key))
	}

	total, err := s.deps.Engine.AddPoints(c.Request().Context(), req.UserID, req.Amount, req.Reason, opts...)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pointsResponse{UserID: req.UserID, Points: total})
}
