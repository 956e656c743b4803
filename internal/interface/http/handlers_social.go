package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drivehub/drivehub-api/internal/application/command"
	"github.com/drivehub/drivehub-api/internal/application/query"
)

type submitRatingRequest struct {
	LessonID    string `json:"lessonId" validate:"required,uuid"`
	RaterUserID string `json:"raterUserId" validate:"required,max=64"`
	RateeUserID string `json:"rateeUserId" validate:"required,max=64,nefield=RaterUserID"`
	Score       int    `json:"score" validate:"required,min=1,max=5"`
	Comment     string `json:"comment" validate:"max=500"`
}

type redeemReferralRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
	Code   string `json:"code" validate:"required,alphanum,max=16"`
}

func (s *Server) handleSubmitRating(c echo.Context) error {
	var req submitRatingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := s.deps.SubmitRating.Handle(c.Request().Context(), command.SubmitRatingCommand{
		LessonID:    req.LessonID,
		RaterUserID: req.RaterUserID,
		RateeUserID: req.RateeUserID,
		Score:       req.Score,
		Comment:     req.Comment,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, result)
}

func (s *Server) handleGetRatingSummary(c echo.Context) error {
	var req userPathRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	summary, err := s.deps.GetRatingSummary.Handle(c.Request().Context(), req.UserID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, summary)
}

func (s *Server) handleRedeemReferral(c echo.Context) error {
	var req redeemReferralRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ref, err := s.deps.RedeemReferral.Handle(c.Request().Context(), command.RedeemReferralCommand{
		UserID: req.UserID,
		Code:   req.Code,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, ref)
}

func (s *Server) handleListLevels(c echo.Context) error {
	levels := query.ListLevels()
	return respondWithMeta(c, http.StatusOK, levels, &ResponseMeta{Count: len(levels)})
}

func (s *Server) handleListMedals(c echo.Context) error {
	medals := query.ListMedals()
	return respondWithMeta(c, http.StatusOK, medals, &ResponseMeta{Count: len(medals)})
}

func (s *Server) handleHealth(c echo.Context) error {
	report := s.deps.HealthChecker.Check(c.Request().Context())
	if !report.Healthy() {
		return respond(c, http.StatusServiceUnavailable, report)
	}
	return respond(c, http.StatusOK, report)
}

func (s *Server) handleLive(c echo.Context) error {
	return respond(c, http.StatusOK, map[string]string{"status": "alive"})
}
