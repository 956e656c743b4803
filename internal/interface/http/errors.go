package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// errorHandler renders every handler error as a JSONResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := s.classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	if s.app.Debug && apiErr.Fields == nil {
		apiErr.Message = err.Error()
	}

	var sendErr error
	if c.Request().Method == http.MethodHead {
		sendErr = c.NoContent(status)
	} else {
		sendErr = c.JSON(status, JSONResponse{
			Success:   false,
			Error:     apiErr,
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		})
	}
	if sendErr != nil {
		s.logger.Error("failed to send error response", "error", sendErr)
	}
}

func (s *Server) classify(err error) (int, *APIError) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if inner, ok := httpErr.Internal.(*echo.HTTPError); ok {
			httpErr = inner
		}
		return httpErr.Code, &APIError{
			Code:    codeForStatus(httpErr.Code),
			Message: fmt.Sprint(httpErr.Message),
		}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		v, _ := s.app.Validator.(*Validator)
		apiErr := &APIError{Code: "validation_failed", Message: "request validation failed"}
		if v != nil {
			apiErr.Fields = v.Translate(verrs)
		}
		return http.StatusBadRequest, apiErr
	}

	message := http.StatusText(http.StatusInternalServerError)
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, &APIError{Code: "not_found", Message: message}
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, &APIError{Code: "already_exists", Message: message}
	case shared.IsValidation(err):
		return http.StatusBadRequest, &APIError{Code: "invalid_input", Message: message}
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, &APIError{Code: "forbidden", Message: message}
	case shared.IsConflict(err):
		return http.StatusConflict, &APIError{Code: "conflict", Message: message}
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, &APIError{Code: "concurrent_modification", Message: "please retry"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &APIError{Code: "timeout", Message: "request timed out"}
	default:
		return http.StatusInternalServerError, &APIError{
			Code:    "internal_error",
			Message: http.StatusText(http.StatusInternalServerError),
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "error"
	}
}
