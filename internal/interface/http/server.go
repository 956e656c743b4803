// Package http exposes the gamification core over a JSON REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drivehub/drivehub-api/internal/application/command"
	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/application/query"
	"github.com/drivehub/drivehub-api/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Debug - return raw error text in responses.
	Debug bool

	// DisableRequestLogs - skip per-request access logs.
	DisableRequestLogs bool

	// AdminAPIKey - required in X-API-Key for admin endpoints. Empty disables them.
	AdminAPIKey string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the HTTP handlers call into.
type Dependencies struct {
	Engine *progress.Engine

	// Command Handlers (CQRS Write Side)
	CreateStudentProfile *command.CreateStudentProfileHandler
	RedeemReferral       *command.RedeemReferralHandler
	ScheduleLesson       *command.ScheduleLessonHandler
	LessonStatus         *command.LessonStatusHandler
	SubmitRating         *command.SubmitRatingHandler

	// Query Handlers (CQRS Read Side)
	GetGamificationInfo *query.GetGamificationInfoHandler
	GetActivityHistory  *query.GetActivityHistoryHandler
	GetRatingSummary    *query.GetRatingSummaryHandler

	HealthChecker handlers.HealthChecker
	Logger        *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	app    *echo.Echo
	logger *slog.Logger
}

// NewServer creates a new HTTP server with routes and middleware installed.
func NewServer(config Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewChecker("")
	}

	s := &Server{
		config: config,
		deps:   deps,
		app:    echo.New(),
		logger: logger.With("component", "http"),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = s.config.Debug
	s.app.Validator = NewValidator()
	s.app.HTTPErrorHandler = s.errorHandler

	s.app.Server.ReadTimeout = s.config.ReadTimeout
	s.app.Server.WriteTimeout = s.config.WriteTimeout
	s.app.Server.IdleTimeout = s.config.IdleTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !s.config.DisableRequestLogs {
		s.app.Use(s.requestLogger())
	}
	s.app.Use(middleware.Recover())

	s.app.GET("/health", s.handleHealth)
	s.app.GET("/health/live", s.handleLive)

	v1 := s.app.Group("/v1")

	v1.POST("/students", s.handleCreateStudent)
	v1.GET("/students/:userId/gamification", s.handleGetGamificationInfo)
	v1.GET("/students/:userId/activity", s.handleGetActivity)
	if s.config.AdminAPIKey != "" {
		v1.POST("/students/:userId/points", s.handleAddPoints, s.adminOnly())
	}

	v1.POST("/lessons", s.handleScheduleLesson)
	v1.POST("/lessons/:id/confirm", s.handleConfirmLesson)
	v1.POST("/lessons/:id/complete", s.handleCompleteLesson)
	v1.POST("/lessons/:id/cancel", s.handleCancelLesson)

	v1.POST("/ratings", s.handleSubmitRating)
	v1.GET("/users/:userId/rating", s.handleGetRatingSummary)

	v1.POST("/referrals/redeem", s.handleRedeemReferral)

	v1.GET("/levels", s.handleListLevels)
	v1.GET("/medals", s.handleListMedals)
}

// requestLogger feeds echo's request logger into slog.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// adminOnly checks the X-API-Key header against the configured key.
func (s *Server) adminOnly() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return key == s.config.AdminAPIKey, nil
		},
	})
}

// Start serves until Shutdown. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "address", s.config.Address())
	if err := s.app.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Count     int       `json:"count,omitempty"`
}

func respond(c echo.Context, status int, data interface{}) error {
	return respondWithMeta(c, status, data, nil)
}

func respondWithMeta(c echo.Context, status int, data interface{}, meta *ResponseMeta) error {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	return c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	})
}
