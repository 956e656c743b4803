// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// maxCodeAttempts bounds referral code generation on collision.
const maxCodeAttempts = 5

// ══════════════════════════════════════════════════════════════════════════════
// CREATE STUDENT PROFILE COMMAND
// Opens the gamification profile of a learner account: level 1, no points,
// no medals and a fresh referral code. An optional code redeems a referral.
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentProfileCommand contains the data to create a profile.
type CreateStudentProfileCommand struct {
	// UserID is the owning account.
	UserID string

	// ReferralCode is another student's code, optional.
	ReferralCode string
}

// Validate validates the command.
func (c CreateStudentProfileCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	return nil
}

// CreateStudentProfileResult contains the created profile.
type CreateStudentProfileResult struct {
	Student *gamification.Student `json:"student"`

	// Referral is set when a referral code was redeemed.
	Referral *referral.Referral `json:"referral,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentProfileHandler handles CreateStudentProfileCommand.
type CreateStudentProfileHandler struct {
	engine       *progress.Engine
	generateCode func() string
	logger       *slog.Logger
}

// NewCreateStudentProfileHandler creates a new CreateStudentProfileHandler.
func NewCreateStudentProfileHandler(engine *progress.Engine, logger *slog.Logger) *CreateStudentProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateStudentProfileHandler{
		engine:       engine,
		generateCode: referral.GenerateCode,
		logger:       logger.With("handler", "create_student_profile"),
	}
}

// Handle executes the command.
func (h *CreateStudentProfileHandler) Handle(ctx context.Context, cmd CreateStudentProfileCommand) (*CreateStudentProfileResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(cmd.UserID)

	var result CreateStudentProfileResult
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		result = CreateStudentProfileResult{}

		code, err := h.uniqueCode(ctx, s)
		if err != nil {
			return err
		}

		st, err := gamification.NewStudent(gamification.NewStudentParams{
			ID:           s.NewID(),
			UserID:       userID,
			ReferralCode: code,
			Now:          s.Now(),
		})
		if err != nil {
			return err
		}
		if err := s.UnitOfWork().Students().Create(ctx, st); err != nil {
			return err
		}
		s.Emit(shared.NewStudentProfileCreatedEvent(st.UserID, st.ReferralCode))

		if cmd.ReferralCode != "" {
			ref, err := redeemReferral(ctx, s, userID, cmd.ReferralCode)
			if err != nil {
				return err
			}
			result.Referral = ref
			if st, err = s.UnitOfWork().Students().GetByUserID(ctx, userID); err != nil {
				return err
			}
		}

		result.Student = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create_student_profile: %w", err)
	}

	h.logger.Info("student profile created",
		"user_id", userID,
		"referred", result.Referral != nil,
	)
	return &result, nil
}

func (h *CreateStudentProfileHandler) uniqueCode(ctx context.Context, s *progress.Session) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := h.generateCode()
		_, err := s.UnitOfWork().Students().GetByReferralCode(ctx, code)
		if errors.Is(err, shared.ErrReferralCodeNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check referral code: %w", err)
		}
	}
	return "", shared.NewDomainError("student", "Create", shared.ErrConcurrentModification, "could not allocate a unique referral code")
}
