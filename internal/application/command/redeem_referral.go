package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/referral"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDEEM REFERRAL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RedeemReferralCommand links a student to the owner of a referral code.
type RedeemReferralCommand struct {
	UserID string
	Code   string
}

// Validate validates the command.
func (c RedeemReferralCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	if strings.TrimSpace(c.Code) == "" {
		return shared.NewDomainError("referral", "Redeem", shared.ErrEmptyValue, "code is required")
	}
	return nil
}

// RedeemReferralHandler handles RedeemReferralCommand.
type RedeemReferralHandler struct {
	engine *progress.Engine
	logger *slog.Logger
}

// NewRedeemReferralHandler creates a new RedeemReferralHandler.
func NewRedeemReferralHandler(engine *progress.Engine, logger *slog.Logger) *RedeemReferralHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedeemReferralHandler{
		engine: engine,
		logger: logger.With("handler", "redeem_referral"),
	}
}

// Handle executes the command.
func (h *RedeemReferralHandler) Handle(ctx context.Context, cmd RedeemReferralCommand) (*referral.Referral, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var ref *referral.Referral
	err := h.engine.Run(ctx, func(ctx context.Context, s *progress.Session) error {
		var err error
		ref, err = redeemReferral(ctx, s, strings.TrimSpace(cmd.UserID), cmd.Code)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redeem_referral: %w", err)
	}

	h.logger.Info("referral redeemed",
		"referrer_id", ref.ReferrerUserID,
		"referred_id", ref.ReferredUserID,
	)
	return ref, nil
}

// redeemReferral records the referral and rewards the referrer.
// The referred user must already have a student profile.
func redeemReferral(ctx context.Context, s *progress.Session, userID, code string) (*referral.Referral, error) {
	uow := s.UnitOfWork()
	code = referral.NormalizeCode(code)

	referrer, err := uow.Students().GetByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if referrer.UserID == userID {
		return nil, shared.ErrSelfReferral
	}

	st, err := uow.Students().GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if err := st.SetReferrer(referrer.UserID, now); err != nil {
		return nil, err
	}
	if err := uow.Students().Update(ctx, st); err != nil {
		return nil, fmt.Errorf("update referred student: %w", err)
	}

	ref, err := referral.NewReferral(s.NewID(), referrer.UserID, userID, code, now)
	if err != nil {
		return nil, err
	}
	if err := uow.Referrals().Create(ctx, ref); err != nil {
		return nil, err
	}

	if err := s.ProcessReferralRedeemed(ctx, referrer.UserID, userID,
		progress.WithIdempotencyKey("referral-redeemed:"+userID)); err != nil {
		return nil, err
	}
	s.Emit(shared.NewReferralRedeemedEvent(referrer.UserID, userID, code))
	return ref, nil
}
