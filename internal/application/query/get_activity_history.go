package query

import (
	"context"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetActivityHistoryQuery lists a student's audit trail.
type GetActivityHistoryQuery struct {
	UserID string

	// Limit defaults to 20 and is capped at 100.
	Limit int
}

// Validate checks the query and applies limit defaults.
func (q *GetActivityHistoryQuery) Validate() error {
	if q.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if q.Limit < 0 {
		return shared.NewDomainError("activity", "List", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}
	if q.Limit > maxHistoryLimit {
		q.Limit = maxHistoryLimit
	}
	return nil
}

// GetActivityHistoryHandler reads the activity log.
type GetActivityHistoryHandler struct {
	store gamification.UnitOfWorkFactory
}

// NewGetActivityHistoryHandler creates a new handler.
func NewGetActivityHistoryHandler(store gamification.UnitOfWorkFactory) *GetActivityHistoryHandler {
	return &GetActivityHistoryHandler{store: store}
}

// Handle returns entries newest first.
func (h *GetActivityHistoryHandler) Handle(ctx context.Context, q GetActivityHistoryQuery) ([]gamification.ActivityLogEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var entries []gamification.ActivityLogEntry
	err := h.store.ReadOnly(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		if _, err := uow.Students().GetByUserID(ctx, q.UserID); err != nil {
			return err
		}
		var err error
		entries, err = uow.Activity().ListByUser(ctx, q.UserID, q.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
