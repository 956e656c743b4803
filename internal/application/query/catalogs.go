package query

import (
	"context"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/rating"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ListLevels returns the level table in ascending order.
func ListLevels() []gamification.LevelTier {
	return gamification.Levels()
}

// ListMedals returns the medal catalog.
func ListMedals() []gamification.Medal {
	return gamification.Medals()
}

// GetRatingSummaryHandler reads a user's rolling rating average.
type GetRatingSummaryHandler struct {
	store gamification.UnitOfWorkFactory
}

// NewGetRatingSummaryHandler creates a new handler.
func NewGetRatingSummaryHandler(store gamification.UnitOfWorkFactory) *GetRatingSummaryHandler {
	return &GetRatingSummaryHandler{store: store}
}

// Handle returns a zero summary for users never rated.
func (h *GetRatingSummaryHandler) Handle(ctx context.Context, userID string) (*rating.Summary, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}

	var summary *rating.Summary
	err := h.store.ReadOnly(ctx, func(ctx context.Context, uow gamification.UnitOfWork) error {
		var err error
		summary, err = uow.Ratings().GetSummary(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
