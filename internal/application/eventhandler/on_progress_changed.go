// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Drops the cached "my progress" view whenever points, level or medals of a
// student change, so the next read rebuilds it from the store.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressEvents are the event types that change the gamification read model.
var ProgressEvents = []shared.EventType{
	shared.EventPointsAwarded,
	shared.EventLevelUp,
	shared.EventMedalAwarded,
	shared.EventReferralRedeemed,
}

// OnProgressChangedHandler invalidates cached progress.
type OnProgressChangedHandler struct {
	cache   gamification.InfoCache
	timeout time.Duration
	logger  *slog.Logger
}

// NewOnProgressChangedHandler creates the handler.
func NewOnProgressChangedHandler(cache gamification.InfoCache, logger *slog.Logger) *OnProgressChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnProgressChangedHandler{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  logger.With("handler", "on_progress_changed"),
	}
}

// Register subscribes the handler to every progress event.
func (h *OnProgressChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range ProgressEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userIDs := affectedUsers(event)
	for _, userID := range userIDs {
		if err := h.cache.Invalidate(ctx, userID); err != nil {
			h.logger.Warn("failed to invalidate progress cache",
				"user_id", userID,
				"event_type", event.EventType(),
				"error", err,
			)
			return fmt.Errorf("invalidate %s: %w", userID, err)
		}
	}
	return nil
}

func affectedUsers(event shared.Event) []string {
	switch e := event.(type) {
	case shared.ReferralRedeemedEvent:
		return []string{e.ReferrerUserID, e.ReferredUserID}
	default:
		return []string{event.AggregateID()}
	}
}
