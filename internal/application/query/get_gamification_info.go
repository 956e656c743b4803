// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/domain/gamification"
)

// DefaultInfoTTL is used when no TTL is configured.
const DefaultInfoTTL = 5 * time.Minute

// ══════════════════════════════════════════════════════════════════════════════
// GET GAMIFICATION INFO QUERY
// The "my progress" screen: points, tiers, medals. Served read-through from
// the cache when one is configured.
// ══════════════════════════════════════════════════════════════════════════════

// GetGamificationInfoHandler handles the progress read model.
type GetGamificationInfoHandler struct {
	engine *progress.Engine
	cache  gamification.InfoCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewGetGamificationInfoHandler creates a new handler. cache may be nil.
func NewGetGamificationInfoHandler(
	engine *progress.Engine,
	cache gamification.InfoCache,
	ttl time.Duration,
	logger *slog.Logger,
) *GetGamificationInfoHandler {
	if ttl <= 0 {
		ttl = DefaultInfoTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetGamificationInfoHandler{
		engine: engine,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("handler", "get_gamification_info"),
	}
}

// Handle returns the user's progress or ErrStudentNotFound.
func (h *GetGamificationInfoHandler) Handle(ctx context.Context, userID string) (*gamification.Info, error) {
	if h.cache == nil {
		return h.engine.GetGamificationInfo(ctx, userID)
	}

	if info, err := h.cache.Get(ctx, userID); err == nil {
		return info, nil
	}

	// The version is read before the load so a commit that lands in between
	// makes the fill a no-op.
	version, verr := h.cache.Version(ctx, userID)

	info, err := h.engine.GetGamificationInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Cache errors never fail the read.
	if verr != nil {
		h.logger.Debug("skipping cache fill", "user_id", userID, "error", verr)
		return info, nil
	}
	if err := h.cache.Set(ctx, info, version, h.ttl); err != nil {
		h.logger.Warn("failed to cache gamification info", "user_id", userID, "error", err)
	}
	return info, nil
}
