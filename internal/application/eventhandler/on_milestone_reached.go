package eventhandler

import (
	"log/slog"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

// OnMilestoneReachedHandler writes level-ups and new medals to the service log.
type OnMilestoneReachedHandler struct {
	logger *slog.Logger
}

// NewOnMilestoneReachedHandler creates the handler.
func NewOnMilestoneReachedHandler(logger *slog.Logger) *OnMilestoneReachedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnMilestoneReachedHandler{logger: logger.With("handler", "on_milestone_reached")}
}

// Register subscribes to level-up and medal events.
func (h *OnMilestoneReachedHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLevelUp, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventMedalAwarded, h.Handle)
}

// Handle implements shared.EventHandler. Unknown events are ignored.
func (h *OnMilestoneReachedHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.LevelUpEvent:
		h.logger.Info("student reached a new level",
			"user_id", e.UserID,
			"old_level", e.OldLevel,
			"new_level", e.NewLevel,
			"level_name", e.LevelName,
		)
	case shared.MedalAwardedEvent:
		h.logger.Info("student earned a medal",
			"user_id", e.UserID,
			"medal_id", e.MedalID,
			"medal_name", e.MedalName,
		)
	}
	return nil
}
