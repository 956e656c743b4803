package gamification

import "time"

// Action tags of the activity log.
type Action string

const (
	ActionPointsAdded  Action = "points_added"
	ActionLevelUp      Action = "level_up"
	ActionMedalAwarded Action = "medal_awarded"
)

// ActivityLogEntry is an append-only audit record. Entries are never updated or deleted.
type ActivityLogEntry struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Action    Action                 `json:"action"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"createdAt"`
}

// NewPointsAddedEntry records {amount, reason, newTotal}.
func NewPointsAddedEntry(id, userID string, amount int, reason string, newTotal int, at time.Time) ActivityLogEntry {
	return ActivityLogEntry{
		ID:     id,
		UserID: userID,
		Action: ActionPointsAdded,
		Metadata: map[string]interface{}{
			"amount":   amount,
			"reason":   reason,
			"newTotal": newTotal,
		},
		CreatedAt: at,
	}
}

// NewLevelUpEntry records {newLevel, levelName}.
func NewLevelUpEntry(id, userID string, tier LevelTier, at time.Time) ActivityLogEntry {
	return ActivityLogEntry{
		ID:     id,
		UserID: userID,
		Action: ActionLevelUp,
		Metadata: map[string]interface{}{
			"newLevel":  tier.Level,
			"levelName": tier.Name,
		},
		CreatedAt: at,
	}
}

// NewMedalAwardedEntry records {medalId, medalName}.
func NewMedalAwardedEntry(id, userID string, medal Medal, at time.Time) ActivityLogEntry {
	return ActivityLogEntry{
		ID:     id,
		UserID: userID,
		Action: ActionMedalAwarded,
		Metadata: map[string]interface{}{
			"medalId":   string(medal.ID),
			"medalName": medal.Name,
		},
		CreatedAt: at,
	}
}
