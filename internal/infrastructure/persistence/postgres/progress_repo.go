package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
)

// ActivityLogRepository implements gamification.ActivityLog.
type ActivityLogRepository struct {
	q Querier
}

// Append inserts one audit entry.
func (r *ActivityLogRepository) Append(ctx context.Context, entry gamification.ActivityLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal activity metadata: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO activity_log (id, user_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.UserID, string(entry.Action), metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries first. limit <= 0 returns all.
func (r *ActivityLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]gamification.ActivityLogEntry, error) {
	query := `
		SELECT id, user_id, action, metadata, created_at
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	entries := make([]gamification.ActivityLogEntry, 0)
	for rows.Next() {
		var e gamification.ActivityLogEntry
		var action string
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.UserID, &action, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Action = gamification.Action(action)
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode activity metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProcessedEventRepository implements gamification.ProcessedEvents.
type ProcessedEventRepository struct {
	q Querier
}

// MarkProcessed inserts the digest; a conflict means the key was seen before.
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, digest string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO processed_events (digest, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (digest) DO NOTHING
	`, digest, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
