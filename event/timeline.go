package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Append writes an immutable timeline event for an entity inside the caller's
// transaction, so the event commits or rolls back together with the mutation
// it describes.
func Append(ctx context.Context, tx pgx.Tx, entityID, eventType string, actorID *string, payload map[string]any) error {
	const insertSQL = `
		INSERT INTO timeline_events (entity_id, type, payload, actor_id)
		VALUES ($1, $2, $3::jsonb, $4)
	`
	if _, err := tx.Exec(ctx, insertSQL, entityID, eventType, toJSON(payload), actorID); err != nil {
		return fmt.Errorf("event: insert timeline: %w", err)
	}
	return nil
}

// Enqueue adds a transactional outbox message for external audit consumers.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	const insertSQL = `
		INSERT INTO outbox (topic, payload)
		VALUES ($1, $2::jsonb)
	`
	if _, err := tx.Exec(ctx, insertSQL, topic, toJSON(payload)); err != nil {
		return fmt.Errorf("event: enqueue outbox: %w", err)
	}
	return nil
}

func toJSON(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return string(b)
}
