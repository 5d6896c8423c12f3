package event

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PGRepository persists audit events in PostgreSQL.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	const insertSQL = `
		INSERT INTO supply_chain_events (id, event_type, recorder_id, related_entity_id, location, occurred_at, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, event_type, recorder_id, related_entity_id, location, occurred_at, metadata, created_at
	`

	var out Record
	err := tx.QueryRow(ctx, insertSQL,
		rec.ID, string(rec.Type), rec.RecorderID, rec.RelatedEntityID,
		rec.Location, rec.OccurredAt, rec.Metadata, rec.CreatedAt,
	).Scan(&out.ID, &out.Type, &out.RecorderID, &out.RelatedEntityID,
		&out.Location, &out.OccurredAt, &out.Metadata, &out.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("event: insert: %w", err)
	}

	if err := Enqueue(ctx, tx, "event.recorded", map[string]any{
		"event_id":       out.ID,
		"event_type":     string(out.Type),
		"related_entity": out.RelatedEntityID,
	}); err != nil {
		return Record{}, err
	}

	return out, nil
}
