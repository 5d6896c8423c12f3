package iot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/event"
)

const readingColumns = "id, shipment_id, data_type, value, recorded_by, recorded_at, verified, verified_by, verified_at"

// PGRepository persists sensor readings in Postgres.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) ShipmentExists(ctx context.Context, tx pgx.Tx, shipmentID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM shipments WHERE id = $1)", shipmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("iot: query shipment: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Reading) (Reading, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO iot_readings (id, shipment_id, data_type, value, recorded_by, recorded_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, false)`,
		rec.ID, rec.ShipmentID, string(rec.DataType), rec.Value, rec.RecordedBy, rec.RecordedAt)
	if err != nil {
		return Reading{}, fmt.Errorf("iot: insert reading: %w", err)
	}

	if err := event.Append(ctx, tx, rec.ShipmentID, "IOT_READING_RECORDED", &rec.RecordedBy, map[string]any{
		"reading_id": rec.ID,
		"data_type":  string(rec.DataType),
	}); err != nil {
		return Reading{}, err
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Reading, error) {
	rec, err := scanReading(tx.QueryRow(ctx,
		"SELECT "+readingColumns+" FROM iot_readings WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	if err != nil {
		return Reading{}, fmt.Errorf("iot: lock reading: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) MarkVerified(ctx context.Context, tx pgx.Tx, id, verifierID string, at time.Time) (Reading, error) {
	rec, err := scanReading(tx.QueryRow(ctx, `
		UPDATE iot_readings
		SET verified = true, verified_by = $1, verified_at = $2
		WHERE id = $3 AND NOT verified
		RETURNING `+readingColumns,
		verifierID, at, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	if err != nil {
		return Reading{}, fmt.Errorf("iot: mark verified: %w", err)
	}

	if err := event.Append(ctx, tx, rec.ShipmentID, "IOT_READING_VERIFIED", &verifierID, map[string]any{
		"reading_id": rec.ID,
	}); err != nil {
		return Reading{}, err
	}
	return rec, nil
}

func scanReading(row pgx.Row) (Reading, error) {
	var (
		rec      Reading
		dataType string
	)
	err := row.Scan(&rec.ID, &rec.ShipmentID, &dataType, &rec.Value, &rec.RecordedBy,
		&rec.RecordedAt, &rec.Verified, &rec.VerifiedBy, &rec.VerifiedAt)
	if err != nil {
		return Reading{}, err
	}
	rec.DataType = DataType(dataType)
	return rec, nil
}
