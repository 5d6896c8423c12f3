package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Twhite2/Retail-Chain/agreement"
	"github.com/Twhite2/Retail-Chain/event"
)

const disputeColumns = "id, agreement_id, raised_by, reason, resolved, resolved_by, resolution_notes, resolved_at, created_at"

// PGRepository persists disputes in Postgres. The single-unresolved-dispute
// rule is backed by a partial unique index on (agreement_id) WHERE NOT
// resolved, so a racing second open fails at commit rather than slipping in.
type PGRepository struct {
	agreements *agreement.PGRepository
}

func NewRepository() *PGRepository {
	return &PGRepository{agreements: agreement.NewRepository()}
}

func (r *PGRepository) GetAgreementForUpdate(ctx context.Context, tx pgx.Tx, agreementID string) (agreement.Locked, error) {
	return r.agreements.GetForUpdate(ctx, tx, agreementID)
}

func (r *PGRepository) SetAgreementStatus(ctx context.Context, tx pgx.Tx, agreementID string, from, to agreement.Status, actorID string) error {
	_, err := r.agreements.UpdateStatus(ctx, tx, agreementID, from, to, actorID)
	return err
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO disputes (id, agreement_id, raised_by, reason, resolved, created_at)
		VALUES ($1, $2, $3, $4, false, $5)`,
		rec.ID, rec.AgreementID, rec.RaisedBy, rec.Reason, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrPending
		}
		return Record{}, fmt.Errorf("dispute: insert dispute: %w", err)
	}

	if err := event.Append(ctx, tx, rec.AgreementID, "DISPUTE_OPENED", &rec.RaisedBy, map[string]any{
		"dispute_id": rec.ID,
		"reason":     rec.Reason,
	}); err != nil {
		return Record{}, err
	}
	if err := event.Enqueue(ctx, tx, "dispute.opened", map[string]any{
		"dispute_id":   rec.ID,
		"agreement_id": rec.AgreementID,
	}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	rec, err := scanDispute(tx.QueryRow(ctx,
		"SELECT "+disputeColumns+" FROM disputes WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("dispute: lock dispute: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) MarkResolved(ctx context.Context, tx pgx.Tx, id, resolverID, notes string, at time.Time) (Record, error) {
	rec, err := scanDispute(tx.QueryRow(ctx, `
		UPDATE disputes
		SET resolved = true, resolved_by = $1, resolution_notes = $2, resolved_at = $3
		WHERE id = $4 AND NOT resolved
		RETURNING `+disputeColumns,
		resolverID, notes, at, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrAlreadyResolved
	}
	if err != nil {
		return Record{}, fmt.Errorf("dispute: mark resolved: %w", err)
	}

	if err := event.Append(ctx, tx, rec.AgreementID, "DISPUTE_RESOLVED", &resolverID, map[string]any{
		"dispute_id": rec.ID,
		"notes":      notes,
	}); err != nil {
		return Record{}, err
	}
	if err := event.Enqueue(ctx, tx, "dispute.resolved", map[string]any{
		"dispute_id":   rec.ID,
		"agreement_id": rec.AgreementID,
	}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func scanDispute(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.AgreementID, &rec.RaisedBy, &rec.Reason, &rec.Resolved,
		&rec.ResolvedBy, &rec.ResolutionNotes, &rec.ResolvedAt, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
