package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/agreement"
	"github.com/Twhite2/Retail-Chain/event"
	"github.com/Twhite2/Retail-Chain/store"
	"github.com/Twhite2/Retail-Chain/supplier"
)

const shipmentColumns = "id, supplier_id, store_id, agreement_id, tracking_id, origin, destination, status, eta, created_at, delivered_at, verified_at"

// PGRepository persists shipments in Postgres within the caller's transaction.
type PGRepository struct {
	agreements *agreement.PGRepository
}

func NewRepository() *PGRepository {
	return &PGRepository{agreements: agreement.NewRepository()}
}

func (r *PGRepository) SupplierVerified(ctx context.Context, tx pgx.Tx, supplierID string) (bool, error) {
	var verified bool
	err := tx.QueryRow(ctx, "SELECT is_verified FROM suppliers WHERE id = $1", supplierID).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, supplier.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("shipment: query supplier: %w", err)
	}
	return verified, nil
}

func (r *PGRepository) StoreOwner(ctx context.Context, tx pgx.Tx, storeID string) (string, error) {
	var owner string
	err := tx.QueryRow(ctx, "SELECT owner_id FROM stores WHERE id = $1", storeID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("shipment: query store owner: %w", err)
	}
	return owner, nil
}

func (r *PGRepository) GetAgreement(ctx context.Context, tx pgx.Tx, agreementID string) (AgreementRef, error) {
	var (
		ref    AgreementRef
		status string
	)
	err := tx.QueryRow(ctx,
		"SELECT id, supplier_id, store_id, status FROM agreements WHERE id = $1 FOR UPDATE", agreementID,
	).Scan(&ref.ID, &ref.SupplierID, &ref.StoreID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgreementRef{}, agreement.ErrNotFound
	}
	if err != nil {
		return AgreementRef{}, fmt.Errorf("shipment: query agreement: %w", err)
	}
	ref.Status = agreement.Status(status)
	return ref, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, s Shipment) (Shipment, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO shipments (id, supplier_id, store_id, agreement_id, tracking_id, origin, destination, status, eta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.SupplierID, s.StoreID, s.AgreementID, s.TrackingID, s.Origin, s.Destination, string(s.Status), s.ETA, s.CreatedAt)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: insert shipment: %w", err)
	}

	for _, pid := range s.Products {
		_, err := tx.Exec(ctx, `
			INSERT INTO shipment_products (shipment_id, product_id)
			VALUES ($1, $2)
			ON CONFLICT (shipment_id, product_id) DO NOTHING`,
			s.ID, pid)
		if err != nil {
			return Shipment{}, fmt.Errorf("shipment: insert shipment product: %w", err)
		}
	}

	if err := event.Append(ctx, tx, s.ID, "SHIPMENT_CREATED", &s.SupplierID, map[string]any{
		"supplier_id": s.SupplierID,
		"store_id":    s.StoreID,
		"tracking_id": s.TrackingID,
		"eta":         s.ETA,
	}); err != nil {
		return Shipment{}, err
	}
	if err := event.Enqueue(ctx, tx, "shipment.created", map[string]any{
		"shipment_id": s.ID,
		"store_id":    s.StoreID,
	}); err != nil {
		return Shipment{}, err
	}
	return s, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Locked, error) {
	var (
		l      Locked
		status string
	)
	err := tx.QueryRow(ctx, `
		SELECT sh.id, sh.supplier_id, sh.store_id, sh.agreement_id, sh.tracking_id, sh.origin, sh.destination,
		       sh.status, sh.eta, sh.created_at, sh.delivered_at, sh.verified_at, st.owner_id
		FROM shipments sh
		JOIN stores st ON st.id = sh.store_id
		WHERE sh.id = $1
		FOR UPDATE OF sh`, id,
	).Scan(&l.ID, &l.SupplierID, &l.StoreID, &l.AgreementID, &l.TrackingID, &l.Origin, &l.Destination,
		&status, &l.ETA, &l.CreatedAt, &l.DeliveredAt, &l.VerifiedAt, &l.StoreOwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Locked{}, ErrNotFound
	}
	if err != nil {
		return Locked{}, fmt.Errorf("shipment: lock shipment: %w", err)
	}
	l.Status = Status(status)
	if l.Products, err = r.products(ctx, tx, id); err != nil {
		return Locked{}, err
	}
	return l, nil
}

func (r *PGRepository) products(ctx context.Context, tx pgx.Tx, id string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id FROM shipment_products
		WHERE shipment_id = $1
		ORDER BY product_id`, id)
	if err != nil {
		return nil, fmt.Errorf("shipment: query products: %w", err)
	}
	defer rows.Close()

	products := []string{}
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("shipment: scan product: %w", err)
		}
		products = append(products, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shipment: iterate products: %w", err)
	}
	return products, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, deliveredAt *time.Time, actorID string) (Shipment, error) {
	var (
		s      Shipment
		status string
	)
	err := tx.QueryRow(ctx, `
		UPDATE shipments
		SET status = $1, delivered_at = COALESCE($2, delivered_at)
		WHERE id = $3 AND status = $4
		RETURNING `+shipmentColumns,
		string(to), deliveredAt, id, string(from),
	).Scan(&s.ID, &s.SupplierID, &s.StoreID, &s.AgreementID, &s.TrackingID, &s.Origin, &s.Destination,
		&status, &s.ETA, &s.CreatedAt, &s.DeliveredAt, &s.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, ErrInvalidTransition
	}
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: update status: %w", err)
	}
	s.Status = Status(status)
	if s.Products, err = r.products(ctx, tx, id); err != nil {
		return Shipment{}, err
	}

	if err := event.Append(ctx, tx, s.ID, "SHIPMENT_STATUS_CHANGED", &actorID, map[string]any{
		"from": string(from),
		"to":   string(to),
	}); err != nil {
		return Shipment{}, err
	}
	if err := event.Enqueue(ctx, tx, "shipment.status_changed", map[string]any{
		"shipment_id": s.ID,
		"from":        string(from),
		"to":          string(to),
	}); err != nil {
		return Shipment{}, err
	}
	return s, nil
}

// RecordActor remembers the caller as a handler of the shipment. Repeat
// reports by the same actor are a no-op.
func (r *PGRepository) RecordActor(ctx context.Context, tx pgx.Tx, shipmentID, actorID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shipment_actors (shipment_id, actor_id)
		VALUES ($1, $2)
		ON CONFLICT (shipment_id, actor_id) DO NOTHING`,
		shipmentID, actorID)
	if err != nil {
		return fmt.Errorf("shipment: record actor: %w", err)
	}
	return nil
}

func (r *PGRepository) SetVerified(ctx context.Context, tx pgx.Tx, id string, at time.Time, actorID string) (Shipment, error) {
	var (
		s      Shipment
		status string
	)
	err := tx.QueryRow(ctx, `
		UPDATE shipments
		SET status = $1, verified_at = $2
		WHERE id = $3 AND status = $4
		RETURNING `+shipmentColumns,
		string(StatusVerified), at, id, string(StatusDelivered),
	).Scan(&s.ID, &s.SupplierID, &s.StoreID, &s.AgreementID, &s.TrackingID, &s.Origin, &s.Destination,
		&status, &s.ETA, &s.CreatedAt, &s.DeliveredAt, &s.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, ErrNotDelivered
	}
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: set verified: %w", err)
	}
	s.Status = Status(status)
	if s.Products, err = r.products(ctx, tx, id); err != nil {
		return Shipment{}, err
	}

	if err := event.Append(ctx, tx, s.ID, "SHIPMENT_VERIFIED", &actorID, map[string]any{
		"verified_at": at,
	}); err != nil {
		return Shipment{}, err
	}
	if err := event.Enqueue(ctx, tx, "shipment.verified", map[string]any{
		"shipment_id": s.ID,
		"store_id":    s.StoreID,
	}); err != nil {
		return Shipment{}, err
	}
	return s, nil
}

func (r *PGRepository) CompleteAgreement(ctx context.Context, tx pgx.Tx, agreementID, actorID string) error {
	_, err := r.agreements.UpdateStatus(ctx, tx, agreementID, agreement.StatusActive, agreement.StatusCompleted, actorID)
	return err
}

func (r *PGRepository) InsertException(ctx context.Context, tx pgx.Tx, shipmentID, description, actorID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shipment_exceptions (shipment_id, description, reported_by, reported_at)
		VALUES ($1, $2, $3, $4)`,
		shipmentID, description, actorID, at)
	if err != nil {
		return fmt.Errorf("shipment: insert exception: %w", err)
	}
	return event.Append(ctx, tx, shipmentID, "SHIPMENT_EXCEPTION", &actorID, map[string]any{
		"description": description,
	})
}

func (r *PGRepository) InsertLocation(ctx context.Context, tx pgx.Tx, ping LocationPing) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shipment_locations (shipment_id, latitude, longitude, name, recorded_by, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ping.ShipmentID, ping.Latitude, ping.Longitude, ping.Name, ping.RecordedBy, ping.RecordedAt)
	if err != nil {
		return fmt.Errorf("shipment: insert location: %w", err)
	}
	return event.Append(ctx, tx, ping.ShipmentID, "SHIPMENT_LOCATION", &ping.RecordedBy, map[string]any{
		"latitude":  ping.Latitude,
		"longitude": ping.Longitude,
		"name":      ping.Name,
	})
}
