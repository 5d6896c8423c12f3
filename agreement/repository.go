package agreement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/event"
	"github.com/Twhite2/Retail-Chain/store"
)

const agreementColumns = "id, supplier_id, store_id, terms, deadline, payment_amount, status, created_at"

// PGRepository persists agreements in Postgres. All methods operate on the
// caller's transaction so a status change, its timeline entry, and its outbox
// message commit or roll back together.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) StoreOwner(ctx context.Context, tx pgx.Tx, storeID string) (string, error) {
	var owner string
	err := tx.QueryRow(ctx, "SELECT owner_id FROM stores WHERE id = $1", storeID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("agreement: query store owner: %w", err)
	}
	return owner, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO agreements (id, supplier_id, store_id, terms, deadline, payment_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rec.ID, rec.SupplierID, rec.StoreID, rec.Terms, rec.Deadline, rec.PaymentAmount, string(rec.Status), rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: insert agreement: %w", err)
	}

	if err := event.Append(ctx, tx, rec.ID, "AGREEMENT_CREATED", &rec.SupplierID, map[string]any{
		"supplier_id":    rec.SupplierID,
		"store_id":       rec.StoreID,
		"payment_amount": rec.PaymentAmount,
		"deadline":       rec.Deadline,
	}); err != nil {
		return Record{}, err
	}
	if err := event.Enqueue(ctx, tx, "agreement.created", map[string]any{
		"agreement_id": rec.ID,
		"supplier_id":  rec.SupplierID,
		"store_id":     rec.StoreID,
	}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Locked, error) {
	var (
		l      Locked
		status string
	)
	err := tx.QueryRow(ctx, `
		SELECT a.id, a.supplier_id, a.store_id, a.terms, a.deadline, a.payment_amount, a.status, a.created_at, st.owner_id
		FROM agreements a
		JOIN stores st ON st.id = a.store_id
		WHERE a.id = $1
		FOR UPDATE OF a`, id,
	).Scan(&l.ID, &l.SupplierID, &l.StoreID, &l.Terms, &l.Deadline, &l.PaymentAmount, &status, &l.CreatedAt, &l.StoreOwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Locked{}, ErrNotFound
	}
	if err != nil {
		return Locked{}, fmt.Errorf("agreement: lock agreement: %w", err)
	}
	l.Status = Status(status)

	l.Products, err = r.products(ctx, tx, id)
	if err != nil {
		return Locked{}, err
	}
	return l, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Record, error) {
	var rec Record
	var status string
	err := tx.QueryRow(ctx, `
		UPDATE agreements
		SET status = $1
		WHERE id = $2 AND status = $3
		RETURNING `+agreementColumns,
		string(to), id, string(from),
	).Scan(&rec.ID, &rec.SupplierID, &rec.StoreID, &rec.Terms, &rec.Deadline, &rec.PaymentAmount, &status, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrInvalidStatus
	}
	if err != nil {
		return Record{}, fmt.Errorf("agreement: update status: %w", err)
	}
	rec.Status = Status(status)

	if err := event.Append(ctx, tx, rec.ID, "AGREEMENT_STATUS_CHANGED", &actorID, map[string]any{
		"from": string(from),
		"to":   string(to),
	}); err != nil {
		return Record{}, err
	}
	if err := event.Enqueue(ctx, tx, "agreement.status_changed", map[string]any{
		"agreement_id": rec.ID,
		"from":         string(from),
		"to":           string(to),
	}); err != nil {
		return Record{}, err
	}

	rec.Products, err = r.products(ctx, tx, id)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRepository) AddProducts(ctx context.Context, tx pgx.Tx, id string, productIDs []string, actorID string) ([]string, error) {
	for _, pid := range productIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO agreement_products (agreement_id, product_id)
			VALUES ($1, $2)
			ON CONFLICT (agreement_id, product_id) DO NOTHING`,
			id, pid)
		if err != nil {
			return nil, fmt.Errorf("agreement: add product: %w", err)
		}
	}

	if err := event.Append(ctx, tx, id, "AGREEMENT_PRODUCTS_ADDED", &actorID, map[string]any{
		"product_ids": productIDs,
	}); err != nil {
		return nil, err
	}

	return r.products(ctx, tx, id)
}

func (r *PGRepository) products(ctx context.Context, tx pgx.Tx, id string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id FROM agreement_products
		WHERE agreement_id = $1
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("agreement: query products: %w", err)
	}
	defer rows.Close()

	products := []string{}
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("agreement: scan product: %w", err)
		}
		products = append(products, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate products: %w", err)
	}
	return products, nil
}
