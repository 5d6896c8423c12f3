package supplier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Twhite2/Retail-Chain/event"
)

const supplierColumns = `id, name, certification, description, products_supplied, is_verified, rating, created_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, s Supplier) (Supplier, error) {
	const insertSQL = `
		INSERT INTO suppliers (id, name, certification, description, products_supplied, is_verified, rating, created_at)
		VALUES ($1, $2, $3, $4, 0, false, 0, $5)
		RETURNING ` + supplierColumns

	out, err := scanSupplier(tx.QueryRow(ctx, insertSQL, s.ID, s.Name, s.Certification, s.Description, s.CreatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Supplier{}, ErrDuplicate
		}
		return Supplier{}, fmt.Errorf("supplier: insert: %w", err)
	}

	if err := event.Append(ctx, tx, out.ID, "SUPPLIER_REGISTERED", &s.ID, map[string]any{
		"name": out.Name,
	}); err != nil {
		return Supplier{}, err
	}
	if err := event.Enqueue(ctx, tx, "supplier.registered", map[string]any{
		"supplier_id": out.ID,
	}); err != nil {
		return Supplier{}, err
	}

	return out, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Supplier, error) {
	const query = `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = $1 FOR UPDATE`

	out, err := scanSupplier(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, fmt.Errorf("supplier: get for update: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SetVerified(ctx context.Context, tx pgx.Tx, id string, actorID string) (Supplier, error) {
	const updateSQL = `
		UPDATE suppliers SET is_verified = true
		WHERE id = $1
		RETURNING ` + supplierColumns

	out, err := scanSupplier(tx.QueryRow(ctx, updateSQL, id))
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: set verified: %w", err)
	}

	if err := event.Append(ctx, tx, id, "SUPPLIER_VERIFIED", &actorID, nil); err != nil {
		return Supplier{}, err
	}
	if err := event.Enqueue(ctx, tx, "supplier.verified", map[string]any{
		"supplier_id": id,
		"verified_by": actorID,
	}); err != nil {
		return Supplier{}, err
	}
	return out, nil
}

func (r *PGRepository) UpdateProfile(ctx context.Context, tx pgx.Tx, id string, certification, description *string) (Supplier, error) {
	const updateSQL = `
		UPDATE suppliers
		SET certification = COALESCE($2, certification),
		    description = COALESCE($3, description)
		WHERE id = $1
		RETURNING ` + supplierColumns

	out, err := scanSupplier(tx.QueryRow(ctx, updateSQL, id, certification, description))
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: update profile: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SetRating(ctx context.Context, tx pgx.Tx, id string, rating int16, actorID string) (Supplier, error) {
	const updateSQL = `
		UPDATE suppliers SET rating = $2
		WHERE id = $1
		RETURNING ` + supplierColumns

	out, err := scanSupplier(tx.QueryRow(ctx, updateSQL, id, rating))
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: set rating: %w", err)
	}

	if err := event.Append(ctx, tx, id, "SUPPLIER_RATED", &actorID, map[string]any{
		"rating": rating,
	}); err != nil {
		return Supplier{}, err
	}
	return out, nil
}

func (r *PGRepository) AgreementLink(ctx context.Context, tx pgx.Tx, agreementID string) (AgreementLink, error) {
	const query = `
		SELECT a.supplier_id, a.store_id, st.owner_id, a.status = 'completed'
		FROM agreements a
		JOIN stores st ON st.id = a.store_id
		WHERE a.id = $1
	`

	var link AgreementLink
	err := tx.QueryRow(ctx, query, agreementID).
		Scan(&link.SupplierID, &link.StoreID, &link.StoreOwnerID, &link.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgreementLink{}, ErrNotFound
		}
		return AgreementLink{}, fmt.Errorf("supplier: agreement link: %w", err)
	}
	return link, nil
}

func (r *PGRepository) InsertCatalogProduct(ctx context.Context, tx pgx.Tx, p CatalogProduct, newCount int64) (CatalogProduct, error) {
	const insertSQL = `
		INSERT INTO supplier_products (id, supplier_id, name, description, price, available_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, supplier_id, name, description, price, available_quantity, created_at
	`

	var out CatalogProduct
	err := tx.QueryRow(ctx, insertSQL, p.ID, p.SupplierID, p.Name, p.Description, p.Price, p.AvailableQuantity, p.CreatedAt).
		Scan(&out.ID, &out.SupplierID, &out.Name, &out.Description, &out.Price, &out.AvailableQuantity, &out.CreatedAt)
	if err != nil {
		return CatalogProduct{}, fmt.Errorf("supplier: insert catalog product: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE suppliers SET products_supplied = $2 WHERE id = $1`, p.SupplierID, newCount); err != nil {
		return CatalogProduct{}, fmt.Errorf("supplier: bump products supplied: %w", err)
	}

	if err := event.Append(ctx, tx, out.ID, "CATALOG_PRODUCT_ADDED", &p.SupplierID, map[string]any{
		"supplier_id": out.SupplierID,
		"price":       out.Price,
	}); err != nil {
		return CatalogProduct{}, err
	}
	return out, nil
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var out Supplier
	err := row.Scan(
		&out.ID,
		&out.Name,
		&out.Certification,
		&out.Description,
		&out.ProductsSupplied,
		&out.IsVerified,
		&out.Rating,
		&out.CreatedAt,
	)
	if err != nil {
		return Supplier{}, err
	}
	return out, nil
}
