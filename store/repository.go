package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/event"
)

// PGRepository implements Repository backed by PostgreSQL. Timeline and
// outbox rows are written inside the caller's transaction so a failed
// mutation leaves no trace.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, s Store) (Store, error) {
	const insertSQL = `
		INSERT INTO stores (id, owner_id, name, location, total_products, is_active, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING id, owner_id, name, location, total_products, is_active, created_at
	`

	var out Store
	err := tx.QueryRow(ctx, insertSQL, s.ID, s.OwnerID, s.Name, s.Location, s.IsActive, s.CreatedAt).
		Scan(&out.ID, &out.OwnerID, &out.Name, &out.Location, &out.TotalProducts, &out.IsActive, &out.CreatedAt)
	if err != nil {
		return Store{}, fmt.Errorf("store: insert: %w", err)
	}

	if err := event.Append(ctx, tx, out.ID, "STORE_INITIALIZED", &s.OwnerID, map[string]any{
		"name":     out.Name,
		"location": out.Location,
	}); err != nil {
		return Store{}, err
	}
	if err := event.Enqueue(ctx, tx, "store.initialized", map[string]any{
		"store_id": out.ID,
		"owner_id": out.OwnerID,
	}); err != nil {
		return Store{}, err
	}

	return out, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Store, error) {
	const query = `
		SELECT id, owner_id, name, location, total_products, is_active, created_at
		FROM stores
		WHERE id = $1
		FOR UPDATE
	`

	var out Store
	err := tx.QueryRow(ctx, query, id).
		Scan(&out.ID, &out.OwnerID, &out.Name, &out.Location, &out.TotalProducts, &out.IsActive, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Store{}, ErrNotFound
		}
		return Store{}, fmt.Errorf("store: get for update: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SetActive(ctx context.Context, tx pgx.Tx, id string, active bool, actorID string) (Store, error) {
	const updateSQL = `
		UPDATE stores SET is_active = $2
		WHERE id = $1
		RETURNING id, owner_id, name, location, total_products, is_active, created_at
	`

	var out Store
	err := tx.QueryRow(ctx, updateSQL, id, active).
		Scan(&out.ID, &out.OwnerID, &out.Name, &out.Location, &out.TotalProducts, &out.IsActive, &out.CreatedAt)
	if err != nil {
		return Store{}, fmt.Errorf("store: set active: %w", err)
	}

	if err := event.Append(ctx, tx, id, "STORE_ACTIVE_TOGGLED", &actorID, map[string]any{
		"is_active": active,
	}); err != nil {
		return Store{}, err
	}
	return out, nil
}

func (r *PGRepository) InsertProduct(ctx context.Context, tx pgx.Tx, p Product, newTotal int64, actorID string) (Product, error) {
	const insertSQL = `
		INSERT INTO products (id, store_id, name, description, price, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, store_id, name, description, price, quantity, created_at
	`

	var out Product
	err := tx.QueryRow(ctx, insertSQL, p.ID, p.StoreID, p.Name, p.Description, p.Price, p.Quantity, p.CreatedAt).
		Scan(&out.ID, &out.StoreID, &out.Name, &out.Description, &out.Price, &out.Quantity, &out.CreatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("store: insert product: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE stores SET total_products = $2 WHERE id = $1`, p.StoreID, newTotal); err != nil {
		return Product{}, fmt.Errorf("store: bump product counter: %w", err)
	}

	if err := event.Append(ctx, tx, out.ID, "PRODUCT_CREATED", &actorID, map[string]any{
		"store_id": out.StoreID,
		"price":    out.Price,
		"quantity": out.Quantity,
	}); err != nil {
		return Product{}, err
	}
	if err := event.Enqueue(ctx, tx, "product.created", map[string]any{
		"product_id": out.ID,
		"store_id":   out.StoreID,
	}); err != nil {
		return Product{}, err
	}

	return out, nil
}

func (r *PGRepository) GetProductForUpdate(ctx context.Context, tx pgx.Tx, id string) (Product, error) {
	const query = `
		SELECT id, store_id, name, description, price, quantity, created_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`

	var out Product
	err := tx.QueryRow(ctx, query, id).
		Scan(&out.ID, &out.StoreID, &out.Name, &out.Description, &out.Price, &out.Quantity, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("store: get product for update: %w", err)
	}
	return out, nil
}

func (r *PGRepository) UpdateProduct(ctx context.Context, tx pgx.Tx, id string, price, quantity *int64, actorID string) (Product, error) {
	const updateSQL = `
		UPDATE products
		SET price = COALESCE($2, price),
		    quantity = COALESCE($3, quantity)
		WHERE id = $1
		RETURNING id, store_id, name, description, price, quantity, created_at
	`

	var out Product
	err := tx.QueryRow(ctx, updateSQL, id, price, quantity).
		Scan(&out.ID, &out.StoreID, &out.Name, &out.Description, &out.Price, &out.Quantity, &out.CreatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("store: update product: %w", err)
	}

	if err := event.Append(ctx, tx, id, "PRODUCT_UPDATED", &actorID, map[string]any{
		"price":    out.Price,
		"quantity": out.Quantity,
	}); err != nil {
		return Product{}, err
	}
	return out, nil
}
