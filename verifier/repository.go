package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, cred Credential) (Credential, error) {
	const insertSQL = `
		INSERT INTO verifier_credentials (id, holder_id, is_verifier, verification_level, organization, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, holder_id, is_verifier, verification_level, organization, created_at
	`

	var out Credential
	err := r.pool.QueryRow(ctx, insertSQL,
		cred.ID, cred.HolderID, cred.IsVerifier, cred.Level, cred.Organization, cred.CreatedAt,
	).Scan(&out.ID, &out.HolderID, &out.IsVerifier, &out.Level, &out.Organization, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Credential{}, ErrDuplicate
		}
		return Credential{}, fmt.Errorf("verifier: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetByHolder(ctx context.Context, holderID string) (Credential, error) {
	const query = `
		SELECT id, holder_id, is_verifier, verification_level, organization, created_at
		FROM verifier_credentials
		WHERE holder_id = $1
	`

	var out Credential
	err := r.pool.QueryRow(ctx, query, holderID).
		Scan(&out.ID, &out.HolderID, &out.IsVerifier, &out.Level, &out.Organization, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("verifier: get by holder: %w", err)
	}
	return out, nil
}
