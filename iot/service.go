package iot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/verifier"
)

var (
	// ErrNotFound is returned when no reading row exists.
	ErrNotFound = errors.New("iot: reading not found")
	// ErrInvalidDataType signals a sensor type outside the known set.
	ErrInvalidDataType = errors.New("iot: unknown data type")
	// ErrInvalidValue signals an empty sensor payload.
	ErrInvalidValue = errors.New("iot: value required")
	// ErrUnauthorizedVerifier signals attestation without the caller's
	// verifier credential.
	ErrUnauthorizedVerifier = errors.New("iot: attestation requires the caller's verifier credential")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the telemetry service.
type Repository interface {
	ShipmentExists(ctx context.Context, tx pgx.Tx, shipmentID string) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, r Reading) (Reading, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Reading, error)
	MarkVerified(ctx context.Context, tx pgx.Tx, id, verifierID string, at time.Time) (Reading, error)
}

// Service ingests sensor telemetry for shipments and lets verifiers attest it.
type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

type AddReadingParams struct {
	ShipmentID string
	DataType   DataType
	Value      string
}

// AddReading records a sensor sample against an existing shipment. The sample
// starts unverified.
func (s *Service) AddReading(ctx context.Context, callerID string, params AddReadingParams) (Reading, error) {
	if !params.DataType.Valid() {
		return Reading{}, ErrInvalidDataType
	}
	if params.Value == "" {
		return Reading{}, ErrInvalidValue
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("iot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	exists, err := s.repo.ShipmentExists(ctx, tx, params.ShipmentID)
	if err != nil {
		return Reading{}, err
	}
	if !exists {
		return Reading{}, fmt.Errorf("iot: shipment %s: %w", params.ShipmentID, pgx.ErrNoRows)
	}

	created, err := s.repo.Insert(ctx, tx, Reading{
		ID:         s.idGenerator(),
		ShipmentID: params.ShipmentID,
		DataType:   params.DataType,
		Value:      params.Value,
		RecordedBy: callerID,
		RecordedAt: s.now(),
	})
	if err != nil {
		return Reading{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Reading{}, fmt.Errorf("iot: commit tx: %w", err)
	}
	return created, nil
}

// VerifyReading attests a recorded sample. Re-attesting an already verified
// reading is a no-op that returns the stored row unchanged.
func (s *Service) VerifyReading(ctx context.Context, callerID string, cred *verifier.Credential, readingID string) (Reading, error) {
	if !cred.Authorizes(callerID) {
		return Reading{}, ErrUnauthorizedVerifier
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("iot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, readingID)
	if err != nil {
		return Reading{}, err
	}
	if rec.Verified {
		return rec, nil
	}

	verified, err := s.repo.MarkVerified(ctx, tx, readingID, callerID, s.now())
	if err != nil {
		return Reading{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Reading{}, fmt.Errorf("iot: commit tx: %w", err)
	}
	return verified, nil
}
