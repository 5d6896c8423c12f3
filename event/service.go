package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrInvalidType signals an unknown event type code.
	ErrInvalidType = errors.New("event: invalid event type")
	// ErrMissingEntity signals that the related entity identifier is empty.
	ErrMissingEntity = errors.New("event: related entity required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the audit event service.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
}

// Service records supply chain audit events. Events are append-only; there is
// no authorization gate beyond an authenticated caller.
type Service struct {
	pool        TxBeginner
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

type RecordParams struct {
	Type            Type
	RelatedEntityID string
	Location        string
	OccurredAt      time.Time
	Metadata        string
}

func NewService(pool TxBeginner, repo Repository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
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

// Record appends an audit event and enqueues it for external consumers.
func (s *Service) Record(ctx context.Context, recorderID string, params RecordParams) (Record, error) {
	if recorderID == "" {
		return Record{}, fmt.Errorf("event: missing recorder id")
	}
	if !params.Type.Valid() {
		return Record{}, ErrInvalidType
	}
	if params.RelatedEntityID == "" {
		return Record{}, ErrMissingEntity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("event: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := Record{
		ID:              s.idGenerator(),
		Type:            params.Type,
		RecorderID:      recorderID,
		RelatedEntityID: params.RelatedEntityID,
		Location:        params.Location,
		OccurredAt:      params.OccurredAt,
		Metadata:        params.Metadata,
		CreatedAt:       s.now(),
	}

	created, err := s.repo.Insert(ctx, tx, rec)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("event: commit tx: %w", err)
	}

	return created, nil
}
