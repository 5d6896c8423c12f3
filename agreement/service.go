package agreement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrUnauthorized signals the caller is not allowed to act on the agreement.
	ErrUnauthorized = errors.New("agreement: unauthorized")
	// ErrInvalidTerms signals empty terms or terms over the length cap.
	ErrInvalidTerms = errors.New("agreement: terms must be 1-200 characters")
	// ErrInvalidDeadline signals a deadline not strictly in the future.
	ErrInvalidDeadline = errors.New("agreement: deadline must be in the future")
	// ErrInvalidPaymentAmount signals a non-positive payment amount.
	ErrInvalidPaymentAmount = errors.New("agreement: payment amount must be greater than zero")
	// ErrInvalidStatus signals the agreement is in the wrong state for the operation.
	ErrInvalidStatus = errors.New("agreement: invalid status for this operation")
	// ErrAlreadyAccepted signals an accept on a non-pending agreement.
	ErrAlreadyAccepted = errors.New("agreement: already accepted")
	// ErrAlreadyCompleted signals the agreement reached its completed terminal state.
	ErrAlreadyCompleted = errors.New("agreement: already completed")
	// ErrCanceled signals the agreement reached its canceled terminal state.
	ErrCanceled = errors.New("agreement: canceled")
	// ErrInDispute signals the agreement is suspended pending dispute resolution.
	ErrInDispute = errors.New("agreement: in dispute")
	// ErrNotFound is returned when no agreement row exists.
	ErrNotFound = errors.New("agreement: not found")
)

// statusError maps a failed status precondition to the most specific error.
func statusError(s Status) error {
	switch s {
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusCanceled:
		return ErrCanceled
	case StatusDisputed:
		return ErrInDispute
	default:
		return ErrInvalidStatus
	}
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the agreement service.
type Repository interface {
	StoreOwner(ctx context.Context, tx pgx.Tx, storeID string) (string, error)
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Locked, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, actorID string) (Record, error)
	AddProducts(ctx context.Context, tx pgx.Tx, id string, productIDs []string, actorID string) ([]string, error)
}

// Service implements the supply agreement state machine. Every mutation runs
// inside a single transaction with the agreement row locked, so a writer
// holding a stale status is rejected rather than silently overwritten.
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

type CreateParams struct {
	SupplierID    string
	StoreID       string
	Terms         string
	Deadline      time.Time
	PaymentAmount int64
}

// Create produces a pending agreement between a supplier and a store. Either
// party may initiate it.
func (s *Service) Create(ctx context.Context, callerID string, params CreateParams) (Record, error) {
	if params.Terms == "" || len(params.Terms) > MaxTermsLength {
		return Record{}, ErrInvalidTerms
	}
	now := s.now()
	if !params.Deadline.After(now) {
		return Record{}, ErrInvalidDeadline
	}
	if params.PaymentAmount <= 0 {
		return Record{}, ErrInvalidPaymentAmount
	}
	if params.SupplierID == "" || params.StoreID == "" {
		return Record{}, fmt.Errorf("agreement: supplier and store ids required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	owner, err := s.repo.StoreOwner(ctx, tx, params.StoreID)
	if err != nil {
		return Record{}, err
	}
	if callerID != params.SupplierID && callerID != owner {
		return Record{}, ErrUnauthorized
	}

	created, err := s.repo.Insert(ctx, tx, Record{
		ID:            s.idGenerator(),
		SupplierID:    params.SupplierID,
		StoreID:       params.StoreID,
		Terms:         params.Terms,
		Deadline:      params.Deadline,
		PaymentAmount: params.PaymentAmount,
		Status:        StatusPending,
		CreatedAt:     now,
		Products:      []string{},
	})
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("agreement: commit tx: %w", err)
	}
	return created, nil
}

// Accept moves a pending agreement to active. Store owner only.
func (s *Service) Accept(ctx context.Context, callerID, agreementID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, agreementID)
	if err != nil {
		return Record{}, err
	}
	if locked.Status != StatusPending {
		if locked.Status == StatusActive {
			return Record{}, ErrAlreadyAccepted
		}
		return Record{}, statusError(locked.Status)
	}
	if callerID != locked.StoreOwnerID {
		return Record{}, ErrUnauthorized
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, agreementID, StatusPending, StatusActive, callerID)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("agreement: commit tx: %w", err)
	}
	return updated, nil
}

// AddProducts union-appends product identifiers to a pending or active
// agreement. Supplier only. Identifiers already present are suppressed.
func (s *Service) AddProducts(ctx context.Context, callerID, agreementID string, productIDs []string) ([]string, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("agreement: no products to add")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, agreementID)
	if err != nil {
		return nil, err
	}
	if locked.Status != StatusPending && locked.Status != StatusActive {
		return nil, statusError(locked.Status)
	}
	if callerID != locked.SupplierID {
		return nil, ErrUnauthorized
	}

	products, err := s.repo.AddProducts(ctx, tx, agreementID, productIDs, callerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agreement: commit tx: %w", err)
	}
	return products, nil
}

// Complete moves an active agreement to its completed terminal state. Either
// party may complete.
func (s *Service) Complete(ctx context.Context, callerID, agreementID string) (Record, error) {
	return s.transition(ctx, callerID, agreementID, StatusActive, StatusCompleted)
}

// Cancel irreversibly cancels a pending or active agreement. Either party.
func (s *Service) Cancel(ctx context.Context, callerID, agreementID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, agreementID)
	if err != nil {
		return Record{}, err
	}
	if locked.Status != StatusPending && locked.Status != StatusActive {
		return Record{}, statusError(locked.Status)
	}
	if !locked.IsParty(callerID, locked.StoreOwnerID) {
		return Record{}, ErrUnauthorized
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, agreementID, locked.Status, StatusCanceled, callerID)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("agreement: commit tx: %w", err)
	}
	return updated, nil
}

func (s *Service) transition(ctx context.Context, callerID, agreementID string, from, to Status) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, agreementID)
	if err != nil {
		return Record{}, err
	}
	if locked.Status != from {
		return Record{}, statusError(locked.Status)
	}
	if !locked.IsParty(callerID, locked.StoreOwnerID) {
		return Record{}, ErrUnauthorized
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, agreementID, from, to, callerID)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("agreement: commit tx: %w", err)
	}
	return updated, nil
}
