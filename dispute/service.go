package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/agreement"
	"github.com/Twhite2/Retail-Chain/verifier"
)

// MaxReasonLength caps the free-text reason on a dispute.
const MaxReasonLength = 200

var (
	// ErrNotFound is returned when no dispute row exists.
	ErrNotFound = errors.New("dispute: not found")
	// ErrUnauthorized signals the caller is not a party to the agreement.
	ErrUnauthorized = errors.New("dispute: caller is not a party to the agreement")
	// ErrUnauthorizedVerifier signals resolution was attempted without a
	// verifier credential held by the caller.
	ErrUnauthorizedVerifier = errors.New("dispute: resolution requires the caller's verifier credential")
	// ErrInvalidReason signals an empty or oversized reason.
	ErrInvalidReason = errors.New("dispute: reason must be 1-200 characters")
	// ErrInvalidOutcome signals an outcome code outside the known set.
	ErrInvalidOutcome = errors.New("dispute: unknown resolution outcome")
	// ErrAlreadyResolved signals the dispute was resolved earlier.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrPending signals an unresolved dispute already exists for the agreement.
	ErrPending = errors.New("dispute: an unresolved dispute already exists for this agreement")
	// ErrAgreementNotActive signals the agreement is not in a disputable state.
	ErrAgreementNotActive = errors.New("dispute: agreement is not active")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the dispute service.
type Repository interface {
	GetAgreementForUpdate(ctx context.Context, tx pgx.Tx, agreementID string) (agreement.Locked, error)
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error)
	MarkResolved(ctx context.Context, tx pgx.Tx, id, resolverID, notes string, at time.Time) (Record, error)
	SetAgreementStatus(ctx context.Context, tx pgx.Tx, agreementID string, from, to agreement.Status, actorID string) error
}

// Service arbitrates disputes over supply agreements. Opening a dispute
// suspends the agreement; only a credentialed verifier may resolve it, and the
// ruling decides where the agreement lands.
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

// Open raises a dispute against an active agreement and suspends it. Either
// party may open one; a second unresolved dispute is rejected.
func (s *Service) Open(ctx context.Context, callerID, agreementID, reason string) (Record, error) {
	if reason == "" || len(reason) > MaxReasonLength {
		return Record{}, ErrInvalidReason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	agr, err := s.repo.GetAgreementForUpdate(ctx, tx, agreementID)
	if err != nil {
		return Record{}, err
	}
	if agr.Status != agreement.StatusActive {
		return Record{}, ErrAgreementNotActive
	}
	if !agr.IsParty(callerID, agr.StoreOwnerID) {
		return Record{}, ErrUnauthorized
	}

	rec, err := s.repo.Insert(ctx, tx, Record{
		ID:          s.idGenerator(),
		AgreementID: agreementID,
		RaisedBy:    callerID,
		Reason:      reason,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return Record{}, err
	}

	if err := s.repo.SetAgreementStatus(ctx, tx, agreementID, agreement.StatusActive, agreement.StatusDisputed, callerID); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	return rec, nil
}

// Resolve applies a verifier's ruling. The dispute is marked resolved and the
// suspended agreement moves to the status the outcome dictates, in one
// transaction.
func (s *Service) Resolve(ctx context.Context, callerID string, cred *verifier.Credential, disputeID string, outcome Outcome, notes string) (Record, error) {
	target, ok := outcome.AgreementStatus()
	if !ok {
		return Record{}, ErrInvalidOutcome
	}
	if !cred.Authorizes(callerID) {
		return Record{}, ErrUnauthorizedVerifier
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Record{}, err
	}
	if rec.Resolved {
		return Record{}, ErrAlreadyResolved
	}

	agr, err := s.repo.GetAgreementForUpdate(ctx, tx, rec.AgreementID)
	if err != nil {
		return Record{}, err
	}
	if agr.Status != agreement.StatusDisputed {
		return Record{}, fmt.Errorf("dispute: agreement %s is %s, expected %s", agr.ID, agr.Status, agreement.StatusDisputed)
	}

	resolved, err := s.repo.MarkResolved(ctx, tx, disputeID, callerID, notes, s.now())
	if err != nil {
		return Record{}, err
	}

	if err := s.repo.SetAgreementStatus(ctx, tx, rec.AgreementID, agreement.StatusDisputed, target, callerID); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	return resolved, nil
}
