package shipment

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

var (
	// ErrNotFound is returned when no shipment row exists.
	ErrNotFound = errors.New("shipment: not found")
	// ErrUnauthorized signals the caller may not act on this shipment.
	ErrUnauthorized = errors.New("shipment: unauthorized")
	// ErrVerificationRequired signals the supplier has not been verified yet.
	ErrVerificationRequired = errors.New("shipment: supplier must be verified before shipping")
	// ErrInvalidTracking signals an empty or oversized tracking identifier.
	ErrInvalidTracking = errors.New("shipment: tracking id must be 1-32 characters")
	// ErrInvalidETA signals an arrival estimate not in the future.
	ErrInvalidETA = errors.New("shipment: eta must be in the future")
	// ErrInvalidTransition signals a status move outside the allowed progression.
	ErrInvalidTransition = errors.New("shipment: invalid status transition")
	// ErrNotDelivered signals verification attempted before delivery.
	ErrNotDelivered = errors.New("shipment: not yet delivered")
	// ErrAlreadyVerified signals the shipment reached its terminal state.
	ErrAlreadyVerified = errors.New("shipment: already verified")
	// ErrInvalidLocation signals a position report without a place name.
	ErrInvalidLocation = errors.New("shipment: location name required")
	// ErrNotMoving signals an operation that requires an in-flight shipment.
	ErrNotMoving = errors.New("shipment: not in transit")
	// ErrAgreementMismatch signals the linked agreement binds different parties.
	ErrAgreementMismatch = errors.New("shipment: agreement binds a different supplier or store")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the shipment service.
type Repository interface {
	SupplierVerified(ctx context.Context, tx pgx.Tx, supplierID string) (bool, error)
	StoreOwner(ctx context.Context, tx pgx.Tx, storeID string) (string, error)
	GetAgreement(ctx context.Context, tx pgx.Tx, agreementID string) (AgreementRef, error)
	Insert(ctx context.Context, tx pgx.Tx, s Shipment) (Shipment, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Locked, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, from, to Status, deliveredAt *time.Time, actorID string) (Shipment, error)
	RecordActor(ctx context.Context, tx pgx.Tx, shipmentID, actorID string) error
	SetVerified(ctx context.Context, tx pgx.Tx, id string, at time.Time, actorID string) (Shipment, error)
	CompleteAgreement(ctx context.Context, tx pgx.Tx, agreementID, actorID string) error
	InsertException(ctx context.Context, tx pgx.Tx, shipmentID, description, actorID string, at time.Time) error
	InsertLocation(ctx context.Context, tx pgx.Tx, ping LocationPing) error
}

// Service tracks shipments from dispatch through verified delivery. Status
// moves follow a fixed progression; every writer runs under a row lock so two
// carriers reporting at once cannot skip a state.
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
	StoreID     string
	AgreementID *string
	TrackingID  string
	Origin      string
	Destination string
	ETA         time.Time
	ProductIDs  []string
}

// Create dispatches a shipment. Only a verified supplier may ship, and a
// linked agreement must bind the same supplier and store and still be open.
func (s *Service) Create(ctx context.Context, callerID string, params CreateParams) (Shipment, error) {
	if params.TrackingID == "" || len(params.TrackingID) > MaxTrackingIDLength {
		return Shipment{}, ErrInvalidTracking
	}
	now := s.now()
	if !params.ETA.After(now) {
		return Shipment{}, ErrInvalidETA
	}
	if params.StoreID == "" {
		return Shipment{}, fmt.Errorf("shipment: store id required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	verified, err := s.repo.SupplierVerified(ctx, tx, callerID)
	if err != nil {
		return Shipment{}, err
	}
	if !verified {
		return Shipment{}, ErrVerificationRequired
	}

	if params.AgreementID != nil {
		ref, err := s.repo.GetAgreement(ctx, tx, *params.AgreementID)
		if err != nil {
			return Shipment{}, err
		}
		if ref.SupplierID != callerID || ref.StoreID != params.StoreID {
			return Shipment{}, ErrAgreementMismatch
		}
		if ref.Status != agreement.StatusActive {
			return Shipment{}, agreement.ErrInvalidStatus
		}
	}

	created, err := s.repo.Insert(ctx, tx, Shipment{
		ID:          s.idGenerator(),
		SupplierID:  callerID,
		StoreID:     params.StoreID,
		AgreementID: params.AgreementID,
		TrackingID:  params.TrackingID,
		Origin:      params.Origin,
		Destination: params.Destination,
		Status:      StatusCreated,
		ETA:         params.ETA,
		CreatedAt:   now,
		Products:    params.ProductIDs,
	})
	if err != nil {
		return Shipment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit tx: %w", err)
	}
	return created, nil
}

// UpdateStatus advances the shipment along its progression. The supplier, the
// destination store owner, or a credentialed verifier may report; the caller
// is remembered as a handling actor either way. Verification is not reachable
// here, it goes through VerifyDelivery.
func (s *Service) UpdateStatus(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID string, to Status) (Shipment, error) {
	if !to.Valid() || to == StatusVerified {
		return Shipment{}, ErrInvalidTransition
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if !s.mayHandle(locked, callerID, cred) {
		return Shipment{}, ErrUnauthorized
	}
	if !locked.Status.CanTransitionTo(to) {
		return Shipment{}, ErrInvalidTransition
	}

	var deliveredAt *time.Time
	if to == StatusDelivered {
		at := s.now()
		deliveredAt = &at
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, shipmentID, locked.Status, to, deliveredAt, callerID)
	if err != nil {
		return Shipment{}, err
	}
	if err := s.repo.RecordActor(ctx, tx, shipmentID, callerID); err != nil {
		return Shipment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit tx: %w", err)
	}
	return updated, nil
}

// VerifyDelivery is the store owner's confirmation that the goods arrived as
// reported. A delivered shipment becomes verified, and a linked agreement
// still active is completed in the same transaction.
func (s *Service) VerifyDelivery(ctx context.Context, callerID, shipmentID string) (Shipment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if callerID != locked.StoreOwnerID {
		return Shipment{}, ErrUnauthorized
	}
	switch locked.Status {
	case StatusDelivered:
	case StatusVerified:
		return Shipment{}, ErrAlreadyVerified
	default:
		return Shipment{}, ErrNotDelivered
	}

	updated, err := s.repo.SetVerified(ctx, tx, shipmentID, s.now(), callerID)
	if err != nil {
		return Shipment{}, err
	}
	if err := s.repo.RecordActor(ctx, tx, shipmentID, callerID); err != nil {
		return Shipment{}, err
	}

	if locked.AgreementID != nil {
		ref, err := s.repo.GetAgreement(ctx, tx, *locked.AgreementID)
		if err != nil {
			return Shipment{}, err
		}
		if ref.SupplierID != locked.SupplierID || ref.StoreID != locked.StoreID {
			return Shipment{}, ErrAgreementMismatch
		}
		// a disputed agreement stays with the verifier; only an open one
		// completes on delivery
		if ref.Status == agreement.StatusActive {
			if err := s.repo.CompleteAgreement(ctx, tx, ref.ID, callerID); err != nil {
				return Shipment{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit tx: %w", err)
	}
	return updated, nil
}

// AddException flags a problem on an in-flight shipment and parks it in the
// exception state until the carrier recovers it.
func (s *Service) AddException(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID, description string) (Shipment, error) {
	if description == "" {
		return Shipment{}, fmt.Errorf("shipment: exception description required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if !s.mayHandle(locked, callerID, cred) {
		return Shipment{}, ErrUnauthorized
	}
	if locked.Status != StatusInTransit && locked.Status != StatusException {
		return Shipment{}, ErrNotMoving
	}

	now := s.now()
	if err := s.repo.InsertException(ctx, tx, shipmentID, description, callerID, now); err != nil {
		return Shipment{}, err
	}

	updated := locked.Shipment
	if locked.Status == StatusInTransit {
		updated, err = s.repo.UpdateStatus(ctx, tx, shipmentID, StatusInTransit, StatusException, nil, callerID)
		if err != nil {
			return Shipment{}, err
		}
	}
	if err := s.repo.RecordActor(ctx, tx, shipmentID, callerID); err != nil {
		return Shipment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Shipment{}, fmt.Errorf("shipment: commit tx: %w", err)
	}
	return updated, nil
}

type LocationParams struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// RecordLocation appends a position report for a moving shipment. The supplier
// or a credentialed verifier may report.
func (s *Service) RecordLocation(ctx context.Context, callerID string, cred *verifier.Credential, shipmentID string, params LocationParams) (LocationPing, error) {
	if params.Name == "" {
		return LocationPing{}, ErrInvalidLocation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LocationPing{}, fmt.Errorf("shipment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.GetForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return LocationPing{}, err
	}
	if callerID != locked.SupplierID && !cred.Authorizes(callerID) {
		return LocationPing{}, ErrUnauthorized
	}
	if locked.Status != StatusInTransit && locked.Status != StatusException {
		return LocationPing{}, ErrNotMoving
	}

	ping := LocationPing{
		ShipmentID: shipmentID,
		Latitude:   params.Latitude,
		Longitude:  params.Longitude,
		Name:       params.Name,
		RecordedBy: callerID,
		RecordedAt: s.now(),
	}
	if err := s.repo.InsertLocation(ctx, tx, ping); err != nil {
		return LocationPing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LocationPing{}, fmt.Errorf("shipment: commit tx: %w", err)
	}
	return ping, nil
}

func (s *Service) mayHandle(l Locked, callerID string, cred *verifier.Credential) bool {
	return callerID == l.SupplierID || callerID == l.StoreOwnerID || cred.Authorizes(callerID)
}
