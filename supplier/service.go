package supplier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/verifier"
)

var (
	// ErrUnauthorized signals the caller may not act on this supplier.
	ErrUnauthorized = errors.New("supplier: unauthorized")
	// ErrUnauthorizedVerifier signals a missing or foreign verifier credential.
	ErrUnauthorizedVerifier = errors.New("supplier: verifier credential required")
	// ErrVerificationRequired signals the supplier is not verified yet.
	ErrVerificationRequired = errors.New("supplier: verification required")
	// ErrInvalidRating signals a rating outside 0-5.
	ErrInvalidRating = errors.New("supplier: rating must be between 0 and 5")
	// ErrDuplicate signals the identity already registered a supplier.
	ErrDuplicate = errors.New("supplier: already registered")
	// ErrNotFound is returned when no supplier row exists.
	ErrNotFound = errors.New("supplier: not found")
	// ErrCounterOverflow signals the products-supplied counter cannot grow.
	ErrCounterOverflow = errors.New("supplier: products supplied counter overflow")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the supplier service.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, s Supplier) (Supplier, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Supplier, error)
	SetVerified(ctx context.Context, tx pgx.Tx, id string, actorID string) (Supplier, error)
	UpdateProfile(ctx context.Context, tx pgx.Tx, id string, certification, description *string) (Supplier, error)
	SetRating(ctx context.Context, tx pgx.Tx, id string, rating int16, actorID string) (Supplier, error)
	AgreementLink(ctx context.Context, tx pgx.Tx, agreementID string) (AgreementLink, error)
	InsertCatalogProduct(ctx context.Context, tx pgx.Tx, p CatalogProduct, newCount int64) (CatalogProduct, error)
}

// Service implements supplier lifecycle, rating, and catalog management.
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

type RegisterParams struct {
	Name          string
	Certification string
	Description   string
}

// Register creates an unverified supplier for the calling identity. At most
// one supplier exists per identity.
func (s *Service) Register(ctx context.Context, callerID string, params RegisterParams) (Supplier, error) {
	if callerID == "" {
		return Supplier{}, fmt.Errorf("supplier: missing caller id")
	}
	if params.Name == "" {
		return Supplier{}, fmt.Errorf("supplier: name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Insert(ctx, tx, Supplier{
		ID:            callerID,
		Name:          params.Name,
		Certification: params.Certification,
		Description:   params.Description,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return Supplier{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Supplier{}, fmt.Errorf("supplier: commit tx: %w", err)
	}
	return created, nil
}

// Verify marks the supplier as verified. Allowed for the supplier itself or
// any holder of a verifier credential. Re-verifying is a no-op.
func (s *Service) Verify(ctx context.Context, callerID string, cred *verifier.Credential, supplierID string) (Supplier, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sup, err := s.repo.GetForUpdate(ctx, tx, supplierID)
	if err != nil {
		return Supplier{}, err
	}
	if !sup.IsSelf(callerID) && !cred.Authorizes(callerID) {
		return Supplier{}, ErrUnauthorizedVerifier
	}
	if sup.IsVerified {
		return sup, nil
	}

	updated, err := s.repo.SetVerified(ctx, tx, supplierID, callerID)
	if err != nil {
		return Supplier{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Supplier{}, fmt.Errorf("supplier: commit tx: %w", err)
	}
	return updated, nil
}

type UpdateParams struct {
	Certification *string
	Description   *string
}

// Update overwrites the provided profile fields. Supplier itself only.
func (s *Service) Update(ctx context.Context, callerID, supplierID string, params UpdateParams) (Supplier, error) {
	if params.Certification == nil && params.Description == nil {
		return Supplier{}, fmt.Errorf("supplier: nothing to update")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sup, err := s.repo.GetForUpdate(ctx, tx, supplierID)
	if err != nil {
		return Supplier{}, err
	}
	if !sup.IsSelf(callerID) {
		return Supplier{}, ErrUnauthorized
	}

	updated, err := s.repo.UpdateProfile(ctx, tx, supplierID, params.Certification, params.Description)
	if err != nil {
		return Supplier{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Supplier{}, fmt.Errorf("supplier: commit tx: %w", err)
	}
	return updated, nil
}

type RateParams struct {
	SupplierID  string
	AgreementID string
	Rating      int16
}

// Rate overwrites the supplier's rating. The caller must own the store named
// by a completed agreement with this supplier; the rating is not averaged.
func (s *Service) Rate(ctx context.Context, callerID string, params RateParams) (Supplier, error) {
	if params.Rating < 0 || params.Rating > 5 {
		return Supplier{}, ErrInvalidRating
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Supplier{}, fmt.Errorf("supplier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	link, err := s.repo.AgreementLink(ctx, tx, params.AgreementID)
	if err != nil {
		return Supplier{}, err
	}
	if link.StoreOwnerID != callerID || link.SupplierID != params.SupplierID {
		return Supplier{}, ErrUnauthorized
	}
	if !link.Completed {
		return Supplier{}, ErrUnauthorized
	}

	if _, err := s.repo.GetForUpdate(ctx, tx, params.SupplierID); err != nil {
		return Supplier{}, err
	}

	updated, err := s.repo.SetRating(ctx, tx, params.SupplierID, params.Rating, callerID)
	if err != nil {
		return Supplier{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Supplier{}, fmt.Errorf("supplier: commit tx: %w", err)
	}
	return updated, nil
}

type CatalogProductParams struct {
	Name              string
	Description       string
	Price             int64
	AvailableQuantity int64
}

// AddCatalogProduct appends a catalog entry for a verified supplier and bumps
// the products-supplied counter with checked arithmetic.
func (s *Service) AddCatalogProduct(ctx context.Context, callerID string, params CatalogProductParams) (CatalogProduct, error) {
	if params.Name == "" {
		return CatalogProduct{}, fmt.Errorf("supplier: catalog product name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CatalogProduct{}, fmt.Errorf("supplier: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sup, err := s.repo.GetForUpdate(ctx, tx, callerID)
	if err != nil {
		return CatalogProduct{}, err
	}
	if !sup.IsVerified {
		return CatalogProduct{}, ErrVerificationRequired
	}
	if sup.ProductsSupplied == math.MaxInt64 {
		return CatalogProduct{}, ErrCounterOverflow
	}

	created, err := s.repo.InsertCatalogProduct(ctx, tx, CatalogProduct{
		ID:                s.idGenerator(),
		SupplierID:        sup.ID,
		Name:              params.Name,
		Description:       params.Description,
		Price:             params.Price,
		AvailableQuantity: params.AvailableQuantity,
		CreatedAt:         s.now(),
	}, sup.ProductsSupplied+1)
	if err != nil {
		return CatalogProduct{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CatalogProduct{}, fmt.Errorf("supplier: commit tx: %w", err)
	}
	return created, nil
}
