package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrUnauthorized signals the caller does not own the store.
	ErrUnauthorized = errors.New("store: caller is not the store owner")
	// ErrInactive signals the store is not accepting product changes.
	ErrInactive = errors.New("store: store is inactive")
	// ErrInvalidPrice signals a non-positive price.
	ErrInvalidPrice = errors.New("store: price must be greater than zero")
	// ErrInvalidQuantity signals a non-positive quantity.
	ErrInvalidQuantity = errors.New("store: quantity must be greater than zero")
	// ErrNotFound is returned when no store or product row exists.
	ErrNotFound = errors.New("store: not found")
	// ErrCounterOverflow signals the product counter cannot be incremented.
	ErrCounterOverflow = errors.New("store: product counter overflow")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the store service.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, s Store) (Store, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Store, error)
	SetActive(ctx context.Context, tx pgx.Tx, id string, active bool, actorID string) (Store, error)
	InsertProduct(ctx context.Context, tx pgx.Tx, p Product, newTotal int64, actorID string) (Product, error)
	GetProductForUpdate(ctx context.Context, tx pgx.Tx, id string) (Product, error)
	UpdateProduct(ctx context.Context, tx pgx.Tx, id string, price, quantity *int64, actorID string) (Product, error)
}

// Service implements store and product management.
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

type InitializeParams struct {
	Name     string
	Location string
}

// Initialize creates a new active store owned by the caller.
func (s *Service) Initialize(ctx context.Context, ownerID string, params InitializeParams) (Store, error) {
	if ownerID == "" {
		return Store{}, fmt.Errorf("store: missing owner id")
	}
	if params.Name == "" {
		return Store{}, fmt.Errorf("store: name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Store{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Insert(ctx, tx, Store{
		ID:        s.idGenerator(),
		OwnerID:   ownerID,
		Name:      params.Name,
		Location:  params.Location,
		IsActive:  true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Store{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Store{}, fmt.Errorf("store: commit tx: %w", err)
	}
	return created, nil
}

// SetActive toggles whether the store accepts product changes. Owner only.
func (s *Service) SetActive(ctx context.Context, callerID, storeID string, active bool) (Store, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Store{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	st, err := s.repo.GetForUpdate(ctx, tx, storeID)
	if err != nil {
		return Store{}, err
	}
	if !st.OwnedBy(callerID) {
		return Store{}, ErrUnauthorized
	}

	updated, err := s.repo.SetActive(ctx, tx, storeID, active, callerID)
	if err != nil {
		return Store{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Store{}, fmt.Errorf("store: commit tx: %w", err)
	}
	return updated, nil
}

type AddProductParams struct {
	StoreID     string
	Name        string
	Description string
	Price       int64
	Quantity    int64
}

// AddProduct creates a product in an active store owned by the caller and
// bumps the store's product counter. The counter uses checked arithmetic:
// overflow fails the whole operation rather than wrapping.
func (s *Service) AddProduct(ctx context.Context, callerID string, params AddProductParams) (Product, error) {
	if params.Name == "" {
		return Product{}, fmt.Errorf("store: product name required")
	}
	if params.Price <= 0 {
		return Product{}, ErrInvalidPrice
	}
	if params.Quantity <= 0 {
		return Product{}, ErrInvalidQuantity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	st, err := s.repo.GetForUpdate(ctx, tx, params.StoreID)
	if err != nil {
		return Product{}, err
	}
	if !st.OwnedBy(callerID) {
		return Product{}, ErrUnauthorized
	}
	if !st.IsActive {
		return Product{}, ErrInactive
	}
	if st.TotalProducts == math.MaxInt64 {
		return Product{}, ErrCounterOverflow
	}

	created, err := s.repo.InsertProduct(ctx, tx, Product{
		ID:          s.idGenerator(),
		StoreID:     st.ID,
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Quantity:    params.Quantity,
		CreatedAt:   s.now(),
	}, st.TotalProducts+1, callerID)
	if err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("store: commit tx: %w", err)
	}
	return created, nil
}

type UpdateProductParams struct {
	ProductID string
	Price     *int64
	Quantity  *int64
}

// UpdateProduct overwrites the provided fields of a product. Caller must own
// the store and the store must be active.
func (s *Service) UpdateProduct(ctx context.Context, callerID string, params UpdateProductParams) (Product, error) {
	if params.Price == nil && params.Quantity == nil {
		return Product{}, fmt.Errorf("store: nothing to update")
	}
	if params.Price != nil && *params.Price <= 0 {
		return Product{}, ErrInvalidPrice
	}
	if params.Quantity != nil && *params.Quantity < 0 {
		return Product{}, ErrInvalidQuantity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.repo.GetProductForUpdate(ctx, tx, params.ProductID)
	if err != nil {
		return Product{}, err
	}
	st, err := s.repo.GetForUpdate(ctx, tx, p.StoreID)
	if err != nil {
		return Product{}, err
	}
	if !st.OwnedBy(callerID) {
		return Product{}, ErrUnauthorized
	}
	if !st.IsActive {
		return Product{}, ErrInactive
	}

	updated, err := s.repo.UpdateProduct(ctx, tx, p.ID, params.Price, params.Quantity, callerID)
	if err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("store: commit tx: %w", err)
	}
	return updated, nil
}
