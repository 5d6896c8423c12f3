package supplier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/verifier"
)

func newTestService(repo *fakeRepo) *Service {
	n := 0
	return NewService(&fakePool{}, repo).
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("catalog-%d", n) })
}

func TestRegister(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	sup, err := svc.Register(context.Background(), "user-1", RegisterParams{
		Name:          "Acme Foods",
		Certification: "ISO 22000",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sup.ID != "user-1" {
		t.Fatalf("expected supplier id to equal caller id, got %q", sup.ID)
	}
	if sup.IsVerified {
		t.Error("expected new supplier to start unverified")
	}

	if _, err := svc.Register(context.Background(), "user-1", RegisterParams{Name: "Acme"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	repo := newFakeRepo()
	repo.suppliers["sup-1"] = Supplier{ID: "sup-1"}
	svc := newTestService(repo)

	ctx := context.Background()

	// Neither self nor credentialed.
	if _, err := svc.Verify(ctx, "random", nil, "sup-1"); !errors.Is(err, ErrUnauthorizedVerifier) {
		t.Fatalf("expected ErrUnauthorizedVerifier, got %v", err)
	}

	// Credential held by somebody else.
	cred := &verifier.Credential{HolderID: "other", IsVerifier: true}
	if _, err := svc.Verify(ctx, "random", cred, "sup-1"); !errors.Is(err, ErrUnauthorizedVerifier) {
		t.Fatalf("expected ErrUnauthorizedVerifier, got %v", err)
	}

	// Self-claim path.
	sup, err := svc.Verify(ctx, "sup-1", nil, "sup-1")
	if err != nil {
		t.Fatalf("self verify: %v", err)
	}
	if !sup.IsVerified {
		t.Error("expected supplier verified")
	}

	// Re-verification is a no-op, not an error.
	again, err := svc.Verify(ctx, "sup-1", nil, "sup-1")
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if !again.IsVerified {
		t.Error("expected supplier to stay verified")
	}
	if repo.verifyCalls != 1 {
		t.Fatalf("expected exactly one SetVerified call, got %d", repo.verifyCalls)
	}

	// Verifier credential path.
	repo.suppliers["sup-2"] = Supplier{ID: "sup-2"}
	vcred := &verifier.Credential{HolderID: "inspector", IsVerifier: true}
	if _, err := svc.Verify(ctx, "inspector", vcred, "sup-2"); err != nil {
		t.Fatalf("credential verify: %v", err)
	}
}

func TestRate(t *testing.T) {
	repo := newFakeRepo()
	repo.suppliers["sup-1"] = Supplier{ID: "sup-1", IsVerified: true, Rating: 3}
	repo.links["agr-1"] = AgreementLink{
		SupplierID: "sup-1", StoreID: "store-1", StoreOwnerID: "owner-1", Completed: true,
	}
	repo.links["agr-open"] = AgreementLink{
		SupplierID: "sup-1", StoreID: "store-1", StoreOwnerID: "owner-1", Completed: false,
	}
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Rate(ctx, "owner-1", RateParams{SupplierID: "sup-1", AgreementID: "agr-1", Rating: 6}); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := svc.Rate(ctx, "owner-1", RateParams{SupplierID: "sup-1", AgreementID: "agr-1", Rating: -1}); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating for negative, got %v", err)
	}

	// Not the store owner.
	if _, err := svc.Rate(ctx, "stranger", RateParams{SupplierID: "sup-1", AgreementID: "agr-1", Rating: 4}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// Agreement not completed.
	if _, err := svc.Rate(ctx, "owner-1", RateParams{SupplierID: "sup-1", AgreementID: "agr-open", Rating: 4}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for open agreement, got %v", err)
	}

	// Qualifying rating overwrites.
	sup, err := svc.Rate(ctx, "owner-1", RateParams{SupplierID: "sup-1", AgreementID: "agr-1", Rating: 5})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if sup.Rating != 5 {
		t.Fatalf("expected rating overwritten to 5, got %d", sup.Rating)
	}
}

func TestAddCatalogProduct(t *testing.T) {
	repo := newFakeRepo()
	repo.suppliers["sup-1"] = Supplier{ID: "sup-1"}
	svc := newTestService(repo)
	ctx := context.Background()

	params := CatalogProductParams{Name: "Flour 10kg", Price: 900, AvailableQuantity: 50}

	if _, err := svc.AddCatalogProduct(ctx, "sup-1", params); !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("expected ErrVerificationRequired, got %v", err)
	}

	repo.suppliers["sup-1"] = Supplier{ID: "sup-1", IsVerified: true}
	p, err := svc.AddCatalogProduct(ctx, "sup-1", params)
	if err != nil {
		t.Fatalf("add catalog product: %v", err)
	}
	if p.SupplierID != "sup-1" {
		t.Fatalf("expected sup-1, got %q", p.SupplierID)
	}
	if repo.lastCount != 1 {
		t.Fatalf("expected counter bumped to 1, got %d", repo.lastCount)
	}

	repo.suppliers["sup-1"] = Supplier{ID: "sup-1", IsVerified: true, ProductsSupplied: math.MaxInt64}
	if _, err := svc.AddCatalogProduct(ctx, "sup-1", params); !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("expected ErrCounterOverflow, got %v", err)
	}
}

type fakeRepo struct {
	suppliers   map[string]Supplier
	links       map[string]AgreementLink
	verifyCalls int
	lastCount   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		suppliers: make(map[string]Supplier),
		links:     make(map[string]AgreementLink),
	}
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, s Supplier) (Supplier, error) {
	if _, ok := f.suppliers[s.ID]; ok {
		return Supplier{}, ErrDuplicate
	}
	f.suppliers[s.ID] = s
	return s, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) SetVerified(ctx context.Context, tx pgx.Tx, id string, actorID string) (Supplier, error) {
	f.verifyCalls++
	s := f.suppliers[id]
	s.IsVerified = true
	f.suppliers[id] = s
	return s, nil
}

func (f *fakeRepo) UpdateProfile(ctx context.Context, tx pgx.Tx, id string, certification, description *string) (Supplier, error) {
	s := f.suppliers[id]
	if certification != nil {
		s.Certification = *certification
	}
	if description != nil {
		s.Description = *description
	}
	f.suppliers[id] = s
	return s, nil
}

func (f *fakeRepo) SetRating(ctx context.Context, tx pgx.Tx, id string, rating int16, actorID string) (Supplier, error) {
	s := f.suppliers[id]
	s.Rating = rating
	f.suppliers[id] = s
	return s, nil
}

func (f *fakeRepo) AgreementLink(ctx context.Context, tx pgx.Tx, agreementID string) (AgreementLink, error) {
	link, ok := f.links[agreementID]
	if !ok {
		return AgreementLink{}, ErrNotFound
	}
	return link, nil
}

func (f *fakeRepo) InsertCatalogProduct(ctx context.Context, tx pgx.Tx, p CatalogProduct, newCount int64) (CatalogProduct, error) {
	f.lastCount = newCount
	s := f.suppliers[p.SupplierID]
	s.ProductsSupplied = newCount
	f.suppliers[p.SupplierID] = s
	return p, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	pgx.Tx
	committed bool
	rolled    bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}
