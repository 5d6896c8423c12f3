package verifier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterAndGet(t *testing.T) {
	repo := newFakeRepository()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo).
		WithClock(func() time.Time { return now }).
		WithIDGenerator(func() string { return "cred-1" })

	cred, err := svc.Register(context.Background(), "user-1", RegisterParams{
		Level:        2,
		Organization: "Global Inspections Ltd",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !cred.IsVerifier {
		t.Error("expected new credential to grant verifier rights")
	}

	got, err := svc.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "cred-1" || got.Organization != "Global Inspections Ltd" {
		t.Fatalf("unexpected credential: %+v", got)
	}

	if _, err := svc.Register(context.Background(), "user-1", RegisterParams{}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCredentialAuthorizes(t *testing.T) {
	cred := &Credential{HolderID: "user-1", IsVerifier: true}

	if !cred.Authorizes("user-1") {
		t.Error("expected holder to be authorized")
	}
	if cred.Authorizes("user-2") {
		t.Error("expected non-holder to be denied")
	}

	revoked := &Credential{HolderID: "user-1", IsVerifier: false}
	if revoked.Authorizes("user-1") {
		t.Error("expected revoked credential to be denied")
	}

	var missing *Credential
	if missing.Authorizes("user-1") {
		t.Error("expected nil credential to be denied")
	}
}

type fakeRepository struct {
	byHolder map[string]Credential
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byHolder: make(map[string]Credential)}
}

func (f *fakeRepository) Insert(ctx context.Context, cred Credential) (Credential, error) {
	if _, ok := f.byHolder[cred.HolderID]; ok {
		return Credential{}, ErrDuplicate
	}
	f.byHolder[cred.HolderID] = cred
	return cred, nil
}

func (f *fakeRepository) GetByHolder(ctx context.Context, holderID string) (Credential, error) {
	cred, ok := f.byHolder[holderID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}
