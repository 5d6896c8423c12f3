package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound signals that no credential exists for the holder.
	ErrNotFound = errors.New("verifier: credential not found")
	// ErrDuplicate signals the holder already registered a credential.
	ErrDuplicate = errors.New("verifier: credential already registered")
)

// Repository defines the data access required by the credential service.
type Repository interface {
	Insert(ctx context.Context, cred Credential) (Credential, error)
	GetByHolder(ctx context.Context, holderID string) (Credential, error)
}

// Service manages verifier credential registration and lookup.
type Service struct {
	repo        Repository
	idGenerator func() string
	now         func() time.Time
}

type RegisterParams struct {
	Level        int16
	Organization string
}

func NewService(repo Repository) *Service {
	return &Service{
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

// Register creates a credential for the calling identity.
func (s *Service) Register(ctx context.Context, holderID string, params RegisterParams) (Credential, error) {
	if holderID == "" {
		return Credential{}, fmt.Errorf("verifier: missing holder id")
	}

	cred := Credential{
		ID:           s.idGenerator(),
		HolderID:     holderID,
		IsVerifier:   true,
		Level:        params.Level,
		Organization: params.Organization,
		CreatedAt:    s.now(),
	}
	return s.repo.Insert(ctx, cred)
}

// Get returns the credential held by the given identity, if any.
func (s *Service) Get(ctx context.Context, holderID string) (Credential, error) {
	return s.repo.GetByHolder(ctx, holderID)
}
