package iot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Twhite2/Retail-Chain/verifier"
)

var testClock = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

func newTestService(repo *fakeRepo) (*Service, *fakePool) {
	pool := &fakePool{}
	n := 0
	svc := NewService(pool, repo).
		WithClock(testClock).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("read-%d", n) })
	return svc, pool
}

func verifierCred(holder string) *verifier.Credential {
	return &verifier.Credential{ID: "cred-1", HolderID: holder, IsVerifier: true}
}

func TestDataTypeCodes(t *testing.T) {
	cases := []struct {
		dt   DataType
		code uint8
	}{
		{DataTemperature, 0},
		{DataHumidity, 1},
		{DataLocation, 2},
		{DataShock, 3},
		{DataLightExposure, 4},
	}
	for _, tc := range cases {
		if got := tc.dt.Code(); got != tc.code {
			t.Errorf("%s: expected code %d, got %d", tc.dt, tc.code, got)
		}
		back, ok := DataTypeFromCode(tc.code)
		if !ok || back != tc.dt {
			t.Errorf("code %d: expected %s, got %s (ok=%v)", tc.code, tc.dt, back, ok)
		}
	}
	if _, ok := DataTypeFromCode(5); ok {
		t.Error("expected unknown code to be rejected")
	}
}

func TestAddReading(t *testing.T) {
	repo := newFakeRepo()
	repo.shipments["shp-1"] = true
	svc, pool := newTestService(repo)

	rec, err := svc.AddReading(context.Background(), "sensor-7", AddReadingParams{
		ShipmentID: "shp-1",
		DataType:   DataTemperature,
		Value:      "-18.5",
	})
	if err != nil {
		t.Fatalf("add reading: %v", err)
	}
	if rec.Verified {
		t.Error("new reading must be unverified")
	}
	if rec.RecordedBy != "sensor-7" {
		t.Fatalf("expected recorder sensor-7, got %q", rec.RecordedBy)
	}
	if !pool.tx.committed {
		t.Error("expected commit")
	}
}

func TestAddReading_Validation(t *testing.T) {
	repo := newFakeRepo()
	repo.shipments["shp-1"] = true
	svc, _ := newTestService(repo)

	if _, err := svc.AddReading(context.Background(), "sensor-7", AddReadingParams{
		ShipmentID: "shp-1", DataType: DataType("barometric"), Value: "1013",
	}); !errors.Is(err, ErrInvalidDataType) {
		t.Fatalf("expected ErrInvalidDataType, got %v", err)
	}
	if _, err := svc.AddReading(context.Background(), "sensor-7", AddReadingParams{
		ShipmentID: "shp-1", DataType: DataHumidity, Value: "",
	}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := svc.AddReading(context.Background(), "sensor-7", AddReadingParams{
		ShipmentID: "missing", DataType: DataHumidity, Value: "55",
	}); err == nil {
		t.Fatal("expected error for unknown shipment")
	}
}

func TestVerifyReading(t *testing.T) {
	repo := newFakeRepo()
	repo.readings["read-1"] = Reading{ID: "read-1", ShipmentID: "shp-1", DataType: DataShock, Value: "3.2g"}
	svc, _ := newTestService(repo)

	rec, err := svc.VerifyReading(context.Background(), "verifier-1", verifierCred("verifier-1"), "read-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rec.Verified {
		t.Error("expected reading verified")
	}
	if rec.VerifiedBy == nil || *rec.VerifiedBy != "verifier-1" {
		t.Fatalf("expected verifier recorded, got %v", rec.VerifiedBy)
	}
}

func TestVerifyReading_Idempotent(t *testing.T) {
	attester := "verifier-0"
	at := testClock().Add(-time.Hour)
	repo := newFakeRepo()
	repo.readings["read-1"] = Reading{
		ID: "read-1", ShipmentID: "shp-1", DataType: DataShock, Value: "3.2g",
		Verified: true, VerifiedBy: &attester, VerifiedAt: &at,
	}
	svc, _ := newTestService(repo)

	rec, err := svc.VerifyReading(context.Background(), "verifier-1", verifierCred("verifier-1"), "read-1")
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if *rec.VerifiedBy != attester {
		t.Fatalf("original attester must stand, got %q", *rec.VerifiedBy)
	}
	if repo.markCalls != 0 {
		t.Fatalf("expected no second write, got %d", repo.markCalls)
	}
}

func TestVerifyReading_Authorization(t *testing.T) {
	repo := newFakeRepo()
	repo.readings["read-1"] = Reading{ID: "read-1", ShipmentID: "shp-1"}
	svc, _ := newTestService(repo)

	if _, err := svc.VerifyReading(context.Background(), "owner-1", nil, "read-1"); !errors.Is(err, ErrUnauthorizedVerifier) {
		t.Fatalf("expected ErrUnauthorizedVerifier without credential, got %v", err)
	}
	if _, err := svc.VerifyReading(context.Background(), "owner-1", verifierCred("verifier-1"), "read-1"); !errors.Is(err, ErrUnauthorizedVerifier) {
		t.Fatalf("expected ErrUnauthorizedVerifier with foreign credential, got %v", err)
	}
}

type fakeRepo struct {
	shipments map[string]bool
	readings  map[string]Reading
	markCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		shipments: make(map[string]bool),
		readings:  make(map[string]Reading),
	}
}

func (f *fakeRepo) ShipmentExists(ctx context.Context, tx pgx.Tx, shipmentID string) (bool, error) {
	return f.shipments[shipmentID], nil
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, rec Reading) (Reading, error) {
	f.readings[rec.ID] = rec
	return rec, nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Reading, error) {
	rec, ok := f.readings[id]
	if !ok {
		return Reading{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) MarkVerified(ctx context.Context, tx pgx.Tx, id, verifierID string, at time.Time) (Reading, error) {
	f.markCalls++
	rec := f.readings[id]
	rec.Verified = true
	rec.VerifiedBy = &verifierID
	rec.VerifiedAt = &at
	f.readings[id] = rec
	return rec, nil
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
