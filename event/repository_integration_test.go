package event

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRecordFreeTextMetadata_Integration verifies against a real PostgreSQL
// that audit event metadata round-trips as arbitrary text, not only as
// well-formed JSON.
func TestRecordFreeTextMetadata_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var haveTable bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'supply_chain_events')`).Scan(&haveTable); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if !haveTable {
		t.Skip("database schema missing; apply migrations/0001_init.sql first")
	}

	svc := NewService(pool, NewRepository())
	recorder := fmt.Sprintf("inspector-%d", time.Now().UnixNano())

	cases := []string{"inspected by agent A", ""}
	for _, metadata := range cases {
		rec, err := svc.Record(ctx, recorder, RecordParams{
			Type:            TypeQualityCheck,
			RelatedEntityID: "batch-41",
			Location:        "Ikeja warehouse",
			OccurredAt:      time.Now().Add(-time.Hour),
			Metadata:        metadata,
		})
		if err != nil {
			t.Fatalf("record event with metadata %q: %v", metadata, err)
		}

		t.Cleanup(func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel2()
			pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'event_id' = $1`, rec.ID)
			pool.Exec(ctx2, `DELETE FROM supply_chain_events WHERE id = $1`, rec.ID)
		})

		var stored string
		if err := pool.QueryRow(ctx, `SELECT metadata FROM supply_chain_events WHERE id = $1`, rec.ID).Scan(&stored); err != nil {
			t.Fatalf("read back event: %v", err)
		}
		if stored != metadata {
			t.Fatalf("metadata round-trip: stored %q, want %q", stored, metadata)
		}
	}
}
