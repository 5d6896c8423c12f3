package shipment

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestShipmentLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and drives a shipment through the full progression
// created -> in_transit -> delivered -> verified using the service and the
// live repository.
func TestShipmentLifecycle_Integration(t *testing.T) {
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

	if !tableExists(ctx, t, pool, "shipments") || !tableExists(ctx, t, pool, "agreements") || !tableExists(ctx, t, pool, "timeline_events") {
		t.Skip("database schema missing; apply migrations/0001_init.sql first")
	}

	nanos := time.Now().UnixNano()
	var (
		ownerID     string
		supplierID  string
		storeID     string
		agreementID string
	)

	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'store_owner') RETURNING id`,
		fmt.Sprintf("owner+%d@example.com", nanos), "Bisi Owner").Scan(&ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'supplier') RETURNING id`,
		fmt.Sprintf("supplier+%d@example.com", nanos), "Sade Supplies").Scan(&supplierID); err != nil {
		t.Fatalf("seed supplier user: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO suppliers (id, name, is_verified) VALUES ($1, $2, true)`,
		supplierID, "Sade Supplies Ltd"); err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO stores (id, owner_id, name, location) VALUES (gen_random_uuid(), $1, $2, 'Ikeja') RETURNING id`,
		ownerID, fmt.Sprintf("Corner Goods %d", nanos)).Scan(&storeID); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := pool.QueryRow(ctx, `
        INSERT INTO agreements (id, supplier_id, store_id, terms, deadline, payment_amount, status)
        VALUES (gen_random_uuid(), $1, $2, 'weekly restock', now() + interval '30 days', 50000, 'active') RETURNING id
    `, supplierID, storeID).Scan(&agreementID); err != nil {
		t.Fatalf("seed agreement: %v", err)
	}

	productA := uuid.NewString()
	productB := uuid.NewString()

	svc := NewService(pool, NewRepository())

	created, err := svc.Create(ctx, supplierID, CreateParams{
		StoreID:     storeID,
		AgreementID: &agreementID,
		TrackingID:  fmt.Sprintf("TRK-ITEST-%d", nanos),
		Origin:      "Apapa port",
		Destination: "Ikeja warehouse",
		ETA:         time.Now().Add(48 * time.Hour),
		ProductIDs:  []string{productA, productB},
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}

	// Cleanup seeded rows after test (best-effort, ignore errors). Timeline
	// rows are append-only and stay behind.
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'shipment_id' = $1`, created.ID)
		pool.Exec(ctx2, `DELETE FROM shipment_locations WHERE shipment_id = $1`, created.ID)
		pool.Exec(ctx2, `DELETE FROM shipment_actors WHERE shipment_id = $1`, created.ID)
		pool.Exec(ctx2, `DELETE FROM shipment_products WHERE shipment_id = $1`, created.ID)
		pool.Exec(ctx2, `DELETE FROM shipments WHERE id = $1`, created.ID)
		pool.Exec(ctx2, `DELETE FROM agreements WHERE id = $1`, agreementID)
		pool.Exec(ctx2, `DELETE FROM stores WHERE id = $1`, storeID)
		pool.Exec(ctx2, `DELETE FROM suppliers WHERE id = $1`, supplierID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, ownerID, supplierID)
	})

	inTransit, err := svc.UpdateStatus(ctx, supplierID, nil, created.ID, StatusInTransit)
	if err != nil {
		t.Fatalf("move to in_transit: %v", err)
	}
	if inTransit.Status != StatusInTransit {
		t.Fatalf("expected in_transit, got %s", inTransit.Status)
	}
	if inTransit.Origin != "Apapa port" || inTransit.Destination != "Ikeja warehouse" {
		t.Fatalf("route lost on update: %q -> %q", inTransit.Origin, inTransit.Destination)
	}
	if len(inTransit.Products) != 2 {
		t.Fatalf("expected 2 products on updated shipment, got %v", inTransit.Products)
	}

	ping, err := svc.RecordLocation(ctx, supplierID, nil, created.ID, LocationParams{
		Latitude: 6.4541, Longitude: 3.3947, Name: "Apapa gate 3",
	})
	if err != nil {
		t.Fatalf("record location: %v", err)
	}
	var pingName string
	if err := pool.QueryRow(ctx, `SELECT name FROM shipment_locations WHERE shipment_id = $1`, created.ID).Scan(&pingName); err != nil {
		t.Fatalf("verify location row: %v", err)
	}
	if pingName != ping.Name {
		t.Fatalf("expected ping name %q, got %q", ping.Name, pingName)
	}

	delivered, err := svc.UpdateStatus(ctx, supplierID, nil, created.ID, StatusDelivered)
	if err != nil {
		t.Fatalf("move to delivered: %v", err)
	}
	if delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered_at to be set")
	}

	verified, err := svc.VerifyDelivery(ctx, ownerID, created.ID)
	if err != nil {
		t.Fatalf("verify delivery: %v", err)
	}
	if verified.Status != StatusVerified || verified.VerifiedAt == nil {
		t.Fatalf("expected verified shipment, got %+v", verified)
	}
	if len(verified.Products) != 2 {
		t.Fatalf("expected 2 products on verified shipment, got %v", verified.Products)
	}

	// The active agreement completes in the same transaction.
	var agreementStatus string
	if err := pool.QueryRow(ctx, `SELECT status::text FROM agreements WHERE id = $1`, agreementID).Scan(&agreementStatus); err != nil {
		t.Fatalf("verify agreement: %v", err)
	}
	if agreementStatus != "completed" {
		t.Fatalf("expected agreement 'completed', got %q", agreementStatus)
	}

	// Both handlers were remembered as actors.
	var actorCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM shipment_actors WHERE shipment_id = $1 AND actor_id IN ($2, $3)`,
		created.ID, supplierID, ownerID).Scan(&actorCount); err != nil {
		t.Fatalf("verify actors: %v", err)
	}
	if actorCount != 2 {
		t.Fatalf("expected 2 shipment actors, got %d", actorCount)
	}

	var timelineCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM timeline_events WHERE entity_id = $1`, created.ID).Scan(&timelineCount); err != nil {
		t.Fatalf("verify timeline: %v", err)
	}
	// created + in_transit + location + delivered + verified
	if timelineCount < 5 {
		t.Fatalf("expected at least 5 timeline events, got %d", timelineCount)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
