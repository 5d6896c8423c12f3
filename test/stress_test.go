package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Twhite2/Retail-Chain/test/actors"
	"github.com/Twhite2/Retail-Chain/test/chaos"
	"github.com/Twhite2/Retail-Chain/test/infra"
	"github.com/Twhite2/Retail-Chain/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestSupplyChainConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("RETAILCHAIN_STRESS_DSN") != "":
		dsn = os.Getenv("RETAILCHAIN_STRESS_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// openers and resolvers battling over the same agreement
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.DisputeOpener(ctx2, pool, seedData.agreementID, seedData.ownerID, stop)
		})
		g.Go(func() error {
			return actors.DisputeResolver(ctx2, pool, seedData.agreementID, seedData.verifierID, stop)
		})
	}

	// shipment status churn
	g.Go(func() error { return actors.ShipmentMover(ctx2, pool, seedData.shipmentID, stop) })
	// sensor stream
	g.Go(func() error { return actors.ReadingWriter(ctx2, pool, seedData.shipmentID, seedData.supplierID, stop) })
	// history rewrite attempts
	g.Go(func() error { return actors.TimelineTamperer(ctx2, pool, stop) })
	// outbox worker
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// repeated supplier registration for the same user
	g.Go(func() error { return actors.DuplicateRegistrar(ctx2, pool, seedData.supplierID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	ownerID     string
	supplierID  string
	verifierID  string
	storeID     string
	agreementID string
	shipmentID  string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	// store owner, supplier user and verifier user
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1,'Stress Owner','store_owner') RETURNING id`, fmt.Sprintf("owner%d@example.com", rand.Int63())).Scan(&s.ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1,'Stress Supplier','supplier') RETURNING id`, fmt.Sprintf("supplier%d@example.com", rand.Int63())).Scan(&s.supplierID); err != nil {
		t.Fatalf("seed supplier user: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1,'Stress Verifier','verifier') RETURNING id`, fmt.Sprintf("verifier%d@example.com", rand.Int63())).Scan(&s.verifierID); err != nil {
		t.Fatalf("seed verifier user: %v", err)
	}
	// supplier profile shares the user id; verified so it can ship
	if _, err := pool.Exec(ctx, `INSERT INTO suppliers (id, name, is_verified) VALUES ($1, 'Stress Supplies Ltd', true)`, s.supplierID); err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO verifier_credentials (id, holder_id, organization) VALUES (gen_random_uuid(), $1, 'Stress Inspections')`, s.verifierID); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	// store owned by the owner
	if err := pool.QueryRow(ctx, `INSERT INTO stores (id, owner_id, name, location) VALUES (gen_random_uuid(), $1, 'Stress Mart', 'Lagos') RETURNING id`, s.ownerID).Scan(&s.storeID); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	// active agreement the disputes will fight over
	if err := pool.QueryRow(ctx, `INSERT INTO agreements (id, supplier_id, store_id, terms, deadline, payment_amount, status)
                                   VALUES (gen_random_uuid(), $1, $2, 'stress terms', now() + interval '30 days', 100000, 'active') RETURNING id`, s.supplierID, s.storeID).Scan(&s.agreementID); err != nil {
		t.Fatalf("seed agreement: %v", err)
	}
	// in-transit shipment the movers and sensors will churn
	if err := pool.QueryRow(ctx, `INSERT INTO shipments (id, supplier_id, store_id, agreement_id, tracking_id, status, eta)
                                   VALUES (gen_random_uuid(), $1, $2, $3, 'TRK-STRESS-1', 'in_transit', now() + interval '7 days') RETURNING id`, s.supplierID, s.storeID, s.agreementID).Scan(&s.shipmentID); err != nil {
		t.Fatalf("seed shipment: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"timeline_events", `SELECT id, entity_id, type, actor_id, ts FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
		{"disputes", `SELECT id, agreement_id, resolved, resolved_by, created_at FROM disputes ORDER BY created_at DESC LIMIT 50`},
		{"shipments", `SELECT id, status, delivered_at, verified_at FROM shipments ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
