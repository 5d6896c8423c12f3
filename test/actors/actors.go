package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DisputeOpener races to open competing disputes against the same agreement.
// The partial unique index allows only one unresolved dispute, so 23505 is
// expected under contention.
func DisputeOpener(ctx context.Context, pool *pgxpool.Pool, agreementID, raisedBy string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO disputes (id, agreement_id, raised_by, reason)
                                   VALUES (gen_random_uuid(), $1, $2, 'stress: contested delivery')`, agreementID, raisedBy)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// expected under contention
			} else {
				return fmt.Errorf("dispute opener insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// DisputeResolver resolves any open dispute and flips the agreement back to
// active, the way a verifier resuming a suspended agreement would.
func DisputeResolver(ctx context.Context, pool *pgxpool.Pool, agreementID, resolverID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var dispID string
		err = tx.QueryRow(ctx, `SELECT id FROM disputes WHERE agreement_id=$1 AND NOT resolved LIMIT 1 FOR UPDATE SKIP LOCKED`, agreementID).Scan(&dispID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE disputes SET resolved=true, resolved_by=$2, resolution_notes='stress: resumed', resolved_at=NOW()
                                    WHERE id=$1 AND NOT resolved`, dispID, resolverID)
			if err == nil {
				_, _ = tx.Exec(ctx, `UPDATE agreements SET status='active' WHERE id=$1 AND status='disputed'`, agreementID)
				_, _ = tx.Exec(ctx, `INSERT INTO timeline_events (entity_id, type, payload, actor_id)
                                      VALUES ($1, 'DISPUTE_RESOLVED', '{}'::jsonb, $2)`, dispID, resolverID)
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('dispute.resolved', jsonb_build_object('dispute_id',$1))`, dispID)
			}
		}
		_ = tx.Rollback(ctx)
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// ShipmentMover ping-pongs a shipment between in_transit and exception with
// compare-and-swap updates. Lost races simply miss; the status must always
// land on a legal value.
func ShipmentMover(ctx context.Context, pool *pgxpool.Pool, shipmentID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(2) == 0 {
			_, _ = pool.Exec(ctx, `UPDATE shipments SET status='exception' WHERE id=$1 AND status='in_transit'`, shipmentID)
		} else {
			_, _ = pool.Exec(ctx, `UPDATE shipments SET status='in_transit' WHERE id=$1 AND status='exception'`, shipmentID)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// ReadingWriter streams sensor samples against a shipment.
func ReadingWriter(ctx context.Context, pool *pgxpool.Pool, shipmentID, recorderID string, stop <-chan struct{}) error {
	dataTypes := []string{"temperature", "humidity", "shock"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		dt := dataTypes[rand.Intn(len(dataTypes))]
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO iot_readings (id, shipment_id, data_type, value, recorded_by)
                                VALUES (gen_random_uuid(), $1, $2, $3, $4)`, shipmentID, dt, fmt.Sprintf("%d", rand.Intn(40)), recorderID)
		if err != nil {
			_ = tx.Rollback(ctx)
			continue
		}
		_, _ = tx.Exec(ctx, `INSERT INTO timeline_events (entity_id, type, payload, actor_id)
                              VALUES ($1, 'IOT_READING_RECORDED', '{}'::jsonb, $2)`, shipmentID, recorderID)
		_ = tx.Commit(ctx)
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// TimelineTamperer tries to rewrite history. Every attempt must be rejected
// by the timeline trigger; a success is a harness failure.
func TimelineTamperer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if tag, err := pool.Exec(ctx, `UPDATE timeline_events SET payload='{"forged":true}'::jsonb WHERE id = (SELECT MIN(id) FROM timeline_events)`); err == nil && tag.RowsAffected() > 0 {
			return errors.New("timeline tamperer: update was allowed")
		}
		if tag, err := pool.Exec(ctx, `DELETE FROM timeline_events WHERE id = (SELECT MIN(id) FROM timeline_events)`); err == nil && tag.RowsAffected() > 0 {
			return errors.New("timeline tamperer: delete was allowed")
		}
		time.Sleep(time.Duration(80+rand.Intn(80)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks processed or dead after retries.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			// simulate random failure
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', last_attempt=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// DuplicateRegistrar hammers supplier registration for the same user id; only
// the first insert may win.
func DuplicateRegistrar(ctx context.Context, pool *pgxpool.Pool, userID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO suppliers (id, name) VALUES ($1, 'Stress Supplies Ltd')`, userID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// expected after the first registration
			} else {
				return fmt.Errorf("duplicate registrar insert: %w", err)
			}
		}
		time.Sleep(80 * time.Millisecond)
	}
}
