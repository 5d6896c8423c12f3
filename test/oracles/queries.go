package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_open_dispute",
			SQL: `SELECT agreement_id, COUNT(*) FROM disputes
                  WHERE NOT resolved
                  GROUP BY agreement_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_disputed_agreement_has_open_dispute",
			SQL: `SELECT a.id FROM agreements a
                  WHERE a.status = 'disputed'
                    AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.agreement_id = a.id AND NOT d.resolved)`,
		},
		{
			Name: "O3_resolved_dispute_attested",
			SQL: `SELECT id FROM disputes
                  WHERE resolved AND (resolved_by IS NULL OR resolved_at IS NULL)`,
		},
		{
			Name: "O4_shipment_stamps",
			SQL: `SELECT id FROM shipments
                  WHERE (status IN ('delivered','verified') AND delivered_at IS NULL)
                     OR (status = 'verified' AND verified_at IS NULL)
                     OR (status NOT IN ('delivered','verified') AND (delivered_at IS NOT NULL OR verified_at IS NOT NULL))`,
		},
		{
			Name: "O5_outbox_liveness",
			SQL: `SELECT id::text FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O6_counters_non_negative",
			SQL: `SELECT 'store:' || id FROM stores WHERE total_products < 0
                  UNION ALL
                  SELECT 'supplier:' || id FROM suppliers WHERE products_supplied < 0 OR rating NOT BETWEEN 0 AND 5`,
		},
		{
			Name: "O7_verified_reading_attested",
			SQL: `SELECT id FROM iot_readings
                  WHERE verified AND (verified_by IS NULL OR verified_at IS NULL)`,
		},
		{
			Name: "O8_dispute_reason_bounds",
			SQL: `SELECT id FROM disputes WHERE length(reason) < 1 OR length(reason) > 200
                  UNION ALL
                  SELECT id FROM agreements WHERE length(terms) < 1 OR length(terms) > 200`,
		},
		{
			Name: "O9_timeline_rewrite_guard",
			SQL: `SELECT 'missing_timeline_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_rewrite_timeline')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
