// Package oracles holds the SQL invariant checks the stress harness runs
// between actor batches. Every query returns rows only when the invariant it
// guards has been violated.
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
			Name: "O1_no_overlapping_windows",
			SQL: `SELECT a.product_id, a.sales_channel, a.fulfillment_channel, a.effective_date, b.effective_date
                  FROM channel_facts a
                  JOIN channel_facts b
                    ON a.product_id = b.product_id
                   AND a.sales_channel = b.sales_channel
                   AND a.fulfillment_channel = b.fulfillment_channel
                   AND a.effective_date < b.effective_date
                  WHERE b.effective_date < a.expiration_date`,
		},
		{
			Name: "O2_at_most_one_active_today",
			SQL: `SELECT product_id, sales_channel, fulfillment_channel, COUNT(*)
                  FROM channel_facts
                  WHERE effective_date <= CURRENT_DATE AND expiration_date > CURRENT_DATE
                  GROUP BY product_id, sales_channel, fulfillment_channel
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_threshold_cap",
			SQL: `SELECT product_id, COUNT(*)
                  FROM discount_thresholds
                  GROUP BY product_id
                  HAVING COUNT(*) > 5`,
		},
		{
			Name: "O4_attribute_sequences_dense",
			SQL: `SELECT product_id, attribute_id, COUNT(*) AS rows, MAX(sequence) AS max_seq
                  FROM attribute_values
                  GROUP BY product_id, attribute_id
                  HAVING COUNT(*) <> MAX(sequence) OR MIN(sequence) <> 1`,
		},
		{
			Name: "O5_single_valued_attributes",
			SQL: `SELECT v.product_id, v.attribute_id, COUNT(*)
                  FROM attribute_values v
                  JOIN attribute_defs d ON d.id = v.attribute_id
                  WHERE NOT d.multi_valued
                  GROUP BY v.product_id, v.attribute_id
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_outbox_not_stale",
			SQL: `SELECT id, event_code, attempts, created_at
                  FROM outbox_events
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O7_window_dates_ordered",
			SQL: `SELECT product_id, sales_channel, fulfillment_channel, effective_date, expiration_date
                  FROM channel_facts
                  WHERE effective_date > expiration_date`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if every invariant holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
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
