package channel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/batchsql"
	"productmaster/reconcile"
)

// PGRepository reads and writes channel timeline rows. All methods run inside
// the caller's transaction so reconciliation and outbox staging commit
// together.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// CurrentFacts loads every row of one dimension, locking them for the rest of
// the transaction. Order is not guaranteed; the reconciler does not rely on
// it.
func (r *PGRepository) CurrentFacts(ctx context.Context, tx pgx.Tx, key Key) ([]Fact, error) {
	const query = `
SELECT product_id, sales_channel, fulfillment_channel, effective_date, expiration_date
FROM channel_facts
WHERE product_id = $1 AND sales_channel = $2 AND fulfillment_channel = $3
FOR UPDATE
`
	rows, err := tx.Query(ctx, query, key.ProductID, key.SalesChannel, key.FulfillmentChannel)
	if err != nil {
		return nil, fmt.Errorf("channel: load current facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.Key.ProductID, &f.Key.SalesChannel, &f.Key.FulfillmentChannel, &f.Effective, &f.Expiration); err != nil {
			return nil, fmt.Errorf("channel: scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Apply writes the change set as batched statements. channel_facts has no
// delete trigger, so deleted rows are copied to the audit table first, in the
// same unit of work.
func (r *PGRepository) Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error) {
	return batchsql.Apply(ctx, tx, set, batchsql.Statements[Fact]{
		Insert: `
INSERT INTO channel_facts (product_id, sales_channel, fulfillment_channel, effective_date, expiration_date, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
`,
		InsertArgs: func(f Fact) []any {
			return []any{f.Key.ProductID, f.Key.SalesChannel, f.Key.FulfillmentChannel, f.Effective, f.Expiration, f.UpdatedBy}
		},
		Update: `
UPDATE channel_facts
SET expiration_date = $5, updated_by = $6, updated_at = now()
WHERE product_id = $1 AND sales_channel = $2 AND fulfillment_channel = $3 AND effective_date = $4
`,
		UpdateArgs: func(f Fact) []any {
			return []any{f.Key.ProductID, f.Key.SalesChannel, f.Key.FulfillmentChannel, f.Effective, f.Expiration, f.UpdatedBy}
		},
		Delete: `
DELETE FROM channel_facts
WHERE product_id = $1 AND sales_channel = $2 AND fulfillment_channel = $3 AND effective_date = $4
`,
		DeleteArgs: func(f Fact) []any {
			return []any{f.Key.ProductID, f.Key.SalesChannel, f.Key.FulfillmentChannel, f.Effective}
		},
		AuditCopy: `
INSERT INTO channel_facts_audit (product_id, sales_channel, fulfillment_channel, effective_date, expiration_date, deleted_by, deleted_at)
SELECT product_id, sales_channel, fulfillment_channel, effective_date, expiration_date, $5, now()
FROM channel_facts
WHERE product_id = $1 AND sales_channel = $2 AND fulfillment_channel = $3 AND effective_date = $4
`,
		AuditCopyArgs: func(f Fact) []any {
			return []any{f.Key.ProductID, f.Key.SalesChannel, f.Key.FulfillmentChannel, f.Effective, f.UpdatedBy}
		},
	})
}
