package threshold

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/batchsql"
	"productmaster/reconcile"
)

// PGRepository reads and writes discount-threshold rows inside the caller's
// transaction.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// CurrentFacts loads every threshold of one product, locking the rows for the
// rest of the transaction.
func (r *PGRepository) CurrentFacts(ctx context.Context, tx pgx.Tx, productID string) ([]Fact, error) {
	const query = `
SELECT product_id, threshold_type, quantity, discount_percent
FROM discount_thresholds
WHERE product_id = $1
FOR UPDATE
`
	rows, err := tx.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("threshold: load current facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ProductID, &f.ThresholdType, &f.Quantity, &f.DiscountPercent); err != nil {
			return nil, fmt.Errorf("threshold: scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Apply writes the change set as batched statements. Threshold deletes are
// audit-copied first; the table has no delete trigger.
func (r *PGRepository) Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error) {
	return batchsql.Apply(ctx, tx, set, batchsql.Statements[Fact]{
		Insert: `
INSERT INTO discount_thresholds (product_id, threshold_type, quantity, discount_percent, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
`,
		InsertArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ThresholdType, f.Quantity, f.DiscountPercent, f.UpdatedBy}
		},
		Update: `
UPDATE discount_thresholds
SET discount_percent = $4, updated_by = $5, updated_at = now()
WHERE product_id = $1 AND threshold_type = $2 AND quantity = $3
`,
		UpdateArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ThresholdType, f.Quantity, f.DiscountPercent, f.UpdatedBy}
		},
		Delete: `
DELETE FROM discount_thresholds
WHERE product_id = $1 AND threshold_type = $2 AND quantity = $3
`,
		DeleteArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ThresholdType, f.Quantity}
		},
		AuditCopy: `
INSERT INTO discount_thresholds_audit (product_id, threshold_type, quantity, discount_percent, deleted_by, deleted_at)
SELECT product_id, threshold_type, quantity, discount_percent, $4, now()
FROM discount_thresholds
WHERE product_id = $1 AND threshold_type = $2 AND quantity = $3
`,
		AuditCopyArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ThresholdType, f.Quantity, f.UpdatedBy}
		},
	})
}
