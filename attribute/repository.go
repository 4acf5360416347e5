package attribute

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/batchsql"
	"productmaster/reconcile"
)

// PGRepository reads and writes attribute-value rows inside the caller's
// transaction.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// CurrentFacts loads every value of one attribute on one product, locking the
// rows for the rest of the transaction.
func (r *PGRepository) CurrentFacts(ctx context.Context, tx pgx.Tx, productID, attributeID string) ([]Fact, error) {
	const query = `
SELECT product_id, attribute_id, sequence, value
FROM attribute_values
WHERE product_id = $1 AND attribute_id = $2
FOR UPDATE
`
	rows, err := tx.Query(ctx, query, productID, attributeID)
	if err != nil {
		return nil, fmt.Errorf("attribute: load current facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ProductID, &f.AttributeID, &f.Sequence, &f.Value); err != nil {
			return nil, fmt.Errorf("attribute: scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Apply writes the change set as batched statements. attribute_values carries
// a delete trigger that writes its own history rows, so no audit copy is
// issued here.
func (r *PGRepository) Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error) {
	return batchsql.Apply(ctx, tx, set, batchsql.Statements[Fact]{
		Insert: `
INSERT INTO attribute_values (product_id, attribute_id, sequence, value, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
`,
		InsertArgs: func(f Fact) []any {
			return []any{f.ProductID, f.AttributeID, f.Sequence, f.Value, f.UpdatedBy}
		},
		Update: `
UPDATE attribute_values
SET value = $4, updated_by = $5, updated_at = now()
WHERE product_id = $1 AND attribute_id = $2 AND sequence = $3
`,
		UpdateArgs: func(f Fact) []any {
			return []any{f.ProductID, f.AttributeID, f.Sequence, f.Value, f.UpdatedBy}
		},
		Delete: `
DELETE FROM attribute_values
WHERE product_id = $1 AND attribute_id = $2 AND sequence = $3
`,
		DeleteArgs: func(f Fact) []any {
			return []any{f.ProductID, f.AttributeID, f.Sequence}
		},
	})
}
