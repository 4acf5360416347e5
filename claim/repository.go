package claim

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/batchsql"
	"productmaster/reconcile"
)

// PGRepository reads and writes marketing-claim rows inside the caller's
// transaction.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// Current loads one claim, locking the row for the rest of the transaction.
// A missing claim returns (nil, nil).
func (r *PGRepository) Current(ctx context.Context, tx pgx.Tx, productID, claimCode string) (*Fact, error) {
	const query = `
SELECT product_id, claim_code, claim_text
FROM product_claims
WHERE product_id = $1 AND claim_code = $2
FOR UPDATE
`
	var f Fact
	err := tx.QueryRow(ctx, query, productID, claimCode).Scan(&f.ProductID, &f.ClaimCode, &f.Text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim: load current claim: %w", err)
	}
	return &f, nil
}

// Apply writes the change set as batched statements. Deleted claims are
// audit-copied first; the table has no delete trigger.
func (r *PGRepository) Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error) {
	return batchsql.Apply(ctx, tx, set, batchsql.Statements[Fact]{
		Insert: `
INSERT INTO product_claims (product_id, claim_code, claim_text, updated_by, updated_at)
VALUES ($1, $2, $3, $4, now())
`,
		InsertArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ClaimCode, f.Text, f.UpdatedBy}
		},
		Update: `
UPDATE product_claims
SET claim_text = $3, updated_by = $4, updated_at = now()
WHERE product_id = $1 AND claim_code = $2
`,
		UpdateArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ClaimCode, f.Text, f.UpdatedBy}
		},
		Delete: `
DELETE FROM product_claims
WHERE product_id = $1 AND claim_code = $2
`,
		DeleteArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ClaimCode}
		},
		AuditCopy: `
INSERT INTO product_claims_audit (product_id, claim_code, claim_text, deleted_by, deleted_at)
SELECT product_id, claim_code, claim_text, $3, now()
FROM product_claims
WHERE product_id = $1 AND claim_code = $2
`,
		AuditCopyArgs: func(f Fact) []any {
			return []any{f.ProductID, f.ClaimCode, f.UpdatedBy}
		},
	})
}
