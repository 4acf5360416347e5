// Package refdata answers referential-integrity questions for the maintenance
// services: does an entity exist, and what shape does an attribute have. The
// attribute catalog is served through an injected get-or-load cache rather
// than a process-global map, so its lifetime is an explicit wiring decision.
package refdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Existence answers "does ID X exist as entity type T". Absence is reported
// as false, never as an error, so the validation layer can turn it into a
// not-found or violation response instead of aborting mid-transaction.
type Existence interface {
	ProductExists(ctx context.Context, id string) (bool, error)
	SalesChannelExists(ctx context.Context, code string) (bool, error)
	FulfillmentChannelExists(ctx context.Context, code string) (bool, error)
	ClaimCodeExists(ctx context.Context, code string) (bool, error)
}

// PGOracle implements Existence against the reference tables.
type PGOracle struct {
	pool *pgxpool.Pool
}

func NewPGOracle(pool *pgxpool.Pool) *PGOracle {
	return &PGOracle{pool: pool}
}

func (o *PGOracle) ProductExists(ctx context.Context, id string) (bool, error) {
	return o.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id)
}

func (o *PGOracle) SalesChannelExists(ctx context.Context, code string) (bool, error) {
	return o.exists(ctx, `SELECT EXISTS (SELECT 1 FROM sales_channels WHERE code = $1)`, code)
}

func (o *PGOracle) FulfillmentChannelExists(ctx context.Context, code string) (bool, error) {
	return o.exists(ctx, `SELECT EXISTS (SELECT 1 FROM fulfillment_channels WHERE code = $1)`, code)
}

func (o *PGOracle) ClaimCodeExists(ctx context.Context, code string) (bool, error) {
	return o.exists(ctx, `SELECT EXISTS (SELECT 1 FROM claim_codes WHERE code = $1)`, code)
}

func (o *PGOracle) exists(ctx context.Context, query, arg string) (bool, error) {
	var exists bool
	if err := o.pool.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("refdata: existence lookup: %w", err)
	}
	return exists, nil
}
