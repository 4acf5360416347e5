// Package batchsql applies a reconcile.ChangeSet as batched SQL statements
// inside a caller-owned transaction, one batch per bucket. Empty buckets issue
// no batch at all. Errors are fatal for the surrounding transaction and are
// never retried here.
package batchsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/reconcile"
)

// Statements binds one table's SQL templates to a fact type. AuditCopy is
// optional; when set it is executed for every row about to be deleted, before
// the delete batch, covering tables without a delete trigger.
type Statements[F reconcile.Keyed] struct {
	Insert     string
	InsertArgs func(F) []any
	Update     string
	UpdateArgs func(F) []any
	Delete     string
	DeleteArgs func(F) []any

	AuditCopy     string
	AuditCopyArgs func(F) []any
}

// Counts reports affected rows per bucket.
type Counts struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// Total returns the sum across buckets.
func (c Counts) Total() int64 { return c.Inserted + c.Updated + c.Deleted }

// Apply executes the change set against tx. The delete bucket is preceded by
// audit-copy writes in the same unit of work when configured.
func Apply[F reconcile.Keyed](ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[F], stmts Statements[F]) (Counts, error) {
	if err := set.Validate(); err != nil {
		return Counts{}, err
	}

	var counts Counts
	var err error

	if counts.Inserted, err = runBucket(ctx, tx, set.Inserts, stmts.Insert, stmts.InsertArgs); err != nil {
		return Counts{}, fmt.Errorf("batchsql: insert batch: %w", err)
	}
	if counts.Updated, err = runBucket(ctx, tx, set.Updates, stmts.Update, stmts.UpdateArgs); err != nil {
		return Counts{}, fmt.Errorf("batchsql: update batch: %w", err)
	}
	if stmts.AuditCopy != "" && len(set.Deletes) > 0 {
		if _, err = runBucket(ctx, tx, set.Deletes, stmts.AuditCopy, stmts.AuditCopyArgs); err != nil {
			return Counts{}, fmt.Errorf("batchsql: audit copy batch: %w", err)
		}
	}
	if counts.Deleted, err = runBucket(ctx, tx, set.Deletes, stmts.Delete, stmts.DeleteArgs); err != nil {
		return Counts{}, fmt.Errorf("batchsql: delete batch: %w", err)
	}

	return counts, nil
}

func runBucket[F reconcile.Keyed](ctx context.Context, tx pgx.Tx, rows []F, sql string, args func(F) []any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(sql, args(row)...)
	}

	results := tx.SendBatch(ctx, batch)
	var affected int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("statement %d: %w", i, err)
		}
		affected += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	return affected, nil
}
