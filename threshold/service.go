package threshold

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"productmaster/batchsql"
	"productmaster/outbox"
	"productmaster/reconcile"
	"productmaster/refdata"
	"productmaster/validate"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the data access required by the service.
type Repository interface {
	CurrentFacts(ctx context.Context, tx pgx.Tx, productID string) ([]Fact, error)
	Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error)
}

// Service maintains discount thresholds. One transaction covers the row write
// and the outbox flush.
type Service struct {
	pool     TxBeginner
	repo     Repository
	refs     refdata.Existence
	tiebreak TieBreak
}

// NewService wires the service with the MatchQuantity tie-break.
func NewService(pool TxBeginner, repo Repository, refs refdata.Existence) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, refs: refs, tiebreak: MatchQuantity}
}

// WithTieBreak swaps the at-cap policy. Intended for configuration at wiring
// time, not per request.
func (s *Service) WithTieBreak(tb TieBreak) *Service {
	s.tiebreak = tb
	return s
}

// Upsert creates a threshold, rewrites the stored one with the same key, or,
// at the cap, defers to the tie-break. Submitting values identical to the
// stored row is a no-op and stages no events.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (Result, error) {
	if err := s.validateRequest(ctx, req, req.ProductID, req.ThresholdType, req.ActingUser, req.ActingProgram); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("threshold: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.CurrentFacts(ctx, tx, req.ProductID)
	if err != nil {
		return Result{}, err
	}

	set := reconcile.CappedUpsert(req.Fact(), current, MaxPerProduct, s.tiebreak, func(a, b Fact) bool {
		return a.DiscountPercent == b.DiscountPercent
	})
	return s.finish(ctx, tx, set, req.ActingProgram, req.ActingUser)
}

// Remove deletes one threshold. A missing row is a no-op, not an error.
func (s *Service) Remove(ctx context.Context, req RemoveRequest) (Result, error) {
	if err := s.validateRequest(ctx, req, req.ProductID, req.ThresholdType, req.ActingUser, req.ActingProgram); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("threshold: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.CurrentFacts(ctx, tx, req.ProductID)
	if err != nil {
		return Result{}, err
	}

	target := Fact{ProductID: req.ProductID, ThresholdType: req.ThresholdType, Quantity: req.Quantity, UpdatedBy: req.ActingUser}
	var set reconcile.ChangeSet[Fact]
	for _, row := range current {
		if row.FactKey() == target.FactKey() {
			row.UpdatedBy = req.ActingUser
			set.Deletes = append(set.Deletes, row)
			break
		}
	}
	return s.finish(ctx, tx, set, req.ActingProgram, req.ActingUser)
}

func (s *Service) finish(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact], program, user string) (Result, error) {
	counts, err := s.repo.Apply(ctx, tx, set)
	if err != nil {
		return Result{}, err
	}

	stager := outbox.NewStager(program, user)
	if !set.Empty() {
		outbox.StageChangeSet(stager, outbox.CodeDiscountThreshold, "product", set, func(f Fact) map[string]any {
			return map[string]any{
				"product_id":       f.ProductID,
				"threshold_type":   f.ThresholdType,
				"quantity":         f.Quantity,
				"discount_percent": f.DiscountPercent,
			}
		})
	}

	result := Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted, EventsStaged: stager.Len()}
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("threshold: commit: %w", err)
	}
	return result, nil
}

func (s *Service) validateRequest(ctx context.Context, req any, productID, thresholdType, user, program string) error {
	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(user),
		validate.NonEmpty("acting program", program),
		validate.InSet("threshold type", thresholdType, []string{"CASE", "PALLET", "PROMO"}),
	)
	if err := validate.NewFailure(violations); err != nil {
		return err
	}

	ok, err := s.refs.ProductExists(ctx, productID)
	if err != nil {
		return fmt.Errorf("threshold: verify product: %w", err)
	}
	if !ok {
		return validate.NotFound("product", productID)
	}
	return nil
}
