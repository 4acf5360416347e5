package claim

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
	Current(ctx context.Context, tx pgx.Tx, productID, claimCode string) (*Fact, error)
	Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error)
}

// Service maintains marketing claims. One transaction covers the row write
// and the outbox flush.
type Service struct {
	pool TxBeginner
	repo Repository
	refs refdata.Existence
}

func NewService(pool TxBeginner, repo Repository, refs refdata.Existence) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, refs: refs}
}

// Apply puts a claim on a product or rewrites its text. Resubmitting the
// stored text is a no-op and stages no events.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (Result, error) {
	if err := s.validateApply(ctx, req); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.Current(ctx, tx, req.ProductID, req.ClaimCode)
	if err != nil {
		return Result{}, err
	}

	change := Classify(current, Fact{
		ProductID: req.ProductID,
		ClaimCode: req.ClaimCode,
		Text:      req.Text,
		UpdatedBy: req.ActingUser,
	})

	var set reconcile.ChangeSet[Fact]
	switch change.Kind {
	case NoChange:
	case Create:
		set.Inserts = append(set.Inserts, change.Fact)
	case Modify:
		set.Updates = append(set.Updates, change.Fact)
	default:
		return Result{}, fmt.Errorf("claim: unhandled change kind %s", change.Kind)
	}

	return s.finish(ctx, tx, set, req.ActingProgram, req.ActingUser)
}

// Revoke removes a claim. A claim the product does not carry is a no-op, not
// an error.
func (s *Service) Revoke(ctx context.Context, req RevokeRequest) (Result, error) {
	if err := s.validateRevoke(ctx, req); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.Current(ctx, tx, req.ProductID, req.ClaimCode)
	if err != nil {
		return Result{}, err
	}

	var set reconcile.ChangeSet[Fact]
	if current != nil {
		row := *current
		row.UpdatedBy = req.ActingUser
		set.Deletes = append(set.Deletes, row)
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
		outbox.StageChangeSet(stager, outbox.CodeMarketingClaim, "product", set, func(f Fact) map[string]any {
			return map[string]any{
				"product_id": f.ProductID,
				"claim_code": f.ClaimCode,
				"claim_text": f.Text,
			}
		})
	}

	result := Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted, EventsStaged: stager.Len()}
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("claim: commit: %w", err)
	}
	return result, nil
}

func (s *Service) validateApply(ctx context.Context, req ApplyRequest) error {
	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(req.ActingUser),
		validate.NonEmpty("acting program", req.ActingProgram),
	)
	return s.checkRefs(ctx, violations, req.ProductID, req.ClaimCode)
}

func (s *Service) validateRevoke(ctx context.Context, req RevokeRequest) error {
	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(req.ActingUser),
		validate.NonEmpty("acting program", req.ActingProgram),
	)
	return s.checkRefs(ctx, violations, req.ProductID, req.ClaimCode)
}

func (s *Service) checkRefs(ctx context.Context, violations []string, productID, claimCode string) error {
	if claimCode != "" {
		ok, err := s.refs.ClaimCodeExists(ctx, claimCode)
		if err != nil {
			return fmt.Errorf("claim: verify claim code: %w", err)
		}
		if !ok {
			violations = append(violations, fmt.Sprintf("claim code %q does not exist", claimCode))
		}
	}
	if err := validate.NewFailure(violations); err != nil {
		return err
	}

	ok, err := s.refs.ProductExists(ctx, productID)
	if err != nil {
		return fmt.Errorf("claim: verify product: %w", err)
	}
	if !ok {
		return validate.NotFound("product", productID)
	}
	return nil
}
