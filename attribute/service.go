package attribute

import (
	"context"
	"errors"
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
	CurrentFacts(ctx context.Context, tx pgx.Tx, productID, attributeID string) ([]Fact, error)
	Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error)
}

// Service maintains extended-attribute values. The attribute definition comes
// from the injected catalog; value-count rules (single vs multi, cap) derive
// from it, never from the request.
type Service struct {
	pool    TxBeginner
	repo    Repository
	refs    refdata.Existence
	catalog refdata.Catalog
}

func NewService(pool TxBeginner, repo Repository, refs refdata.Existence, catalog refdata.Catalog) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, refs: refs, catalog: catalog}
}

// Set replaces the full value list of one attribute on one product.
// Resubmitting the stored list is a no-op and stages no events.
func (s *Service) Set(ctx context.Context, req SetRequest) (Result, error) {
	if err := s.validateSet(ctx, req); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("attribute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.CurrentFacts(ctx, tx, req.ProductID, req.AttributeID)
	if err != nil {
		return Result{}, err
	}

	set := reconcileValues(req.ProductID, req.AttributeID, req.ActingUser, req.Values, current)
	counts, err := s.repo.Apply(ctx, tx, set)
	if err != nil {
		return Result{}, err
	}

	stager := outbox.NewStager(req.ActingProgram, req.ActingUser)
	if !set.Empty() {
		outbox.StageChangeSet(stager, outbox.CodeExtendedAttribute, "product", set, func(f Fact) map[string]any {
			return map[string]any{
				"product_id":   f.ProductID,
				"attribute_id": f.AttributeID,
				"sequence":     f.Sequence,
				"value":        f.Value,
			}
		})
	}

	result := Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted, EventsStaged: stager.Len()}
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("attribute: commit: %w", err)
	}
	return result, nil
}

func (s *Service) validateSet(ctx context.Context, req SetRequest) error {
	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(req.ActingUser),
		validate.NonEmpty("acting program", req.ActingProgram),
		valueRules(req.Values),
	)
	if err := validate.NewFailure(violations); err != nil {
		return err
	}

	def, err := s.catalog.AttributeByID(ctx, req.AttributeID)
	if err != nil {
		if errors.Is(err, refdata.ErrAttributeUnknown) {
			return validate.NotFound("attribute", req.AttributeID)
		}
		return fmt.Errorf("attribute: load definition: %w", err)
	}
	if err := validate.NewFailure(defRules(def, req.Values)()); err != nil {
		return err
	}

	ok, err := s.refs.ProductExists(ctx, req.ProductID)
	if err != nil {
		return fmt.Errorf("attribute: verify product: %w", err)
	}
	if !ok {
		return validate.NotFound("product", req.ProductID)
	}
	return nil
}

// valueRules checks the value list in isolation: no blank entries, no
// duplicates.
func valueRules(values []string) validate.Rule {
	return func() []string {
		var violations []string
		seen := make(map[string]bool, len(values))
		for i, v := range values {
			if v == "" {
				violations = append(violations, fmt.Sprintf("value %d must not be blank", i+1))
				continue
			}
			if seen[v] {
				violations = append(violations, fmt.Sprintf("value %q appears more than once", v))
			}
			seen[v] = true
		}
		return violations
	}
}

// defRules checks the value list against the attribute definition.
func defRules(def refdata.AttributeDef, values []string) validate.Rule {
	return func() []string {
		var violations []string
		if !def.MultiValued && len(values) > 1 {
			violations = append(violations, fmt.Sprintf("attribute %s is single-valued", def.Code))
		}
		if def.MultiValued && def.MaxValues > 0 && len(values) > def.MaxValues {
			violations = append(violations, fmt.Sprintf("attribute %s holds at most %d values", def.Code, def.MaxValues))
		}
		return violations
	}
}
