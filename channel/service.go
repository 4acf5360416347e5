package channel

import (
	"context"
	"fmt"
	"slices"
	"time"

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
	CurrentFacts(ctx context.Context, tx pgx.Tx, key Key) ([]Fact, error)
	Apply(ctx context.Context, tx pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error)
}

// Service maintains channel timelines. Every mutating call runs one
// transaction covering the row writes and the outbox flush; nothing is
// persisted when any step fails.
type Service struct {
	pool TxBeginner
	repo Repository
	refs refdata.Existence
	now  func() time.Time
}

// NewService wires the service. Resubmitting a window with a changed
// expiration rewrites the row in place instead of churning delete+insert.
func NewService(pool TxBeginner, repo Repository, refs refdata.Existence) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool: pool,
		repo: repo,
		refs: refs,
		now:  time.Now,
	}
}

// Add opens a new availability window on one dimension.
func (s *Service) Add(ctx context.Context, req AddRequest) (Result, error) {
	req, err := s.validateAdd(ctx, req)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("channel: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stager := outbox.NewStager(req.ActingProgram, req.ActingUser)
	result, err := s.addInTx(ctx, tx, req, stager)
	if err != nil {
		return Result{}, err
	}

	result.EventsStaged = stager.Len()
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("channel: commit: %w", err)
	}
	return result, nil
}

// AddBatch applies many window requests in one call. Items are reconciled
// independently and applied as combined batches, unless the same dimension
// appears twice: reconciling the second occurrence against a stale in-memory
// snapshot would double-count deltas, so such batches fall back to strict
// one-item-at-a-time application.
func (s *Service) AddBatch(ctx context.Context, reqs []AddRequest) (Result, error) {
	if len(reqs) == 0 {
		return Result{}, nil
	}

	validated := make([]AddRequest, 0, len(reqs))
	var violations []string
	for i, req := range reqs {
		v, err := s.validateAdd(ctx, req)
		if err != nil {
			if f, ok := validate.AsFailure(err); ok {
				for _, msg := range f.Violations {
					violations = append(violations, fmt.Sprintf("item %d: %s", i, msg))
				}
				continue
			}
			return Result{}, err
		}
		validated = append(validated, v)
	}
	for i := 1; i < len(reqs); i++ {
		if reqs[i].ActingUser != reqs[0].ActingUser || reqs[i].ActingProgram != reqs[0].ActingProgram {
			violations = append(violations, fmt.Sprintf("item %d: acting user and program must match across the batch", i))
			break
		}
	}
	if err := validate.NewFailure(violations); err != nil {
		return Result{}, err
	}

	keys := make([]string, len(validated))
	for i, req := range validated {
		keys[i] = req.Key().String()
	}
	if reconcile.HasDuplicateEntities(keys) {
		return s.addSequential(ctx, validated)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("channel: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stager := outbox.NewStager(validated[0].ActingProgram, validated[0].ActingUser)
	var combined reconcile.ChangeSet[Fact]
	for _, req := range validated {
		set, err := s.computeSet(ctx, tx, req)
		if err != nil {
			return Result{}, err
		}
		if err := combined.Merge(set); err != nil {
			return Result{}, fmt.Errorf("channel: merge batch item: %w", err)
		}
	}

	counts, err := s.repo.Apply(ctx, tx, combined)
	if err != nil {
		return Result{}, err
	}
	if !combined.Empty() {
		outbox.StageChangeSet(stager, outbox.CodeChannelTimeline, "product", combined, factPayload)
	}

	result := Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted, EventsStaged: stager.Len()}
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("channel: commit batch: %w", err)
	}
	return result, nil
}

// End terminates the active or pending window of one dimension. Ending a
// window that does not exist is a no-op, not an error.
func (s *Service) End(ctx context.Context, req EndRequest) (Result, error) {
	if err := s.validateEnd(ctx, req); err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("channel: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.CurrentFacts(ctx, tx, req.Key())
	if err != nil {
		return Result{}, err
	}
	slices.SortFunc(current, func(a, b Fact) int { return a.Effective.Compare(b.Effective) })

	today := s.now().UTC()
	set := reconcile.EndRange(today, req.EndDate, func(f Fact) bool {
		return f.Expiration.After(today)
	}, current)

	for i := range set.Updates {
		set.Updates[i].UpdatedBy = req.ActingUser
	}

	counts, err := s.repo.Apply(ctx, tx, set)
	if err != nil {
		return Result{}, err
	}

	stager := outbox.NewStager(req.ActingProgram, req.ActingUser)
	if !set.Empty() {
		outbox.StageChangeSet(stager, outbox.CodeChannelTimeline, "product", set, factPayload)
	}

	result := Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted, EventsStaged: stager.Len()}
	if err := stager.Flush(ctx, tx); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("channel: commit end: %w", err)
	}
	return result, nil
}

func (s *Service) addSequential(ctx context.Context, reqs []AddRequest) (Result, error) {
	var total Result
	for i, req := range reqs {
		res, err := s.Add(ctx, req)
		if err != nil {
			return Result{}, fmt.Errorf("channel: batch item %d: %w", i, err)
		}
		total.Inserted += res.Inserted
		total.Updated += res.Updated
		total.Deleted += res.Deleted
		total.EventsStaged += res.EventsStaged
	}
	return total, nil
}

func (s *Service) addInTx(ctx context.Context, tx pgx.Tx, req AddRequest, stager *outbox.Stager) (Result, error) {
	set, err := s.computeSet(ctx, tx, req)
	if err != nil {
		return Result{}, err
	}

	counts, err := s.repo.Apply(ctx, tx, set)
	if err != nil {
		return Result{}, err
	}
	if !set.Empty() {
		outbox.StageChangeSet(stager, outbox.CodeChannelTimeline, "product", set, factPayload)
	}
	return Result{Inserted: counts.Inserted, Updated: counts.Updated, Deleted: counts.Deleted}, nil
}

func (s *Service) computeSet(ctx context.Context, tx pgx.Tx, req AddRequest) (reconcile.ChangeSet[Fact], error) {
	current, err := s.repo.CurrentFacts(ctx, tx, req.Key())
	if err != nil {
		return reconcile.ChangeSet[Fact]{}, err
	}

	requested := Fact{
		Key:        req.Key(),
		Effective:  req.Effective,
		Expiration: req.Expiration,
		UpdatedBy:  req.ActingUser,
	}

	set, err := reconcile.AddRange(s.now().UTC(), requested, current)
	if err != nil {
		return reconcile.ChangeSet[Fact]{}, err
	}
	for i := range set.Updates {
		set.Updates[i].UpdatedBy = req.ActingUser
	}
	return set, nil
}

func (s *Service) validateAdd(ctx context.Context, req AddRequest) (AddRequest, error) {
	if req.Expiration.IsZero() {
		req.Expiration = reconcile.Forever
	}

	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(req.ActingUser),
		validate.NonEmpty("acting program", req.ActingProgram),
		func() []string {
			if req.Effective.IsZero() {
				return []string{"effective date is required"}
			}
			return nil
		},
		validate.DatesOrdered(req.Effective, req.Expiration),
		validate.NotAfter("expiration date", req.Expiration, reconcile.Forever),
	)
	channelViolations, err := s.channelViolations(ctx, req.SalesChannel, req.FulfillmentChannel)
	if err != nil {
		return AddRequest{}, err
	}
	violations = append(violations, channelViolations...)
	if err := validate.NewFailure(violations); err != nil {
		return AddRequest{}, err
	}

	if err := s.requireProduct(ctx, req.ProductID); err != nil {
		return AddRequest{}, err
	}
	return req, nil
}

func (s *Service) validateEnd(ctx context.Context, req EndRequest) error {
	violations := validate.Collect(
		validate.Struct(req),
		validate.ActingUser(req.ActingUser),
		validate.NonEmpty("acting program", req.ActingProgram),
		func() []string {
			if req.EndDate.IsZero() {
				return []string{"end date is required"}
			}
			return nil
		},
	)
	channelViolations, err := s.channelViolations(ctx, req.SalesChannel, req.FulfillmentChannel)
	if err != nil {
		return err
	}
	violations = append(violations, channelViolations...)
	if err := validate.NewFailure(violations); err != nil {
		return err
	}
	return s.requireProduct(ctx, req.ProductID)
}

func (s *Service) channelViolations(ctx context.Context, sales, fulfillment string) ([]string, error) {
	var violations []string
	if sales != "" {
		ok, err := s.refs.SalesChannelExists(ctx, sales)
		if err != nil {
			return nil, fmt.Errorf("channel: verify sales channel: %w", err)
		}
		if !ok {
			violations = append(violations, fmt.Sprintf("sales channel %q does not exist", sales))
		}
	}
	if fulfillment != "" {
		ok, err := s.refs.FulfillmentChannelExists(ctx, fulfillment)
		if err != nil {
			return nil, fmt.Errorf("channel: verify fulfillment channel: %w", err)
		}
		if !ok {
			violations = append(violations, fmt.Sprintf("fulfillment channel %q does not exist", fulfillment))
		}
	}
	return violations, nil
}

func (s *Service) requireProduct(ctx context.Context, productID string) error {
	ok, err := s.refs.ProductExists(ctx, productID)
	if err != nil {
		return fmt.Errorf("channel: verify product: %w", err)
	}
	if !ok {
		return validate.NotFound("product", productID)
	}
	return nil
}

func factPayload(f Fact) map[string]any {
	return map[string]any{
		"product_id":          f.Key.ProductID,
		"sales_channel":       f.Key.SalesChannel,
		"fulfillment_channel": f.Key.FulfillmentChannel,
		"effective_date":      f.Effective.UTC().Format("2006-01-02"),
		"expiration_date":     f.Expiration.UTC().Format("2006-01-02"),
	}
}
