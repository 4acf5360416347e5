package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"productmaster/batchsql"
	"productmaster/reconcile"
	"productmaster/validate"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testService(repo *fakeRepo, pool *fakePool) *Service {
	svc := NewService(pool, repo, &fakeRefs{
		products: map[string]bool{"P1": true},
		channels: map[string]bool{"WEB": true, "SHIP": true, "STORE": true},
	})
	svc.now = func() time.Time { return day(2024, time.March, 15) }
	return svc
}

func addReq() AddRequest {
	return AddRequest{
		ProductID:          "P1",
		SalesChannel:       "WEB",
		FulfillmentChannel: "SHIP",
		Effective:          day(2024, time.June, 1),
		Expiration:         day(2024, time.December, 31),
		ActingUser:         "jdoe",
		ActingProgram:      "maint-api",
	}
}

func TestAdd_TruncatesActiveAndInsertsNew(t *testing.T) {
	repo := &fakeRepo{
		facts: []Fact{{
			Key:        Key{ProductID: "P1", SalesChannel: "WEB", FulfillmentChannel: "SHIP"},
			Effective:  day(2024, time.January, 1),
			Expiration: reconcile.Forever,
		}},
	}
	pool := &fakePool{}
	svc := testService(repo, pool)

	res, err := svc.Add(context.Background(), addReq())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(repo.applied) != 1 {
		t.Fatalf("expected one applied change set, got %d", len(repo.applied))
	}
	set := repo.applied[0]
	if len(set.Inserts) != 1 || len(set.Updates) != 1 || len(set.Deletes) != 0 {
		t.Fatalf("unexpected change set shape: %d/%d/%d", len(set.Inserts), len(set.Updates), len(set.Deletes))
	}
	if !set.Updates[0].Expiration.Equal(day(2024, time.June, 1)) {
		t.Errorf("expected old window cut at the new effective date, got %s", set.Updates[0].Expiration)
	}
	// One ADD, one UPDATE, one product summary.
	if res.EventsStaged != 3 {
		t.Errorf("expected 3 staged events, got %d", res.EventsStaged)
	}
	if !pool.tx.committed {
		t.Error("expected commit")
	}
}

func TestAdd_ValidationListsEveryViolation(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	_, err := svc.Add(context.Background(), AddRequest{})
	f, ok := validate.AsFailure(err)
	if !ok {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(f.Violations) < 3 {
		t.Fatalf("expected the complete violation list, got %v", f.Violations)
	}
	if pool.begun != 0 {
		t.Error("expected no transaction before validation passes")
	}
}

func TestAdd_UnknownProductIsNotFound(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	req := addReq()
	req.ProductID = "P404"
	_, err := svc.Add(context.Background(), req)
	if !validate.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestAdd_ApplyErrorRollsBack(t *testing.T) {
	repo := &fakeRepo{applyErr: errors.New("deadlock")}
	pool := &fakePool{}
	svc := testService(repo, pool)

	if _, err := svc.Add(context.Background(), addReq()); err == nil {
		t.Fatal("expected apply error to propagate")
	}
	if pool.tx.committed {
		t.Error("expected no commit after apply failure")
	}
	if !pool.tx.rolled {
		t.Error("expected rollback")
	}
}

func TestEnd_MissingRowIsNoOp(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	res, err := svc.End(context.Background(), EndRequest{
		ProductID:          "P1",
		SalesChannel:       "WEB",
		FulfillmentChannel: "SHIP",
		EndDate:            day(2024, time.April, 1),
		ActingUser:         "jdoe",
		ActingProgram:      "maint-api",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Inserted+res.Updated+res.Deleted != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.EventsStaged != 0 {
		t.Errorf("expected zero events for a no-op, got %d", res.EventsStaged)
	}
}

func TestEnd_DateBeforeEffectiveDeletesWindow(t *testing.T) {
	repo := &fakeRepo{
		facts: []Fact{{
			Key:        Key{ProductID: "P1", SalesChannel: "WEB", FulfillmentChannel: "SHIP"},
			Effective:  day(2024, time.January, 1),
			Expiration: reconcile.Forever,
			UpdatedBy:  "seed",
		}},
	}
	pool := &fakePool{}
	svc := testService(repo, pool)

	res, err := svc.End(context.Background(), EndRequest{
		ProductID:          "P1",
		SalesChannel:       "WEB",
		FulfillmentChannel: "SHIP",
		EndDate:            day(2023, time.June, 1),
		ActingUser:         "jdoe",
		ActingProgram:      "maint-api",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Deleted != 1 || res.Updated != 0 {
		t.Errorf("expected the window removed rather than inverted, got %+v", res)
	}
	set := repo.applied[0]
	for _, f := range set.Updates {
		if f.Expiration.Before(f.Effective) {
			t.Errorf("persisted inverted window: effective %s > expiration %s", f.Effective, f.Expiration)
		}
	}
}

func TestAddBatch_DuplicateDimensionFallsBackToSequential(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	first := addReq()
	second := addReq()
	second.Effective = day(2024, time.September, 1)
	second.Expiration = reconcile.Forever

	if _, err := svc.AddBatch(context.Background(), []AddRequest{first, second}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if pool.begun != 2 {
		t.Fatalf("expected one transaction per item for a duplicate dimension, got %d", pool.begun)
	}
}

func TestAddBatch_DistinctDimensionsShareOneTransaction(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	first := addReq()
	second := addReq()
	second.SalesChannel = "STORE"

	if _, err := svc.AddBatch(context.Background(), []AddRequest{first, second}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if pool.begun != 1 {
		t.Fatalf("expected one combined transaction, got %d", pool.begun)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one combined apply, got %d", len(repo.applied))
	}
}

func TestAddBatch_MixedActingUsersRejected(t *testing.T) {
	repo := &fakeRepo{}
	pool := &fakePool{}
	svc := testService(repo, pool)

	first := addReq()
	second := addReq()
	second.SalesChannel = "STORE"
	second.ActingUser = "other"

	_, err := svc.AddBatch(context.Background(), []AddRequest{first, second})
	if _, ok := validate.AsFailure(err); !ok {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

type fakeRefs struct {
	products map[string]bool
	channels map[string]bool
}

func (f *fakeRefs) ProductExists(_ context.Context, id string) (bool, error) {
	return f.products[id], nil
}
func (f *fakeRefs) SalesChannelExists(_ context.Context, code string) (bool, error) {
	return f.channels[code], nil
}
func (f *fakeRefs) FulfillmentChannelExists(_ context.Context, code string) (bool, error) {
	return f.channels[code], nil
}
func (f *fakeRefs) ClaimCodeExists(_ context.Context, code string) (bool, error) {
	return f.channels[code], nil
}

type fakeRepo struct {
	facts    []Fact
	applied  []reconcile.ChangeSet[Fact]
	applyErr error
}

func (f *fakeRepo) CurrentFacts(_ context.Context, _ pgx.Tx, key Key) ([]Fact, error) {
	var out []Fact
	for _, fact := range f.facts {
		if fact.Key == key {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeRepo) Apply(_ context.Context, _ pgx.Tx, set reconcile.ChangeSet[Fact]) (batchsql.Counts, error) {
	if f.applyErr != nil {
		return batchsql.Counts{}, f.applyErr
	}
	f.applied = append(f.applied, set)
	return batchsql.Counts{
		Inserted: int64(len(set.Inserts)),
		Updated:  int64(len(set.Updates)),
		Deleted:  int64(len(set.Deletes)),
	}, nil
}

type fakePool struct {
	begun int
	tx    *fakeTx
}

func (f *fakePool) Begin(context.Context) (pgx.Tx, error) {
	f.begun++
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}
func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolled = true; return nil }
func (f *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	return &fakeBatchResults{n: b.Len()}
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (f *fakeTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { panic("not implemented") }
func (f *fakeTx) Conn() *pgx.Conn                                  { return nil }

type fakeBatchResults struct{ n int }

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (r *fakeBatchResults) Query() (pgx.Rows, error) { panic("not implemented") }
func (r *fakeBatchResults) QueryRow() pgx.Row        { panic("not implemented") }
func (r *fakeBatchResults) Close() error             { return nil }
