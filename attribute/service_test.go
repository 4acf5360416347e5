package attribute

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"productmaster/batchsql"
	"productmaster/reconcile"
	"productmaster/refdata"
	"productmaster/validate"
)

func testService(repo *fakeRepo) (*Service, *fakePool) {
	pool := &fakePool{}
	catalog := refdata.NewMemoryCatalog(nil,
		refdata.AttributeDef{ID: "COLOR", Code: "color", MultiValued: true, MaxValues: 3},
		refdata.AttributeDef{ID: "BRAND", Code: "brand", MultiValued: false},
	)
	refs := &fakeRefs{products: map[string]bool{"P1": true}}
	return NewService(pool, repo, refs, catalog), pool
}

func setReq(attributeID string, values ...string) SetRequest {
	return SetRequest{
		ProductID:     "P1",
		AttributeID:   attributeID,
		Values:        values,
		ActingUser:    "jdoe",
		ActingProgram: "maint-api",
	}
}

func TestSet_InsertsValuesWithDenseSequences(t *testing.T) {
	repo := &fakeRepo{}
	svc, pool := testService(repo)

	res, err := svc.Set(context.Background(), setReq("COLOR", "red", "blue"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("expected two inserts, got %+v", res)
	}
	// Two ADDs plus one product summary.
	if res.EventsStaged != 3 {
		t.Errorf("expected 3 staged events, got %d", res.EventsStaged)
	}
	if !pool.tx.committed {
		t.Error("expected commit")
	}
}

func TestSet_ResubmittingStoredListIsNoOp(t *testing.T) {
	repo := &fakeRepo{facts: []Fact{
		{ProductID: "P1", AttributeID: "COLOR", Sequence: 1, Value: "red"},
	}}
	svc, _ := testService(repo)

	res, err := svc.Set(context.Background(), setReq("COLOR", "red"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Inserted+res.Updated+res.Deleted != 0 || res.EventsStaged != 0 {
		t.Fatalf("expected a no-op, got %+v", res)
	}
}

func TestSet_EmptyListClearsAttribute(t *testing.T) {
	repo := &fakeRepo{facts: []Fact{
		{ProductID: "P1", AttributeID: "COLOR", Sequence: 1, Value: "red"},
		{ProductID: "P1", AttributeID: "COLOR", Sequence: 2, Value: "blue"},
	}}
	svc, _ := testService(repo)

	res, err := svc.Set(context.Background(), setReq("COLOR"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Deleted != 2 {
		t.Fatalf("expected both rows deleted, got %+v", res)
	}
}

func TestSet_SingleValuedRejectsSecondValue(t *testing.T) {
	svc, pool := testService(&fakeRepo{})

	_, err := svc.Set(context.Background(), setReq("BRAND", "acme", "globex"))
	f, ok := validate.AsFailure(err)
	if !ok {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(f.Violations) != 1 {
		t.Fatalf("expected one violation, got %v", f.Violations)
	}
	if pool.begun != 0 {
		t.Error("expected no transaction before validation passes")
	}
}

func TestSet_MultiValuedCapEnforced(t *testing.T) {
	svc, _ := testService(&fakeRepo{})

	_, err := svc.Set(context.Background(), setReq("COLOR", "a", "b", "c", "d"))
	if _, ok := validate.AsFailure(err); !ok {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestSet_BlankAndDuplicateValuesListedTogether(t *testing.T) {
	svc, _ := testService(&fakeRepo{})

	_, err := svc.Set(context.Background(), setReq("COLOR", "", "red", "red"))
	f, ok := validate.AsFailure(err)
	if !ok {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(f.Violations) != 2 {
		t.Fatalf("expected blank and duplicate violations together, got %v", f.Violations)
	}
}

func TestSet_UnknownAttributeIsNotFound(t *testing.T) {
	svc, _ := testService(&fakeRepo{})

	if _, err := svc.Set(context.Background(), setReq("NOPE", "x")); !validate.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSet_UnknownProductIsNotFound(t *testing.T) {
	svc, _ := testService(&fakeRepo{})

	req := setReq("COLOR", "red")
	req.ProductID = "P404"
	if _, err := svc.Set(context.Background(), req); !validate.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSet_ApplyErrorRollsBack(t *testing.T) {
	repo := &fakeRepo{applyErr: errors.New("deadlock")}
	svc, pool := testService(repo)

	if _, err := svc.Set(context.Background(), setReq("COLOR", "red")); err == nil {
		t.Fatal("expected apply error to propagate")
	}
	if pool.tx.committed {
		t.Error("expected no commit after apply failure")
	}
}

type fakeRefs struct {
	products map[string]bool
}

func (f *fakeRefs) ProductExists(_ context.Context, id string) (bool, error) {
	return f.products[id], nil
}
func (f *fakeRefs) SalesChannelExists(context.Context, string) (bool, error)       { return false, nil }
func (f *fakeRefs) FulfillmentChannelExists(context.Context, string) (bool, error) { return false, nil }
func (f *fakeRefs) ClaimCodeExists(context.Context, string) (bool, error)          { return false, nil }

type fakeRepo struct {
	facts    []Fact
	applied  []reconcile.ChangeSet[Fact]
	applyErr error
}

func (f *fakeRepo) CurrentFacts(_ context.Context, _ pgx.Tx, productID, attributeID string) ([]Fact, error) {
	var out []Fact
	for _, fact := range f.facts {
		if fact.ProductID == productID && fact.AttributeID == attributeID {
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
	committed bool
	rolled    bool
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
