package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"productmaster/attribute"
	"productmaster/channel"
	"productmaster/claim"
	"productmaster/outbox"
	"productmaster/refdata"
	"productmaster/test/actors"
	"productmaster/test/chaos"
	"productmaster/test/infra"
	"productmaster/test/oracles"
	"productmaster/threshold"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestMaintenanceConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC *infra.PGContainer
		dsn string
		err error
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no Docker and no local PostgreSQL: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, err := infra.ApplyMigrations(ctx, dsn)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()

	seedData := mustSeed(t, ctx, pool)

	refs := refdata.NewPGOracle(pool)
	catalog := refdata.NewPGCatalog(pool)
	channelSvc := channel.NewService(pool, nil, refs)
	thresholdSvc := threshold.NewService(pool, nil, refs)
	attributeSvc := attribute.NewService(pool, nil, refs, catalog)
	claimSvc := claim.NewService(pool, nil, refs)
	outboxRepo := outbox.NewRepository(pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// adders and enders battling over the same dimension
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.WindowAdder(ctx2, channelSvc, seedData.productID, "WEB", "SHIP", stop)
		})
		g.Go(func() error {
			return actors.WindowEnder(ctx2, channelSvc, seedData.productID, "WEB", "SHIP", stop)
		})
	}
	g.Go(func() error { return actors.ThresholdUpserter(ctx2, thresholdSvc, seedData.productID, stop) })
	g.Go(func() error {
		return actors.AttributeSetter(ctx2, attributeSvc, seedData.productID, seedData.attributeID, stop)
	})
	g.Go(func() error { return actors.ClaimToggler(ctx2, claimSvc, seedData.productID, "ORGANIC", stop) })
	g.Go(func() error { return actors.OutboxDrainer(ctx2, outboxRepo, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	productID   string
	attributeID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	s := seedIDs{
		productID:   fmt.Sprintf("P-%d", rand.Int63()),
		attributeID: "COLOR",
	}
	if _, err := pool.Exec(ctx, `INSERT INTO products (id, name) VALUES ($1, 'Stress Product')`, s.productID); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO sales_channels (code) VALUES ('WEB') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed sales channel: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO fulfillment_channels (code) VALUES ('SHIP') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed fulfillment channel: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO claim_codes (code) VALUES ('ORGANIC') ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed claim code: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO attribute_defs (id, code, multi_valued, max_values) VALUES ('COLOR', 'color', true, 5) ON CONFLICT DO NOTHING`); err != nil {
		t.Fatalf("seed attribute def: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"channel_facts", `SELECT product_id, sales_channel, fulfillment_channel, effective_date, expiration_date FROM channel_facts ORDER BY effective_date DESC LIMIT 50`},
		{"discount_thresholds", `SELECT product_id, threshold_type, quantity, discount_percent FROM discount_thresholds LIMIT 50`},
		{"attribute_values", `SELECT product_id, attribute_id, sequence, value FROM attribute_values ORDER BY sequence LIMIT 50`},
		{"outbox_events", `SELECT id, event_code, operation, status, attempts, created_at FROM outbox_events ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
