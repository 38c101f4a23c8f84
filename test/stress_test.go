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

	"pedraum/assignment"
	"pedraum/supplier"
	"pedraum/test/actors"
	"pedraum/test/chaos"
	"pedraum/test/infra"
	"pedraum/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestUnlockCapConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rng := rand.New(rand.NewSource(seed))

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
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
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed a capped demand plus a supplier roster
	seedData := mustSeed(t, ctx, pool, rng)

	directory, err := supplier.NewDirectory(pool, nil)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	svc := assignment.NewService(pool, assignment.NewRepository(pool), directory)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// senders and unlockers battling over the same capped demand
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Sender(ctx2, svc, seedData.demandID, seedData.supplierIDs, stop)
		})
		g.Go(func() error {
			return actors.Unlocker(ctx2, svc, seedData.demandID, seedData.supplierIDs, stop)
		})
	}

	// canceler freeing and re-contending cap slots
	g.Go(func() error { return actors.Canceler(ctx2, svc, seedData.demandID, seedData.supplierIDs, stop) })
	// payment flipper
	g.Go(func() error {
		return actors.PaymentFlipper(ctx2, svc, seedData.demandID, seedData.supplierIDs, stop)
	})
	// readers
	g.Go(func() error { return actors.Reader(ctx2, svc, seedData.demandID, stop) })
	g.Go(func() error { return actors.CounterProber(ctx2, pool, seedData.demandID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	// schedule oracle checks until duration reached
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

	// final settled check: the cap must hold once the churn stops
	var unlocked int
	if err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM demand_assignments WHERE demand_id::text = $1 AND status = 'unlocked'`,
		seedData.demandID).Scan(&unlocked); err != nil {
		t.Fatalf("final unlocked count: %v", err)
	}
	if unlocked > seedData.unlockCap {
		t.Fatalf("unlocked = %d exceeds cap %d (seed=%d)", unlocked, seedData.unlockCap, seed)
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
	demandID    string
	supplierIDs []string
	unlockCap   int
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand) seedIDs {
	t.Helper()
	s := seedIDs{unlockCap: 2}
	if err := pool.QueryRow(ctx, `
		INSERT INTO demands (title, status, default_price_cents, unlock_cap)
		VALUES ($1, 'approved', 1990, $2)
		RETURNING id::text`,
		fmt.Sprintf("Stress demand %d", rng.Int63()), s.unlockCap,
	).Scan(&s.demandID); err != nil {
		t.Fatalf("seed demand: %v", err)
	}
	// six suppliers on the legacy tables; one sponsor, one on the free plan
	profiles := []string{
		`{"nome":"Fornecedor A"}`,
		`{"nome":"Fornecedor B"}`,
		`{"nome":"Fornecedor C","patrocinador":true}`,
		`{"nome":"Fornecedor D","recebeGratisDemandas":true}`,
		`{"nome":"Fornecedor E"}`,
		`{"nome":"Fornecedor F"}`,
	}
	for i, p := range profiles {
		id := fmt.Sprintf("stress-sup-%d-%d", rng.Int63(), i)
		table := "suppliers"
		if i%2 == 1 {
			table = "usuarios"
		}
		if _, err := pool.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, profile) VALUES ($1, $2::jsonb)`, table), id, p,
		); err != nil {
			t.Fatalf("seed supplier %d: %v", i, err)
		}
		s.supplierIDs = append(s.supplierIDs, id)
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
		{"demands", `SELECT id, status, unlock_cap, unlock_count, unlocked_for FROM demands ORDER BY updated_at DESC LIMIT 20`},
		{"demand_assignments", `SELECT demand_id, supplier_id, status, payment_status, billing_type, amount_cents, unlocked_at FROM demand_assignments ORDER BY updated_at DESC LIMIT 50`},
		{"demand_accesses", `SELECT demand_id, supplier_id, granted_at FROM demand_accesses ORDER BY granted_at DESC LIMIT 50`},
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
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
