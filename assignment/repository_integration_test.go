package assignment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pedraum/supplier"
)

// TestLifecycle_Integration connects to a real PostgreSQL via DATABASE_URL
// and walks one demand through send, unlock, cancel, reactivate and delete.
func TestLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"demands", "demand_assignments", "demand_accesses", "suppliers"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skip("database schema missing; run migrations: migrate -path migrations -database \"$DATABASE_URL\" up")
		}
	}

	// Seed one capped demand and three supplier profiles, one of them a
	// sponsor.
	var demandID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO demands (title, default_price_cents, unlock_cap)
		VALUES ($1, 1990, 2) RETURNING id::text`,
		fmt.Sprintf("itest demand %d", time.Now().UnixNano()),
	).Scan(&demandID); err != nil {
		t.Fatalf("seed demand: %v", err)
	}

	supplierIDs := make([]string, 3)
	for i, profile := range []string{
		`{"nome":"Fornecedor A"}`,
		`{"nome":"Fornecedor B","patrocinador":true}`,
		`{"nome":"Fornecedor C"}`,
	} {
		supplierIDs[i] = fmt.Sprintf("itest-sup-%d-%d", i, time.Now().UnixNano())
		if _, err := pool.Exec(ctx,
			`INSERT INTO suppliers (id, profile) VALUES ($1, $2::jsonb)`,
			supplierIDs[i], profile,
		); err != nil {
			t.Fatalf("seed supplier %d: %v", i, err)
		}
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM demand_accesses WHERE demand_id::text = $1`, demandID)
		pool.Exec(ctx2, `DELETE FROM demand_assignments WHERE demand_id::text = $1`, demandID)
		pool.Exec(ctx2, `DELETE FROM demands WHERE id::text = $1`, demandID)
		for _, id := range supplierIDs {
			pool.Exec(ctx2, `DELETE FROM suppliers WHERE id = $1`, id)
		}
	})

	dir, err := supplier.NewDirectory(pool, nil)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	svc := NewService(pool, nil, dir)

	created, err := svc.SendToSuppliers(ctx, demandID, supplierIDs, 1990)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if created != 3 {
		t.Fatalf("created = %d, want 3", created)
	}

	// Resend must not duplicate or touch existing rows.
	created, err = svc.SendToSuppliers(ctx, demandID, supplierIDs[:2], 5000)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if created != 0 {
		t.Fatalf("resend created = %d, want 0", created)
	}

	list, err := svc.ListByDemand(ctx, demandID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for _, a := range list {
		if a.SupplierID == supplierIDs[1] {
			if a.AmountCents != 0 || a.BillingType != "free" || a.PaymentStatus != "paid" {
				t.Errorf("sponsor assignment should be free pre-paid: %+v", a)
			}
		} else if a.AmountCents != 1990 {
			t.Errorf("paid assignment amount = %d, want 1990", a.AmountCents)
		}
	}

	// Cap is 2: two unlocks pass, the third is rejected untouched.
	if err := svc.Unlock(ctx, demandID, supplierIDs[0]); err != nil {
		t.Fatalf("unlock first: %v", err)
	}
	if err := svc.Unlock(ctx, demandID, supplierIDs[1]); err != nil {
		t.Fatalf("unlock second: %v", err)
	}
	if err := svc.Unlock(ctx, demandID, supplierIDs[2]); !errors.Is(err, ErrCapReached) {
		t.Fatalf("unlock third: expected ErrCapReached, got %v", err)
	}

	var unlockCount int
	var unlockedFor []string
	if err := pool.QueryRow(ctx,
		`SELECT unlock_count, unlocked_for FROM demands WHERE id::text = $1`, demandID,
	).Scan(&unlockCount, &unlockedFor); err != nil {
		t.Fatalf("verify demand counters: %v", err)
	}
	if unlockCount != 2 || len(unlockedFor) != 2 {
		t.Fatalf("unlock_count=%d unlocked_for=%v, want 2 entries", unlockCount, unlockedFor)
	}

	var accesses int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM demand_accesses WHERE demand_id::text = $1`, demandID,
	).Scan(&accesses); err != nil {
		t.Fatalf("verify accesses: %v", err)
	}
	if accesses != 2 {
		t.Fatalf("accesses = %d, want 2", accesses)
	}

	// Cancel then reactivate the still-sent third supplier.
	if err := svc.Cancel(ctx, demandID, supplierIDs[2]); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	a := findAssignment(t, svc, ctx, demandID, supplierIDs[2])
	if a.Status != StatusCanceled || a.PaymentStatus != "pending" {
		t.Fatalf("after cancel: %+v", a)
	}
	if err := svc.Reactivate(ctx, demandID, supplierIDs[2]); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	a = findAssignment(t, svc, ctx, demandID, supplierIDs[2])
	if a.Status != StatusSent || a.PaymentStatus != "pending" {
		t.Fatalf("after reactivate: %+v", a)
	}

	// Delete one unlocked assignment; its access record and unlocked-for
	// entry go with it.
	if err := svc.Delete(ctx, demandID, supplierIDs[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err = svc.ListByDemand(ctx, demandID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d after delete, want 2", len(list))
	}
	if err := pool.QueryRow(ctx,
		`SELECT unlocked_for FROM demands WHERE id::text = $1`, demandID,
	).Scan(&unlockedFor); err != nil {
		t.Fatalf("verify unlocked_for: %v", err)
	}
	for _, id := range unlockedFor {
		if id == supplierIDs[0] {
			t.Fatalf("deleted supplier still in unlocked_for: %v", unlockedFor)
		}
	}
}

func findAssignment(t *testing.T, svc *Service, ctx context.Context, demandID, supplierID string) Assignment {
	t.Helper()
	list, err := svc.ListByDemand(ctx, demandID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range list {
		if a.SupplierID == supplierID {
			return a
		}
	}
	t.Fatalf("assignment %s/%s not found", demandID, supplierID)
	return Assignment{}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
