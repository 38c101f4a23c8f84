package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pedraum/pricing"
)

var (
	// ErrNotFound signals the (demand, supplier) pair has no assignment.
	ErrNotFound = errors.New("assignment: not found")
	// ErrDemandNotFound signals the demand side of the pair is gone.
	ErrDemandNotFound = errors.New("assignment: demand not found")
	// ErrLockedPayment signals a payment flip on an unlocked assignment.
	ErrLockedPayment = errors.New("assignment: payment is locked while unlocked")
)

// listLimit bounds a per-demand listing. No demand is ever sent to more
// suppliers than this.
const listLimit = 2000

// Repository is the persistence surface of the lifecycle engine. Methods
// taking a pgx.Tx participate in a transaction the service owns; the rest
// are single-statement operations against the pool.
type Repository interface {
	DemandCapForUpdate(ctx context.Context, tx pgx.Tx, demandID string) (*int, error)
	AssignedSupplierIDs(ctx context.Context, tx pgx.Tx, demandID string) (map[string]struct{}, error)
	Upsert(ctx context.Context, tx pgx.Tx, a Assignment) (bool, error)
	StampLastSent(ctx context.Context, tx pgx.Tx, demandID string) error

	GetForUpdate(ctx context.Context, tx pgx.Tx, demandID, supplierID string) (Assignment, error)
	CountUnlocked(ctx context.Context, tx pgx.Tx, demandID string) (int, error)
	MarkUnlocked(ctx context.Context, tx pgx.Tx, demandID, supplierID string, bt pricing.BillingType) error
	RecordUnlock(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error
	GrantAccess(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error
	DeleteCascade(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error

	SetPaymentStatus(ctx context.Context, demandID, supplierID string, ps pricing.PaymentStatus) error
	SetStatus(ctx context.Context, demandID, supplierID string, st Status, ps pricing.PaymentStatus) error
	RemoveUnlockedFor(ctx context.Context, demandID, supplierID string) error
	DeleteAccess(ctx context.Context, demandID, supplierID string) error

	ListByDemand(ctx context.Context, demandID string) ([]Assignment, error)
}

const assignmentColumns = `
	demand_id::text, supplier_id, status,
	amount_cents, currency, cap, exclusive, sold_count,
	payment_status, billing_type, notes,
	unlocked_by_admin, unlocked_at, created_at, updated_at`

// PGRepository implements Repository over pgxpool.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// DemandCapForUpdate locks the demand row and returns its unlock cap. The
// row lock serializes concurrent unlocks of the same demand.
func (r *PGRepository) DemandCapForUpdate(ctx context.Context, tx pgx.Tx, demandID string) (*int, error) {
	var unlockCap *int
	err := tx.QueryRow(ctx,
		`SELECT unlock_cap FROM demands WHERE id::text = $1 FOR UPDATE`,
		demandID,
	).Scan(&unlockCap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDemandNotFound
		}
		return nil, fmt.Errorf("assignment: lock demand: %w", err)
	}
	return unlockCap, nil
}

func (r *PGRepository) AssignedSupplierIDs(ctx context.Context, tx pgx.Tx, demandID string) (map[string]struct{}, error) {
	rows, err := tx.Query(ctx,
		`SELECT supplier_id FROM demand_assignments WHERE demand_id::text = $1`,
		demandID,
	)
	if err != nil {
		return nil, fmt.Errorf("assignment: list assigned suppliers: %w", err)
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("assignment: scan supplier id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: iterate supplier ids: %w", err)
	}
	return ids, nil
}

// Upsert inserts the assignment, leaving an existing record for the same
// pair untouched. Reports whether a row was actually created.
func (r *PGRepository) Upsert(ctx context.Context, tx pgx.Tx, a Assignment) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO demand_assignments
			(demand_id, supplier_id, status,
			 amount_cents, currency, cap, exclusive, sold_count,
			 payment_status, billing_type, notes,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (demand_id, supplier_id) DO NOTHING`,
		a.DemandID, a.SupplierID, a.Status,
		a.AmountCents, a.Currency, a.Cap, a.Exclusive, a.SoldCount,
		a.PaymentStatus, a.BillingType, a.Notes,
	)
	if err != nil {
		return false, fmt.Errorf("assignment: upsert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) StampLastSent(ctx context.Context, tx pgx.Tx, demandID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE demands SET last_sent_at = now(), updated_at = now() WHERE id::text = $1`,
		demandID,
	); err != nil {
		return fmt.Errorf("assignment: stamp last sent: %w", err)
	}
	return nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, demandID, supplierID string) (Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM demand_assignments
		WHERE demand_id::text = $1 AND supplier_id = $2
		FOR UPDATE`
	a, err := scanAssignment(tx.QueryRow(ctx, query, demandID, supplierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, fmt.Errorf("assignment: get for update: %w", err)
	}
	return a, nil
}

func (r *PGRepository) CountUnlocked(ctx context.Context, tx pgx.Tx, demandID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM demand_assignments WHERE demand_id::text = $1 AND status = $2`,
		demandID, StatusUnlocked,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("assignment: count unlocked: %w", err)
	}
	return n, nil
}

func (r *PGRepository) MarkUnlocked(ctx context.Context, tx pgx.Tx, demandID, supplierID string, bt pricing.BillingType) error {
	tag, err := tx.Exec(ctx, `
		UPDATE demand_assignments
		SET status = $3,
		    payment_status = $4,
		    billing_type = $5,
		    unlocked_by_admin = TRUE,
		    unlocked_at = now(),
		    updated_at = now()
		WHERE demand_id::text = $1 AND supplier_id = $2`,
		demandID, supplierID, StatusUnlocked, pricing.PaymentPaid, bt,
	)
	if err != nil {
		return fmt.Errorf("assignment: mark unlocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUnlock bumps the demand's unlock counter and adds the supplier to
// its unlocked-for set. The set-add is idempotent.
func (r *PGRepository) RecordUnlock(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE demands
		SET unlock_count = unlock_count + 1,
		    unlocked_for = CASE
		        WHEN $2 = ANY(unlocked_for) THEN unlocked_for
		        ELSE array_append(unlocked_for, $2)
		    END,
		    updated_at = now()
		WHERE id::text = $1`,
		demandID, supplierID,
	)
	if err != nil {
		return fmt.Errorf("assignment: record unlock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDemandNotFound
	}
	return nil
}

// GrantAccess records that the supplier saw the demand's contact data.
// Replays are fine; the record is keyed by the pair.
func (r *PGRepository) GrantAccess(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO demand_accesses (demand_id, supplier_id)
		SELECT id, $2 FROM demands WHERE id::text = $1
		ON CONFLICT (demand_id, supplier_id) DO NOTHING`,
		demandID, supplierID,
	); err != nil {
		return fmt.Errorf("assignment: grant access: %w", err)
	}
	return nil
}

func (r *PGRepository) DeleteCascade(ctx context.Context, tx pgx.Tx, demandID, supplierID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE demands
		 SET unlocked_for = array_remove(unlocked_for, $2), updated_at = now()
		 WHERE id::text = $1`,
		demandID, supplierID,
	); err != nil {
		return fmt.Errorf("assignment: clear unlocked-for: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM demand_accesses WHERE demand_id::text = $1 AND supplier_id = $2`,
		demandID, supplierID,
	); err != nil {
		return fmt.Errorf("assignment: delete access: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM demand_assignments WHERE demand_id::text = $1 AND supplier_id = $2`,
		demandID, supplierID,
	)
	if err != nil {
		return fmt.Errorf("assignment: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetPaymentStatus(ctx context.Context, demandID, supplierID string, ps pricing.PaymentStatus) error {
	// Unlocked assignments stay paid; reverting payment requires a cancel.
	tag, err := r.pool.Exec(ctx, `
		UPDATE demand_assignments
		SET payment_status = $3, updated_at = now()
		WHERE demand_id::text = $1 AND supplier_id = $2
		  AND status <> 'unlocked'`,
		demandID, supplierID, ps,
	)
	if err != nil {
		return fmt.Errorf("assignment: set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM demand_assignments WHERE demand_id::text = $1 AND supplier_id = $2)`,
			demandID, supplierID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("assignment: set payment status: %w", err)
		}
		if exists {
			return ErrLockedPayment
		}
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetStatus(ctx context.Context, demandID, supplierID string, st Status, ps pricing.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE demand_assignments
		SET status = $3, payment_status = $4, updated_at = now()
		WHERE demand_id::text = $1 AND supplier_id = $2`,
		demandID, supplierID, st, ps,
	)
	if err != nil {
		return fmt.Errorf("assignment: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) RemoveUnlockedFor(ctx context.Context, demandID, supplierID string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE demands
		 SET unlocked_for = array_remove(unlocked_for, $2), updated_at = now()
		 WHERE id::text = $1`,
		demandID, supplierID,
	); err != nil {
		return fmt.Errorf("assignment: remove unlocked-for: %w", err)
	}
	return nil
}

func (r *PGRepository) DeleteAccess(ctx context.Context, demandID, supplierID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM demand_accesses WHERE demand_id::text = $1 AND supplier_id = $2`,
		demandID, supplierID,
	); err != nil {
		return fmt.Errorf("assignment: delete access: %w", err)
	}
	return nil
}

func (r *PGRepository) ListByDemand(ctx context.Context, demandID string) ([]Assignment, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM demand_assignments WHERE demand_id::text = $1 ORDER BY created_at LIMIT %d`,
		assignmentColumns, listLimit,
	)
	rows, err := r.pool.Query(ctx, query, demandID)
	if err != nil {
		return nil, fmt.Errorf("assignment: list by demand: %w", err)
	}
	defer rows.Close()

	list := []Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignment: scan list row: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignment: iterate list: %w", err)
	}
	return list, nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	return a, row.Scan(
		&a.DemandID, &a.SupplierID, &a.Status,
		&a.AmountCents, &a.Currency, &a.Cap, &a.Exclusive, &a.SoldCount,
		&a.PaymentStatus, &a.BillingType, &a.Notes,
		&a.UnlockedByAdmin, &a.UnlockedAt, &a.CreatedAt, &a.UpdatedAt,
	)
}
