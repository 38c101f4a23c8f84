package assignment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pedraum/pricing"
)

var (
	// ErrValidation wraps any rejected input.
	ErrValidation = errors.New("assignment: validation failed")
	// ErrCapReached signals the demand's unlock cap is already filled by
	// currently unlocked assignments.
	ErrCapReached = errors.New("assignment: unlock cap reached")
)

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SupplierSource answers whether a supplier receives demands for free at
// this moment. Backed by the supplier directory.
type SupplierSource interface {
	IsFreeDemand(ctx context.Context, id string) (bool, error)
}

// Service is the assignment lifecycle engine: send, unlock, cancel,
// reactivate, delete. Unlock and delete run as single transactions so the
// assignment row and the demand's counters never drift apart; cancel keeps
// the reference best-effort cleanup behavior.
type Service struct {
	pool      TxBeginner
	repo      Repository
	suppliers SupplierSource
}

func NewService(pool *pgxpool.Pool, repo Repository, suppliers SupplierSource) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{pool: pool, repo: repo, suppliers: suppliers}
}

// newServiceWith wires arbitrary fakes. Used by tests.
func newServiceWith(pool TxBeginner, repo Repository, suppliers SupplierSource) *Service {
	return &Service{pool: pool, repo: repo, suppliers: suppliers}
}

// SendToSuppliers creates one sent assignment per supplier not already in
// the demand's assignment set. Pricing is resolved per supplier at send
// time: free-plan holders and sponsors get a zero, pre-paid assignment.
// Returns how many assignments were actually created; sending only to
// already-assigned suppliers is not an error and yields 0.
func (s *Service) SendToSuppliers(ctx context.Context, demandID string, supplierIDs []string, basePriceCents int64) (int, error) {
	if demandID == "" {
		return 0, fmt.Errorf("%w: missing demand id", ErrValidation)
	}
	if len(supplierIDs) == 0 {
		return 0, fmt.Errorf("%w: no suppliers selected", ErrValidation)
	}
	if basePriceCents < pricing.MinSendAmountCents {
		return 0, fmt.Errorf("%w: base price below %d cents", ErrValidation, pricing.MinSendAmountCents)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("assignment: begin send tx: %w", err)
	}
	defer tx.Rollback(ctx)

	unlockCap, err := s.repo.DemandCapForUpdate(ctx, tx, demandID)
	if err != nil {
		return 0, err
	}
	existing, err := s.repo.AssignedSupplierIDs(ctx, tx, demandID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, supplierID := range supplierIDs {
		if supplierID == "" {
			continue
		}
		if _, ok := existing[supplierID]; ok {
			continue
		}
		free, err := s.suppliers.IsFreeDemand(ctx, supplierID)
		if err != nil {
			return 0, fmt.Errorf("assignment: resolve free plan for %s: %w", supplierID, err)
		}
		q := pricing.QuoteFor(free, basePriceCents)

		inserted, err := s.repo.Upsert(ctx, tx, Assignment{
			DemandID:      demandID,
			SupplierID:    supplierID,
			Status:        StatusSent,
			AmountCents:   q.AmountCents,
			Currency:      q.Currency,
			Cap:           unlockCap,
			PaymentStatus: q.PaymentStatus,
			BillingType:   q.BillingType,
		})
		if err != nil {
			return 0, err
		}
		if inserted {
			created++
			existing[supplierID] = struct{}{}
		}
	}

	if created > 0 {
		if err := s.repo.StampLastSent(ctx, tx, demandID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("assignment: commit send: %w", err)
	}
	return created, nil
}

// SetPaymentStatus flips the assignment's payment state. Idempotent.
func (s *Service) SetPaymentStatus(ctx context.Context, demandID, supplierID string, ps pricing.PaymentStatus) error {
	if ps != pricing.PaymentPending && ps != pricing.PaymentPaid {
		return fmt.Errorf("%w: unknown payment status %q", ErrValidation, ps)
	}
	return s.repo.SetPaymentStatus(ctx, demandID, supplierID, ps)
}

// Unlock grants the supplier access to the demand's contact data. The whole
// operation runs in one transaction behind a row lock on the demand, so the
// cap check and the counter bump cannot race another unlock. Unlocking an
// already-unlocked assignment is a no-op.
func (s *Service) Unlock(ctx context.Context, demandID, supplierID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assignment: begin unlock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	unlockCap, err := s.repo.DemandCapForUpdate(ctx, tx, demandID)
	if err != nil {
		return err
	}
	a, err := s.repo.GetForUpdate(ctx, tx, demandID, supplierID)
	if err != nil {
		return err
	}
	if a.Status == StatusUnlocked {
		return nil
	}

	if unlockCap != nil {
		unlocked, err := s.repo.CountUnlocked(ctx, tx, demandID)
		if err != nil {
			return err
		}
		if unlocked >= *unlockCap {
			return fmt.Errorf("%w: %d of %d", ErrCapReached, unlocked, *unlockCap)
		}
	}

	bt := a.BillingType
	if bt == "" {
		free, err := s.suppliers.IsFreeDemand(ctx, supplierID)
		if err != nil {
			return fmt.Errorf("assignment: resolve free plan for %s: %w", supplierID, err)
		}
		bt = pricing.BillingPaid
		if free {
			bt = pricing.BillingFree
		}
	}

	if err := s.repo.MarkUnlocked(ctx, tx, demandID, supplierID, bt); err != nil {
		return err
	}
	if err := s.repo.RecordUnlock(ctx, tx, demandID, supplierID); err != nil {
		return err
	}
	if err := s.repo.GrantAccess(ctx, tx, demandID, supplierID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assignment: commit unlock: %w", err)
	}
	return nil
}

// Cancel moves the assignment to canceled and resets its payment state to
// pending. The accompanying cleanup (dropping the supplier from the
// demand's unlocked-for set, deleting the access side-record) is best
// effort: failures there are logged and swallowed.
func (s *Service) Cancel(ctx context.Context, demandID, supplierID string) error {
	if err := s.repo.SetStatus(ctx, demandID, supplierID, StatusCanceled, pricing.PaymentPending); err != nil {
		return err
	}
	if err := s.repo.RemoveUnlockedFor(ctx, demandID, supplierID); err != nil {
		log.Printf("assignment: cancel cleanup (unlocked-for) %s/%s: %v", demandID, supplierID, err)
	}
	if err := s.repo.DeleteAccess(ctx, demandID, supplierID); err != nil {
		log.Printf("assignment: cancel cleanup (access) %s/%s: %v", demandID, supplierID, err)
	}
	return nil
}

// Reactivate returns a canceled assignment to sent with payment pending.
// The unlock cap is not re-checked: a canceled assignment was never counted
// as unlocked, so reactivating cannot breach the cap by itself.
func (s *Service) Reactivate(ctx context.Context, demandID, supplierID string) error {
	return s.repo.SetStatus(ctx, demandID, supplierID, StatusSent, pricing.PaymentPending)
}

// Delete removes the assignment and its side-records in one transaction.
func (s *Service) Delete(ctx context.Context, demandID, supplierID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assignment: begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.DeleteCascade(ctx, tx, demandID, supplierID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assignment: commit delete: %w", err)
	}
	return nil
}

// ListByDemand returns the demand's assignment set, oldest first.
func (s *Service) ListByDemand(ctx context.Context, demandID string) ([]Assignment, error) {
	if demandID == "" {
		return nil, fmt.Errorf("%w: missing demand id", ErrValidation)
	}
	return s.repo.ListByDemand(ctx, demandID)
}
