package actors

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pedraum/assignment"
	"pedraum/pricing"
)

// Actors drive the assignment engine the way concurrent admin sessions
// would. Each loop tolerates every service error except context
// cancellation: the chaos layer kills backends mid-flight, and the
// oracles, not the actors, decide whether an invariant broke.

func fatal(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// Sender re-sends the demand to random subsets of the supplier roster.
// Existing assignments must be skipped, so repeated sends are safe.
func Sender(ctx context.Context, svc *assignment.Service, demandID string, supplierIDs []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n := 1 + rand.Intn(len(supplierIDs))
		picked := make([]string, 0, n)
		for _, i := range rand.Perm(len(supplierIDs))[:n] {
			picked = append(picked, supplierIDs[i])
		}
		_, err := svc.SendToSuppliers(ctx, demandID, picked, 1990)
		if fatal(err) {
			return err
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Unlocker races other unlockers for the demand's capped slots.
// ErrCapReached is the expected outcome once the cap fills.
func Unlocker(ctx context.Context, svc *assignment.Service, demandID string, supplierIDs []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		sid := supplierIDs[rand.Intn(len(supplierIDs))]
		err := svc.Unlock(ctx, demandID, sid)
		if fatal(err) {
			return err
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Canceler cancels random assignments and reactivates them shortly
// after, freeing and re-contending cap slots.
func Canceler(ctx context.Context, svc *assignment.Service, demandID string, supplierIDs []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		sid := supplierIDs[rand.Intn(len(supplierIDs))]
		if err := svc.Cancel(ctx, demandID, sid); fatal(err) {
			return err
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
		if err := svc.Reactivate(ctx, demandID, sid); fatal(err) {
			return err
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// PaymentFlipper toggles payment status on sent assignments.
func PaymentFlipper(ctx context.Context, svc *assignment.Service, demandID string, supplierIDs []string, stop <-chan struct{}) error {
	states := []pricing.PaymentStatus{pricing.PaymentPending, pricing.PaymentPaid}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		sid := supplierIDs[rand.Intn(len(supplierIDs))]
		err := svc.SetPaymentStatus(ctx, demandID, sid, states[rand.Intn(len(states))])
		if fatal(err) {
			return err
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Reader lists assignments while writers churn, exercising reads
// against in-flight transactions.
func Reader(ctx context.Context, svc *assignment.Service, demandID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := svc.ListByDemand(ctx, demandID); fatal(err) {
			return err
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// CounterProber reads the demand's unlock bookkeeping directly,
// mixing raw SQL reads in with service calls.
func CounterProber(ctx context.Context, pool *pgxpool.Pool, demandID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var count int
		var unlockedFor []string
		err := pool.QueryRow(ctx, `SELECT unlock_count, unlocked_for FROM demands WHERE id::text = $1`,
			demandID).Scan(&count, &unlockedFor)
		if fatal(err) {
			return err
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}
