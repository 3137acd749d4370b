// AngelaMos | 2026
// ledger.go

package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

const meteredRole = "free"

var (
	// ErrNoChange is returned by Adjust for a zero delta; there is no new
	// balance to report.
	ErrNoChange = errors.New("credit delta is zero")

	ErrEmptyResult = fmt.Errorf("empty result: %w", core.ErrGenerationFailed)
)

// Store applies a credit delta in one atomic statement and returns the new
// balance. With requireNonNegative the write must be refused, not clamped,
// when it would take the balance below zero.
type Store interface {
	AdjustCredits(
		ctx context.Context,
		userID string,
		delta int,
		requireNonNegative bool,
	) (int, error)
}

type Account struct {
	UserID string
	Role   string
}

// Metered reports whether the account pays for AI calls.
func (a Account) Metered() bool {
	return a.Role == meteredRole
}

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve debits cost up front. Unmetered roles and a zero cost get an inert
// reservation. A balance below cost fails with ErrInsufficientCredits and
// leaves the balance untouched.
func (l *Ledger) Reserve(
	ctx context.Context,
	acct Account,
	cost int,
) (*Reservation, error) {
	cost = max(cost, 0)

	if !acct.Metered() || cost == 0 {
		return &Reservation{}, nil
	}

	balance, err := l.store.AdjustCredits(ctx, acct.UserID, -cost, true)
	if err != nil {
		return nil, fmt.Errorf("reserve credits: %w", err)
	}

	core.AddSpanEvent(ctx, "credits.reserved",
		attribute.String("user.id", acct.UserID),
		attribute.Int("credits.cost", cost),
		attribute.Int("credits.balance", balance),
	)

	return &Reservation{
		ledger:  l,
		acct:    acct,
		cost:    cost,
		Balance: balance,
	}, nil
}

// Refund gives cost back to a metered account.
func (l *Ledger) Refund(ctx context.Context, acct Account, cost int) error {
	if !acct.Metered() || cost <= 0 {
		return nil
	}

	if _, err := l.store.AdjustCredits(ctx, acct.UserID, cost, false); err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}

	return nil
}

// Adjust applies an administrative delta regardless of role. A debit larger
// than the balance fails with ErrInsufficientCredits.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta int) (int, error) {
	if delta == 0 {
		return 0, ErrNoChange
	}

	balance, err := l.store.AdjustCredits(ctx, userID, delta, true)
	if err != nil {
		return 0, fmt.Errorf("adjust credits: %w", err)
	}

	return balance, nil
}

// Reservation is the handle for one debit. Rollback refunds at most once;
// Commit makes any later Rollback a no-op.
type Reservation struct {
	ledger *Ledger
	acct   Account
	cost   int
	done   atomic.Bool

	// Balance is the balance right after the debit, zero when inert.
	Balance int
}

func (r *Reservation) Commit() {
	if r != nil {
		r.done.Store(true)
	}
}

// Rollback refunds the reserved cost. A failed refund is logged, never
// returned, so it cannot mask the error that caused the rollback.
func (r *Reservation) Rollback(ctx context.Context) {
	if r == nil || r.ledger == nil || !r.done.CompareAndSwap(false, true) {
		return
	}

	if err := r.ledger.Refund(context.WithoutCancel(ctx), r.acct, r.cost); err != nil {
		slog.ErrorContext(ctx, "credit refund failed",
			"user_id", r.acct.UserID,
			"cost", r.cost,
			"error", err,
		)
		return
	}

	core.AddSpanEvent(ctx, "credits.refunded",
		attribute.String("user.id", r.acct.UserID),
		attribute.Int("credits.cost", r.cost),
	)
}

// Metered runs action under a credit reservation. The cost is refunded when
// action fails or when empty reports its result as unusable; in that last
// case the returned error wraps ErrEmptyResult.
func Metered[T any](
	ctx context.Context,
	l *Ledger,
	acct Account,
	cost int,
	action func(ctx context.Context) (T, error),
	empty func(T) bool,
) (T, error) {
	var zero T

	reservation, err := l.Reserve(ctx, acct, cost)
	if err != nil {
		return zero, err
	}

	result, err := action(ctx)
	if err != nil {
		reservation.Rollback(ctx)
		return zero, err
	}

	if empty != nil && empty(result) {
		reservation.Rollback(ctx)
		return zero, ErrEmptyResult
	}

	reservation.Commit()

	return result, nil
}
