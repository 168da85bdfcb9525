package ledger

import (
	"context"
	"time"
)

// Balances is the user directory's spendable balance store.
//
// AdjustBalance applies delta atomically and returns the new balance. A key
// that was already applied is not applied again; the current balance is
// returned instead.
type Balances interface {
	GetBalance(ctx context.Context, userID string) (Money, error)
	AdjustBalance(ctx context.Context, userID string, delta Money, key, reason string) (Money, error)
}

// Repository persists the adjustment outbox.
type Repository interface {
	Create(ctx context.Context, adj *Adjustment) error
	GetByKey(ctx context.Context, key string) (*Adjustment, error)
	MarkApplied(ctx context.Context, key string, at time.Time) error
	MarkFailed(ctx context.Context, key string, reason string) error
	ListPending(ctx context.Context, limit int) ([]Adjustment, error)
}
