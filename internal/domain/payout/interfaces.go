package payout

import (
	"context"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/project"
)

// Repository provides persistence for payouts.
type Repository interface {
	Create(ctx context.Context, p *Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	ListByProject(ctx context.Context, projectID string) ([]Payout, error)
	// ListDue returns locked payouts created at or before cutoff, oldest first.
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]Payout, error)
	// Release flips locked to released; repository.ErrConflict otherwise.
	Release(ctx context.Context, id string, at time.Time) error
	// Cancel flips locked to cancelled; repository.ErrConflict otherwise.
	Cancel(ctx context.Context, id string, at time.Time) error
	// PayoutTotal sums the member's payouts that are not cancelled.
	PayoutTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error)
}

// EarningsReader sums what a member has earned through approved tasks.
type EarningsReader interface {
	ApprovedTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error)
}

// ProjectReader loads the owning project.
type ProjectReader interface {
	Get(ctx context.Context, id string) (*project.Project, error)
}

// BudgetChecker enforces the project reservation rule.
type BudgetChecker interface {
	CanReserve(ctx context.Context, projectID string, total, additional ledger.Money) error
}

// Ledger credits released payouts.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount ledger.Money, key, reason, projectID string) (*ledger.Adjustment, error)
	Settle(ctx context.Context, adjs ...*ledger.Adjustment) error
}

// ReleaseScheduler arranges a best-effort release at a point in time.
type ReleaseScheduler interface {
	ScheduleRelease(payoutID string, at time.Time) error
}

// ActivityRepository records audit entries.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

// Notifier delivers user events.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any) error
}

// Transactor runs fn in one store transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work per key.
type Locker interface {
	Lock(key string) func()
}
