package task

import (
	"context"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
)

// Repository provides persistence for tasks.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	ListByProject(ctx context.Context, projectID string) ([]Task, error)
	// Update writes t only if the stored status still equals from.
	Update(ctx context.Context, t *Task, from Status) error
}

// ProjectRepository reads and writes the owning project.
type ProjectRepository interface {
	Get(ctx context.Context, id string) (*project.Project, error)
	Update(ctx context.Context, proj *project.Project) error
}

// BudgetChecker enforces the project reservation rule.
type BudgetChecker interface {
	CanReserve(ctx context.Context, projectID string, total, additional ledger.Money) error
}

// Ledger moves money to and from user balances.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount ledger.Money, key, reason, projectID string) (*ledger.Adjustment, error)
	Reverse(ctx context.Context, debit *ledger.Adjustment) error
	Refund(ctx context.Context, userID string, gross ledger.Money, rate ledger.TaxRate, key, reason, projectID string) (*ledger.Adjustment, error)
	Settle(ctx context.Context, adjs ...*ledger.Adjustment) error
}

// ProfileStore updates freelancer stats on approval.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	RecordCompletion(ctx context.Context, userID string, rating float64, completed int) error
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
