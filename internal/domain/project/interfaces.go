package project

import (
	"context"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
)

// Repository provides persistence for projects and their members.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context, opts ListOptions) ([]Project, error)
	Update(ctx context.Context, proj *Project) error
	Delete(ctx context.Context, id string) error
	UpsertMember(ctx context.Context, m *Member) error
	DeleteMember(ctx context.Context, projectID, freelancerID string) error
	SetLead(ctx context.Context, projectID, freelancerID string) error
}

// TaskCounter counts tasks that are not approved or cancelled. An empty
// freelancerID counts the whole project.
type TaskCounter interface {
	CountOpen(ctx context.Context, projectID, freelancerID string) (int, error)
}

// PayoutCounter counts payouts still locked.
type PayoutCounter interface {
	CountLocked(ctx context.Context, projectID, freelancerID string) (int, error)
}

// BudgetReader reports commitments against a budget.
type BudgetReader interface {
	Committed(ctx context.Context, projectID string) (ledger.Money, error)
	Summarize(ctx context.Context, projectID string, total ledger.Money) (budget.Summary, error)
}

// Ledger moves money to and from user balances.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount ledger.Money, key, reason, projectID string) (*ledger.Adjustment, error)
	Reverse(ctx context.Context, debit *ledger.Adjustment) error
	Refund(ctx context.Context, userID string, gross ledger.Money, rate ledger.TaxRate, key, reason, projectID string) (*ledger.Adjustment, error)
	Settle(ctx context.Context, adjs ...*ledger.Adjustment) error
}

// ActivityRepository records audit entries.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

// Notifier delivers user events. Failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any) error
}

// ProfileReader loads freelancer profiles.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

// Recruiter fills open roles with invitations.
type Recruiter interface {
	Fill(ctx context.Context, projectID string) ([]Member, error)
}

// Transactor runs fn in one store transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work per key.
type Locker interface {
	Lock(key string) func()
}
