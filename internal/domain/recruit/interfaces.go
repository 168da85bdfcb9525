package recruit

import (
	"context"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
)

// Directory searches the freelancer pool.
type Directory interface {
	SearchFreelancers(ctx context.Context, query profile.SearchQuery) ([]profile.Profile, error)
}

// ProjectRepository reads projects and writes invitations.
type ProjectRepository interface {
	Get(ctx context.Context, id string) (*project.Project, error)
	Update(ctx context.Context, proj *project.Project) error
	UpsertMember(ctx context.Context, m *project.Member) error
	// ListExpiredInvitations returns checking members selected at or before cutoff.
	ListExpiredInvitations(ctx context.Context, cutoff time.Time) ([]project.Member, error)
	// ExpireMember flips a checking member selected at or before cutoff to
	// not_accepted; repository.ErrConflict if it no longer qualifies.
	ExpireMember(ctx context.Context, projectID, freelancerID string, cutoff, at time.Time) error
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
