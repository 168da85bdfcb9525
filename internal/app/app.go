// Package app assembles the escrow engine from its stores and adapters.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/recruit"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/ganot/teamescrow/internal/escrow"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/notify"
	"github.com/ganot/teamescrow/internal/sqlite"
	"github.com/ganot/teamescrow/internal/transport"
)

// Directory is the marketplace user directory: balances and profiles.
type Directory interface {
	ledger.Balances
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	SearchFreelancers(ctx context.Context, query profile.SearchQuery) ([]profile.Profile, error)
	RecordCompletion(ctx context.Context, userID string, rating float64, completed int) error
}

var (
	_ budget.TaskReservations   = (*sqlite.TaskRepository)(nil)
	_ budget.PayoutReservations = (*sqlite.PayoutRepository)(nil)
	_ payout.EarningsReader     = (*sqlite.TaskRepository)(nil)
	_ project.TaskCounter       = (*sqlite.TaskRepository)(nil)
	_ project.PayoutCounter     = (*sqlite.PayoutRepository)(nil)
	_ recruit.ProjectRepository = (*sqlite.ProjectRepository)(nil)
	_ ledger.Repository         = (*sqlite.AdjustmentRepository)(nil)
	_ project.Recruiter         = (*recruit.Service)(nil)
	_ payout.ReleaseScheduler   = (*escrow.Scheduler)(nil)
	_ escrow.PayoutReleaser     = (*payout.Service)(nil)
)

// Options configures New.
type Options struct {
	DB            *sqlite.DB
	Directory     Directory
	Notifier      notify.Notifier
	Reporter      escrow.Reporter
	ReleaseDelay  time.Duration
	InvitationTTL time.Duration
	MaxInvites    int
	Escrow        escrow.Config
	Logger        *slog.Logger
}

// App holds the wired services.
type App struct {
	Ledger    *ledger.Service
	Budget    *budget.Service
	Projects  *project.Service
	Tasks     *task.Service
	Payouts   *payout.Service
	Recruiter *recruit.Service
	Activity  *activity.Service
	Scheduler *escrow.Scheduler
	Locks     *keylock.Locker
}

// New wires repositories, services and the escrow scheduler. The scheduler
// is created but not started.
func New(opts Options) (*App, error) {
	if opts.DB == nil || opts.Directory == nil {
		return nil, fmt.Errorf("database and directory are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}

	projectsRepo := sqlite.NewProjectRepository(opts.DB)
	tasksRepo := sqlite.NewTaskRepository(opts.DB)
	payoutsRepo := sqlite.NewPayoutRepository(opts.DB)
	adjustmentsRepo := sqlite.NewAdjustmentRepository(opts.DB)
	activityRepo := sqlite.NewActivityRepository(opts.DB)
	locks := keylock.New()

	ledgerSvc := ledger.NewService(opts.Directory, adjustmentsRepo, logger.With("component", "ledger"))
	budgetSvc := budget.NewService(tasksRepo, payoutsRepo)

	recruitSvc := recruit.NewService(recruit.Deps{
		Projects:      projectsRepo,
		Directory:     opts.Directory,
		Activities:    activityRepo,
		Notifier:      notifier,
		Tx:            opts.DB,
		Locks:         locks,
		MaxInvites:    opts.MaxInvites,
		InvitationTTL: opts.InvitationTTL,
	}, logger.With("component", "recruit"))

	projectSvc := project.NewService(project.Deps{
		Projects:      projectsRepo,
		Tasks:         tasksRepo,
		Payouts:       payoutsRepo,
		Budget:        budgetSvc,
		Ledger:        ledgerSvc,
		Activities:    activityRepo,
		Notifier:      notifier,
		Profiles:      opts.Directory,
		Recruiter:     recruitSvc,
		Tx:            opts.DB,
		Locks:         locks,
		InvitationTTL: opts.InvitationTTL,
	}, logger.With("component", "project"))

	taskSvc := task.NewService(task.Deps{
		Tasks:      tasksRepo,
		Projects:   projectsRepo,
		Budget:     budgetSvc,
		Ledger:     ledgerSvc,
		Profiles:   opts.Directory,
		Activities: activityRepo,
		Notifier:   notifier,
		Tx:         opts.DB,
		Locks:      locks,
	}, logger.With("component", "task"))

	payoutSvc := payout.NewService(payout.Deps{
		Payouts:      payoutsRepo,
		Earnings:     tasksRepo,
		Projects:     projectsRepo,
		Budget:       budgetSvc,
		Ledger:       ledgerSvc,
		Activities:   activityRepo,
		Notifier:     notifier,
		Tx:           opts.DB,
		Locks:        locks,
		ReleaseDelay: opts.ReleaseDelay,
	}, logger.With("component", "payout"))

	scheduler, err := escrow.New(escrow.Deps{
		Payouts:     payoutSvc,
		Ledger:      ledgerSvc,
		Invitations: recruitSvc,
		Reporter:    opts.Reporter,
	}, opts.Escrow, logger.With("component", "escrow"))
	if err != nil {
		return nil, err
	}
	payoutSvc.SetReleaseScheduler(scheduler)

	return &App{
		Ledger:    ledgerSvc,
		Budget:    budgetSvc,
		Projects:  projectSvc,
		Tasks:     taskSvc,
		Payouts:   payoutSvc,
		Recruiter: recruitSvc,
		Activity:  activity.NewService(activityRepo, logger.With("component", "activity")),
		Scheduler: scheduler,
		Locks:     locks,
	}, nil
}

// Services returns the HTTP-facing view of the app.
func (a *App) Services() transport.Services {
	return transport.Services{
		Projects:   a.Projects,
		Tasks:      a.Tasks,
		Payouts:    a.Payouts,
		Recruiter:  a.Recruiter,
		Activities: a.Activity,
	}
}
