package payout_test

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/ganot/teamescrow/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	client     = access.Actor{ID: "client1", Role: access.RoleClient}
	freelancer = access.Actor{ID: "f1", Role: access.RoleFreelancer}
)

type fixture struct {
	payouts   *mocks.PayoutRepository
	tasks     *mocks.TaskRepository
	projects  *mocks.ProjectRepository
	budget    *mocks.Budget
	ledger    *mocks.Ledger
	scheduler *mocks.ReleaseScheduler
	svc       *payout.Service
}

func newFixture() *fixture {
	f := &fixture{
		payouts:   &mocks.PayoutRepository{},
		tasks:     &mocks.TaskRepository{},
		projects:  &mocks.ProjectRepository{},
		budget:    &mocks.Budget{},
		ledger:    &mocks.Ledger{},
		scheduler: &mocks.ReleaseScheduler{},
	}
	activities := &mocks.ActivityRepository{}
	activities.On("Log", mock.Anything, mock.Anything).Return(nil)
	notifier := &mocks.Notifier{}
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.svc = payout.NewService(payout.Deps{
		Payouts:    f.payouts,
		Earnings:   f.tasks,
		Projects:   f.projects,
		Budget:     f.budget,
		Ledger:     f.ledger,
		Activities: activities,
		Notifier:   notifier,
		Tx:         mocks.Tx{},
		Locks:      keylock.New(),
	}, nil)
	f.svc.SetReleaseScheduler(f.scheduler)
	f.projects.On("Get", mock.Anything, "p1").Return(&project.Project{
		ID:       "p1",
		ClientID: client.ID,
		Budget:   ledger.Units(2000),
		Status:   project.StatusWorkStarted,
		Members: []project.Member{
			{ProjectID: "p1", FreelancerID: "f1", Role: "backend", Status: project.MemberAccepted},
		},
	}, nil)
	return f
}

func TestPayoutService_CreateFixedLocksAndSchedules(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.budget.On("CanReserve", ctx, "p1", ledger.Units(2000), ledger.Units(300)).Return(nil)
	f.payouts.On("Create", ctx, mock.Anything).Return(nil)
	f.scheduler.On("ScheduleRelease", mock.Anything, mock.Anything).Return(nil)

	p, err := f.svc.Create(ctx, client, payout.CreateRequest{
		ProjectID:    "p1",
		FreelancerID: "f1",
		Amount:       ledger.Units(300),
		Type:         payout.TypeFixed,
	})
	require.NoError(t, err)
	require.Equal(t, payout.StatusLocked, p.Status)
	f.scheduler.AssertCalled(t, "ScheduleRelease", p.ID, p.CreatedAt.Add(payout.DefaultReleaseDelay))
}

func TestPayoutService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Create(ctx, client, payout.CreateRequest{ProjectID: "p1", FreelancerID: "f1", Amount: 0, Type: payout.TypeFixed})
	require.ErrorIs(t, err, payout.ErrInvalidInput)

	_, err = f.svc.Create(ctx, client, payout.CreateRequest{ProjectID: "p1", FreelancerID: "f1", Amount: 100, Type: "bonus"})
	require.ErrorIs(t, err, payout.ErrInvalidInput)

	_, err = f.svc.Create(ctx, freelancer, payout.CreateRequest{ProjectID: "p1", FreelancerID: "f1", Amount: 100, Type: payout.TypeFixed})
	require.ErrorIs(t, err, access.ErrUnauthorized)

	_, err = f.svc.Create(ctx, client, payout.CreateRequest{ProjectID: "p1", FreelancerID: "f9", Amount: 100, Type: payout.TypeFixed})
	require.ErrorIs(t, err, payout.ErrNotTeamMember)
}

func TestPayoutService_WithdrawalLimitedToEarnings(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.tasks.On("ApprovedTotal", ctx, "p1", "f1").Return(ledger.Units(500), nil)
	f.payouts.On("PayoutTotal", ctx, "p1", "f1").Return(ledger.Units(300), nil)

	_, err := f.svc.Create(ctx, freelancer, payout.CreateRequest{
		ProjectID:    "p1",
		FreelancerID: "f1",
		Amount:       ledger.Units(250),
		Type:         payout.TypeWithdrawal,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	f.payouts.On("Create", ctx, mock.Anything).Return(nil)
	f.scheduler.On("ScheduleRelease", mock.Anything, mock.Anything).Return(nil)
	p, err := f.svc.Create(ctx, freelancer, payout.CreateRequest{
		ProjectID:    "p1",
		FreelancerID: "f1",
		Amount:       ledger.Units(200),
		Type:         payout.TypeWithdrawal,
	})
	require.NoError(t, err)
	require.Equal(t, payout.TypeWithdrawal, p.Type)

	// Approved task amounts are already reserved; no second reservation.
	f.budget.AssertNotCalled(t, "CanReserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func closedProject(f *fixture, status project.Status) {
	f.projects.On("Get", mock.Anything, "p2").Return(&project.Project{
		ID:       "p2",
		ClientID: client.ID,
		Budget:   ledger.Units(300),
		Status:   status,
		Members: []project.Member{
			{ProjectID: "p2", FreelancerID: "f1", Role: "backend", Status: project.MemberAccepted},
		},
	}, nil)
}

func TestPayoutService_ClosedProjectKeepsFixedReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	closedProject(f, project.StatusCompleted)

	_, err := f.svc.Create(ctx, client, payout.CreateRequest{
		ProjectID:    "p2",
		FreelancerID: "f1",
		Amount:       ledger.Units(100),
		Type:         payout.TypeFixed,
	})
	require.ErrorIs(t, err, payout.ErrProjectClosed)

	locked := &payout.Payout{ID: "po4", ProjectID: "p2", FreelancerID: "f1", Amount: ledger.Units(300), Type: payout.TypeFixed, Status: payout.StatusLocked}
	f.payouts.On("Get", ctx, "po4").Return(locked, nil)

	_, err = f.svc.SetStatus(ctx, client, "po4", payout.StatusCancelled)
	require.ErrorIs(t, err, payout.ErrProjectClosed)
	f.payouts.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)

	// Releasing still pays the member.
	f.payouts.On("Release", ctx, "po4", mock.Anything).Return(nil)
	credit := &ledger.Adjustment{Key: payout.ReleaseKey("po4"), UserID: "f1", Delta: ledger.Units(300)}
	f.ledger.On("Credit", ctx, "f1", ledger.Units(300), payout.ReleaseKey("po4"), mock.Anything, "p2").Return(credit, nil)
	f.ledger.On("Settle", ctx, []*ledger.Adjustment{credit}).Return(nil)
	p, err := f.svc.SetStatus(ctx, client, "po4", payout.StatusReleased)
	require.NoError(t, err)
	require.Equal(t, payout.StatusReleased, p.Status)
}

func TestPayoutService_WithdrawalAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	closedProject(f, project.StatusCompleted)

	f.tasks.On("ApprovedTotal", ctx, "p2", "f1").Return(ledger.Units(300), nil)
	f.payouts.On("PayoutTotal", ctx, "p2", "f1").Return(ledger.Money(0), nil)
	f.payouts.On("Create", ctx, mock.Anything).Return(nil)
	f.scheduler.On("ScheduleRelease", mock.Anything, mock.Anything).Return(nil)

	p, err := f.svc.Create(ctx, freelancer, payout.CreateRequest{
		ProjectID:    "p2",
		FreelancerID: "f1",
		Amount:       ledger.Units(300),
		Type:         payout.TypeWithdrawal,
	})
	require.NoError(t, err)
	require.Equal(t, payout.StatusLocked, p.Status)
	f.budget.AssertNotCalled(t, "CanReserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutService_ReleaseIfLockedCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	locked := &payout.Payout{ID: "po1", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(300), Status: payout.StatusLocked}
	f.payouts.On("Get", ctx, "po1").Return(locked, nil).Times(2)
	f.payouts.On("Release", ctx, "po1", mock.Anything).Return(nil).Once()
	credit := &ledger.Adjustment{Key: payout.ReleaseKey("po1"), UserID: "f1", Delta: ledger.Units(300)}
	f.ledger.On("Credit", ctx, "f1", ledger.Units(300), payout.ReleaseKey("po1"), mock.Anything, "p1").Return(credit, nil).Once()
	f.ledger.On("Settle", ctx, []*ledger.Adjustment{credit}).Return(nil).Once()

	ok, err := f.svc.ReleaseIfLocked(ctx, "po1")
	require.NoError(t, err)
	require.True(t, ok)

	released := *locked
	released.Status = payout.StatusReleased
	f.payouts.On("Get", ctx, "po1").Return(&released, nil)

	ok, err = f.svc.ReleaseIfLocked(ctx, "po1")
	require.NoError(t, err)
	require.False(t, ok)
	f.ledger.AssertNumberOfCalls(t, "Credit", 1)
}

func TestPayoutService_ReleaseLosesRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	locked := &payout.Payout{ID: "po1", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(300), Status: payout.StatusLocked}
	f.payouts.On("Get", ctx, "po1").Return(locked, nil)
	f.payouts.On("Release", ctx, "po1", mock.Anything).Return(repository.ErrConflict)

	ok, err := f.svc.ReleaseIfLocked(ctx, "po1")
	require.NoError(t, err)
	require.False(t, ok)
	f.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutService_SetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	cancelled := &payout.Payout{ID: "po2", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(100), Status: payout.StatusCancelled}
	f.payouts.On("Get", ctx, "po2").Return(cancelled, nil)

	_, err := f.svc.SetStatus(ctx, client, "po2", payout.StatusReleased)
	require.ErrorIs(t, err, payout.ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, client, "po2", payout.StatusLocked)
	require.ErrorIs(t, err, payout.ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, freelancer, "po2", payout.StatusCancelled)
	require.ErrorIs(t, err, access.ErrUnauthorized)

	locked := &payout.Payout{ID: "po3", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(100), Status: payout.StatusLocked}
	f.payouts.On("Get", ctx, "po3").Return(locked, nil)
	f.payouts.On("Cancel", ctx, "po3", mock.Anything).Return(nil)
	p, err := f.svc.SetStatus(ctx, client, "po3", payout.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, payout.StatusCancelled, p.Status)
	require.NotNil(t, p.CancelledAt)
	f.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutService_ReleaseDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := []payout.Payout{
		{ID: "a", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(10), Status: payout.StatusLocked},
		{ID: "b", ProjectID: "p1", FreelancerID: "f1", Amount: ledger.Units(20), Status: payout.StatusLocked},
	}
	f.payouts.On("ListDue", ctx, now.Add(-payout.DefaultReleaseDelay), mock.Anything).Return(due, nil)
	f.payouts.On("Get", ctx, "a").Return(&due[0], nil)
	f.payouts.On("Get", ctx, "b").Return(&due[1], nil)
	f.payouts.On("Release", ctx, "a", mock.Anything).Return(nil)
	f.payouts.On("Release", ctx, "b", mock.Anything).Return(repository.ErrConflict)
	f.ledger.On("Credit", ctx, "f1", ledger.Units(10), payout.ReleaseKey("a"), mock.Anything, "p1").Return(&ledger.Adjustment{Key: payout.ReleaseKey("a")}, nil)
	f.ledger.On("Settle", ctx, mock.Anything).Return(nil)

	n, err := f.svc.ReleaseDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
