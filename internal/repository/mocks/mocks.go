package mocks

import (
	"context"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/stretchr/testify/mock"
)

// Tx runs the callback directly, without a store transaction.
type Tx struct{}

func (Tx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ProjectRepository is a mock for the project store.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	args := m.Called(ctx, id)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) List(ctx context.Context, opts project.ListOptions) ([]project.Project, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]project.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ProjectRepository) UpsertMember(ctx context.Context, member *project.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *ProjectRepository) DeleteMember(ctx context.Context, projectID, freelancerID string) error {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Error(0)
}

func (m *ProjectRepository) SetLead(ctx context.Context, projectID, freelancerID string) error {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Error(0)
}

func (m *ProjectRepository) ListExpiredInvitations(ctx context.Context, cutoff time.Time) ([]project.Member, error) {
	args := m.Called(ctx, cutoff)
	if list, ok := args.Get(0).([]project.Member); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) ExpireMember(ctx context.Context, projectID, freelancerID string, cutoff, at time.Time) error {
	args := m.Called(ctx, projectID, freelancerID, cutoff, at)
	return args.Error(0)
}

// TaskRepository is a mock for the task store.
type TaskRepository struct {
	mock.Mock
}

func (m *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *TaskRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*task.Task); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]task.Task, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]task.Task); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TaskRepository) Update(ctx context.Context, t *task.Task, from task.Status) error {
	args := m.Called(ctx, t, from)
	return args.Error(0)
}

func (m *TaskRepository) CountOpen(ctx context.Context, projectID, freelancerID string) (int, error) {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Int(0), args.Error(1)
}

func (m *TaskRepository) ApprovedTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error) {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

// PayoutRepository is a mock for the payout store.
type PayoutRepository struct {
	mock.Mock
}

func (m *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *PayoutRepository) Get(ctx context.Context, id string) (*payout.Payout, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*payout.Payout); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PayoutRepository) ListByProject(ctx context.Context, projectID string) ([]payout.Payout, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]payout.Payout); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PayoutRepository) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]payout.Payout, error) {
	args := m.Called(ctx, cutoff, limit)
	if list, ok := args.Get(0).([]payout.Payout); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PayoutRepository) Release(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *PayoutRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *PayoutRepository) PayoutTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error) {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *PayoutRepository) CountLocked(ctx context.Context, projectID, freelancerID string) (int, error) {
	args := m.Called(ctx, projectID, freelancerID)
	return args.Int(0), args.Error(1)
}

// Reservations is a mock for budget.TaskReservations and budget.PayoutReservations.
type Reservations struct {
	mock.Mock
}

func (m *Reservations) ActiveTaskTotal(ctx context.Context, projectID string) (ledger.Money, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *Reservations) ActivePayoutTotal(ctx context.Context, projectID string) (ledger.Money, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

// Budget is a mock for the budget service.
type Budget struct {
	mock.Mock
}

func (m *Budget) Committed(ctx context.Context, projectID string) (ledger.Money, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *Budget) CanReserve(ctx context.Context, projectID string, total, additional ledger.Money) error {
	args := m.Called(ctx, projectID, total, additional)
	return args.Error(0)
}

func (m *Budget) Summarize(ctx context.Context, projectID string, total ledger.Money) (budget.Summary, error) {
	args := m.Called(ctx, projectID, total)
	return args.Get(0).(budget.Summary), args.Error(1)
}

// Balances is a mock for ledger.Balances.
type Balances struct {
	mock.Mock
}

func (m *Balances) GetBalance(ctx context.Context, userID string) (ledger.Money, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *Balances) AdjustBalance(ctx context.Context, userID string, delta ledger.Money, key, reason string) (ledger.Money, error) {
	args := m.Called(ctx, userID, delta, key, reason)
	return args.Get(0).(ledger.Money), args.Error(1)
}

// AdjustmentRepository is a mock for ledger.Repository.
type AdjustmentRepository struct {
	mock.Mock
}

func (m *AdjustmentRepository) Create(ctx context.Context, adj *ledger.Adjustment) error {
	args := m.Called(ctx, adj)
	return args.Error(0)
}

func (m *AdjustmentRepository) GetByKey(ctx context.Context, key string) (*ledger.Adjustment, error) {
	args := m.Called(ctx, key)
	if adj, ok := args.Get(0).(*ledger.Adjustment); ok {
		return adj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AdjustmentRepository) MarkApplied(ctx context.Context, key string, at time.Time) error {
	args := m.Called(ctx, key, at)
	return args.Error(0)
}

func (m *AdjustmentRepository) MarkFailed(ctx context.Context, key string, reason string) error {
	args := m.Called(ctx, key, reason)
	return args.Error(0)
}

func (m *AdjustmentRepository) ListPending(ctx context.Context, limit int) ([]ledger.Adjustment, error) {
	args := m.Called(ctx, limit)
	if list, ok := args.Get(0).([]ledger.Adjustment); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Ledger is a mock for the ledger service.
type Ledger struct {
	mock.Mock
}

func (m *Ledger) Debit(ctx context.Context, userID string, amount ledger.Money, key, reason, projectID string) (*ledger.Adjustment, error) {
	args := m.Called(ctx, userID, amount, key, reason, projectID)
	if adj, ok := args.Get(0).(*ledger.Adjustment); ok {
		return adj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Ledger) Reverse(ctx context.Context, debit *ledger.Adjustment) error {
	args := m.Called(ctx, debit)
	return args.Error(0)
}

func (m *Ledger) Credit(ctx context.Context, userID string, amount ledger.Money, key, reason, projectID string) (*ledger.Adjustment, error) {
	args := m.Called(ctx, userID, amount, key, reason, projectID)
	if adj, ok := args.Get(0).(*ledger.Adjustment); ok {
		return adj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Ledger) Refund(ctx context.Context, userID string, gross ledger.Money, rate ledger.TaxRate, key, reason, projectID string) (*ledger.Adjustment, error) {
	args := m.Called(ctx, userID, gross, rate, key, reason, projectID)
	if adj, ok := args.Get(0).(*ledger.Adjustment); ok {
		return adj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Ledger) Settle(ctx context.Context, adjs ...*ledger.Adjustment) error {
	args := m.Called(ctx, adjs)
	return args.Error(0)
}

// ActivityRepository is a mock for the audit log store.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if entries, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// Directory is a mock for the user directory.
type Directory struct {
	mock.Mock
}

func (m *Directory) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	args := m.Called(ctx, userID)
	if p, ok := args.Get(0).(*profile.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Directory) SearchFreelancers(ctx context.Context, query profile.SearchQuery) ([]profile.Profile, error) {
	args := m.Called(ctx, query)
	if list, ok := args.Get(0).([]profile.Profile); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Directory) RecordCompletion(ctx context.Context, userID string, rating float64, completed int) error {
	args := m.Called(ctx, userID, rating, completed)
	return args.Error(0)
}

// Notifier is a mock for user notifications.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	args := m.Called(ctx, userID, event, payload)
	return args.Error(0)
}

// Recruiter is a mock for project.Recruiter.
type Recruiter struct {
	mock.Mock
}

func (m *Recruiter) Fill(ctx context.Context, projectID string) ([]project.Member, error) {
	args := m.Called(ctx, projectID)
	if list, ok := args.Get(0).([]project.Member); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ReleaseScheduler is a mock for payout.ReleaseScheduler.
type ReleaseScheduler struct {
	mock.Mock
}

func (m *ReleaseScheduler) ScheduleRelease(payoutID string, at time.Time) error {
	args := m.Called(payoutID, at)
	return args.Error(0)
}
