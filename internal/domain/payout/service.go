package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultReleaseDelay is how long a payout stays locked before auto release.
const DefaultReleaseDelay = 10 * time.Minute

// Notification events emitted by the payout service.
const (
	EventPayoutCreated   = "payout.created"
	EventPayoutReleased  = "payout.released"
	EventPayoutCancelled = "payout.cancelled"
)

const dueBatchSize = 200

var validate = validator.New()

// Deps are the collaborators of the payout service.
type Deps struct {
	Payouts      Repository
	Earnings     EarningsReader
	Projects     ProjectReader
	Budget       BudgetChecker
	Ledger       Ledger
	Activities   ActivityRepository
	Notifier     Notifier
	Tx           Transactor
	Locks        Locker
	ReleaseDelay time.Duration
}

// Service manages escrowed payouts.
type Service struct {
	payouts    Repository
	earnings   EarningsReader
	projects   ProjectReader
	budget     BudgetChecker
	ledger     Ledger
	activities ActivityRepository
	notifier   Notifier
	tx         Transactor
	locks      Locker
	delay      time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	scheduler ReleaseScheduler
}

// NewService creates a new payout service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	delay := deps.ReleaseDelay
	if delay <= 0 {
		delay = DefaultReleaseDelay
	}
	return &Service{
		payouts:    deps.Payouts,
		earnings:   deps.Earnings,
		projects:   deps.Projects,
		budget:     deps.Budget,
		ledger:     deps.Ledger,
		activities: deps.Activities,
		notifier:   deps.Notifier,
		tx:         deps.Tx,
		locks:      deps.Locks,
		delay:      delay,
		logger:     logger,
	}
}

// SetReleaseScheduler installs the timer used for delayed releases. The
// scheduler itself calls back into the service, so it is wired after
// construction.
func (s *Service) SetReleaseScheduler(rs ReleaseScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = rs
}

// ReleaseDelay returns how long payouts stay locked.
func (s *Service) ReleaseDelay() time.Duration {
	return s.delay
}

// CreateRequest describes a new payout.
type CreateRequest struct {
	ProjectID      string       `json:"project_id" validate:"required"`
	FreelancerID   string       `json:"freelancer_id" validate:"required"`
	Amount         ledger.Money `json:"amount" validate:"gt=0"`
	Description    string       `json:"description,omitempty" validate:"max=1000"`
	Type           Type         `json:"type" validate:"required,oneof=fixed withdrawal"`
	PaymentMethod  string       `json:"payment_method,omitempty" validate:"max=100"`
	PaymentDetails string       `json:"payment_details,omitempty" validate:"max=1000"`
}

// Create locks amount in escrow for a team member and schedules its
// release. Fixed payouts come from the client; withdrawals are requested by
// the freelancer against approved earnings.
func (s *Service) Create(ctx context.Context, actor access.Actor, req CreateRequest) (*Payout, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := s.locks.Lock(keylock.ProjectKey(req.ProjectID))
	defer unlock()

	proj, err := s.loadProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	switch req.Type {
	case TypeFixed:
		if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
			return nil, err
		}
	case TypeWithdrawal:
		if !actor.Is(req.FreelancerID) {
			return nil, access.ErrUnauthorized
		}
	}
	member, ok := proj.Member(req.FreelancerID)
	if !ok || member.Status != project.MemberAccepted {
		return nil, ErrNotTeamMember
	}

	// Withdrawals draw on approved task amounts, which are already reserved.
	switch req.Type {
	case TypeWithdrawal:
		available, err := s.Available(ctx, proj.ID, req.FreelancerID)
		if err != nil {
			return nil, err
		}
		if req.Amount > available {
			return nil, fmt.Errorf("%w: available %s, requested %s", ledger.ErrInsufficientBalance, available, req.Amount)
		}
	case TypeFixed:
		if proj.Status.Terminal() {
			return nil, ErrProjectClosed
		}
		if err := s.budget.CanReserve(ctx, proj.ID, proj.Budget, req.Amount); err != nil {
			return nil, err
		}
	}

	p := &Payout{
		ID:             uuid.NewString(),
		ProjectID:      proj.ID,
		FreelancerID:   req.FreelancerID,
		Amount:         req.Amount,
		Description:    req.Description,
		Type:           req.Type,
		Status:         StatusLocked,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
		CreatedAt:      time.Now(),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.payouts.Create(ctx, p); err != nil {
			return fmt.Errorf("creating payout: %w", err)
		}
		return s.log(ctx, actor.ID, proj.ID, activity.TypePayoutCreated,
			fmt.Sprintf("%s payout %s of %s locked for %s", p.Type, p.ID, p.Amount, p.FreelancerID), p.Amount)
	})
	if err != nil {
		return nil, err
	}

	s.schedule(p)
	s.notify(ctx, p.FreelancerID, EventPayoutCreated, map[string]any{
		"project_id":  p.ProjectID,
		"payout_id":   p.ID,
		"amount":      p.Amount,
		"release_at":  p.CreatedAt.Add(s.delay),
		"payout_type": p.Type,
	})
	return p, nil
}

// Available is what a member may still withdraw: approved task amounts
// less payouts that are not cancelled.
func (s *Service) Available(ctx context.Context, projectID, freelancerID string) (ledger.Money, error) {
	earned, err := s.earnings.ApprovedTotal(ctx, projectID, freelancerID)
	if err != nil {
		return 0, fmt.Errorf("summing approved tasks: %w", err)
	}
	paid, err := s.payouts.PayoutTotal(ctx, projectID, freelancerID)
	if err != nil {
		return 0, fmt.Errorf("summing payouts: %w", err)
	}
	return earned - paid, nil
}

// Get fetches a payout visible to the actor.
func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*Payout, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	proj, err := s.loadProject(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Is(proj.ClientID) && !actor.Is(p.FreelancerID) {
		return nil, access.ErrUnauthorized
	}
	return p, nil
}

// List returns a project's payouts. Freelancers only see their own.
func (s *Service) List(ctx context.Context, actor access.Actor, projectID string) ([]Payout, error) {
	proj, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.payouts.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing payouts: %w", err)
	}
	if actor.IsAdmin() || actor.Is(proj.ClientID) {
		return payouts, nil
	}
	if _, ok := proj.Member(actor.ID); !ok {
		return nil, access.ErrUnauthorized
	}
	own := payouts[:0]
	for _, p := range payouts {
		if p.FreelancerID == actor.ID {
			own = append(own, p)
		}
	}
	return own, nil
}

// SetStatus releases or cancels a locked payout on behalf of the project
// client or an admin.
func (s *Service) SetStatus(ctx context.Context, actor access.Actor, id string, status Status) (*Payout, error) {
	if status != StatusReleased && status != StatusCancelled {
		return nil, fmt.Errorf("%w: target must be released or cancelled", ErrInvalidTransition)
	}
	peek, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(keylock.ProjectKey(peek.ProjectID))
	defer unlock()

	proj, err := s.loadProject(ctx, peek.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	// A closed project's budget is pinned to its commitments, so a freed
	// fixed reservation would have nowhere to go.
	if status == StatusCancelled && peek.Type == TypeFixed && proj.Status.Terminal() {
		return nil, ErrProjectClosed
	}

	var p *Payout
	if status == StatusReleased {
		p, err = s.release(ctx, actor.ID, id)
	} else {
		p, err = s.cancel(ctx, actor.ID, id)
	}
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrInvalidTransition
	}
	return p, err
}

// ReleaseIfLocked releases the payout unless it already left locked. It is
// safe to call from timers, sweeps and retries concurrently.
func (s *Service) ReleaseIfLocked(ctx context.Context, id string) (bool, error) {
	peek, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if peek.Status != StatusLocked {
		return false, nil
	}

	unlock := s.locks.Lock(keylock.ProjectKey(peek.ProjectID))
	defer unlock()

	if _, err := s.release(ctx, access.System.ID, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseDue releases every locked payout older than the release delay.
// Failures are logged and skipped.
func (s *Service) ReleaseDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.payouts.ListDue(ctx, now.Add(-s.delay), dueBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing due payouts: %w", err)
	}

	released := 0
	var errs []error
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		ok, err := s.ReleaseIfLocked(ctx, p.ID)
		if err != nil {
			s.logger.Error("releasing due payout", "payout_id", p.ID, "project_id", p.ProjectID, "error", err)
			errs = append(errs, fmt.Errorf("payout %s: %w", p.ID, err))
			continue
		}
		if ok {
			released++
		}
	}
	return released, errors.Join(errs...)
}

// release must be called with the project lock held.
func (s *Service) release(ctx context.Context, actorID, id string) (*Payout, error) {
	var (
		p      *Payout
		credit *ledger.Adjustment
	)
	now := time.Now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.load(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusLocked {
			return repository.ErrConflict
		}
		if err := s.payouts.Release(ctx, id, now); err != nil {
			return err
		}
		credit, err = s.ledger.Credit(ctx, p.FreelancerID, p.Amount, ReleaseKey(p.ID), "payout released: "+p.Description, p.ProjectID)
		if err != nil {
			return err
		}
		return s.log(ctx, actorID, p.ProjectID, activity.TypePayoutReleased,
			fmt.Sprintf("released %s to %s (payout %s)", p.Amount, p.FreelancerID, p.ID), p.Amount)
	})
	if err != nil {
		return nil, err
	}

	p.Status = StatusReleased
	p.ReleasedAt = &now
	if err := s.ledger.Settle(ctx, credit); err != nil {
		s.logger.Warn("settlement deferred to sweep", "payout_id", p.ID, "error", err)
	}
	s.logger.Info("payout released", "payout_id", p.ID, "project_id", p.ProjectID, "amount", p.Amount.String())
	s.notify(ctx, p.FreelancerID, EventPayoutReleased, map[string]any{
		"project_id": p.ProjectID,
		"payout_id":  p.ID,
		"amount":     p.Amount,
	})
	return p, nil
}

// cancel must be called with the project lock held.
func (s *Service) cancel(ctx context.Context, actorID, id string) (*Payout, error) {
	var p *Payout
	now := time.Now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.load(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusLocked {
			return repository.ErrConflict
		}
		if err := s.payouts.Cancel(ctx, id, now); err != nil {
			return err
		}
		return s.log(ctx, actorID, p.ProjectID, activity.TypePayoutCancelled,
			fmt.Sprintf("cancelled payout %s of %s", p.ID, p.Amount), p.Amount)
	})
	if err != nil {
		return nil, err
	}

	p.Status = StatusCancelled
	p.CancelledAt = &now
	s.notify(ctx, p.FreelancerID, EventPayoutCancelled, map[string]any{
		"project_id": p.ProjectID,
		"payout_id":  p.ID,
		"amount":     p.Amount,
	})
	return p, nil
}

func (s *Service) schedule(p *Payout) {
	s.mu.RLock()
	rs := s.scheduler
	s.mu.RUnlock()
	if rs == nil {
		return
	}
	if err := rs.ScheduleRelease(p.ID, p.CreatedAt.Add(s.delay)); err != nil {
		// The sweep picks it up.
		s.logger.Warn("scheduling payout release", "payout_id", p.ID, "error", err)
	}
}

func (s *Service) load(ctx context.Context, id string) (*Payout, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	p, err := s.payouts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("getting payout: %w", err)
	}
	return p, nil
}

func (s *Service) loadProject(ctx context.Context, id string) (*project.Project, error) {
	proj, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

func (s *Service) log(ctx context.Context, actorID, projectID string, typ activity.ActivityType, summary string, amount ledger.Money) error {
	if s.activities == nil {
		return nil
	}
	err := s.activities.Log(ctx, &activity.ActivityEntry{
		ProjectID:    projectID,
		ActorID:      actorID,
		ActivityType: typ,
		Summary:      summary,
		Amount:       amount,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID, event string, payload map[string]any) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, userID, event, payload); err != nil {
		s.logger.Warn("notification failed", "user_id", userID, "event", event, "error", err)
	}
}
