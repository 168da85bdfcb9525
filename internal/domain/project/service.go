package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/google/uuid"
)

// Notification events emitted by the project service.
const (
	EventProjectCreated    = "project.created"
	EventBudgetChanged     = "project.budget_changed"
	EventRefund            = "project.refund"
	EventStatusChanged     = "project.status_changed"
	EventProjectLaunched   = "project.launched"
	EventInvitation        = "team.invitation"
	EventInvitationAnswer  = "team.invitation_answered"
	EventInvitationExpired = "team.invitation_expired"
	EventMemberRemoved     = "team.member_removed"
	EventMemberPromoted    = "team.member_promoted"
)

// DefaultInvitationTTL is how long an invitation waits for an answer.
const DefaultInvitationTTL = 24 * time.Hour

// Deps are the collaborators of the project service.
type Deps struct {
	Projects      Repository
	Tasks         TaskCounter
	Payouts       PayoutCounter
	Budget        BudgetReader
	Ledger        Ledger
	Activities    ActivityRepository
	Notifier      Notifier
	Profiles      ProfileReader
	Recruiter     Recruiter
	Tx            Transactor
	Locks         Locker
	InvitationTTL time.Duration
}

// Service handles the project lifecycle and team membership.
type Service struct {
	repo          Repository
	tasks         TaskCounter
	payouts       PayoutCounter
	budget        BudgetReader
	ledger        Ledger
	activities    ActivityRepository
	notifier      Notifier
	profiles      ProfileReader
	recruiter     Recruiter
	tx            Transactor
	locks         Locker
	invitationTTL time.Duration
	logger        *slog.Logger
}

// NewService creates a new project service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := deps.InvitationTTL
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &Service{
		repo:          deps.Projects,
		tasks:         deps.Tasks,
		payouts:       deps.Payouts,
		budget:        deps.Budget,
		ledger:        deps.Ledger,
		activities:    deps.Activities,
		notifier:      deps.Notifier,
		profiles:      deps.Profiles,
		recruiter:     deps.Recruiter,
		tx:            deps.Tx,
		locks:         deps.Locks,
		invitationTTL: ttl,
		logger:        logger,
	}
}

// CreateRequest defines project creation inputs. ClientID is only read when
// an admin creates on behalf of a client.
type CreateRequest struct {
	ClientID       string        `json:"client_id,omitempty"`
	Title          string        `json:"title" validate:"required,max=200"`
	Description    string        `json:"description,omitempty" validate:"max=5000"`
	Budget         ledger.Money  `json:"budget" validate:"gt=0"`
	TeamSize       int           `json:"team_size" validate:"gte=1"`
	Roles          []Role        `json:"roles" validate:"required,min=1,dive"`
	SkillsRequired []string      `json:"skills_required,omitempty"`
	SelectionType  SelectionType `json:"selection_type,omitempty" validate:"omitempty,oneof=manual auto mixed"`
	Timeline       Timeline      `json:"timeline"`
}

// UpdateRequest is a partial project update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title          *string        `json:"title,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Budget         *ledger.Money  `json:"budget,omitempty"`
	TeamSize       *int           `json:"team_size,omitempty"`
	Roles          []Role         `json:"roles,omitempty"`
	SkillsRequired []string       `json:"skills_required,omitempty"`
	SelectionType  *SelectionType `json:"selection_type,omitempty"`
	Timeline       *Timeline      `json:"timeline,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// Create validates, funds and persists a new project.
func (s *Service) Create(ctx context.Context, actor access.Actor, req CreateRequest) (*Project, error) {
	switch actor.Role {
	case access.RoleAdmin:
		if strings.TrimSpace(req.ClientID) == "" {
			return nil, fmt.Errorf("%w: client_id required", ErrInvalidInput)
		}
	case access.RoleClient:
		req.ClientID = actor.ID
	default:
		return nil, access.ErrUnauthorized
	}
	if req.SelectionType == "" {
		req.SelectionType = SelectionManual
	}
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	now := time.Now()
	proj := &Project{
		ID:             uuid.NewString(),
		ClientID:       req.ClientID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Budget:         req.Budget,
		TeamSize:       req.TeamSize,
		Roles:          append([]Role(nil), req.Roles...),
		SkillsRequired: req.SkillsRequired,
		SelectionType:  req.SelectionType,
		Status:         StatusNotStarted,
		Timeline:       req.Timeline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	debit, err := s.ledger.Debit(ctx, proj.ClientID, proj.Budget, "project:"+proj.ID+":create", "project budget: "+proj.Title, proj.ID)
	if err != nil {
		return nil, fmt.Errorf("funding project: %w", err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, proj); err != nil {
			return fmt.Errorf("creating project: %w", err)
		}
		if err := s.log(ctx, actor, proj.ID, activity.TypeProjectCreated, fmt.Sprintf("created project %s", proj.ID), 0, nil); err != nil {
			return err
		}
		return s.log(ctx, actor, proj.ID, activity.TypeBudgetDebited,
			fmt.Sprintf("debited %s from client %s", proj.Budget, proj.ClientID), proj.Budget, nil)
	})
	if err != nil {
		s.reverse(ctx, debit)
		return nil, err
	}

	s.notify(ctx, proj.ClientID, EventProjectCreated, map[string]any{
		"project_id": proj.ID,
		"title":      proj.Title,
		"budget":     proj.Budget,
	})

	if proj.SelectionType != SelectionManual && s.recruiter != nil {
		if _, err := s.recruiter.Fill(ctx, proj.ID); err != nil {
			s.logger.Warn("auto recruitment after create", "project_id", proj.ID, "error", err)
		}
		return s.load(ctx, proj.ID)
	}
	return proj, nil
}

// Get fetches a project visible to the actor.
func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*Project, error) {
	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, proj); err != nil {
		return nil, err
	}
	return proj, nil
}

// List returns the actor's projects; admins see everything.
func (s *Service) List(ctx context.Context, actor access.Actor, opts ListOptions) ([]Project, error) {
	switch actor.Role {
	case access.RoleAdmin:
	case access.RoleClient:
		opts.ClientID = actor.ID
	case access.RoleFreelancer:
		opts.FreelancerID = actor.ID
	default:
		return nil, access.ErrUnauthorized
	}
	projects, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

// Budget returns budget, committed and remaining amounts.
func (s *Service) Budget(ctx context.Context, actor access.Actor, id string) (budget.Summary, error) {
	proj, err := s.Get(ctx, actor, id)
	if err != nil {
		return budget.Summary{}, err
	}
	return s.budget.Summarize(ctx, proj.ID, proj.Budget)
}

// Update applies a partial update. Budget increases are debited from the
// client; decreases are refunded net of processing tax.
func (s *Service) Update(ctx context.Context, actor access.Actor, id string, req UpdateRequest) (*Project, error) {
	updated, current, err := s.update(ctx, actor, id, req)
	if err != nil {
		return nil, err
	}

	if s.recruiter != nil && opensSeats(current, updated) {
		if _, err := s.recruiter.Fill(ctx, id); err != nil {
			s.logger.Warn("auto recruitment after edit", "project_id", id, "error", err)
		}
		return s.load(ctx, id)
	}
	return updated, nil
}

// opensSeats reports whether an edit leaves new seats for the recruiter:
// the team grew, or selection switched away from manual.
func opensSeats(before, after *Project) bool {
	if after.SelectionType == SelectionManual {
		return false
	}
	return after.TeamSize > before.TeamSize || before.SelectionType == SelectionManual
}

// update applies req under the project lock and returns the new and the
// previous state.
func (s *Service) update(ctx context.Context, actor access.Actor, id string, req UpdateRequest) (*Project, *Project, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := access.OwnerOrAdmin(actor, current.ClientID); err != nil {
		return nil, nil, err
	}
	if !current.Status.Editable() {
		return nil, nil, ErrNotEditable
	}

	updated := current.clone()
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, nil, fmt.Errorf("%w: title required", ErrInvalidInput)
		}
		updated.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.SkillsRequired != nil {
		updated.SkillsRequired = req.SkillsRequired
	}
	if req.SelectionType != nil {
		switch *req.SelectionType {
		case SelectionManual, SelectionAuto, SelectionMixed:
			updated.SelectionType = *req.SelectionType
		default:
			return nil, nil, fmt.Errorf("%w: unknown selection type", ErrInvalidInput)
		}
	}
	if req.Timeline != nil {
		if err := validateTimeline(*req.Timeline); err != nil {
			return nil, nil, err
		}
		updated.Timeline = *req.Timeline
	}

	switch {
	case req.Roles != nil:
		roles, err := replaceRoles(current, req.Roles)
		if err != nil {
			return nil, nil, err
		}
		size := sumRoles(roles)
		if req.TeamSize != nil && *req.TeamSize != size {
			return nil, nil, ErrTeamSizeMismatch
		}
		updated.Roles, updated.TeamSize = roles, size
	case req.TeamSize != nil && *req.TeamSize != current.TeamSize:
		roles, err := resizeTeam(current, *req.TeamSize)
		if err != nil {
			return nil, nil, err
		}
		updated.Roles, updated.TeamSize = roles, *req.TeamSize
	}

	opKey := req.IdempotencyKey
	if opKey == "" {
		opKey = uuid.NewString()
	}

	var (
		debit    *ledger.Adjustment
		refund   *ledger.Adjustment
		decrease ledger.Money
	)
	if req.Budget != nil && *req.Budget != current.Budget {
		newBudget := *req.Budget
		if newBudget <= 0 {
			return nil, nil, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
		}
		if newBudget > current.Budget {
			increase := newBudget - current.Budget
			debit, err = s.ledger.Debit(ctx, current.ClientID, increase,
				fmt.Sprintf("project:%s:budget:%s", id, opKey), "budget increase: "+current.Title, id)
			if err != nil {
				return nil, nil, fmt.Errorf("funding budget increase: %w", err)
			}
		} else {
			decrease = current.Budget - newBudget
			committed, err := s.budget.Committed(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			if newBudget < committed {
				return nil, nil, &budget.InsufficientBudgetError{Remaining: current.Budget - committed, Required: decrease}
			}
		}
		updated.Budget = newBudget
	}
	updated.UpdatedAt = time.Now()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if decrease > 0 {
			var err error
			refund, err = s.ledger.Refund(ctx, current.ClientID, decrease, ledger.ProcessingTax,
				fmt.Sprintf("project:%s:budget:%s", id, opKey), "budget decrease: "+current.Title, id)
			if err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, updated); err != nil {
			return fmt.Errorf("updating project: %w", err)
		}
		if err := s.log(ctx, actor, id, activity.TypeProjectUpdated, fmt.Sprintf("updated project %s", id), 0, nil); err != nil {
			return err
		}
		if debit != nil {
			if err := s.log(ctx, actor, id, activity.TypeBudgetDebited,
				fmt.Sprintf("debited %s for budget increase", -debit.Delta), -debit.Delta, nil); err != nil {
				return err
			}
		}
		if refund != nil {
			return s.log(ctx, actor, id, activity.TypeBudgetRefunded,
				fmt.Sprintf("refunded %s for budget decrease of %s", refund.Delta, decrease), refund.Delta, nil)
		}
		return nil
	})
	if err != nil {
		s.reverse(ctx, debit)
		return nil, nil, err
	}

	s.settle(ctx, refund)
	if updated.Budget != current.Budget {
		s.notify(ctx, current.ClientID, EventBudgetChanged, map[string]any{
			"project_id": id,
			"budget":     updated.Budget,
			"previous":   current.Budget,
		})
	}
	if refund != nil {
		s.notify(ctx, current.ClientID, EventRefund, map[string]any{"project_id": id, "amount": refund.Delta})
	}
	return updated, current, nil
}

// AddFunds tops up the budget from the caller's balance. No tax applies.
func (s *Service) AddFunds(ctx context.Context, actor access.Actor, id string, amount ledger.Money, idempotencyKey string) (*Project, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status.Terminal() {
		return nil, ErrNotEditable
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	debit, err := s.ledger.Debit(ctx, actor.ID, amount, fmt.Sprintf("project:%s:funds:%s", id, idempotencyKey), "add funds: "+proj.Title, id)
	if err != nil {
		return nil, fmt.Errorf("adding funds: %w", err)
	}

	proj.Budget += amount
	proj.UpdatedAt = time.Now()
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, proj); err != nil {
			return fmt.Errorf("updating project budget: %w", err)
		}
		return s.log(ctx, actor, id, activity.TypeFundsAdded, fmt.Sprintf("added %s from %s", amount, actor.ID), amount, nil)
	})
	if err != nil {
		s.reverse(ctx, debit)
		return nil, err
	}

	s.notify(ctx, proj.ClientID, EventBudgetChanged, map[string]any{"project_id": id, "budget": proj.Budget, "added": amount})
	return proj, nil
}

// Delete removes a project that has not started and refunds what is not
// committed, net of processing tax.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id string) error {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return err
	}
	if proj.Status != StatusNotStarted {
		return fmt.Errorf("%w: only not started projects can be deleted", ErrInvalidTransition)
	}

	committed, err := s.budget.Committed(ctx, id)
	if err != nil {
		return err
	}

	var refund *ledger.Adjustment
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		refund, err = s.ledger.Refund(ctx, proj.ClientID, proj.Budget-committed, ledger.ProcessingTax,
			"project:"+id+":delete-refund", "project deleted: "+proj.Title, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		if refund != nil {
			if err := s.log(ctx, actor, id, activity.TypeBudgetRefunded, fmt.Sprintf("refunded %s on deletion", refund.Delta), refund.Delta, nil); err != nil {
				return err
			}
		}
		return s.log(ctx, actor, id, activity.TypeProjectDeleted, fmt.Sprintf("deleted project %s", id), 0, nil)
	})
	if err != nil {
		return err
	}

	s.settle(ctx, refund)
	if refund != nil {
		s.notify(ctx, proj.ClientID, EventRefund, map[string]any{"project_id": id, "amount": refund.Delta})
	}
	return nil
}

// UpdateStatus changes the project status. The first move to completed or
// cancelled refunds the uncommitted budget net of processing tax, pins the
// budget to what is committed and archives the project.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id string, status Status) (*Project, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status == status {
		return proj, nil
	}
	if err := ValidateStatusTransition(proj.Status, status); err != nil {
		return nil, err
	}

	if status == StatusOnHold || status == StatusCompleted {
		open, err := s.tasks.CountOpen(ctx, id, "")
		if err != nil {
			return nil, fmt.Errorf("counting open tasks: %w", err)
		}
		if open > 0 {
			return nil, ErrIncompleteTasks
		}
	}

	previous := proj.Status
	now := time.Now()
	proj.Status = status
	proj.UpdatedAt = now

	var (
		refund    *ledger.Adjustment
		remaining ledger.Money
	)
	if status.Terminal() {
		committed, err := s.budget.Committed(ctx, id)
		if err != nil {
			return nil, err
		}
		remaining = proj.Budget - committed
		proj.Budget = committed
		proj.ArchivedAt = &now
		if status == StatusCompleted {
			proj.CompletedAt = &now
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if remaining > 0 {
			var err error
			refund, err = s.ledger.Refund(ctx, proj.ClientID, remaining, ledger.ProcessingTax,
				fmt.Sprintf("project:%s:%s-refund", id, status), fmt.Sprintf("unspent budget (%s): %s", status, proj.Title), id)
			if err != nil {
				return err
			}
			if err := s.log(ctx, actor, id, activity.TypeBudgetRefunded,
				fmt.Sprintf("refunded %s of unspent %s", refund.Delta, remaining), refund.Delta, nil); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, proj); err != nil {
			return fmt.Errorf("updating project status: %w", err)
		}
		return s.log(ctx, actor, id, activity.TypeStatusChanged,
			fmt.Sprintf("status %s -> %s", previous, status), 0, map[string]any{"from": previous, "to": status})
	})
	if err != nil {
		return nil, err
	}

	s.settle(ctx, refund)
	s.notify(ctx, proj.ClientID, EventStatusChanged, map[string]any{"project_id": id, "from": previous, "to": status})
	if refund != nil {
		s.notify(ctx, proj.ClientID, EventRefund, map[string]any{"project_id": id, "amount": refund.Delta})
	}
	return proj, nil
}

// Launch starts work once every invited member has answered and at least
// one accepted.
func (s *Service) Launch(ctx context.Context, actor access.Actor, id string) (*Project, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(id))
	defer unlock()

	proj, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status.Terminal() || proj.Status == StatusWorkStarted {
		return nil, ErrInvalidTransition
	}
	counts := proj.Counts()
	if counts[MemberChecking] > 0 || counts[MemberAccepted] == 0 {
		return nil, ErrNotReady
	}

	previous := proj.Status
	proj.Status = StatusWorkStarted
	proj.UpdatedAt = time.Now()
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, proj); err != nil {
			return fmt.Errorf("launching project: %w", err)
		}
		return s.log(ctx, actor, id, activity.TypeStatusChanged,
			fmt.Sprintf("status %s -> %s", previous, proj.Status), 0, map[string]any{"from": previous, "to": proj.Status})
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"project_id": id, "title": proj.Title}
	for _, m := range proj.Members {
		if m.Status == MemberAccepted {
			s.notify(ctx, m.FreelancerID, EventProjectLaunched, payload)
		}
	}
	s.notify(ctx, proj.ClientID, EventProjectLaunched, payload)
	return proj, nil
}

func (s *Service) load(ctx context.Context, id string) (*Project, error) {
	proj, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

func canView(actor access.Actor, proj *Project) error {
	if actor.IsAdmin() || actor.Is(proj.ClientID) {
		return nil
	}
	if _, ok := proj.Member(actor.ID); ok {
		return nil
	}
	return access.ErrUnauthorized
}

func (s *Service) log(ctx context.Context, actor access.Actor, projectID string, typ activity.ActivityType, summary string, amount ledger.Money, details any) error {
	if s.activities == nil {
		return nil
	}
	entry := &activity.ActivityEntry{
		ProjectID:    projectID,
		ActorID:      actor.ID,
		ActivityType: typ,
		Summary:      summary,
		Amount:       amount,
		CreatedAt:    time.Now(),
	}
	if details != nil {
		entry.Details = activity.Details(details)
	}
	if err := s.activities.Log(ctx, entry); err != nil {
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

func (s *Service) settle(ctx context.Context, adjs ...*ledger.Adjustment) {
	if err := s.ledger.Settle(ctx, adjs...); err != nil {
		s.logger.Warn("settlement deferred to sweep", "error", err)
	}
}

func (s *Service) reverse(ctx context.Context, debit *ledger.Adjustment) {
	if debit == nil {
		return
	}
	if err := s.ledger.Reverse(ctx, debit); err != nil {
		s.logger.Error("reversing debit", "key", debit.Key, "user_id", debit.UserID, "error", err)
	}
}
