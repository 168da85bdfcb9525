package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/google/uuid"
)

// Notification events emitted by the task service.
const (
	EventTaskAssigned = "task.assigned"
	EventTaskUpdated  = "task.updated"
	EventTaskRefund   = "task.refund"
)

// Deps are the collaborators of the task service.
type Deps struct {
	Tasks      Repository
	Projects   ProjectRepository
	Budget     BudgetChecker
	Ledger     Ledger
	Profiles   ProfileStore
	Activities ActivityRepository
	Notifier   Notifier
	Tx         Transactor
	Locks      Locker
}

// Service handles task creation and workflow.
type Service struct {
	tasks      Repository
	projects   ProjectRepository
	budget     BudgetChecker
	ledger     Ledger
	profiles   ProfileStore
	activities ActivityRepository
	notifier   Notifier
	tx         Transactor
	locks      Locker
	logger     *slog.Logger
}

// NewService creates a new task service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:      deps.Tasks,
		projects:   deps.Projects,
		budget:     deps.Budget,
		ledger:     deps.Ledger,
		profiles:   deps.Profiles,
		activities: deps.Activities,
		notifier:   deps.Notifier,
		tx:         deps.Tx,
		locks:      deps.Locks,
		logger:     logger,
	}
}

// CreateRequest describes a task creation request. PayerID names a third
// party funding the task; it defaults to the project client.
type CreateRequest struct {
	ProjectID    string       `json:"project_id"`
	FreelancerID string       `json:"freelancer_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Amount       ledger.Money `json:"amount"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	PayerID      string       `json:"payer_id,omitempty"`
}

// TransitionRequest describes a workflow move.
type TransitionRequest struct {
	TaskID   string         `json:"task_id"`
	ToStatus Status         `json:"status"`
	Rating   *int           `json:"rating,omitempty"`
	Review   string         `json:"review,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Category CancelCategory `json:"category,omitempty"`
}

// Create reserves budget for a new pending task.
func (s *Service) Create(ctx context.Context, actor access.Actor, req CreateRequest) (*Task, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(keylock.ProjectKey(req.ProjectID))
	defer unlock()

	proj, err := s.loadProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status.Terminal() {
		return nil, ErrProjectClosed
	}
	member, ok := proj.Member(req.FreelancerID)
	if !ok {
		return nil, project.ErrMemberNotFound
	}
	if member.Status != project.MemberAccepted {
		return nil, ErrMemberNotAccepted
	}

	now := time.Now()
	t := &Task{
		ID:           uuid.NewString(),
		ProjectID:    proj.ID,
		FreelancerID: req.FreelancerID,
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Amount:       req.Amount,
		DueDate:      req.DueDate,
		Status:       StatusPending,
		PayerID:      req.PayerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A third-party payer brings their own money into the budget. Only the
	// payer or an admin may draw on that balance.
	var debit *ledger.Adjustment
	external := t.PayerID != "" && t.PayerID != proj.ClientID && t.Amount > 0
	if external && !actor.IsAdmin() && !actor.Is(t.PayerID) {
		return nil, access.ErrUnauthorized
	}
	if external {
		debit, err = s.ledger.Debit(ctx, t.PayerID, t.Amount, "task:"+t.ID+":fund", "task funding: "+t.Title, proj.ID)
		if err != nil {
			return nil, fmt.Errorf("funding task: %w", err)
		}
		proj.Budget += t.Amount
	}

	if err := s.budget.CanReserve(ctx, proj.ID, proj.Budget, t.Amount); err != nil {
		s.reverse(ctx, debit)
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if external {
			proj.UpdatedAt = now
			if err := s.projects.Update(ctx, proj); err != nil {
				return fmt.Errorf("raising budget: %w", err)
			}
			if err := s.log(ctx, actor, proj.ID, activity.TypeBudgetDebited,
				fmt.Sprintf("debited %s from payer %s for task %s", t.Amount, t.PayerID, t.ID), t.Amount, nil); err != nil {
				return err
			}
		}
		if err := s.tasks.Create(ctx, t); err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		return s.log(ctx, actor, proj.ID, activity.TypeTaskCreated,
			fmt.Sprintf("created task %s for %s (%s)", t.ID, t.FreelancerID, t.Amount), t.Amount, nil)
	})
	if err != nil {
		s.reverse(ctx, debit)
		return nil, err
	}

	s.notify(ctx, t.FreelancerID, EventTaskAssigned, map[string]any{
		"project_id": t.ProjectID,
		"task_id":    t.ID,
		"title":      t.Title,
		"amount":     t.Amount,
	})
	return t, nil
}

// Get fetches a task visible to the actor.
func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*Task, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	proj, err := s.loadProject(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Is(proj.ClientID) && !actor.Is(t.FreelancerID) {
		return nil, access.ErrUnauthorized
	}
	return t, nil
}

// List returns a project's tasks. Freelancers only see their own.
func (s *Service) List(ctx context.Context, actor access.Actor, projectID string) ([]Task, error) {
	proj, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	if actor.IsAdmin() || actor.Is(proj.ClientID) {
		return tasks, nil
	}
	if _, ok := proj.Member(actor.ID); !ok {
		return nil, access.ErrUnauthorized
	}
	own := tasks[:0]
	for _, t := range tasks {
		if t.FreelancerID == actor.ID {
			own = append(own, t)
		}
	}
	return own, nil
}

// Transition moves a task through its workflow. Approval updates the
// freelancer's rating; cancellation frees the reservation, lowers the
// budget by the task amount and refunds the payer without tax.
func (s *Service) Transition(ctx context.Context, actor access.Actor, req TransitionRequest) (*Task, error) {
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, ErrInvalidInput
	}
	if !validCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown cancellation category", ErrInvalidInput)
	}
	rating := profile.DefaultTaskRating
	if req.Rating != nil {
		rating = *req.Rating
	}
	if req.ToStatus == StatusApproved && (rating < 1 || rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}

	peek, err := s.load(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(keylock.ProjectKey(peek.ProjectID))
	defer unlock()

	current, err := s.load(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(current.Status, req.ToStatus); err != nil {
		return nil, err
	}
	proj, err := s.loadProject(ctx, current.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeTransition(actor, current, proj, req.ToStatus); err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = req.ToStatus
	updated.UpdatedAt = time.Now()
	switch req.ToStatus {
	case StatusApproved:
		updated.Rating = &rating
		updated.Review = req.Review
	case StatusCancelled:
		updated.CancellationReason = req.Reason
		updated.CancellationCategory = req.Category
		if updated.CancellationCategory == "" {
			updated.CancellationCategory = CancelOther
		}
	}

	payer := current.PayerID
	if payer == "" {
		payer = proj.ClientID
	}

	var refund *ledger.Adjustment
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.tasks.Update(ctx, &updated, current.Status); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("updating task: %w", err)
		}
		if err := s.log(ctx, actor, proj.ID, activity.TypeTaskTransition,
			fmt.Sprintf("task %s %s -> %s", updated.ID, current.Status, updated.Status), 0,
			map[string]any{"task_id": updated.ID, "from": current.Status, "to": updated.Status}); err != nil {
			return err
		}

		if updated.Status != StatusCancelled || updated.Amount == 0 {
			return nil
		}
		proj.Budget -= updated.Amount
		proj.UpdatedAt = updated.UpdatedAt
		if err := s.projects.Update(ctx, proj); err != nil {
			return fmt.Errorf("lowering budget: %w", err)
		}
		var err error
		refund, err = s.ledger.Refund(ctx, payer, updated.Amount, ledger.NoTax,
			"task:"+updated.ID+":cancel-refund", "task cancelled: "+updated.Title, proj.ID)
		if err != nil {
			return err
		}
		return s.log(ctx, actor, proj.ID, activity.TypeTaskRefunded,
			fmt.Sprintf("refunded %s to %s for cancelled task %s", updated.Amount, payer, updated.ID), updated.Amount, nil)
	})
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Settle(ctx, refund); err != nil {
		s.logger.Warn("settlement deferred to sweep", "task_id", updated.ID, "error", err)
	}
	if updated.Status == StatusApproved {
		s.recordRating(ctx, updated.FreelancerID, rating)
	}

	s.notify(ctx, updated.FreelancerID, EventTaskUpdated, map[string]any{
		"project_id": updated.ProjectID,
		"task_id":    updated.ID,
		"status":     updated.Status,
	})
	if refund != nil {
		s.notify(ctx, payer, EventTaskRefund, map[string]any{
			"project_id": updated.ProjectID,
			"task_id":    updated.ID,
			"amount":     refund.Delta,
		})
	}
	return &updated, nil
}

func (s *Service) recordRating(ctx context.Context, freelancerID string, rating int) {
	if s.profiles == nil {
		return
	}
	unlock := s.locks.Lock(keylock.UserKey(freelancerID))
	defer unlock()

	prof, err := s.profiles.GetProfile(ctx, freelancerID)
	if err != nil {
		s.logger.Error("loading profile for rating", "freelancer_id", freelancerID, "error", err)
		return
	}
	next, completed := profile.NextRating(prof.Rating, prof.CompletedProjects, rating)
	if err := s.profiles.RecordCompletion(ctx, freelancerID, next, completed); err != nil {
		s.logger.Error("recording rating", "freelancer_id", freelancerID, "error", err)
	}
}

func (s *Service) load(ctx context.Context, id string) (*Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
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

func (s *Service) reverse(ctx context.Context, debit *ledger.Adjustment) {
	if debit == nil {
		return
	}
	if err := s.ledger.Reverse(ctx, debit); err != nil {
		s.logger.Error("reversing debit", "key", debit.Key, "error", err)
	}
}
