package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/ganot/teamescrow/internal/domain/ledger"
)

// ErrInsufficientBudget matches any *InsufficientBudgetError.
var ErrInsufficientBudget = errors.New("insufficient project budget")

// InsufficientBudgetError reports how far a reservation overshoots.
type InsufficientBudgetError struct {
	Remaining ledger.Money `json:"remaining"`
	Required  ledger.Money `json:"required"`
}

func (e *InsufficientBudgetError) Error() string {
	return fmt.Sprintf("insufficient project budget: remaining %s, required %s", e.Remaining, e.Required)
}

func (e *InsufficientBudgetError) Is(target error) bool {
	return target == ErrInsufficientBudget
}

// TaskReservations sums a project's active task reservations.
type TaskReservations interface {
	// ActiveTaskTotal sums amounts of tasks that are not cancelled.
	ActiveTaskTotal(ctx context.Context, projectID string) (ledger.Money, error)
}

// PayoutReservations sums a project's payouts that reserve budget of their own.
type PayoutReservations interface {
	// ActivePayoutTotal sums fixed payouts that are not cancelled. Withdrawals
	// draw on approved tasks already counted by ActiveTaskTotal.
	ActivePayoutTotal(ctx context.Context, projectID string) (ledger.Money, error)
}

// Summary is a snapshot of a project's budget.
type Summary struct {
	ProjectID string       `json:"project_id"`
	Budget    ledger.Money `json:"budget"`
	Committed ledger.Money `json:"committed"`
	Remaining ledger.Money `json:"remaining"`
}

// Service computes commitments. Callers hold the project lock when they act
// on the result.
type Service struct {
	tasks   TaskReservations
	payouts PayoutReservations
}

// NewService creates a budget service.
func NewService(tasks TaskReservations, payouts PayoutReservations) *Service {
	return &Service{tasks: tasks, payouts: payouts}
}

// Committed returns active task amounts plus active fixed payout amounts.
func (s *Service) Committed(ctx context.Context, projectID string) (ledger.Money, error) {
	tasks, err := s.tasks.ActiveTaskTotal(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("summing tasks: %w", err)
	}
	payouts, err := s.payouts.ActivePayoutTotal(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("summing payouts: %w", err)
	}
	return tasks + payouts, nil
}

// CanReserve fails with *InsufficientBudgetError if additional does not fit.
func (s *Service) CanReserve(ctx context.Context, projectID string, total, additional ledger.Money) error {
	committed, err := s.Committed(ctx, projectID)
	if err != nil {
		return err
	}
	return Check(total, committed, additional)
}

// Summarize returns the budget snapshot for a project.
func (s *Service) Summarize(ctx context.Context, projectID string, total ledger.Money) (Summary, error) {
	committed, err := s.Committed(ctx, projectID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ProjectID: projectID,
		Budget:    total,
		Committed: committed,
		Remaining: total - committed,
	}, nil
}

// Check is the pure reservation rule.
func Check(total, committed, additional ledger.Money) error {
	if committed+additional > total {
		return &InsufficientBudgetError{Remaining: total - committed, Required: additional}
	}
	return nil
}
