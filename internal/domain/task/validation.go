package task

import (
	"strings"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/project"
)

// ValidateCreateInput validates fields required to create a task.
func ValidateCreateInput(req CreateRequest) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.FreelancerID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.Title) == "" {
		return ErrInvalidInput
	}
	if req.Amount < 0 {
		return ErrInvalidInput
	}
	return nil
}

// ValidateTransition validates a requested state transition.
func ValidateTransition(from, to Status) error {
	if from.Terminal() {
		return ErrTaskAlreadyFinal
	}

	valid := false
	switch from {
	case StatusPending:
		valid = to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		valid = to == StatusSubmitted || to == StatusCancelled
	case StatusSubmitted:
		switch to {
		case StatusApproved, StatusRevision, StatusCancelled:
			valid = true
		}
	case StatusRevision:
		valid = to == StatusSubmitted || to == StatusCancelled
	}

	if !valid {
		return ErrInvalidTransition
	}
	return nil
}

// AuthorizeTransition checks who may drive a move. The assignee does the
// work; the client or an admin reviews and cancels.
func AuthorizeTransition(actor access.Actor, t *Task, proj *project.Project, to Status) error {
	switch to {
	case StatusInProgress, StatusSubmitted:
		if actor.Is(t.FreelancerID) {
			return nil
		}
	case StatusRevision, StatusApproved, StatusCancelled:
		if actor.IsAdmin() || actor.Is(proj.ClientID) {
			return nil
		}
	}
	return access.ErrUnauthorized
}

func validCategory(c CancelCategory) bool {
	switch c {
	case "", CancelClientRequest, CancelUnavailable, CancelScopeChange, CancelQuality, CancelOther:
		return true
	}
	return false
}
