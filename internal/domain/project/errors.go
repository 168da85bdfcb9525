package project

import (
	"errors"
	"fmt"
)

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrMemberNotFound indicates the freelancer is not on the project.
	ErrMemberNotFound = errors.New("team member not found")
	// ErrInvalidInput indicates invalid project input.
	ErrInvalidInput = errors.New("invalid project input")
	// ErrInvalidTransition indicates an illegal status change.
	ErrInvalidTransition = errors.New("invalid project state transition")
	// ErrIncompleteTasks blocks status changes while tasks are open.
	ErrIncompleteTasks = errors.New("project has incomplete tasks")
)

var (
	ErrBudgetBelowMinimum = fmt.Errorf("%w: budget below minimum", ErrInvalidInput)
	ErrTeamSizeMismatch   = fmt.Errorf("%w: role quantities must add up to team size", ErrInvalidInput)
	ErrInvalidTimeline    = fmt.Errorf("%w: start must be before end", ErrInvalidInput)
	ErrRoleBelowFilled    = fmt.Errorf("%w: role smaller than its filled seats", ErrInvalidInput)
	ErrRoleFull           = fmt.Errorf("%w: role has no open seats", ErrInvalidInput)
	ErrUnknownRole        = fmt.Errorf("%w: unknown role", ErrInvalidInput)
	ErrMemberExists       = fmt.Errorf("%w: freelancer already on project", ErrInvalidInput)
	ErrMemberNotActive    = fmt.Errorf("%w: freelancer account is not active", ErrInvalidInput)

	ErrNotEditable       = fmt.Errorf("%w: project is not editable", ErrInvalidTransition)
	ErrNotReady          = fmt.Errorf("%w: team has not finished responding", ErrInvalidTransition)
	ErrInvitationExpired = fmt.Errorf("%w: invitation expired", ErrInvalidTransition)
	ErrNotInvited        = fmt.Errorf("%w: no pending invitation", ErrInvalidTransition)
	ErrMemberNotAccepted = fmt.Errorf("%w: member has not accepted", ErrInvalidTransition)
	ErrMemberHasOpenWork = fmt.Errorf("%w: member has open tasks or locked payouts", ErrIncompleteTasks)
)
