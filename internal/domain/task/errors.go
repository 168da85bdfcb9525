package task

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound indicates the task doesn't exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidInput indicates invalid task input.
	ErrInvalidInput = errors.New("invalid task input")
	// ErrInvalidTransition indicates an illegal workflow move.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrTaskAlreadyFinal indicates the task is approved or cancelled.
	ErrTaskAlreadyFinal = fmt.Errorf("%w: task already final", ErrInvalidTransition)
	// ErrMemberNotAccepted indicates the assignee is not an accepted member.
	ErrMemberNotAccepted = errors.New("assignee is not an accepted team member")
	// ErrProjectClosed indicates the project no longer takes new work.
	ErrProjectClosed = errors.New("project is closed")
)
