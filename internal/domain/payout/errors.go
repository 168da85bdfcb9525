package payout

import "errors"

var (
	// ErrPayoutNotFound indicates the payout doesn't exist.
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrInvalidInput indicates invalid payout input.
	ErrInvalidInput = errors.New("invalid payout input")
	// ErrInvalidTransition indicates the payout is no longer locked.
	ErrInvalidTransition = errors.New("invalid payout state transition")
	// ErrNotTeamMember indicates the recipient is not an accepted member.
	ErrNotTeamMember = errors.New("recipient is not an accepted team member")
	// ErrProjectClosed indicates a completed or cancelled project whose
	// budget no longer holds room for fixed payouts.
	ErrProjectClosed = errors.New("project is closed")
)
