package ledger

import "errors"

var (
	// ErrInsufficientBalance indicates a debit would leave a negative balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidInput indicates an invalid ledger request.
	ErrInvalidInput = errors.New("invalid ledger input")
)
