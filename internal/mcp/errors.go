package mcp

import (
	"errors"
	"fmt"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
)

// APIError represents an MCP tool error.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var budgetErr *budget.InsufficientBudgetError
	switch {
	case errors.As(err, &budgetErr):
		return &APIError{Code: "INSUFFICIENT_BUDGET", Message: err.Error(), Details: budgetErr, RecoveryHint: "Raise the project budget or lower the amount"}
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return &APIError{Code: "INSUFFICIENT_BALANCE", Message: "payer balance too low", RecoveryHint: "Ask the payer to top up"}
	case errors.Is(err, access.ErrUnauthorized):
		return &APIError{Code: "UNAUTHORIZED", Message: "not allowed"}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Check the project ID"}
	case errors.Is(err, payout.ErrPayoutNotFound):
		return &APIError{Code: "PAYOUT_NOT_FOUND", Message: "payout not found", RecoveryHint: "Check the payout ID"}
	case errors.Is(err, payout.ErrInvalidTransition):
		return &APIError{Code: "INVALID_TRANSITION", Message: "payout is no longer locked", RecoveryHint: "Only locked payouts can be released or cancelled"}
	case errors.Is(err, payout.ErrProjectClosed):
		return &APIError{Code: "PROJECT_CLOSED", Message: "project is completed or cancelled", RecoveryHint: "Fixed payouts on a closed project can only be released"}
	case errors.Is(err, project.ErrInvalidTransition):
		return &APIError{Code: "INVALID_TRANSITION", Message: "project status does not allow this"}
	case errors.Is(err, payout.ErrInvalidInput), errors.Is(err, project.ErrInvalidInput):
		return &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	default:
		return nil
	}
}

// toolError converts err into the error a tool handler returns.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
