package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/ganot/teamescrow/internal/userdir"
)

// Error codes returned in the error envelope.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInsufficientBudget  = "INSUFFICIENT_BUDGET"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeIncompleteTasks     = "INCOMPLETE_TASKS"
	CodeAlreadyFinal        = "ALREADY_FINAL"
	CodeValidation          = "VALIDATION_ERROR"
	CodeDuplicateRequest    = "DUPLICATE_REQUEST"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

type mapping struct {
	target error
	status int
	code   string
}

// Ordered: more specific sentinels wrap the broader ones below them.
var errorTable = []mapping{
	{ledger.ErrInsufficientBalance, http.StatusPaymentRequired, CodeInsufficientBalance},
	{ledger.ErrDuplicateKey, http.StatusConflict, CodeDuplicateRequest},
	{access.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
	{project.ErrProjectNotFound, http.StatusNotFound, CodeNotFound},
	{project.ErrMemberNotFound, http.StatusNotFound, CodeNotFound},
	{task.ErrTaskNotFound, http.StatusNotFound, CodeNotFound},
	{payout.ErrPayoutNotFound, http.StatusNotFound, CodeNotFound},
	{userdir.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
	{task.ErrTaskAlreadyFinal, http.StatusConflict, CodeAlreadyFinal},
	{project.ErrIncompleteTasks, http.StatusConflict, CodeIncompleteTasks},
	{project.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{task.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{payout.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{payout.ErrProjectClosed, http.StatusConflict, CodeInvalidTransition},
	{task.ErrProjectClosed, http.StatusConflict, CodeInvalidTransition},
	{project.ErrInvalidInput, http.StatusBadRequest, CodeValidation},
	{task.ErrInvalidInput, http.StatusBadRequest, CodeValidation},
	{task.ErrMemberNotAccepted, http.StatusBadRequest, CodeValidation},
	{payout.ErrInvalidInput, http.StatusBadRequest, CodeValidation},
	{payout.ErrNotTeamMember, http.StatusBadRequest, CodeValidation},
	{activity.ErrInvalidInput, http.StatusBadRequest, CodeValidation},
	{ledger.ErrInvalidInput, http.StatusBadRequest, CodeValidation},
	{errBadRequest, http.StatusBadRequest, CodeValidation},
}

var errBadRequest = errors.New("bad request")

// MapError translates a domain error into an HTTP status and error body.
func MapError(err error) (int, ErrorBody) {
	var budgetErr *budget.InsufficientBudgetError
	if errors.As(err, &budgetErr) {
		return http.StatusConflict, ErrorBody{
			Code:    CodeInsufficientBudget,
			Message: err.Error(),
			Details: budgetErr,
		}
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, ErrorBody{Code: m.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
