package task

import (
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
)

// Status is the task workflow state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusRevision   Status = "revision"
	StatusApproved   Status = "approved"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// CancelCategory classifies why a task was cancelled.
type CancelCategory string

const (
	CancelClientRequest CancelCategory = "client_request"
	CancelUnavailable   CancelCategory = "freelancer_unavailable"
	CancelScopeChange   CancelCategory = "scope_change"
	CancelQuality       CancelCategory = "quality"
	CancelOther         CancelCategory = "other"
)

// Task is a unit of paid work assigned to one team member.
type Task struct {
	ID                   string         `json:"id"`
	ProjectID            string         `json:"project_id"`
	FreelancerID         string         `json:"freelancer_id"`
	Title                string         `json:"title"`
	Description          string         `json:"description,omitempty"`
	Amount               ledger.Money   `json:"amount"`
	DueDate              *time.Time     `json:"due_date,omitempty"`
	Status               Status         `json:"status"`
	PayerID              string         `json:"payer_id,omitempty"`
	CancellationReason   string         `json:"cancellation_reason,omitempty"`
	CancellationCategory CancelCategory `json:"cancellation_category,omitempty"`
	Rating               *int           `json:"rating,omitempty"`
	Review               string         `json:"review,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
