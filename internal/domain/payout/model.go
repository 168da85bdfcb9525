package payout

import (
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
)

// Type distinguishes client-initiated payouts from freelancer withdrawals.
type Type string

const (
	TypeFixed      Type = "fixed"
	TypeWithdrawal Type = "withdrawal"
)

// Status is the escrow state of a payout.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the payout is settled one way or the other.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusCancelled
}

// Payout is money held in escrow for a team member.
type Payout struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"project_id"`
	FreelancerID   string       `json:"freelancer_id"`
	Amount         ledger.Money `json:"amount"`
	Description    string       `json:"description,omitempty"`
	Type           Type         `json:"type"`
	Status         Status       `json:"status"`
	PaymentMethod  string       `json:"payment_method,omitempty"`
	PaymentDetails string       `json:"payment_details,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ReleasedAt     *time.Time   `json:"released_at,omitempty"`
	CancelledAt    *time.Time   `json:"cancelled_at,omitempty"`
}

// ReleaseKey is the ledger key for crediting a released payout.
func ReleaseKey(id string) string {
	return "payout:" + id + ":release"
}
