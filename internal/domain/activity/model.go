package activity

import (
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
)

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeProjectCreated    ActivityType = "project_created"
	TypeProjectUpdated    ActivityType = "project_updated"
	TypeProjectDeleted    ActivityType = "project_deleted"
	TypeStatusChanged     ActivityType = "status_changed"
	TypeBudgetDebited     ActivityType = "budget_debited"
	TypeBudgetRefunded    ActivityType = "budget_refunded"
	TypeFundsAdded        ActivityType = "funds_added"
	TypeMemberInvited     ActivityType = "member_invited"
	TypeMemberResponded   ActivityType = "member_responded"
	TypeMemberRemoved     ActivityType = "member_removed"
	TypeMemberPromoted    ActivityType = "member_promoted"
	TypeInvitationExpired ActivityType = "invitation_expired"
	TypeTaskCreated       ActivityType = "task_created"
	TypeTaskTransition    ActivityType = "task_transition"
	TypeTaskRefunded      ActivityType = "task_refunded"
	TypePayoutCreated     ActivityType = "payout_created"
	TypePayoutReleased    ActivityType = "payout_released"
	TypePayoutCancelled   ActivityType = "payout_cancelled"
)

// ActivityEntry represents an event in the project audit log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProjectID    string       `json:"project_id"`
	ActorID      string       `json:"actor_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	Amount       ledger.Money `json:"amount,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProjectID    string
	ActorID      string
	ActivityType *ActivityType
	Since        *time.Time
	Limit        int
	Offset       int
}
