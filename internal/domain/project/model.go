package project

import (
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
)

// MinimumBudget is the smallest budget a project can be created with.
var MinimumBudget = ledger.Units(1000)

// Status is the project lifecycle state.
type Status string

const (
	StatusNotStarted    Status = "not_started"
	StatusStarted       Status = "started"
	StatusTeamSelection Status = "team_selection"
	StatusWorkStarted   Status = "work_started"
	StatusOnHold        Status = "on_hold"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusStarted, StatusTeamSelection, StatusWorkStarted,
		StatusOnHold, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the project is archived.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Editable reports whether the project accepts updates.
func (s Status) Editable() bool {
	switch s {
	case StatusNotStarted, StatusStarted, StatusTeamSelection, StatusWorkStarted:
		return true
	}
	return false
}

// SelectionType controls who fills open roles.
type SelectionType string

const (
	SelectionManual SelectionType = "manual"
	SelectionAuto   SelectionType = "auto"
	SelectionMixed  SelectionType = "mixed"
)

// DefaultRoleName is used when team growth has no role to pad.
const DefaultRoleName = "Other"

// Role is one requested team position.
type Role struct {
	Name     string   `json:"name" validate:"required,max=100"`
	Quantity int      `json:"quantity" validate:"gte=1"`
	Skills   []string `json:"skills,omitempty"`
}

// Timeline is the planned project window.
type Timeline struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Project is a client-owned request for a team of freelancers.
type Project struct {
	ID             string        `json:"id"`
	ClientID       string        `json:"client_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Budget         ledger.Money  `json:"budget"`
	TeamSize       int           `json:"team_size"`
	Roles          []Role        `json:"roles"`
	SkillsRequired []string      `json:"skills_required,omitempty"`
	SelectionType  SelectionType `json:"selection_type"`
	Status         Status        `json:"status"`
	Timeline       Timeline      `json:"timeline"`
	Members        []Member      `json:"members,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ArchivedAt     *time.Time    `json:"archived_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// MemberStatus is the invitation state of a team member.
type MemberStatus string

const (
	MemberChecking    MemberStatus = "checking"
	MemberAccepted    MemberStatus = "accepted"
	MemberNotAccepted MemberStatus = "not_accepted"
)

// SelectedBy records who put a member on the team.
type SelectedBy string

const (
	SelectedByClient SelectedBy = "client"
	SelectedByAdmin  SelectedBy = "admin"
	SelectedByAuto   SelectedBy = "auto"
)

// Member is a freelancer attached to a project for one role.
type Member struct {
	ProjectID    string       `json:"project_id"`
	FreelancerID string       `json:"freelancer_id"`
	Role         string       `json:"role"`
	Status       MemberStatus `json:"status"`
	SelectedBy   SelectedBy   `json:"selected_by"`
	SelectedAt   time.Time    `json:"selected_at"`
	RespondedAt  *time.Time   `json:"responded_at,omitempty"`
	IsLead       bool         `json:"is_lead"`
}

// Active reports whether the member holds a seat in its role.
func (m Member) Active() bool {
	return m.Status == MemberChecking || m.Status == MemberAccepted
}

// Member returns the entry for freelancerID.
func (p *Project) Member(freelancerID string) (*Member, bool) {
	for i := range p.Members {
		if p.Members[i].FreelancerID == freelancerID {
			return &p.Members[i], true
		}
	}
	return nil, false
}

// Role returns the role with the given name.
func (p *Project) Role(name string) (*Role, bool) {
	for i := range p.Roles {
		if p.Roles[i].Name == name {
			return &p.Roles[i], true
		}
	}
	return nil, false
}

// ActiveInRole counts checking and accepted members in a role.
func (p *Project) ActiveInRole(role string) int {
	n := 0
	for _, m := range p.Members {
		if m.Role == role && m.Active() {
			n++
		}
	}
	return n
}

// Counts returns the number of members per status.
func (p *Project) Counts() map[MemberStatus]int {
	counts := make(map[MemberStatus]int, 3)
	for _, m := range p.Members {
		counts[m.Status]++
	}
	return counts
}

func (p *Project) clone() *Project {
	cp := *p
	cp.Roles = append([]Role(nil), p.Roles...)
	cp.SkillsRequired = append([]string(nil), p.SkillsRequired...)
	cp.Members = append([]Member(nil), p.Members...)
	return &cp
}

// ListOptions filters project listings.
type ListOptions struct {
	ClientID     string
	FreelancerID string
	Status       *Status
	Limit        int
	Offset       int
}
