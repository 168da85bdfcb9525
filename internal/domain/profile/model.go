package profile

import "strings"

// Availability is the freelancer's presence as reported by the directory.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
	AvailabilityBusy    Availability = "busy"
)

// AccountStatus is the directory account state.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountInactive  AccountStatus = "inactive"
)

// Role is the directory account role.
type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleClient     Role = "client"
)

// Profile is the subset of a freelancer profile the engine reads.
type Profile struct {
	UserID            string        `json:"user_id"`
	Name              string        `json:"name"`
	Email             string        `json:"email,omitempty"`
	Role              Role          `json:"role"`
	Skills            []string      `json:"skills"`
	Rating            float64       `json:"rating"`
	CompletedProjects int           `json:"completed_projects"`
	Availability      Availability  `json:"availability"`
	AccountStatus     AccountStatus `json:"account_status"`
}

// Active reports whether the account may be invited or paid.
func (p Profile) Active() bool {
	return p.AccountStatus == AccountActive
}

// Freelancer reports whether the account can be recruited onto a team.
func (p Profile) Freelancer() bool {
	return p.Role == RoleFreelancer
}

// SearchQuery filters the candidate pool.
type SearchQuery struct {
	Skills     []string
	ExcludeIDs []string
	Limit      int
}

// DefaultTaskRating applies when an approval carries no rating.
const DefaultTaskRating = 5

// NextRating folds one task rating into a running mean. completed is the
// count before this approval.
func NextRating(old float64, completed, taskRating int) (float64, int) {
	n := completed + 1
	return (old*float64(n-1) + float64(taskRating)) / float64(n), n
}

// NormalizeSkills lowercases and dedupes skills, dropping blanks.
func NormalizeSkills(skills ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range skills {
		for _, s := range list {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

// MatchCount counts how many of wanted (already normalized) the profile has.
func (p Profile) MatchCount(wanted []string) int {
	if len(wanted) == 0 {
		return 0
	}
	have := make(map[string]struct{}, len(p.Skills))
	for _, s := range p.Skills {
		have[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	n := 0
	for _, w := range wanted {
		if _, ok := have[w]; ok {
			n++
		}
	}
	return n
}
