package userdir

import (
	"fmt"
	"os"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"gopkg.in/yaml.v3"
)

// SeedUser is one entry of a directory seed file.
type SeedUser struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Email             string   `yaml:"email"`
	// Role defaults to freelancer.
	Role              string   `yaml:"role"`
	Skills            []string `yaml:"skills"`
	Rating            float64  `yaml:"rating"`
	CompletedProjects int      `yaml:"completed_projects"`
	Availability      string   `yaml:"availability"`
	AccountStatus     string   `yaml:"account_status"`
	// Balance is in cents.
	Balance int64 `yaml:"balance"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users"`
}

// LoadSeed reads users from a YAML seed file.
func LoadSeed(path string) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("seed user %d: missing id", i)
		}
	}
	return f.Users, nil
}

// Seed loads users into the directory.
func (m *Memory) Seed(users []SeedUser) {
	for _, u := range users {
		status := profile.AccountStatus(u.AccountStatus)
		if status == "" {
			status = profile.AccountActive
		}
		role := profile.Role(u.Role)
		if role == "" {
			role = profile.RoleFreelancer
		}
		availability := profile.Availability(u.Availability)
		if availability == "" {
			availability = profile.AvailabilityOnline
		}
		m.Put(profile.Profile{
			UserID:            u.ID,
			Name:              u.Name,
			Email:             u.Email,
			Role:              role,
			Skills:            u.Skills,
			Rating:            u.Rating,
			CompletedProjects: u.CompletedProjects,
			Availability:      availability,
			AccountStatus:     status,
		}, ledger.Money(u.Balance))
	}
}
