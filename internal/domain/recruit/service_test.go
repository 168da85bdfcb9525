package recruit_test

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/recruit"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/ganot/teamescrow/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func candidate(id string, rating float64, completed int, avail profile.Availability, skills ...string) profile.Profile {
	return profile.Profile{
		UserID:            id,
		Role:              profile.RoleFreelancer,
		Skills:            skills,
		Rating:            rating,
		CompletedProjects: completed,
		Availability:      avail,
		AccountStatus:     profile.AccountActive,
	}
}

func TestScore(t *testing.T) {
	wanted := []string{"go", "postgres"}
	require.Equal(t, 200+80+30+30, recruit.Score(candidate("a", 4.6, 3, profile.AvailabilityOnline, "Go", "Postgres"), wanted))
	require.Equal(t, 100+40, recruit.Score(candidate("b", 4.0, 0, profile.AvailabilityBusy, "go"), wanted))
	require.Equal(t, 100, recruit.Score(candidate("c", 3.9, 0, profile.AvailabilityOffline, "go"), wanted))
}

func TestRank_SkillGatingAndOrder(t *testing.T) {
	suspended := candidate("s", 5, 10, profile.AvailabilityOnline, "go")
	suspended.AccountStatus = profile.AccountSuspended
	pool := []profile.Profile{
		candidate("z", 4.0, 0, profile.AvailabilityOffline, "go"),
		candidate("a", 4.0, 0, profile.AvailabilityOffline, "go"),
		candidate("best", 4.8, 2, profile.AvailabilityOnline, "go"),
		candidate("nomatch", 5, 50, profile.AvailabilityOnline, "php"),
		candidate("member", 5, 50, profile.AvailabilityOnline, "go"),
		suspended,
	}

	ranked := recruit.Rank(pool, []string{"go"}, map[string]struct{}{"member": {}})
	ids := make([]string, len(ranked))
	for i, p := range ranked {
		ids[i] = p.UserID
	}
	require.Equal(t, []string{"best", "a", "z"}, ids)
}

func newService(projects *mocks.ProjectRepository, dir *mocks.Directory) *recruit.Service {
	activities := &mocks.ActivityRepository{}
	activities.On("Log", mock.Anything, mock.Anything).Return(nil)
	notifier := &mocks.Notifier{}
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return recruit.NewService(recruit.Deps{
		Projects:   projects,
		Directory:  dir,
		Activities: activities,
		Notifier:   notifier,
		Tx:         mocks.Tx{},
		Locks:      keylock.New(),
	}, nil)
}

func TestRecruiter_FillInvitesTopCandidates(t *testing.T) {
	ctx := context.Background()
	projects := &mocks.ProjectRepository{}
	dir := &mocks.Directory{}

	proj := &project.Project{
		ID:             "p1",
		ClientID:       "c1",
		Budget:         ledger.Units(2000),
		Status:         project.StatusNotStarted,
		SelectionType:  project.SelectionAuto,
		SkillsRequired: []string{"Postgres"},
		Roles: []project.Role{
			{Name: "backend", Quantity: 2, Skills: []string{"Go"}},
		},
		Members: []project.Member{
			{ProjectID: "p1", FreelancerID: "old", Role: "backend", Status: project.MemberNotAccepted},
		},
	}
	projects.On("Get", ctx, "p1").Return(proj, nil)
	dir.On("SearchFreelancers", ctx, mock.Anything).Return([]profile.Profile{
		candidate("old", 5, 9, profile.AvailabilityOnline, "go"),
		candidate("f1", 4.6, 1, profile.AvailabilityOnline, "go", "postgres"),
		candidate("f2", 4.2, 0, profile.AvailabilityOffline, "postgres"),
		candidate("f3", 3.0, 0, profile.AvailabilityOffline, "go"),
	}, nil)
	projects.On("UpsertMember", ctx, mock.Anything).Return(nil)
	projects.On("Update", ctx, mock.MatchedBy(func(p *project.Project) bool {
		return p.Status == project.StatusTeamSelection
	})).Return(nil)

	invited, err := newService(projects, dir).Fill(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, invited, 2)
	require.Equal(t, "f1", invited[0].FreelancerID)
	require.Equal(t, "f2", invited[1].FreelancerID)
	for _, m := range invited {
		require.Equal(t, project.MemberChecking, m.Status)
		require.Equal(t, project.SelectedByAuto, m.SelectedBy)
	}
	projects.AssertExpectations(t)
}

func TestRecruiter_FillSkipsFullRoles(t *testing.T) {
	ctx := context.Background()
	projects := &mocks.ProjectRepository{}
	dir := &mocks.Directory{}

	proj := &project.Project{
		ID:     "p1",
		Status: project.StatusTeamSelection,
		Roles:  []project.Role{{Name: "backend", Quantity: 1, Skills: []string{"go"}}},
		Members: []project.Member{
			{ProjectID: "p1", FreelancerID: "f1", Role: "backend", Status: project.MemberChecking},
		},
	}
	projects.On("Get", ctx, "p1").Return(proj, nil)
	dir.On("SearchFreelancers", ctx, mock.Anything).Return([]profile.Profile{
		candidate("f2", 5, 0, profile.AvailabilityOnline, "go"),
	}, nil)

	invited, err := newService(projects, dir).Fill(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, invited)
	projects.AssertNotCalled(t, "UpsertMember", mock.Anything, mock.Anything)
}

func TestRecruiter_AutoHireRequiresOwner(t *testing.T) {
	ctx := context.Background()
	projects := &mocks.ProjectRepository{}
	projects.On("Get", ctx, "p1").Return(&project.Project{ID: "p1", ClientID: "c1", Status: project.StatusTeamSelection}, nil)

	_, err := newService(projects, &mocks.Directory{}).AutoHire(ctx, access.Actor{ID: "c2", Role: access.RoleClient}, "p1")
	require.ErrorIs(t, err, access.ErrUnauthorized)
}

func TestRecruiter_ExpireInvitations(t *testing.T) {
	ctx := context.Background()
	projects := &mocks.ProjectRepository{}
	dir := &mocks.Directory{}

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)
	stale := []project.Member{
		{ProjectID: "p1", FreelancerID: "f1", Role: "backend", Status: project.MemberChecking},
		{ProjectID: "p1", FreelancerID: "f2", Role: "backend", Status: project.MemberChecking},
	}
	projects.On("ListExpiredInvitations", ctx, cutoff).Return(stale, nil)
	projects.On("ExpireMember", ctx, "p1", "f1", cutoff, now).Return(nil)
	projects.On("ExpireMember", ctx, "p1", "f2", cutoff, now).Return(repository.ErrConflict)
	projects.On("Get", ctx, "p1").Return(&project.Project{
		ID:            "p1",
		ClientID:      "c1",
		Status:        project.StatusTeamSelection,
		SelectionType: project.SelectionManual,
	}, nil)

	n, err := newService(projects, dir).ExpireInvitations(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	dir.AssertNotCalled(t, "SearchFreelancers", mock.Anything, mock.Anything)
}

func TestRecruiter_ExpiryReinvitesNextBestOnAutoProject(t *testing.T) {
	ctx := context.Background()
	projects := &mocks.ProjectRepository{}
	dir := &mocks.Directory{}

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)
	roles := []project.Role{{Name: "backend", Quantity: 1, Skills: []string{"go"}}}
	invitation := project.Member{ProjectID: "p1", FreelancerID: "f1", Role: "backend", Status: project.MemberChecking, SelectedBy: project.SelectedByAuto}

	projects.On("ListExpiredInvitations", ctx, cutoff).Return([]project.Member{invitation}, nil)
	projects.On("ExpireMember", ctx, "p1", "f1", cutoff, now).Return(nil)

	declined := invitation
	declined.Status = project.MemberNotAccepted
	projects.On("Get", ctx, "p1").Return(&project.Project{
		ID:            "p1",
		ClientID:      "c1",
		Status:        project.StatusTeamSelection,
		SelectionType: project.SelectionAuto,
		Roles:         roles,
		Members:       []project.Member{invitation},
	}, nil).Once()
	projects.On("Get", ctx, "p1").Return(&project.Project{
		ID:            "p1",
		ClientID:      "c1",
		Status:        project.StatusTeamSelection,
		SelectionType: project.SelectionAuto,
		Roles:         roles,
		Members:       []project.Member{declined},
	}, nil).Once()

	dir.On("SearchFreelancers", ctx, mock.MatchedBy(func(q profile.SearchQuery) bool {
		return len(q.ExcludeIDs) == 1 && q.ExcludeIDs[0] == "f1"
	})).Return([]profile.Profile{
		candidate("f2", 4.8, 3, profile.AvailabilityOnline, "go"),
		candidate("f3", 3.0, 0, profile.AvailabilityOffline, "go"),
	}, nil)
	projects.On("UpsertMember", ctx, mock.MatchedBy(func(m *project.Member) bool {
		return m.FreelancerID == "f2" && m.Role == "backend" && m.Status == project.MemberChecking
	})).Return(nil).Once()

	n, err := newService(projects, dir).ExpireInvitations(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	projects.AssertExpectations(t)
	dir.AssertExpectations(t)
	projects.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
