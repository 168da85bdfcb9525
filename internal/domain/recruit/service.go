package recruit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/keylock"
	"github.com/ganot/teamescrow/internal/repository"
)

// DefaultMaxInvites caps invitations per role per run.
const DefaultMaxInvites = 5

// Deps are the collaborators of the recruiter.
type Deps struct {
	Projects      ProjectRepository
	Directory     Directory
	Activities    ActivityRepository
	Notifier      Notifier
	Tx            Transactor
	Locks         Locker
	MaxInvites    int
	InvitationTTL time.Duration
}

// Service invites ranked freelancers into open roles and expires stale
// invitations.
type Service struct {
	projects   ProjectRepository
	directory  Directory
	activities ActivityRepository
	notifier   Notifier
	tx         Transactor
	locks      Locker
	maxInvites int
	ttl        time.Duration
	logger     *slog.Logger
}

// NewService creates a new recruiter.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxInvites := deps.MaxInvites
	if maxInvites <= 0 {
		maxInvites = DefaultMaxInvites
	}
	ttl := deps.InvitationTTL
	if ttl <= 0 {
		ttl = project.DefaultInvitationTTL
	}
	return &Service{
		projects:   deps.Projects,
		directory:  deps.Directory,
		activities: deps.Activities,
		notifier:   deps.Notifier,
		tx:         deps.Tx,
		locks:      deps.Locks,
		maxInvites: maxInvites,
		ttl:        ttl,
		logger:     logger,
	}
}

// AutoHire runs recruitment on request of the project client or an admin.
func (s *Service) AutoHire(ctx context.Context, actor access.Actor, projectID string) ([]project.Member, error) {
	proj, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := access.OwnerOrAdmin(actor, proj.ClientID); err != nil {
		return nil, err
	}
	if proj.Status.Terminal() {
		return nil, project.ErrNotEditable
	}
	return s.Fill(ctx, projectID)
}

// Fill invites the best candidates into every role with open seats and
// returns the new invitations.
func (s *Service) Fill(ctx context.Context, projectID string) ([]project.Member, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(projectID))
	defer unlock()

	proj, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proj.Status.Terminal() {
		return nil, nil
	}

	exclude := make(map[string]struct{}, len(proj.Members))
	for _, m := range proj.Members {
		exclude[m.FreelancerID] = struct{}{}
	}

	var all []string
	for _, r := range proj.Roles {
		all = append(all, r.Skills...)
	}
	pool, err := s.directory.SearchFreelancers(ctx, profile.SearchQuery{
		Skills:     profile.NormalizeSkills(all, proj.SkillsRequired),
		ExcludeIDs: keys(exclude),
	})
	if err != nil {
		return nil, fmt.Errorf("searching freelancers: %w", err)
	}

	now := time.Now()
	var invites []project.Member
	for _, role := range proj.Roles {
		needed := role.Quantity - proj.ActiveInRole(role.Name)
		if needed <= 0 {
			continue
		}
		wanted := profile.NormalizeSkills(role.Skills, proj.SkillsRequired)
		for _, c := range Rank(pool, wanted, exclude) {
			if needed == 0 || countRole(invites, role.Name) >= s.maxInvites {
				break
			}
			invites = append(invites, project.Member{
				ProjectID:    proj.ID,
				FreelancerID: c.UserID,
				Role:         role.Name,
				Status:       project.MemberChecking,
				SelectedBy:   project.SelectedByAuto,
				SelectedAt:   now,
			})
			exclude[c.UserID] = struct{}{}
			needed--
		}
	}
	if len(invites) == 0 {
		s.logger.Debug("no candidates to invite", "project_id", proj.ID)
		return nil, nil
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for i := range invites {
			if err := s.projects.UpsertMember(ctx, &invites[i]); err != nil {
				return fmt.Errorf("inviting %s: %w", invites[i].FreelancerID, err)
			}
			if err := s.log(ctx, proj.ID, activity.TypeMemberInvited,
				fmt.Sprintf("auto-invited %s as %s", invites[i].FreelancerID, invites[i].Role)); err != nil {
				return err
			}
		}
		if proj.Status == project.StatusNotStarted {
			proj.Status = project.StatusTeamSelection
			proj.UpdatedAt = now
			if err := s.projects.Update(ctx, proj); err != nil {
				return fmt.Errorf("updating project status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("auto recruitment", "project_id", proj.ID, "invited", len(invites))
	for _, m := range invites {
		s.notify(ctx, m.FreelancerID, project.EventInvitation, map[string]any{
			"project_id": proj.ID,
			"title":      proj.Title,
			"role":       m.Role,
			"expires_at": m.SelectedAt.Add(s.ttl),
		})
	}
	return invites, nil
}

// ExpireInvitations marks invitations older than the TTL as not accepted
// and re-runs recruitment for affected projects that allow it.
func (s *Service) ExpireInvitations(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.ttl)
	stale, err := s.projects.ListExpiredInvitations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing expired invitations: %w", err)
	}

	byProject := make(map[string][]project.Member)
	for _, m := range stale {
		byProject[m.ProjectID] = append(byProject[m.ProjectID], m)
	}
	ids := make([]string, 0, len(byProject))
	for id := range byProject {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		n, refill, err := s.expireProject(ctx, id, byProject[id], cutoff, now)
		expired += n
		if err != nil {
			s.logger.Error("expiring invitations", "project_id", id, "error", err)
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		if refill {
			if _, err := s.Fill(ctx, id); err != nil {
				s.logger.Warn("auto recruitment after expiry", "project_id", id, "error", err)
			}
		}
	}
	return expired, errors.Join(errs...)
}

func (s *Service) expireProject(ctx context.Context, projectID string, members []project.Member, cutoff, now time.Time) (int, bool, error) {
	unlock := s.locks.Lock(keylock.ProjectKey(projectID))
	defer unlock()

	proj, err := s.load(ctx, projectID)
	if err != nil {
		return 0, false, err
	}

	var flipped []project.Member
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, m := range members {
			if err := s.projects.ExpireMember(ctx, projectID, m.FreelancerID, cutoff, now); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					continue
				}
				return fmt.Errorf("expiring %s: %w", m.FreelancerID, err)
			}
			if err := s.log(ctx, projectID, activity.TypeInvitationExpired,
				fmt.Sprintf("invitation for %s expired", m.FreelancerID)); err != nil {
				return err
			}
			flipped = append(flipped, m)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	for _, m := range flipped {
		payload := map[string]any{
			"project_id":    projectID,
			"freelancer_id": m.FreelancerID,
			"role":          m.Role,
		}
		s.notify(ctx, m.FreelancerID, project.EventInvitationExpired, payload)
		s.notify(ctx, proj.ClientID, project.EventInvitationExpired, payload)
	}
	refill := len(flipped) > 0 && proj.SelectionType != project.SelectionManual && !proj.Status.Terminal()
	return len(flipped), refill, nil
}

func (s *Service) load(ctx context.Context, id string) (*project.Project, error) {
	proj, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, project.ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

func (s *Service) log(ctx context.Context, projectID string, typ activity.ActivityType, summary string) error {
	if s.activities == nil {
		return nil
	}
	err := s.activities.Log(ctx, &activity.ActivityEntry{
		ProjectID:    projectID,
		ActorID:      access.System.ID,
		ActivityType: typ,
		Summary:      summary,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID, event string, payload map[string]any) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, userID, event, payload); err != nil {
		s.logger.Warn("notification failed", "user_id", userID, "event", event, "error", err)
	}
}

func countRole(members []project.Member, role string) int {
	n := 0
	for _, m := range members {
		if m.Role == role {
			n++
		}
	}
	return n
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
