package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/repository"
)

// ProjectRepository stores projects and their team members.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `
	id, client_id, title, description, budget, team_size, roles, skills_required,
	selection_type, status, start_at, end_at, completed_at, archived_at, created_at, updated_at`

// Create creates a new project and any members it already carries.
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	roles, skills, err := encodeRoles(proj)
	if err != nil {
		return err
	}

	query := `INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.conn(ctx).ExecContext(ctx, query,
		proj.ID,
		proj.ClientID,
		proj.Title,
		proj.Description,
		int64(proj.Budget),
		proj.TeamSize,
		roles,
		skills,
		proj.SelectionType,
		proj.Status,
		toUnix(proj.Timeline.StartAt),
		toUnix(proj.Timeline.EndAt),
		nullTime(proj.CompletedAt),
		nullTime(proj.ArchivedAt),
		toUnix(proj.CreatedAt),
		toUnix(proj.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	for i := range proj.Members {
		if err := r.UpsertMember(ctx, &proj.Members[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a project by ID with its members.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	proj, err := scanProject(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	proj.Members, err = r.members(ctx, id)
	if err != nil {
		return nil, err
	}
	return proj, nil
}

// List returns projects matching the options, newest first.
func (r *ProjectRepository) List(ctx context.Context, opts project.ListOptions) ([]project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`

	var (
		conditions []string
		args       []any
	)
	if opts.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, opts.ClientID)
	}
	if opts.FreelancerID != "" {
		conditions = append(conditions, "id IN (SELECT project_id FROM team_members WHERE freelancer_id = ?)")
		args = append(args, opts.FreelancerID)
	}
	if opts.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *opts.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var projects []project.Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}
	// Release the connection before loading members.
	rows.Close()

	for i := range projects {
		projects[i].Members, err = r.members(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// Update overwrites the mutable project fields.
func (r *ProjectRepository) Update(ctx context.Context, proj *project.Project) error {
	roles, skills, err := encodeRoles(proj)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects
		SET title = ?, description = ?, budget = ?, team_size = ?, roles = ?, skills_required = ?,
			selection_type = ?, status = ?, start_at = ?, end_at = ?, completed_at = ?, archived_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		proj.Title,
		proj.Description,
		int64(proj.Budget),
		proj.TeamSize,
		roles,
		skills,
		proj.SelectionType,
		proj.Status,
		toUnix(proj.Timeline.StartAt),
		toUnix(proj.Timeline.EndAt),
		nullTime(proj.CompletedAt),
		nullTime(proj.ArchivedAt),
		toUnix(proj.UpdatedAt),
		proj.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return checkAffected(result, repository.ErrNotFound)
}

// Delete removes a project; members, tasks and payouts cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return checkAffected(result, repository.ErrNotFound)
}

// UpsertMember inserts or replaces the member row for (project, freelancer).
func (r *ProjectRepository) UpsertMember(ctx context.Context, m *project.Member) error {
	query := `
		INSERT INTO team_members (project_id, freelancer_id, role, status, selected_by, selected_at, responded_at, is_lead)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, freelancer_id) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			selected_by = excluded.selected_by,
			selected_at = excluded.selected_at,
			responded_at = excluded.responded_at,
			is_lead = excluded.is_lead
	`
	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		m.ProjectID,
		m.FreelancerID,
		m.Role,
		m.Status,
		m.SelectedBy,
		toUnix(m.SelectedAt),
		nullTime(m.RespondedAt),
		m.IsLead,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to upsert team member: %w", err)
	}
	return nil
}

// DeleteMember removes a member row.
func (r *ProjectRepository) DeleteMember(ctx context.Context, projectID, freelancerID string) error {
	result, err := r.db.conn(ctx).ExecContext(ctx,
		`DELETE FROM team_members WHERE project_id = ? AND freelancer_id = ?`, projectID, freelancerID)
	if err != nil {
		return fmt.Errorf("failed to delete team member: %w", err)
	}
	return checkAffected(result, repository.ErrNotFound)
}

// SetLead makes freelancerID the only lead of the project.
func (r *ProjectRepository) SetLead(ctx context.Context, projectID, freelancerID string) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.db.conn(ctx).ExecContext(ctx,
			`UPDATE team_members SET is_lead = 0 WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to clear team lead: %w", err)
		}
		result, err := r.db.conn(ctx).ExecContext(ctx,
			`UPDATE team_members SET is_lead = 1 WHERE project_id = ? AND freelancer_id = ?`, projectID, freelancerID)
		if err != nil {
			return fmt.Errorf("failed to set team lead: %w", err)
		}
		return checkAffected(result, repository.ErrNotFound)
	})
}

// ListExpiredInvitations returns checking members selected at or before cutoff.
func (r *ProjectRepository) ListExpiredInvitations(ctx context.Context, cutoff time.Time) ([]project.Member, error) {
	query := `
		SELECT project_id, freelancer_id, role, status, selected_by, selected_at, responded_at, is_lead
		FROM team_members
		WHERE status = 'checking' AND selected_at <= ?
		ORDER BY selected_at ASC
	`
	return r.queryMembers(ctx, query, toUnix(cutoff))
}

// ExpireMember flips a stale invitation to not_accepted.
func (r *ProjectRepository) ExpireMember(ctx context.Context, projectID, freelancerID string, cutoff, at time.Time) error {
	query := `
		UPDATE team_members
		SET status = 'not_accepted', responded_at = ?
		WHERE project_id = ? AND freelancer_id = ? AND status = 'checking' AND selected_at <= ?
	`
	result, err := r.db.conn(ctx).ExecContext(ctx, query, toUnix(at), projectID, freelancerID, toUnix(cutoff))
	if err != nil {
		return fmt.Errorf("failed to expire invitation: %w", err)
	}
	return checkAffected(result, repository.ErrConflict)
}

func (r *ProjectRepository) members(ctx context.Context, projectID string) ([]project.Member, error) {
	query := `
		SELECT project_id, freelancer_id, role, status, selected_by, selected_at, responded_at, is_lead
		FROM team_members
		WHERE project_id = ?
		ORDER BY selected_at ASC, freelancer_id ASC
	`
	return r.queryMembers(ctx, query, projectID)
}

func (r *ProjectRepository) queryMembers(ctx context.Context, query string, args ...any) ([]project.Member, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []project.Member
	for rows.Next() {
		var (
			m           project.Member
			selectedAt  int64
			respondedAt sql.NullInt64
		)
		if err := rows.Scan(
			&m.ProjectID,
			&m.FreelancerID,
			&m.Role,
			&m.Status,
			&m.SelectedBy,
			&selectedAt,
			&respondedAt,
			&m.IsLead,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		m.SelectedAt = fromUnix(selectedAt)
		m.RespondedAt = timePtr(respondedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team member rows: %w", err)
	}
	return members, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*project.Project, error) {
	var (
		proj                  project.Project
		budget                int64
		roles, skills         string
		startAt, endAt        int64
		completedAt, archived sql.NullInt64
		createdAt, updatedAt  int64
	)
	if err := row.Scan(
		&proj.ID,
		&proj.ClientID,
		&proj.Title,
		&proj.Description,
		&budget,
		&proj.TeamSize,
		&roles,
		&skills,
		&proj.SelectionType,
		&proj.Status,
		&startAt,
		&endAt,
		&completedAt,
		&archived,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &proj.Roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &proj.SkillsRequired); err != nil {
		return nil, fmt.Errorf("failed to decode skills: %w", err)
	}
	proj.Budget = ledger.Money(budget)
	proj.Timeline.StartAt = fromUnix(startAt)
	proj.Timeline.EndAt = fromUnix(endAt)
	proj.CompletedAt = timePtr(completedAt)
	proj.ArchivedAt = timePtr(archived)
	proj.CreatedAt = fromUnix(createdAt)
	proj.UpdatedAt = fromUnix(updatedAt)
	return &proj, nil
}

func encodeRoles(proj *project.Project) (string, string, error) {
	roles, err := json.Marshal(proj.Roles)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode roles: %w", err)
	}
	skills := proj.SkillsRequired
	if skills == nil {
		skills = []string{}
	}
	encoded, err := json.Marshal(skills)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode skills: %w", err)
	}
	return string(roles), string(encoded), nil
}
