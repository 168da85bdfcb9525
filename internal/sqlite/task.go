package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/ganot/teamescrow/internal/repository"
)

// TaskRepository stores tasks and answers budget sums over them.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `
	id, project_id, freelancer_id, title, description, amount, due_date, status, payer_id,
	cancellation_reason, cancellation_category, rating, review, created_at, updated_at`

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		t.ID,
		t.ProjectID,
		t.FreelancerID,
		t.Title,
		t.Description,
		int64(t.Amount),
		nullTime(t.DueDate),
		t.Status,
		t.PayerID,
		t.CancellationReason,
		t.CancellationCategory,
		nullInt(t.Rating),
		t.Review,
		toUnix(t.CreatedAt),
		toUnix(t.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (r *TaskRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListByProject returns a project's tasks, oldest first.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.conn(ctx).QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// Update writes the task if its stored status still equals from.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task, from task.Status) error {
	query := `
		UPDATE tasks
		SET status = ?, cancellation_reason = ?, cancellation_category = ?, rating = ?, review = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.conn(ctx).ExecContext(ctx, query,
		t.Status,
		t.CancellationReason,
		t.CancellationCategory,
		nullInt(t.Rating),
		t.Review,
		toUnix(t.UpdatedAt),
		t.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return checkAffected(result, repository.ErrConflict)
}

// CountOpen counts tasks that are not approved or cancelled. An empty
// freelancerID counts the whole project.
func (r *TaskRepository) CountOpen(ctx context.Context, projectID, freelancerID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM tasks
		WHERE project_id = ? AND status NOT IN ('approved', 'cancelled') AND (? = '' OR freelancer_id = ?)
	`
	var n int
	if err := r.db.conn(ctx).QueryRowContext(ctx, query, projectID, freelancerID, freelancerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count open tasks: %w", err)
	}
	return n, nil
}

// ActiveTaskTotal sums amounts of tasks that are not cancelled.
func (r *TaskRepository) ActiveTaskTotal(ctx context.Context, projectID string) (ledger.Money, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM tasks
		WHERE project_id = ? AND status != 'cancelled'
	`, projectID)
}

// ApprovedTotal sums the member's approved task amounts.
func (r *TaskRepository) ApprovedTotal(ctx context.Context, projectID, freelancerID string) (ledger.Money, error) {
	return r.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM tasks
		WHERE project_id = ? AND freelancer_id = ? AND status = 'approved'
	`, projectID, freelancerID)
}

func (r *TaskRepository) sum(ctx context.Context, query string, args ...any) (ledger.Money, error) {
	var total int64
	if err := r.db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum tasks: %w", err)
	}
	return ledger.Money(total), nil
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		amount               int64
		dueDate              sql.NullInt64
		rating               sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.FreelancerID,
		&t.Title,
		&t.Description,
		&amount,
		&dueDate,
		&t.Status,
		&t.PayerID,
		&t.CancellationReason,
		&t.CancellationCategory,
		&rating,
		&t.Review,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	t.Amount = ledger.Money(amount)
	t.DueDate = timePtr(dueDate)
	if rating.Valid {
		v := int(rating.Int64)
		t.Rating = &v
	}
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return &t, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
