package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/ganot/teamescrow/internal/repository"
	"github.com/stretchr/testify/require"
)

func newTask(id, projectID, freelancerID string, amount ledger.Money, status task.Status) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:           id,
		ProjectID:    projectID,
		FreelancerID: freelancerID,
		Title:        "Task " + id,
		Amount:       amount,
		Status:       status,
		PayerID:      "c1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestTaskRepository_CreateGetUpdate(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	insertProject(t, db, "p1", "c1")

	due := time.Now().UTC().Add(72 * time.Hour)
	tk := newTask("t1", "p1", "f1", ledger.Units(300), task.StatusPending)
	tk.DueDate = &due
	require.NoError(t, repo.Create(ctx, tk))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(300), got.Amount)
	require.NotNil(t, got.DueDate)
	require.Nil(t, got.Rating)

	rating := 4
	got.Status = task.StatusApproved
	got.Rating = &rating
	got.Review = "solid"
	require.NoError(t, repo.Update(ctx, got, task.StatusPending))

	// Stale status loses.
	got.Status = task.StatusCancelled
	require.Equal(t, repository.ErrConflict, repo.Update(ctx, got, task.StatusPending))

	got, err = repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, task.StatusApproved, got.Status)
	require.Equal(t, 4, *got.Rating)

	_, err = repo.Get(ctx, "missing")
	require.Equal(t, repository.ErrNotFound, err)

	err = repo.Create(ctx, newTask("t2", "missing", "f1", 1, task.StatusPending))
	require.Equal(t, repository.ErrForeignKeyViolation, err)
}

func TestTaskRepository_Totals(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTaskRepository(db)
	ctx := context.Background()
	insertProject(t, db, "p1", "c1")

	require.NoError(t, repo.Create(ctx, newTask("t1", "p1", "f1", ledger.Units(100), task.StatusPending)))
	require.NoError(t, repo.Create(ctx, newTask("t2", "p1", "f1", ledger.Units(200), task.StatusApproved)))
	require.NoError(t, repo.Create(ctx, newTask("t3", "p1", "f2", ledger.Units(400), task.StatusCancelled)))
	require.NoError(t, repo.Create(ctx, newTask("t4", "p1", "f2", ledger.Units(50), task.StatusSubmitted)))

	total, err := repo.ActiveTaskTotal(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(350), total)

	approved, err := repo.ApprovedTotal(ctx, "p1", "f1")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(200), approved)

	open, err := repo.CountOpen(ctx, "p1", "")
	require.NoError(t, err)
	require.Equal(t, 2, open)

	open, err = repo.CountOpen(ctx, "p1", "f2")
	require.NoError(t, err)
	require.Equal(t, 1, open)

	tasks, err := repo.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	total, err = repo.ActiveTaskTotal(ctx, "empty")
	require.NoError(t, err)
	require.Zero(t, total)
}
