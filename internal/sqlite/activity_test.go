package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/stretchr/testify/require"
)

func entry(projectID, summary string) *activity.ActivityEntry {
	return &activity.ActivityEntry{
		ProjectID:    projectID,
		ActorID:      "c1",
		ActivityType: activity.TypeProjectUpdated,
		Summary:      summary,
	}
}

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActorID:      "c1",
		ActivityType: activity.TypeProjectCreated,
		Summary:      "Created project",
		Details:      `{"budget":"5000.00"}`,
		Amount:       ledger.Units(5000),
	}
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActorID:      "c1",
		ActivityType: activity.TypeTaskCreated,
		Summary:      "Created task",
	}

	require.NoError(t, repo.Log(ctx, entry1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Log(ctx, entry2))
	require.NotZero(t, entry1.ID)

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.Equal(t, ledger.Units(5000), entries[1].Amount)
	require.Equal(t, `{"budget":"5000.00"}`, entries[1].Details)
}

func TestActivityRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID: "p1", ActorID: "c1", ActivityType: activity.TypeProjectCreated, Summary: "old", CreatedAt: old,
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID: "p1", ActorID: "f1", ActivityType: activity.TypeTaskTransition, Summary: "moved",
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID: "p2", ActorID: "c2", ActivityType: activity.TypeProjectCreated, Summary: "other",
	}))

	entries, err := repo.List(ctx, activity.ListActivityOptions{ActorID: "f1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "moved", entries[0].Summary)

	created := activity.TypeProjectCreated
	entries, err = repo.List(ctx, activity.ListActivityOptions{ActivityType: &created})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	since := old.Add(time.Minute)
	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", Since: &since})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "old", entries[0].Summary)
}
