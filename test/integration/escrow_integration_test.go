package integration_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/app"
	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/sqlite"
	"github.com/ganot/teamescrow/internal/userdir"
	"github.com/stretchr/testify/require"
)

var errDirectoryDown = errors.New("directory unavailable")

// flakyDirectory rejects credits while down.
type flakyDirectory struct {
	*userdir.Memory
	down atomic.Bool
}

func (d *flakyDirectory) AdjustBalance(ctx context.Context, userID string, delta ledger.Money, key, reason string) (ledger.Money, error) {
	if d.down.Load() && delta > 0 {
		return 0, errDirectoryDown
	}
	return d.Memory.AdjustBalance(ctx, userID, delta, key, reason)
}

type testEnv struct {
	db        *sqlite.DB
	directory *flakyDirectory
	engine    *app.App

	client access.Actor
	dev    access.Actor
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	directory := &flakyDirectory{Memory: userdir.NewMemory()}
	directory.Put(profile.Profile{UserID: "client-1", Role: profile.RoleClient, AccountStatus: profile.AccountActive}, ledger.Units(5000))
	directory.Put(profile.Profile{UserID: "dev-1", Role: profile.RoleFreelancer, Skills: []string{"go"}, AccountStatus: profile.AccountActive}, 0)

	engine, err := app.New(app.Options{
		DB:            db,
		Directory:     directory,
		InvitationTTL: time.Hour,
	})
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		directory: directory,
		engine:    engine,
		client:    access.Actor{ID: "client-1", Role: access.RoleClient},
		dev:       access.Actor{ID: "dev-1", Role: access.RoleFreelancer},
	}
}

func (e *testEnv) balance(t *testing.T, userID string) ledger.Money {
	t.Helper()
	bal, err := e.directory.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return bal
}

func (e *testEnv) projectWithTeam(t *testing.T, budgetUnits int64) *project.Project {
	t.Helper()
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	proj, err := e.engine.Projects.Create(ctx, e.client, project.CreateRequest{
		Title:    "Data pipeline",
		Budget:   ledger.Units(budgetUnits),
		TeamSize: 1,
		Roles:    []project.Role{{Name: "Backend", Quantity: 1, Skills: []string{"go"}}},
		Timeline: project.Timeline{StartAt: start, EndAt: start.Add(7 * 24 * time.Hour)},
	})
	require.NoError(t, err)

	_, err = e.engine.Projects.AddMember(ctx, e.client, proj.ID, project.AddMemberRequest{FreelancerID: e.dev.ID, Role: "Backend"})
	require.NoError(t, err)
	_, err = e.engine.Projects.RespondInvitation(ctx, e.dev, proj.ID, true)
	require.NoError(t, err)
	return proj
}

func TestIntegration_RefundReplayedAfterDirectoryOutage(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	proj := env.projectWithTeam(t, 2000)
	require.Equal(t, ledger.Units(3000), env.balance(t, env.client.ID))

	env.directory.down.Store(true)
	_, err := env.engine.Projects.UpdateStatus(ctx, env.client, proj.ID, project.StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, ledger.Units(3000), env.balance(t, env.client.ID))

	// The sweep cannot apply it yet either.
	require.Error(t, env.engine.Scheduler.Sweep(ctx))
	require.Equal(t, ledger.Units(3000), env.balance(t, env.client.ID))

	env.directory.down.Store(false)
	require.NoError(t, env.engine.Scheduler.Sweep(ctx))
	require.Equal(t, ledger.Units(3000+1960), env.balance(t, env.client.ID))

	// Replaying again never pays twice.
	require.NoError(t, env.engine.Scheduler.Sweep(ctx))
	require.Equal(t, ledger.Units(3000+1960), env.balance(t, env.client.ID))

	entries, err := env.engine.Activity.GetRecentActivity(ctx, activity.ListActivityOptions{ProjectID: proj.ID})
	require.NoError(t, err)
	refunds := 0
	for _, e := range entries {
		if e.ActivityType == activity.TypeBudgetRefunded {
			refunds++
		}
	}
	require.Equal(t, 1, refunds)
}

func TestIntegration_ConcurrentReleaseCreditsOnce(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	proj := env.projectWithTeam(t, 2000)
	po, err := env.engine.Payouts.Create(ctx, env.client, payout.CreateRequest{
		ProjectID:    proj.ID,
		FreelancerID: env.dev.ID,
		Amount:       ledger.Units(300),
		Type:         payout.TypeFixed,
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		released atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.engine.Payouts.ReleaseIfLocked(ctx, po.ID)
			if err == nil && ok {
				released.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), released.Load())
	require.Equal(t, ledger.Units(300), env.balance(t, env.dev.ID))

	// The sweep finds nothing left to release.
	n, err := env.engine.Payouts.ReleaseDue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIntegration_ReservationsNeverExceedBudget(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	proj := env.projectWithTeam(t, 1000)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Payouts.Create(ctx, env.client, payout.CreateRequest{
				ProjectID:    proj.ID,
				FreelancerID: env.dev.ID,
				Amount:       ledger.Units(300),
				Type:         payout.TypeFixed,
			})
			if err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(3), created.Load())
	summary, err := env.engine.Projects.Budget(ctx, env.client, proj.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.Units(900), summary.Committed)
	require.Equal(t, ledger.Units(100), summary.Remaining)
}
