package userdir

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	if os.Getenv("TEAMESCROW_INTEGRATION") != "1" {
		t.Skip("set TEAMESCROW_INTEGRATION=1 to run directory integration tests")
	}

	ctx := context.Background()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		req := testcontainers.ContainerRequest{
			Image: "postgres:15",
			Env: map[string]string{
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_USER":     "test",
				"POSTGRES_DB":       "marketplace",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}
		pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

		host, err := pg.Host(ctx)
		require.NoError(t, err)
		port, err := pg.MappedPort(ctx, "5432")
		require.NoError(t, err)
		dsn = fmt.Sprintf("postgres://test:test@%s:%s/marketplace?sslmode=disable", host, port.Port())
	}

	dir, err := OpenPostgres(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, dir.Migrate())
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func TestPostgres_AdjustBalance(t *testing.T) {
	dir := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, dir.db.Create(&User{
		ID:            "c1",
		Role:          "client",
		AccountStatus: string(profile.AccountActive),
		Balance:       int64(ledger.Units(100)),
	}).Error)

	bal, err := dir.AdjustBalance(ctx, "c1", -ledger.Units(30), "pg:k1", "debit")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(70), bal)

	bal, err = dir.AdjustBalance(ctx, "c1", -ledger.Units(30), "pg:k1", "debit")
	require.NoError(t, err)
	require.Equal(t, ledger.Units(70), bal)

	_, err = dir.AdjustBalance(ctx, "c1", -ledger.Units(71), "pg:k2", "debit")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	_, err = dir.AdjustBalance(ctx, "ghost", 1, "pg:k3", "credit")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgres_Profiles(t *testing.T) {
	dir := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, dir.db.Create(&[]User{
		{ID: "f1", Role: "freelancer", Skills: []string{"go"}, AccountStatus: "active", Availability: "online"},
		{ID: "f2", Role: "freelancer", Skills: []string{"design"}, AccountStatus: "active"},
		{ID: "f3", Role: "freelancer", Skills: []string{"go"}, AccountStatus: "suspended"},
		{ID: "c1", Role: "client", Skills: []string{"go"}, AccountStatus: "active"},
	}).Error)

	found, err := dir.SearchFreelancers(ctx, profile.SearchQuery{Skills: []string{"Go"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "f1", found[0].UserID)
	require.Equal(t, profile.AvailabilityOnline, found[0].Availability)
	require.Equal(t, profile.RoleFreelancer, found[0].Role)

	require.NoError(t, dir.RecordCompletion(ctx, "f1", 4.5, 1))
	p, err := dir.GetProfile(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, 4.5, p.Rating)
	require.Equal(t, 1, p.CompletedProjects)

	_, err = dir.GetProfile(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}
