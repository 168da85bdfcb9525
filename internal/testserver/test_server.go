// Package testserver runs the full engine behind httptest for end-to-end tests.
package testserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/app"
	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/escrow"
	"github.com/ganot/teamescrow/internal/mcp"
	"github.com/ganot/teamescrow/internal/sqlite"
	"github.com/ganot/teamescrow/internal/transport"
	"github.com/ganot/teamescrow/internal/userdir"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	Secret  = "test-secret"
	Issuer  = "test-issuer"
	MCPPath = "/mcp"
)

// Options tunes the engine under test.
type Options struct {
	ReleaseDelay  time.Duration
	InvitationTTL time.Duration
	MaxInvites    int
}

type TestServer struct {
	Server    *httptest.Server
	DB        *sqlite.DB
	Directory *userdir.Memory
	App       *app.App
}

// New starts an engine on a private in-memory database with the operator MCP
// endpoint mounted at MCPPath. The escrow scheduler is started so delayed
// releases fire on their own.
func New(t *testing.T, opts Options) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	directory := userdir.NewMemory()
	engine, err := app.New(app.Options{
		DB:            db,
		Directory:     directory,
		ReleaseDelay:  opts.ReleaseDelay,
		InvitationTTL: opts.InvitationTTL,
		MaxInvites:    opts.MaxInvites,
		Escrow: escrow.Config{
			SweepInterval:  time.Hour,
			ExpiryInterval: time.Hour,
		},
	})
	require.NoError(t, err)
	require.NoError(t, engine.Scheduler.Start())

	resolver := transport.NewJWTResolver(Secret, Issuer)
	router := transport.NewServer(engine.Services(), transport.AuthMiddleware(resolver), nil)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Projects:  engine.Projects,
			Payouts:   engine.Payouts,
			Recruiter: engine.Recruiter,
			Activity:  engine.Activity,
		},
		Resolver: resolver,
	})
	router.Handle(MCPPath, sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer }, nil,
	))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		_ = engine.Scheduler.Stop()
		_ = db.Close()
	})

	return &TestServer{
		Server:    server,
		DB:        db,
		Directory: directory,
		App:       engine,
	}
}

// AddClient registers an active client with a balance.
func (ts *TestServer) AddClient(id string, balance ledger.Money) access.Actor {
	ts.Directory.Put(profile.Profile{
		UserID:        id,
		Name:          id,
		Role:          profile.RoleClient,
		AccountStatus: profile.AccountActive,
	}, balance)
	return access.Actor{ID: id, Role: access.RoleClient}
}

// AddFreelancer registers an active freelancer.
func (ts *TestServer) AddFreelancer(id string, rating float64, skills ...string) access.Actor {
	ts.Directory.Put(profile.Profile{
		UserID:        id,
		Name:          id,
		Role:          profile.RoleFreelancer,
		Skills:        skills,
		Rating:        rating,
		Availability:  profile.AvailabilityOnline,
		AccountStatus: profile.AccountActive,
	}, 0)
	return access.Actor{ID: id, Role: access.RoleFreelancer}
}

// Balance reads a user's directory balance.
func (ts *TestServer) Balance(t *testing.T, userID string) ledger.Money {
	t.Helper()
	bal, err := ts.Directory.GetBalance(t.Context(), userID)
	require.NoError(t, err)
	return bal
}

// Token issues a bearer token for actor.
func (ts *TestServer) Token(t *testing.T, actor access.Actor) string {
	t.Helper()
	token, err := transport.IssueToken(Secret, Issuer, actor, time.Hour)
	require.NoError(t, err)
	return token
}

// Response is a decoded API response.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the body into v.
func (r Response) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, v), string(r.Body))
}

// ErrorCode returns the code of an error envelope.
func (r Response) ErrorCode(t *testing.T) string {
	t.Helper()
	var env struct {
		Error transport.ErrorBody `json:"error"`
	}
	r.Decode(t, &env)
	return env.Error.Code
}

// Do sends a JSON request as actor. Extra headers are given as key, value pairs.
func (ts *TestServer) Do(t *testing.T, actor access.Actor, method, path string, body any, headers ...string) Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token(t, actor))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return Response{Status: resp.StatusCode, Body: data}
}
