// Package mcp exposes operator tools for the escrow engine over the Model
// Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// BudgetReader reports a project's budget position.
type BudgetReader interface {
	Budget(ctx context.Context, actor access.Actor, id string) (budget.Summary, error)
}

// PayoutOperator releases and settles payouts.
type PayoutOperator interface {
	ReleaseDue(ctx context.Context, now time.Time) (int, error)
	SetStatus(ctx context.Context, actor access.Actor, id string, status payout.Status) (*payout.Payout, error)
}

// Recruiter runs auto-hire and invitation expiry.
type Recruiter interface {
	AutoHire(ctx context.Context, actor access.Actor, projectID string) ([]project.Member, error)
	ExpireInvitations(ctx context.Context, now time.Time) (int, error)
}

// ActivityService reads the audit log.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains the domain services the tools drive.
type Services struct {
	Projects  BudgetReader
	Payouts   PayoutOperator
	Recruiter Recruiter
	Activity  ActivityService
}

// Config contains server configuration.
type Config struct {
	Services Services
	// Resolver authenticates HTTP callers. Nil runs every call as the system
	// actor, which is only appropriate for stdio.
	Resolver ActorResolver
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "teamescrow",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	if cfg.Resolver != nil {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(systemActorMiddleware())
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Now)

	return server
}
