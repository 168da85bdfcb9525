package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/payout"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type projectInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project ID"`
}

type setPayoutStatusInput struct {
	PayoutID string `json:"payout_id" jsonschema:"the payout ID"`
	Status   string `json:"status" jsonschema:"released or cancelled"`
}

type listActivityInput struct {
	ProjectID string `json:"project_id" jsonschema:"the project ID"`
	ActorID   string `json:"actor_id,omitempty" jsonschema:"only entries by this actor"`
	Type      string `json:"type,omitempty" jsonschema:"only entries of this activity type"`
	Since     string `json:"since,omitempty" jsonschema:"RFC3339 lower bound on creation time"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of entries"`
	Offset    int    `json:"offset,omitempty" jsonschema:"entries to skip"`
}

type emptyInput struct{}

type countResult struct {
	Count int `json:"count"`
}

func registerTools(server *sdkmcp.Server, svc Services, now func() time.Time) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project_budget",
		Description: "Show a project's budget, committed reservations and remaining amount (cents)",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in projectInput) (*sdkmcp.CallToolResult, any, error) {
		summary, err := svc.Projects.Budget(ctx, actorFrom(ctx), in.ProjectID)
		if err != nil {
			return nil, nil, toolError(err)
		}
		return jsonResult(summary)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "release_due_payouts",
		Description: "Release every locked payout whose release delay has elapsed",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
		n, err := svc.Payouts.ReleaseDue(ctx, now())
		if err != nil {
			return nil, nil, toolError(err)
		}
		return jsonResult(countResult{Count: n})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_payout_status",
		Description: "Release or cancel a locked payout ahead of its scheduled release",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in setPayoutStatusInput) (*sdkmcp.CallToolResult, any, error) {
		p, err := svc.Payouts.SetStatus(ctx, actorFrom(ctx), in.PayoutID, payout.Status(in.Status))
		if err != nil {
			return nil, nil, toolError(err)
		}
		return jsonResult(p)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "trigger_auto_hire",
		Description: "Invite top-ranked freelancers into a project's open roles",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in projectInput) (*sdkmcp.CallToolResult, any, error) {
		invited, err := svc.Recruiter.AutoHire(ctx, actorFrom(ctx), in.ProjectID)
		if err != nil {
			return nil, nil, toolError(err)
		}
		return jsonResult(map[string]any{"invited": invited, "count": len(invited)})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "expire_invitations",
		Description: "Expire unanswered invitations past their deadline and refill the roles",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
		n, err := svc.Recruiter.ExpireInvitations(ctx, now())
		if err != nil {
			return nil, nil, toolError(err)
		}
		return jsonResult(countResult{Count: n})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_activity",
		Description: "List a project's audit log, newest first",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in listActivityInput) (*sdkmcp.CallToolResult, any, error) {
		opts := activity.ListActivityOptions{
			ProjectID: in.ProjectID,
			ActorID:   in.ActorID,
			Limit:     in.Limit,
			Offset:    in.Offset,
		}
		if in.Type != "" {
			typ := activity.ActivityType(in.Type)
			opts.ActivityType = &typ
		}
		if in.Since != "" {
			since, err := time.Parse(time.RFC3339, in.Since)
			if err != nil {
				return nil, nil, fmt.Errorf("since must be RFC3339: %w", err)
			}
			opts.Since = &since
		}
		entries, err := svc.Activity.GetRecentActivity(ctx, opts)
		if err != nil {
			return nil, nil, toolError(err)
		}
		if entries == nil {
			entries = []activity.ActivityEntry{}
		}
		return jsonResult(map[string]any{"activity": entries})
	})
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
