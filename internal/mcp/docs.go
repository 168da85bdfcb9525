package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `teamescrow holds client money for team projects and pays freelancers out of escrow.

Operator tools (all amounts are integer cents):
- get_project_budget: budget, committed (active tasks + active payouts) and remaining.
- release_due_payouts: run the release sweep now instead of waiting for the scheduler.
- set_payout_status: release or cancel one locked payout early.
- trigger_auto_hire: invite ranked freelancers into open roles.
- expire_invitations: expire unanswered invitations and refill the roles.
- list_activity: read the audit log for a project.

Docs:
- escrow://docs/index
- escrow://docs/runbook
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "escrow://docs/index",
		Name:        "docs_index",
		Title:       "teamescrow operator docs",
		Description: "Money flows, statuses and the background jobs.",
		Content: `# teamescrow

## Money flows

- Project creation debits the client for the budget. Raising the budget debits the difference.
- Lowering the budget, deleting a project or cancelling it refunds the unreserved part minus a 2% fee.
- A task reserves its amount against the budget. A third-party payer is debited and the budget grows by
  the task amount. Cancelling a task refunds its payer in full and lowers the budget.
- A payout reserves its amount and locks it. After the release delay it is credited to the freelancer.

## Reservations

committed = sum(active task amounts) + sum(active payout amounts). Every reservation must fit in
budget - committed. Task amounts and payout amounts are counted separately.

## Background jobs

- escrow_sweep (every minute): releases due payouts and replays pending balance adjustments.
- invitation_expiry (hourly): invitations left unanswered past the TTL become not_accepted and the
  role is refilled when the project uses auto or mixed selection.
`,
	},
	{
		URI:         "escrow://docs/runbook",
		Name:        "docs_runbook",
		Title:       "teamescrow runbook",
		Description: "What to do when payouts or balances look wrong.",
		Content: `# Runbook

## A payout did not release

1. get_project_budget to confirm the project exists.
2. list_activity with type=payout_released. If it is missing, run release_due_payouts.
3. If the payout must be stopped, set_payout_status with status=cancelled while it is still locked.

## A refund or credit did not arrive

Credits and refunds are written to an outbox in the same transaction as the business change and
applied after commit. The sweep retries anything still pending, so a directory outage heals on its
own. Check the logs for "replaying adjustment" entries.

## A role stays unfilled

Run expire_invitations, then trigger_auto_hire. Auto-hire skips current members and freelancers
without a matching skill.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
