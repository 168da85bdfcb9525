package functional_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/ganot/teamescrow/internal/testserver"
	"github.com/ganot/teamescrow/internal/transport"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T, ts *testserver.TestServer, client access.Actor, budgetUnits int64, selection project.SelectionType) *project.Project {
	t.Helper()
	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	resp := ts.Do(t, client, http.MethodPost, "/projects", project.CreateRequest{
		Title:         "Marketplace checkout",
		Budget:        ledger.Units(budgetUnits),
		TeamSize:      1,
		Roles:         []project.Role{{Name: "Backend", Quantity: 1, Skills: []string{"go"}}},
		SelectionType: selection,
		Timeline:      project.Timeline{StartAt: start, EndAt: start.Add(14 * 24 * time.Hour)},
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))

	var proj project.Project
	resp.Decode(t, &proj)
	return &proj
}

func budgetOf(t *testing.T, ts *testserver.TestServer, actor access.Actor, projectID string) budget.Summary {
	t.Helper()
	resp := ts.Do(t, actor, http.MethodGet, "/projects/"+projectID+"/budget", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var summary budget.Summary
	resp.Decode(t, &summary)
	return summary
}

func TestFunctional_EscrowLifecycle(t *testing.T) {
	ts := testserver.New(t, testserver.Options{
		ReleaseDelay:  300 * time.Millisecond,
		InvitationTTL: time.Hour,
	})
	client := ts.AddClient("client-1", ledger.Units(5000))
	dev := ts.AddFreelancer("dev-1", 4.8, "go", "postgres")

	proj := newProject(t, ts, client, 2000, project.SelectionManual)
	require.Equal(t, ledger.Units(3000), ts.Balance(t, client.ID))

	// First invitation goes unanswered and expires.
	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/members", project.AddMemberRequest{FreelancerID: dev.ID, Role: "Backend"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))

	expired, err := ts.App.Recruiter.ExpireInvitations(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	resp = ts.Do(t, dev, http.MethodPost, "/projects/"+proj.ID+"/invitation", map[string]any{"accept": true})
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, transport.CodeInvalidTransition, resp.ErrorCode(t))

	// Re-invite and accept.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/members", project.AddMemberRequest{FreelancerID: dev.ID, Role: "Backend"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	resp = ts.Do(t, dev, http.MethodPost, "/projects/"+proj.ID+"/invitation", map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var member project.Member
	resp.Decode(t, &member)
	require.Equal(t, project.MemberAccepted, member.Status)

	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/launch", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

	// Task reserves 500.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/tasks", map[string]any{
		"freelancer_id": dev.ID,
		"title":         "Payment webhooks",
		"amount":        ledger.Units(500),
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var tk task.Task
	resp.Decode(t, &tk)
	require.Equal(t, ledger.Units(500), budgetOf(t, ts, client, proj.ID).Committed)

	// Payout of 300 is locked, then released by the scheduler.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": dev.ID,
		"amount":        ledger.Units(300),
		"type":          "fixed",
		"description":   "milestone 1",
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var po payout.Payout
	resp.Decode(t, &po)
	require.Equal(t, payout.StatusLocked, po.Status)

	summary := budgetOf(t, ts, client, proj.ID)
	require.Equal(t, ledger.Units(800), summary.Committed)
	require.Equal(t, ledger.Units(1200), summary.Remaining)

	require.Eventually(t, func() bool {
		return ts.Balance(t, dev.ID) == ledger.Units(300)
	}, 5*time.Second, 50*time.Millisecond)

	resp = ts.Do(t, client, http.MethodGet, "/payouts/"+po.ID, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.Decode(t, &po)
	require.Equal(t, payout.StatusReleased, po.Status)

	// A released payout cannot be cancelled.
	resp = ts.Do(t, client, http.MethodPost, "/payouts/"+po.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusConflict, resp.Status)

	// Cancelling the task refunds the client in full and shrinks the budget.
	resp = ts.Do(t, client, http.MethodPost, "/tasks/"+tk.ID+"/status", map[string]any{
		"status":   "cancelled",
		"reason":   "scope cut",
		"category": "scope_change",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.Equal(t, ledger.Units(3500), ts.Balance(t, client.ID))

	summary = budgetOf(t, ts, client, proj.ID)
	require.Equal(t, ledger.Units(1500), summary.Budget)
	require.Equal(t, ledger.Units(300), summary.Committed)
	require.Equal(t, ledger.Units(1200), summary.Remaining)

	// Cancelling again is rejected without a second refund.
	resp = ts.Do(t, client, http.MethodPost, "/tasks/"+tk.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, ledger.Units(3500), ts.Balance(t, client.ID))

	// Completing the project refunds the unreserved 1200 less 2%.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.Equal(t, ledger.Units(3500+1176), ts.Balance(t, client.ID))

	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, ledger.Units(3500+1176), ts.Balance(t, client.ID))
}

func TestFunctional_AutoHire(t *testing.T) {
	ts := testserver.New(t, testserver.Options{InvitationTTL: time.Hour, MaxInvites: 5})
	client := ts.AddClient("client-1", ledger.Units(5000))
	ts.AddFreelancer("dev-low", 3.0, "go")
	ts.AddFreelancer("dev-high", 4.9, "go")
	ts.AddFreelancer("designer", 5.0, "figma")

	proj := newProject(t, ts, client, 1000, project.SelectionManual)

	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/auto-hire", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

	var out struct {
		Invited []project.Member `json:"invited"`
	}
	resp.Decode(t, &out)
	require.Len(t, out.Invited, 1)
	require.Equal(t, "dev-high", out.Invited[0].FreelancerID)
	require.Equal(t, project.MemberChecking, out.Invited[0].Status)

	// The seat is taken by the pending invitation.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/auto-hire", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.Decode(t, &out)
	require.Empty(t, out.Invited)

	// A decline frees the seat; manual selection leaves it open.
	resp = ts.Do(t, access.Actor{ID: "dev-high", Role: access.RoleFreelancer}, http.MethodPost, "/projects/"+proj.ID+"/invitation", map[string]any{"accept": false})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/auto-hire", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.Decode(t, &out)
	require.Len(t, out.Invited, 1)
	require.Equal(t, "dev-low", out.Invited[0].FreelancerID)
}

func TestFunctional_FreelancerCannotSeeForeignProject(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	client := ts.AddClient("client-1", ledger.Units(5000))
	outsider := ts.AddFreelancer("dev-9", 4.0, "go")

	proj := newProject(t, ts, client, 1000, project.SelectionManual)

	resp := ts.Do(t, outsider, http.MethodGet, "/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusForbidden, resp.Status)

	resp = ts.Do(t, outsider, http.MethodGet, "/projects/"+proj.ID+"/activity", nil)
	require.Equal(t, http.StatusForbidden, resp.Status)
}

// staffedProject creates a launched manual project with dev as its only member.
func staffedProject(t *testing.T, ts *testserver.TestServer, client, dev access.Actor, budgetUnits int64) *project.Project {
	t.Helper()
	proj := newProject(t, ts, client, budgetUnits, project.SelectionManual)
	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/members", project.AddMemberRequest{FreelancerID: dev.ID, Role: "Backend"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	resp = ts.Do(t, dev, http.MethodPost, "/projects/"+proj.ID+"/invitation", map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/launch", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	return proj
}

func moveTask(t *testing.T, ts *testserver.TestServer, actor access.Actor, taskID string, status task.Status) {
	t.Helper()
	resp := ts.Do(t, actor, http.MethodPost, "/tasks/"+taskID+"/status", map[string]any{"status": status})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
}

func TestFunctional_AutoProjectReinvitesAfterExpiry(t *testing.T) {
	ts := testserver.New(t, testserver.Options{
		ReleaseDelay:  300 * time.Millisecond,
		InvitationTTL: time.Hour,
	})
	client := ts.AddClient("client-1", ledger.Units(5000))
	ts.AddFreelancer("dev-high", 4.9, "go")
	devLow := ts.AddFreelancer("dev-low", 3.0, "go")
	// A client listing the same skill is never picked.
	ts.AddClient("client-2", 0)
	p, err := ts.Directory.GetProfile(context.Background(), "client-2")
	require.NoError(t, err)
	p.Skills = []string{"go"}
	p.Rating = 5
	ts.Directory.Put(*p, 0)

	proj := newProject(t, ts, client, 2000, project.SelectionAuto)

	resp := ts.Do(t, client, http.MethodGet, "/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.Decode(t, proj)
	require.Equal(t, project.StatusTeamSelection, proj.Status)
	require.Len(t, proj.Members, 1)
	require.Equal(t, "dev-high", proj.Members[0].FreelancerID)

	expired, err := ts.App.Recruiter.ExpireInvitations(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	resp = ts.Do(t, client, http.MethodGet, "/projects/"+proj.ID, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var reloaded project.Project
	resp.Decode(t, &reloaded)
	require.Len(t, reloaded.Members, 2)
	high, ok := reloaded.Member("dev-high")
	require.True(t, ok)
	require.Equal(t, project.MemberNotAccepted, high.Status)
	low, ok := reloaded.Member(devLow.ID)
	require.True(t, ok)
	require.Equal(t, project.MemberChecking, low.Status)
	require.Equal(t, project.SelectedByAuto, low.SelectedBy)

	resp = ts.Do(t, devLow, http.MethodPost, "/projects/"+proj.ID+"/invitation", map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/launch", nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))

	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/tasks", map[string]any{
		"freelancer_id": devLow.ID,
		"title":         "Ingest service",
		"amount":        ledger.Units(500),
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": devLow.ID,
		"amount":        ledger.Units(300),
		"type":          "fixed",
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	require.Equal(t, ledger.Units(800), budgetOf(t, ts, client, proj.ID).Committed)

	require.Eventually(t, func() bool {
		return ts.Balance(t, devLow.ID) == ledger.Units(300)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFunctional_ClientCannotChargeAnotherUser(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	client := ts.AddClient("client-1", ledger.Units(5000))
	victim := ts.AddClient("client-2", ledger.Units(1000))
	dev := ts.AddFreelancer("dev-1", 4.5, "go")

	proj := staffedProject(t, ts, client, dev, 1000)

	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/tasks", map[string]any{
		"freelancer_id": dev.ID,
		"title":         "Paid by someone else",
		"amount":        ledger.Units(500),
		"payer_id":      victim.ID,
	})
	require.Equal(t, http.StatusForbidden, resp.Status, string(resp.Body))
	require.Equal(t, ledger.Units(1000), ts.Balance(t, victim.ID))
	require.Equal(t, ledger.Units(1000), budgetOf(t, ts, client, proj.ID).Budget)
}

func TestFunctional_CompletedProjectKeepsLockedPayout(t *testing.T) {
	ts := testserver.New(t, testserver.Options{ReleaseDelay: time.Hour})
	client := ts.AddClient("client-1", ledger.Units(5000))
	dev := ts.AddFreelancer("dev-1", 4.5, "go")

	proj := staffedProject(t, ts, client, dev, 2000)

	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": dev.ID,
		"amount":        ledger.Units(300),
		"type":          "fixed",
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var po payout.Payout
	resp.Decode(t, &po)

	// Completion refunds only the unreserved 1700, less 2%.
	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	require.Equal(t, ledger.Units(3000+1666), ts.Balance(t, client.ID))

	resp = ts.Do(t, client, http.MethodPost, "/payouts/"+po.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusConflict, resp.Status, string(resp.Body))

	resp = ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": dev.ID,
		"amount":        ledger.Units(1),
		"type":          "fixed",
	})
	require.Equal(t, http.StatusConflict, resp.Status, string(resp.Body))

	n, err := ts.App.Payouts.ReleaseDue(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, ledger.Units(300), ts.Balance(t, dev.ID))
	require.Equal(t, ledger.Units(3000+1666), ts.Balance(t, client.ID))

	summary := budgetOf(t, ts, client, proj.ID)
	require.Equal(t, ledger.Units(300), summary.Budget)
	require.Equal(t, ledger.Units(300), summary.Committed)
}

func TestFunctional_WithdrawalOfFullyAllocatedBudget(t *testing.T) {
	ts := testserver.New(t, testserver.Options{ReleaseDelay: time.Hour})
	client := ts.AddClient("client-1", ledger.Units(5000))
	dev := ts.AddFreelancer("dev-1", 4.5, "go")

	proj := staffedProject(t, ts, client, dev, 1000)

	resp := ts.Do(t, client, http.MethodPost, "/projects/"+proj.ID+"/tasks", map[string]any{
		"freelancer_id": dev.ID,
		"title":         "Everything",
		"amount":        ledger.Units(1000),
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var tk task.Task
	resp.Decode(t, &tk)
	moveTask(t, ts, dev, tk.ID, task.StatusInProgress)
	moveTask(t, ts, dev, tk.ID, task.StatusSubmitted)
	moveTask(t, ts, client, tk.ID, task.StatusApproved)

	resp = ts.Do(t, dev, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": dev.ID,
		"amount":        ledger.Units(1000),
		"type":          "withdrawal",
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))

	summary := budgetOf(t, ts, client, proj.ID)
	require.Equal(t, ledger.Units(1000), summary.Committed)
	require.Zero(t, summary.Remaining)

	// Earnings are spent.
	resp = ts.Do(t, dev, http.MethodPost, "/projects/"+proj.ID+"/payouts", map[string]any{
		"freelancer_id": dev.ID,
		"amount":        ledger.Units(1),
		"type":          "withdrawal",
	})
	require.Equal(t, http.StatusPaymentRequired, resp.Status, string(resp.Body))
}
