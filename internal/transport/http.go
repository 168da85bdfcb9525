package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ganot/teamescrow/internal/domain/access"
	"github.com/ganot/teamescrow/internal/domain/activity"
	"github.com/ganot/teamescrow/internal/domain/budget"
	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/task"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ProjectService is the project lifecycle the API exposes.
type ProjectService interface {
	Create(ctx context.Context, actor access.Actor, req project.CreateRequest) (*project.Project, error)
	Get(ctx context.Context, actor access.Actor, id string) (*project.Project, error)
	List(ctx context.Context, actor access.Actor, opts project.ListOptions) ([]project.Project, error)
	Budget(ctx context.Context, actor access.Actor, id string) (budget.Summary, error)
	Update(ctx context.Context, actor access.Actor, id string, req project.UpdateRequest) (*project.Project, error)
	AddFunds(ctx context.Context, actor access.Actor, id string, amount ledger.Money, idempotencyKey string) (*project.Project, error)
	Delete(ctx context.Context, actor access.Actor, id string) error
	UpdateStatus(ctx context.Context, actor access.Actor, id string, status project.Status) (*project.Project, error)
	Launch(ctx context.Context, actor access.Actor, id string) (*project.Project, error)
	AddMember(ctx context.Context, actor access.Actor, id string, req project.AddMemberRequest) (*project.Member, error)
	RemoveMember(ctx context.Context, actor access.Actor, id, freelancerID string) error
	PromoteMember(ctx context.Context, actor access.Actor, id, freelancerID string) (*project.Member, error)
	RespondInvitation(ctx context.Context, actor access.Actor, id string, accept bool) (*project.Member, error)
}

// TaskService is the task workflow the API exposes.
type TaskService interface {
	Create(ctx context.Context, actor access.Actor, req task.CreateRequest) (*task.Task, error)
	Get(ctx context.Context, actor access.Actor, id string) (*task.Task, error)
	List(ctx context.Context, actor access.Actor, projectID string) ([]task.Task, error)
	Transition(ctx context.Context, actor access.Actor, req task.TransitionRequest) (*task.Task, error)
}

// PayoutService is the escrow payout surface the API exposes.
type PayoutService interface {
	Create(ctx context.Context, actor access.Actor, req payout.CreateRequest) (*payout.Payout, error)
	Get(ctx context.Context, actor access.Actor, id string) (*payout.Payout, error)
	List(ctx context.Context, actor access.Actor, projectID string) ([]payout.Payout, error)
	SetStatus(ctx context.Context, actor access.Actor, id string, status payout.Status) (*payout.Payout, error)
}

// Recruiter runs auto-hire on request.
type Recruiter interface {
	AutoHire(ctx context.Context, actor access.Actor, projectID string) ([]project.Member, error)
}

// ActivityLister reads the audit log.
type ActivityLister interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services bundles the domain services behind the API.
type Services struct {
	Projects   ProjectService
	Tasks      TaskService
	Payouts    PayoutService
	Recruiter  Recruiter
	Activities ActivityLister
}

// Server wires HTTP handlers.
type Server struct {
	svc    Services
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware. Extra handlers
// such as the MCP endpoint can be mounted on the returned router.
func NewServer(svc Services, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Use(IdempotencyMiddleware)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", srv.createProject)
			r.Get("/", srv.listProjects)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.getProject)
				r.Patch("/", srv.updateProject)
				r.Delete("/", srv.deleteProject)
				r.Post("/funds", srv.addFunds)
				r.Post("/status", srv.updateProjectStatus)
				r.Post("/launch", srv.launchProject)
				r.Post("/auto-hire", srv.autoHire)
				r.Get("/budget", srv.getBudget)
				r.Get("/activity", srv.listActivity)
				r.Post("/members", srv.addMember)
				r.Delete("/members/{freelancerId}", srv.removeMember)
				r.Post("/members/{freelancerId}/promote", srv.promoteMember)
				r.Post("/invitation", srv.respondInvitation)
				r.Get("/tasks", srv.listTasks)
				r.Post("/tasks", srv.createTask)
				r.Get("/payouts", srv.listPayouts)
				r.Post("/payouts", srv.createPayout)
			})
		})
		r.Get("/tasks/{id}", srv.getTask)
		r.Post("/tasks/{id}/status", srv.transitionTask)
		r.Get("/payouts/{id}", srv.getPayout)
		r.Post("/payouts/{id}/status", srv.setPayoutStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := MapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func actorFrom(r *http.Request) access.Actor {
	actor, _ := access.FromContext(r.Context())
	return actor
}

// Projects

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req project.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	proj, err := s.svc.Projects.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := project.ListOptions{
		ClientID:     q.Get("client_id"),
		FreelancerID: q.Get("freelancer_id"),
		Limit:        queryInt(q.Get("limit")),
		Offset:       queryInt(q.Get("offset")),
	}
	if v := q.Get("status"); v != "" {
		status := project.Status(v)
		opts.Status = &status
	}
	projects, err := s.svc.Projects.List(r.Context(), actorFrom(r), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": nonNil(projects)})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.svc.Projects.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var req project.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.IdempotencyKey = idempotencyKeyFrom(r)
	proj, err := s.svc.Projects.Update(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Projects.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fundsRequest struct {
	Amount ledger.Money `json:"amount"`
}

func (s *Server) addFunds(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	proj, err := s.svc.Projects.AddFunds(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Amount, idempotencyKeyFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

type projectStatusRequest struct {
	Status project.Status `json:"status"`
}

func (s *Server) updateProjectStatus(w http.ResponseWriter, r *http.Request) {
	var req projectStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	proj, err := s.svc.Projects.UpdateStatus(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) launchProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.svc.Projects.Launch(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) autoHire(w http.ResponseWriter, r *http.Request) {
	invited, err := s.svc.Recruiter.AutoHire(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invited": nonNil(invited)})
}

func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Projects.Budget(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Reading the project applies its visibility rules.
	if _, err := s.svc.Projects.Get(r.Context(), actorFrom(r), id); err != nil {
		s.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := activity.ListActivityOptions{
		ProjectID: id,
		Limit:     queryInt(q.Get("limit")),
		Offset:    queryInt(q.Get("offset")),
	}
	if v := q.Get("type"); v != "" {
		typ := activity.ActivityType(v)
		opts.ActivityType = &typ
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "since must be RFC3339", nil)
			return
		}
		opts.Since = &since
	}

	entries, err := s.svc.Activities.GetRecentActivity(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": nonNil(entries)})
}

// Members

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req project.AddMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	member, err := s.svc.Projects.AddMember(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Projects.RemoveMember(r.Context(), actorFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "freelancerId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) promoteMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.svc.Projects.PromoteMember(r.Context(), actorFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "freelancerId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

type invitationRequest struct {
	Accept bool `json:"accept"`
}

func (s *Server) respondInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	member, err := s.svc.Projects.RespondInvitation(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Accept)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// Tasks

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Tasks.List(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.ProjectID = chi.URLParam(r, "id")
	t, err := s.svc.Tasks.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Tasks.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) transitionTask(w http.ResponseWriter, r *http.Request) {
	var req task.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.TaskID = chi.URLParam(r, "id")
	t, err := s.svc.Tasks.Transition(r.Context(), actorFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Payouts

func (s *Server) listPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := s.svc.Payouts.List(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": nonNil(payouts)})
}

func (s *Server) createPayout(w http.ResponseWriter, r *http.Request) {
	var req payout.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.ProjectID = chi.URLParam(r, "id")
	p, err := s.svc.Payouts.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPayout(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Payouts.Get(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type payoutStatusRequest struct {
	Status payout.Status `json:"status"`
}

func (s *Server) setPayoutStatus(w http.ResponseWriter, r *http.Request) {
	var req payoutStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.svc.Payouts.SetStatus(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
