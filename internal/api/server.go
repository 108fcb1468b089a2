package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mothercollective/intake/internal/auth"
	"github.com/mothercollective/intake/internal/autosave"
	"github.com/mothercollective/intake/internal/events"
	"github.com/mothercollective/intake/internal/flow"
	"github.com/mothercollective/intake/internal/store"
)

// Store is the persistence surface the handlers use. *store.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	CreateContributor(ctx context.Context, name string, sessionID *uuid.UUID) (*store.Contributor, error)
	GetContributorByToken(ctx context.Context, token string) (*store.Contributor, error)
	GetContributorByID(ctx context.Context, id uuid.UUID) (*store.Contributor, error)
	ListContributors(ctx context.Context, sessionID *uuid.UUID) ([]store.Contributor, error)
	SaveDraft(ctx context.Context, id uuid.UUID, d flow.AllocationDraft) error
	SubmitAllocationPrefs(ctx context.Context, id uuid.UUID, d flow.AllocationDraft) error
	AcknowledgeAlgorithm(ctx context.Context, id uuid.UUID, feedback *string) error
	CompleteInterview(ctx context.Context, id uuid.UUID, evidenceText string) error
	DeleteContributor(ctx context.Context, id uuid.UUID) error

	CreateSession(ctx context.Context, name string, algorithmText *string, collectFeedback bool) (*store.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, name string, algorithmText *string, collectFeedback bool) error
	GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error)
	ListSessions(ctx context.Context) ([]store.Session, error)

	ListMessages(ctx context.Context, contributorID uuid.UUID) ([]store.Message, error)
}

// Responder produces interview replies and the lazy greeting.
type Responder interface {
	Reply(ctx context.Context, contributorID uuid.UUID, message string) (string, error)
	EnsureGreeting(ctx context.Context, contributorID uuid.UUID, name string) ([]store.Message, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	store     Store
	responder Responder
	saver     *autosave.Saver
	admin     *auth.Admin
	events    *events.Publisher
	logger    *slog.Logger
}

func NewServer(port int, st Store, responder Responder, saver *autosave.Saver, admin *auth.Admin, pub *events.Publisher, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		store:     st,
		responder: responder,
		saver:     saver,
		admin:     admin,
		events:    pub,
		logger:    logger,
	}

	router.Get("/health", s.health)

	// Contributor-facing surface, keyed by access token.
	router.Get("/c/{token}", s.entry)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/review/{token}", s.getReview)
		r.Post("/review/{token}/ack", s.ackReview)
		r.Get("/contribute/{token}", s.getContribute)
		r.Put("/contribute/{token}/draft", s.putDraft)
		r.Post("/contribute/{token}/submit", s.submitPrefs)
		r.Get("/interview/{token}", s.getInterview)
		r.Post("/interview/{token}/messages", s.postMessage)
		r.Post("/interview/{token}/complete", s.completeInterview)

		r.Route("/admin", func(ar chi.Router) {
			ar.Post("/login", s.adminLogin)
			ar.Group(func(pr chi.Router) {
				pr.Use(admin.Require)
				pr.Get("/contributors", s.adminListContributors)
				pr.Post("/contributors", s.adminCreateContributor)
				pr.Delete("/contributors/{id}", s.adminDeleteContributor)
				pr.Get("/contributors/{id}/transcript", s.adminTranscript)
				pr.Get("/sessions", s.adminListSessions)
				pr.Post("/sessions", s.adminCreateSession)
				pr.Put("/sessions/{id}", s.adminUpdateSession)
			})
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// stepPath maps a flow step to the path a contributor should land on.
func stepPath(step flow.Step, token string) string {
	switch step {
	case flow.StepReview:
		return "/review/" + token
	case flow.StepInterview:
		return "/interview/" + token
	default:
		return "/contribute/" + token
	}
}

// progressFor assembles the routing input for a contributor, resolving the
// session only when routing can still depend on it. A dangling session
// reference routes like no session at all.
func (s *Server) progressFor(ctx context.Context, c *store.Contributor) flow.Progress {
	p := flow.Progress{
		InterviewCompleted: c.InterviewCompleted,
		PrefsSubmittedAt:   c.AllocationPrefsSubmittedAt,
		AcknowledgedAt:     c.AlgorithmAcknowledgedAt,
	}
	if c.SessionID == nil || p.InterviewCompleted || p.PrefsSubmittedAt != nil || p.AcknowledgedAt != nil {
		return p
	}
	sess, err := s.store.GetSession(ctx, *c.SessionID)
	if err != nil {
		if err != store.ErrNotFound {
			s.logger.Error("resolve session for routing", "contributor_id", c.ID, "error", err)
		}
		return p
	}
	p.HasSession = true
	p.HasAlgorithmText = sess.HasAlgorithmText()
	return p
}
