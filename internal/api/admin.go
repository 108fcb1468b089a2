package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mothercollective/intake/internal/auth"
	"github.com/mothercollective/intake/internal/events"
	"github.com/mothercollective/intake/internal/flow"
	"github.com/mothercollective/intake/internal/store"
)

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	token, err := s.admin.Login(strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error("admin login", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type contributorView struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Token       string     `json:"token"`
	EntryPath   string     `json:"entry_path"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"interview_completed_at,omitempty"`
}

func (s *Server) contributorView(c store.Contributor) contributorView {
	// The review gate only affects routing, never the status label, so the
	// badge derives from the flags alone via the same stage machine the
	// entry redirector uses.
	stage := flow.StageOf(flow.Progress{
		InterviewCompleted: c.InterviewCompleted,
		PrefsSubmittedAt:   c.AllocationPrefsSubmittedAt,
		AcknowledgedAt:     c.AlgorithmAcknowledgedAt,
	})
	return contributorView{
		ID:          c.ID,
		Name:        c.Name,
		Token:       c.Token,
		EntryPath:   "/c/" + c.Token,
		SessionID:   c.SessionID,
		CreatedAt:   c.CreatedAt,
		Status:      flow.StatusLabel(stage),
		CompletedAt: c.InterviewCompletedAt,
	}
}

func (s *Server) adminListContributors(w http.ResponseWriter, r *http.Request) {
	var sessionID *uuid.UUID
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		sessionID = &id
	}

	contributors, err := s.store.ListContributors(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("list contributors", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	views := make([]contributorView, 0, len(contributors))
	for _, c := range contributors {
		views = append(views, s.contributorView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) adminCreateContributor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string     `json:"name"`
		SessionID *uuid.UUID `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c, err := s.store.CreateContributor(r.Context(), name, body.SessionID)
	if err != nil {
		s.logger.Error("create contributor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add contributor")
		return
	}

	s.events.Publish(events.SubjectContributorCreated, events.StepCompleted{
		ContributorID: c.ID.String(),
		SessionID:     sessionIDString(c),
		Step:          "created",
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusCreated, s.contributorView(*c))
}

func (s *Server) adminDeleteContributor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contributor id")
		return
	}

	if err := s.store.DeleteContributor(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contributor not found")
			return
		}
		s.logger.Error("delete contributor", "contributor_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete contributor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contributor id")
		return
	}

	c, err := s.store.GetContributorByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "contributor not found")
			return
		}
		s.logger.Error("load contributor", "contributor_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("load transcript", "contributor_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contributor": s.contributorView(*c),
		"messages":    views,
	})
}

type sessionView struct {
	ID                       uuid.UUID `json:"id"`
	Name                     string    `json:"name"`
	AlgorithmText            string    `json:"algorithm_text,omitempty"`
	CollectAlgorithmFeedback bool      `json:"collect_algorithm_feedback"`
	CreatedAt                time.Time `json:"created_at"`
}

func toSessionView(sess store.Session) sessionView {
	v := sessionView{
		ID:                       sess.ID,
		Name:                     sess.Name,
		CollectAlgorithmFeedback: sess.CollectAlgorithmFeedback,
		CreatedAt:                sess.CreatedAt,
	}
	if sess.AlgorithmText != nil {
		v.AlgorithmText = *sess.AlgorithmText
	}
	return v
}

type sessionPayload struct {
	Name                     string `json:"name"`
	AlgorithmText            string `json:"algorithm_text"`
	CollectAlgorithmFeedback bool   `json:"collect_algorithm_feedback"`
}

func (p sessionPayload) algorithmText() *string {
	if trimmed := strings.TrimSpace(p.AlgorithmText); trimmed != "" {
		return &trimmed
	}
	return nil
}

func (s *Server) adminListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, toSessionView(sess))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) adminCreateSession(w http.ResponseWriter, r *http.Request) {
	var body sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	sess, err := s.store.CreateSession(r.Context(), strings.TrimSpace(body.Name), body.algorithmText(), body.CollectAlgorithmFeedback)
	if err != nil {
		s.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(*sess))
}

func (s *Server) adminUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var body sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.store.UpdateSession(r.Context(), id, strings.TrimSpace(body.Name), body.algorithmText(), body.CollectAlgorithmFeedback); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("update session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update session")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.logger.Error("reload session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*sess))
}
