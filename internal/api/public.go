package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mothercollective/intake/internal/events"
	"github.com/mothercollective/intake/internal/flow"
	"github.com/mothercollective/intake/internal/store"
)

// entry is the smart entry point behind every contributor link: read the
// flags, redirect to the step the contributor should see. Never mutates
// state. Unknown tokens land on the neutral root.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.logger.Error("entry lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	step := flow.StepFor(s.progressFor(r.Context(), c))
	http.Redirect(w, r, stepPath(step, token), http.StatusFound)
}

type reviewResponse struct {
	Name            string `json:"name"`
	AlgorithmText   string `json:"algorithm_text,omitempty"`
	CollectFeedback bool   `json:"collect_feedback"`
	Skip            bool   `json:"skip,omitempty"`
	Next            string `json:"next,omitempty"`
}

// getReview returns the algorithm text for the review step, or a skip
// indication when the preconditions fail (no session, no algorithm text,
// already acknowledged) so the step is safe to hit directly.
func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}

	skip := reviewResponse{Skip: true, Next: "/contribute/" + token}
	if c.SessionID == nil || c.AlgorithmAcknowledgedAt != nil {
		writeJSON(w, http.StatusOK, skip)
		return
	}
	sess, err := s.store.GetSession(r.Context(), *c.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, skip)
			return
		}
		s.logger.Error("load session for review", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}
	if !sess.HasAlgorithmText() {
		writeJSON(w, http.StatusOK, skip)
		return
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		Name:            c.Name,
		AlgorithmText:   *sess.AlgorithmText,
		CollectFeedback: sess.CollectAlgorithmFeedback,
	})
}

// ackReview stamps the acknowledgement and stores feedback when the
// session collects it. A repeated ack is a no-op.
func (s *Server) ackReview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}

	var body struct {
		Feedback string `json:"feedback"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body) // empty body means no feedback
	}

	next := map[string]string{"next": "/contribute/" + token}
	if c.AlgorithmAcknowledgedAt != nil {
		writeJSON(w, http.StatusOK, next)
		return
	}

	var feedback *string
	if trimmed := strings.TrimSpace(body.Feedback); trimmed != "" && c.SessionID != nil {
		if sess, err := s.store.GetSession(r.Context(), *c.SessionID); err == nil && sess.CollectAlgorithmFeedback {
			feedback = &trimmed
		}
	}

	if err := s.store.AcknowledgeAlgorithm(r.Context(), c.ID, feedback); err != nil {
		s.logger.Error("acknowledge algorithm", "contributor_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	s.publishStepCompleted(c, flow.StepReview)
	writeJSON(w, http.StatusOK, next)
}

type contributeResponse struct {
	Name      string               `json:"name"`
	Submitted bool                 `json:"submitted"`
	Draft     flow.AllocationDraft `json:"draft"`
	Next      string               `json:"next,omitempty"`
}

func (s *Server) getContribute(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}

	resp := contributeResponse{Name: c.Name, Draft: c.Draft}
	if c.AllocationPrefsSubmittedAt != nil {
		resp.Submitted = true
		resp.Next = "/interview/" + token
	}
	writeJSON(w, http.StatusOK, resp)
}

// putDraft schedules a coalesced autosave write. The response acknowledges
// receipt, not persistence; the quiet-period flush owns that.
func (s *Server) putDraft(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}
	if c.AllocationPrefsSubmittedAt != nil {
		writeError(w, http.StatusConflict, "allocation preferences already submitted")
		return
	}

	var draft flow.AllocationDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft payload")
		return
	}

	s.saver.Schedule(c.ID, draft)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// submitPrefs validates the sum invariant, finalizes the draft and stamps
// the submission timestamp. Rejected submissions change nothing.
func (s *Server) submitPrefs(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}
	if c.AllocationPrefsSubmittedAt != nil {
		writeError(w, http.StatusConflict, "allocation preferences already submitted")
		return
	}

	var draft flow.AllocationDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft payload")
		return
	}

	if err := flow.ValidateSubmission(draft); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// A pending autosave would race the finalized write; drop it.
	s.saver.Cancel(c.ID)

	final := flow.FinalizeSubmission(draft)
	if err := s.store.SubmitAllocationPrefs(r.Context(), c.ID, final); err != nil {
		if errors.Is(err, store.ErrAlreadySubmitted) {
			writeError(w, http.StatusConflict, "allocation preferences already submitted")
			return
		}
		s.logger.Error("submit allocation prefs", "contributor_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	s.publishStepCompleted(c, flow.StepPreferences)
	writeJSON(w, http.StatusOK, map[string]string{"next": "/interview/" + token})
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type interviewResponse struct {
	Name      string        `json:"name"`
	Completed bool          `json:"completed"`
	Messages  []messageView `json:"messages,omitempty"`
	Next      string        `json:"next,omitempty"`
}

// getInterview returns the transcript, synthesizing the greeting on first
// view. Completed interviews render a terminal state with no transcript.
func (s *Server) getInterview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}
	if c.InterviewCompleted {
		writeJSON(w, http.StatusOK, interviewResponse{Name: c.Name, Completed: true})
		return
	}
	if c.AllocationPrefsSubmittedAt == nil {
		writeJSON(w, http.StatusOK, interviewResponse{Name: c.Name, Next: "/contribute/" + token})
		return
	}

	msgs, err := s.responder.EnsureGreeting(r.Context(), c.ID, c.Name)
	if err != nil {
		s.logger.Error("load interview transcript", "contributor_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, interviewResponse{Name: c.Name, Messages: views})
}

// postMessage proxies one user turn through the interview responder. On
// upstream failure the caller shows its own apology text and may retry by
// sending another message; nothing synthetic is persisted here.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}
	if c.InterviewCompleted {
		writeError(w, http.StatusConflict, "this interview has already been completed")
		return
	}
	if c.AllocationPrefsSubmittedAt == nil {
		writeError(w, http.StatusConflict, "please complete the allocation preferences step first")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message payload")
		return
	}
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	reply, err := s.responder.Reply(r.Context(), c.ID, msg)
	if err != nil {
		s.logger.Error("interview reply failed", "contributor_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate a reply")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": reply})
}

// completeInterview is irreversible, so it demands an explicit confirm flag
// and re-checks the preferences gate even though the UI already did.
func (s *Server) completeInterview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.store.GetContributorByToken(r.Context(), token)
	if err != nil {
		s.contributorLookupError(w, err)
		return
	}
	if c.AllocationPrefsSubmittedAt == nil {
		writeError(w, http.StatusConflict, "please complete the allocation preferences step first")
		return
	}

	var body struct {
		Confirm      bool   `json:"confirm"`
		EvidenceText string `json:"evidence_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !body.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation required to submit the interview")
		return
	}

	if err := s.store.CompleteInterview(r.Context(), c.ID, body.EvidenceText); err != nil {
		if errors.Is(err, store.ErrAlreadySubmitted) {
			writeError(w, http.StatusConflict, "this interview has already been completed")
			return
		}
		s.logger.Error("complete interview", "contributor_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "there was an issue ending the interview, please try again")
		return
	}

	s.events.Publish(events.SubjectInterviewCompleted, events.StepCompleted{
		ContributorID: c.ID.String(),
		SessionID:     sessionIDString(c),
		Step:          string(flow.StepInterview),
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"completed": true})
}

func (s *Server) contributorLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invalid or expired access link")
		return
	}
	s.logger.Error("contributor lookup failed", "error", err)
	writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
}

func (s *Server) publishStepCompleted(c *store.Contributor, step flow.Step) {
	s.events.Publish(events.SubjectStepCompleted, events.StepCompleted{
		ContributorID: c.ID.String(),
		SessionID:     sessionIDString(c),
		Step:          string(step),
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

func sessionIDString(c *store.Contributor) string {
	if c.SessionID == nil {
		return ""
	}
	return c.SessionID.String()
}
