package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mothercollective/intake/internal/anthropic"
	"github.com/mothercollective/intake/internal/auth"
	"github.com/mothercollective/intake/internal/autosave"
	"github.com/mothercollective/intake/internal/flow"
	"github.com/mothercollective/intake/internal/interview"
	"github.com/mothercollective/intake/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ []anthropic.Message, _ int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type testEnv struct {
	srv   *Server
	mem   *memStore
	llm   *fakeCompleter
	saver *autosave.Saver
	admin *auth.Admin
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := newMemStore()
	llm := &fakeCompleter{reply: "Thanks for sharing. Tell me more?"}
	logger := discardLogger()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	admin := auth.NewAdmin("test-secret", "admin@example.com", string(hash))

	saver := autosave.New(20*time.Millisecond, mem.SaveDraft, logger)
	t.Cleanup(saver.Close)

	responder := interview.New(llm, mem, logger)
	srv := NewServer(0, mem, responder, saver, admin, nil, logger)
	return &testEnv{srv: srv, mem: mem, llm: llm, saver: saver, admin: admin}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := e.admin.Login("admin@example.com", "hunter2")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	return tok
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func fullVotes() map[string]int {
	return map[string]int{
		"core_team":          20,
		"contributors":       10,
		"network_rewards":    30,
		"ecosystem_partners": 15,
		"treasury":           25,
	}
}

func seedContributor(t *testing.T, mem *memStore, sessionID *uuid.UUID) *store.Contributor {
	t.Helper()
	c, err := mem.CreateContributor(context.Background(), "Ada", sessionID)
	if err != nil {
		t.Fatalf("seed contributor: %v", err)
	}
	return c
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestEntry_Redirects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	algText := "score = shipped * peer_weight"
	withAlg, _ := env.mem.CreateSession(ctx, "Q1", &algText, false)
	noAlg, _ := env.mem.CreateSession(ctx, "Q2", nil, false)

	fresh := seedContributor(t, env.mem, nil)
	gated := seedContributor(t, env.mem, &withAlg.ID)
	skipped := seedContributor(t, env.mem, &noAlg.ID)

	acked := seedContributor(t, env.mem, &withAlg.ID)
	env.mem.AcknowledgeAlgorithm(ctx, acked.ID, nil)

	submitted := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(ctx, submitted.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	done := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(ctx, done.ID, flow.AllocationDraft{BucketVotes: fullVotes()})
	env.mem.CompleteInterview(ctx, done.ID, "")

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"no session and no progress", fresh.Token, "/contribute/" + fresh.Token},
		{"session with algorithm text", gated.Token, "/review/" + gated.Token},
		{"session without algorithm text", skipped.Token, "/contribute/" + skipped.Token},
		{"acknowledged lands on preferences not review", acked.Token, "/contribute/" + acked.Token},
		{"prefs submitted", submitted.Token, "/interview/" + submitted.Token},
		{"completed", done.Token, "/interview/" + done.Token},
		{"unknown token", "nope", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/c/"+tt.token, nil)
			if w.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", w.Code)
			}
			if got := w.Header().Get("Location"); got != tt.want {
				t.Errorf("expected redirect to %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEntry_NeverMutatesState(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)

	before := env.mem.contributor(t, c.ID)
	for i := 0; i < 3; i++ {
		env.do(t, "GET", "/c/"+c.Token, nil)
	}
	after := env.mem.contributor(t, c.ID)

	if before.AlgorithmAcknowledgedAt != after.AlgorithmAcknowledgedAt ||
		before.AllocationPrefsSubmittedAt != after.AllocationPrefsSubmittedAt ||
		before.InterviewCompleted != after.InterviewCompleted {
		t.Error("entry redirect mutated contributor state")
	}
	if env.mem.messageCount(c.ID) != 0 {
		t.Error("entry redirect persisted messages")
	}
}

func TestSubmitPrefs_SumInvariant(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)

	// Sum of 97 with defer unset: rejected, no state change.
	short := fullVotes()
	short["treasury"] = 22
	w := env.do(t, "POST", "/api/v1/contribute/"+c.Token+"/submit", flow.AllocationDraft{BucketVotes: short})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for sum=97, got %d", w.Code)
	}
	if got := env.mem.contributor(t, c.ID); got.AllocationPrefsSubmittedAt != nil {
		t.Fatal("rejected submission must not stamp the timestamp")
	}

	// Same votes with bucket-defer set: accepted, votes cleared.
	w = env.do(t, "POST", "/api/v1/contribute/"+c.Token+"/submit", flow.AllocationDraft{
		BucketDeferred: true,
		BucketVotes:    short,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for deferred submission, got %d: %s", w.Code, w.Body.String())
	}
	got := env.mem.contributor(t, c.ID)
	if got.AllocationPrefsSubmittedAt == nil {
		t.Fatal("expected submission timestamp stamped")
	}
	if got.Draft.BucketVotes != nil {
		t.Errorf("expected bucket votes cleared on deferred submit, got %v", got.Draft.BucketVotes)
	}

	body := decode[map[string]string](t, w)
	if body["next"] != "/interview/"+c.Token {
		t.Errorf("expected next step interview, got %q", body["next"])
	}
}

func TestSubmitPrefs_SecondSubmissionConflicts(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)

	first := env.do(t, "POST", "/api/v1/contribute/"+c.Token+"/submit", flow.AllocationDraft{BucketVotes: fullVotes()})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	second := env.do(t, "POST", "/api/v1/contribute/"+c.Token+"/submit", flow.AllocationDraft{BucketVotes: fullVotes()})
	if second.Code != http.StatusConflict {
		t.Errorf("expected 409 on resubmission, got %d", second.Code)
	}
}

func TestPutDraft_CoalescesIntoOneSave(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)

	for i := 1; i <= 4; i++ {
		draft := flow.AllocationDraft{BucketRationale: fmt.Sprintf("edit %d", i)}
		w := env.do(t, "PUT", "/api/v1/contribute/"+c.Token+"/draft", draft)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", w.Code)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.mem.draftSaves() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if got := env.mem.draftSaves(); got != 1 {
		t.Errorf("expected 4 edits to coalesce into 1 save, got %d", got)
	}
	if got := env.mem.contributor(t, c.ID).Draft.BucketRationale; got != "edit 4" {
		t.Errorf("expected last edit persisted, got %q", got)
	}
}

func TestPutDraft_AfterSubmissionRejected(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(context.Background(), c.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	w := env.do(t, "PUT", "/api/v1/contribute/"+c.Token+"/draft", flow.AllocationDraft{BucketRationale: "too late"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 after submission, got %d", w.Code)
	}
}

func TestReview_ContentAndSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	algText := "score = shipped * peer_weight"
	sess, _ := env.mem.CreateSession(ctx, "Q1", &algText, true)
	gated := seedContributor(t, env.mem, &sess.ID)
	fresh := seedContributor(t, env.mem, nil)

	t.Run("algorithm text shown verbatim", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/review/"+gated.Token, nil)
		resp := decode[reviewResponse](t, w)
		if resp.Skip {
			t.Fatal("expected content, got skip")
		}
		if resp.AlgorithmText != algText {
			t.Errorf("algorithm text must be verbatim, got %q", resp.AlgorithmText)
		}
		if !resp.CollectFeedback {
			t.Error("expected feedback collection enabled")
		}
	})

	t.Run("no session skips", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/review/"+fresh.Token, nil)
		resp := decode[reviewResponse](t, w)
		if !resp.Skip || resp.Next != "/contribute/"+fresh.Token {
			t.Errorf("expected skip to contribute, got %+v", resp)
		}
	})

	t.Run("ack stamps and stores feedback", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/review/"+gated.Token+"/ack", map[string]string{"feedback": "  looks fair  "})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		got := env.mem.contributor(t, gated.ID)
		if got.AlgorithmAcknowledgedAt == nil {
			t.Fatal("expected acknowledgement stamped")
		}
		if got.AlgorithmFeedback == nil || *got.AlgorithmFeedback != "looks fair" {
			t.Errorf("expected trimmed feedback stored, got %v", got.AlgorithmFeedback)
		}
	})

	t.Run("already acknowledged skips on next view", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/review/"+gated.Token, nil)
		resp := decode[reviewResponse](t, w)
		if !resp.Skip {
			t.Error("expected skip after acknowledgement")
		}
	})
}

func TestInterview_GreetingSynthesizedOnce(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(context.Background(), c.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	w := env.do(t, "GET", "/api/v1/interview/"+c.Token, nil)
	resp := decode[interviewResponse](t, w)
	if len(resp.Messages) != 1 {
		t.Fatalf("expected 1 greeting message, got %d", len(resp.Messages))
	}
	if resp.Messages[0].Role != store.RoleAssistant {
		t.Errorf("greeting should be assistant role, got %s", resp.Messages[0].Role)
	}

	env.do(t, "GET", "/api/v1/interview/"+c.Token, nil)
	if got := env.mem.messageCount(c.ID); got != 1 {
		t.Errorf("greeting must be synthesized exactly once, transcript has %d messages", got)
	}
}

func TestInterview_BeforePrefsRedirects(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)

	w := env.do(t, "GET", "/api/v1/interview/"+c.Token, nil)
	resp := decode[interviewResponse](t, w)
	if resp.Next != "/contribute/"+c.Token {
		t.Errorf("expected redirect to preferences, got %+v", resp)
	}
	if env.mem.messageCount(c.ID) != 0 {
		t.Error("no greeting should be synthesized before prefs are submitted")
	}
}

func TestInterview_SendMessage(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(context.Background(), c.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/messages", map[string]string{"message": "Hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode[map[string]string](t, w)
	if body["message"] != env.llm.reply {
		t.Errorf("expected assistant reply, got %q", body["message"])
	}
	// User turn plus assistant reply, persisted in order.
	if got := env.mem.messageCount(c.ID); got != 2 {
		t.Errorf("expected 2 persisted messages, got %d", got)
	}
}

func TestInterview_SendMessageGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	notReady := seedContributor(t, env.mem, nil)
	done := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(ctx, done.ID, flow.AllocationDraft{BucketVotes: fullVotes()})
	env.mem.CompleteInterview(ctx, done.ID, "")

	ready := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(ctx, ready.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	tests := []struct {
		name  string
		token string
		body  map[string]string
		want  int
	}{
		{"prefs not submitted", notReady.Token, map[string]string{"message": "hi"}, http.StatusConflict},
		{"interview completed", done.Token, map[string]string{"message": "hi"}, http.StatusConflict},
		{"empty message", ready.Token, map[string]string{"message": "   "}, http.StatusBadRequest},
		{"unknown token", "nope", map[string]string{"message": "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/interview/"+tt.token+"/messages", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestInterview_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	c := seedContributor(t, env.mem, nil)
	env.mem.SubmitAllocationPrefs(context.Background(), c.ID, flow.AllocationDraft{BucketVotes: fullVotes()})
	env.llm.err = errors.New("model unavailable")

	w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/messages", map[string]string{"message": "Hello"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["error"] == "" {
		t.Error("expected an error message in the response")
	}
	// The user turn stays persisted; retrying is just sending again.
	if got := env.mem.messageCount(c.ID); got != 1 {
		t.Errorf("expected only the user turn persisted, got %d messages", got)
	}
}

func TestInterview_Complete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := seedContributor(t, env.mem, nil)

	t.Run("requires submitted prefs", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/complete", map[string]any{"confirm": true})
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409 before prefs, got %d", w.Code)
		}
	})

	env.mem.SubmitAllocationPrefs(ctx, c.ID, flow.AllocationDraft{BucketVotes: fullVotes()})

	t.Run("requires confirmation", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/complete", map[string]any{"confirm": false})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without confirm, got %d", w.Code)
		}
		if env.mem.contributor(t, c.ID).InterviewCompleted {
			t.Error("unconfirmed completion must not stamp flags")
		}
	})

	t.Run("confirmed completion stamps flags and evidence", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/complete",
			map[string]any{"confirm": true, "evidence_text": "=== Marketing Plan ===\n..."})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		got := env.mem.contributor(t, c.ID)
		if !got.InterviewCompleted || got.InterviewCompletedAt == nil {
			t.Error("expected completion flags stamped")
		}
		if got.EvidenceText == "" {
			t.Error("expected evidence text stored")
		}
	})

	t.Run("second completion conflicts", func(t *testing.T) {
		w := env.do(t, "POST", "/api/v1/interview/"+c.Token+"/complete", map[string]any{"confirm": true})
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
	})

	t.Run("terminal interview view", func(t *testing.T) {
		w := env.do(t, "GET", "/api/v1/interview/"+c.Token, nil)
		resp := decode[interviewResponse](t, w)
		if !resp.Completed {
			t.Error("expected terminal completed state")
		}
		if len(resp.Messages) != 0 {
			t.Error("terminal state should not carry the transcript")
		}
	})
}
