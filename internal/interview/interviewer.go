// Package interview implements the interview responder: a stateless proxy
// that turns the persisted transcript plus one new user message into the
// next assistant turn. All interview state is the transcript itself.
package interview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mothercollective/intake/internal/anthropic"
	"github.com/mothercollective/intake/internal/store"
)

const replyMaxTokens = 1024

// Completer is the LLM upstream.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// TranscriptStore is the slice of the store the interviewer needs.
type TranscriptStore interface {
	ListMessages(ctx context.Context, contributorID uuid.UUID) ([]store.Message, error)
	AppendMessage(ctx context.Context, contributorID uuid.UUID, role, content string) (*store.Message, error)
}

type Interviewer struct {
	llm    Completer
	store  TranscriptStore
	logger *slog.Logger
}

func New(llm Completer, ts TranscriptStore, logger *slog.Logger) *Interviewer {
	return &Interviewer{llm: llm, store: ts, logger: logger}
}

// Reply persists the user message, sends the full transcript to the model
// with the interview script, persists the single reply and returns it. Any
// store or upstream failure yields one error; the caller owns fallback text
// and does not retry here.
func (iv *Interviewer) Reply(ctx context.Context, contributorID uuid.UUID, message string) (string, error) {
	prior, err := iv.store.ListMessages(ctx, contributorID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}

	if _, err := iv.store.AppendMessage(ctx, contributorID, store.RoleUser, message); err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}

	history := make([]anthropic.Message, 0, len(prior)+1)
	for _, m := range prior {
		history = append(history, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, anthropic.Message{Role: store.RoleUser, Content: message})

	iv.logger.Info("requesting interview reply",
		"contributor_id", contributorID,
		"history_len", len(history),
	)

	reply, err := iv.llm.Complete(ctx, systemPrompt, history, replyMaxTokens)
	if err != nil {
		return "", fmt.Errorf("interview reply: %w", err)
	}

	if _, err := iv.store.AppendMessage(ctx, contributorID, store.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("persist assistant message: %w", err)
	}

	return reply, nil
}

// EnsureGreeting persists the synthesized first assistant message when the
// transcript is empty, and returns the transcript either way.
func (iv *Interviewer) EnsureGreeting(ctx context.Context, contributorID uuid.UUID, name string) ([]store.Message, error) {
	msgs, err := iv.store.ListMessages(ctx, contributorID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if len(msgs) > 0 {
		return msgs, nil
	}

	greeting, err := iv.store.AppendMessage(ctx, contributorID, store.RoleAssistant, Greeting(name))
	if err != nil {
		return nil, fmt.Errorf("persist greeting: %w", err)
	}
	iv.logger.Info("greeting synthesized", "contributor_id", contributorID)
	return []store.Message{*greeting}, nil
}
