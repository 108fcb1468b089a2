package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mothercollective/intake/internal/flow"
	"github.com/mothercollective/intake/internal/store"
)

// memStore is an in-memory Store for handler tests. It mirrors the
// Postgres store's behavior closely enough for routing and state checks,
// including the messages-before-contributor delete order.
type memStore struct {
	mu           sync.Mutex
	contributors map[uuid.UUID]*store.Contributor
	sessions     map[uuid.UUID]*store.Session
	messages     []store.Message
	tokenSeq     int
	clock        time.Time

	saveDraftCalls int
}

func newMemStore() *memStore {
	return &memStore{
		contributors: make(map[uuid.UUID]*store.Contributor),
		sessions:     make(map[uuid.UUID]*store.Session),
		clock:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) CreateContributor(_ context.Context, name string, sessionID *uuid.UUID) (*store.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenSeq++
	c := &store.Contributor{
		ID:        uuid.New(),
		Name:      name,
		Token:     fmt.Sprintf("tok%04d", m.tokenSeq),
		SessionID: sessionID,
		CreatedAt: m.tick(),
	}
	m.contributors[c.ID] = c
	out := *c
	return &out, nil
}

func (m *memStore) GetContributorByToken(_ context.Context, token string) (*store.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contributors {
		if c.Token == token {
			out := *c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetContributorByID(_ context.Context, id uuid.UUID) (*store.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *memStore) ListContributors(_ context.Context, sessionID *uuid.UUID) ([]store.Contributor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Contributor
	for _, c := range m.contributors {
		if sessionID != nil && (c.SessionID == nil || *c.SessionID != *sessionID) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) SaveDraft(_ context.Context, id uuid.UUID, d flow.AllocationDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		return store.ErrNotFound
	}
	m.saveDraftCalls++
	c.Draft = d
	return nil
}

func (m *memStore) SubmitAllocationPrefs(_ context.Context, id uuid.UUID, d flow.AllocationDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.AllocationPrefsSubmittedAt != nil {
		return store.ErrAlreadySubmitted
	}
	c.Draft = d
	now := m.tick()
	c.AllocationPrefsSubmittedAt = &now
	return nil
}

func (m *memStore) AcknowledgeAlgorithm(_ context.Context, id uuid.UUID, feedback *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.AlgorithmAcknowledgedAt != nil {
		return nil
	}
	now := m.tick()
	c.AlgorithmAcknowledgedAt = &now
	if feedback != nil {
		c.AlgorithmFeedback = feedback
	}
	return nil
}

func (m *memStore) CompleteInterview(_ context.Context, id uuid.UUID, evidenceText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.InterviewCompleted {
		return store.ErrAlreadySubmitted
	}
	now := m.tick()
	c.InterviewCompleted = true
	c.InterviewCompletedAt = &now
	c.EvidenceText = evidenceText
	return nil
}

func (m *memStore) DeleteContributor(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contributors[id]; !ok {
		return store.ErrNotFound
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.ContributorID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	delete(m.contributors, id)
	return nil
}

func (m *memStore) CreateSession(_ context.Context, name string, algorithmText *string, collectFeedback bool) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := &store.Session{
		ID:                       uuid.New(),
		Name:                     name,
		AlgorithmText:            algorithmText,
		CollectAlgorithmFeedback: collectFeedback,
		CreatedAt:                m.tick(),
	}
	m.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (m *memStore) UpdateSession(_ context.Context, id uuid.UUID, name string, algorithmText *string, collectFeedback bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.Name = name
	sess.AlgorithmText = algorithmText
	sess.CollectAlgorithmFeedback = collectFeedback
	return nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (m *memStore) ListSessions(_ context.Context) ([]store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Session
	for _, sess := range m.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

func (m *memStore) AppendMessage(_ context.Context, contributorID uuid.UUID, role, content string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := store.Message{
		ID:            uuid.New(),
		ContributorID: contributorID,
		Role:          role,
		Content:       content,
		CreatedAt:     m.tick(),
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, contributorID uuid.UUID) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for _, msg := range m.messages {
		if msg.ContributorID == contributorID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) messageCount(contributorID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.ContributorID == contributorID {
			n++
		}
	}
	return n
}

func (m *memStore) draftSaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDraftCalls
}

func (m *memStore) contributor(t testingT, id uuid.UUID) store.Contributor {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributors[id]
	if !ok {
		t.Fatalf("contributor %s not found", id)
	}
	return *c
}

type testingT interface {
	Fatalf(format string, args ...any)
}
