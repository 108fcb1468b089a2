// Package autosave coalesces draft writes. Every edit replaces the pending
// draft and re-arms a quiet-period timer; when the timer fires, exactly one
// flush runs with the latest draft. Flushes for the same contributor never
// overlap: an edit arriving mid-flush re-arms the timer once the flush
// returns, so persistence stays sequential and last-write-wins.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mothercollective/intake/internal/flow"
)

// FlushFunc persists one draft. Errors are logged and the draft dropped;
// the next edit schedules a fresh write.
type FlushFunc func(ctx context.Context, id uuid.UUID, d flow.AllocationDraft) error

type cell struct {
	timer    *time.Timer
	draft    flow.AllocationDraft
	dirty    bool
	inFlight bool
}

type Saver struct {
	quiet  time.Duration
	flush  FlushFunc
	logger *slog.Logger

	mu     sync.Mutex
	cells  map[uuid.UUID]*cell
	closed bool
}

func New(quiet time.Duration, flush FlushFunc, logger *slog.Logger) *Saver {
	return &Saver{
		quiet:  quiet,
		flush:  flush,
		logger: logger,
		cells:  make(map[uuid.UUID]*cell),
	}
}

// Schedule records the latest draft for the contributor and arms (or
// re-arms) the quiet-period timer.
func (s *Saver) Schedule(id uuid.UUID, d flow.AllocationDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	c, ok := s.cells[id]
	if !ok {
		c = &cell{}
		s.cells[id] = c
	}
	c.draft = d
	c.dirty = true

	if c.inFlight {
		// The running flush re-arms on completion.
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(s.quiet, func() { s.fire(id) })
}

// Cancel drops any pending write for the contributor. Used at submission
// time, when the finalized draft supersedes the autosaved one.
func (s *Saver) Cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cells[id]
	if !ok {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.dirty = false
	if !c.inFlight {
		delete(s.cells, id)
	}
}

func (s *Saver) fire(id uuid.UUID) {
	s.mu.Lock()
	c, ok := s.cells[id]
	if !ok || s.closed || c.inFlight || !c.dirty {
		s.mu.Unlock()
		return
	}
	c.timer = nil
	c.dirty = false
	c.inFlight = true
	draft := c.draft
	s.mu.Unlock()

	if err := s.flush(context.Background(), id, draft); err != nil {
		s.logger.Error("autosave flush failed", "contributor_id", id, "error", err)
	}

	s.mu.Lock()
	c.inFlight = false
	if c.dirty && !s.closed {
		c.timer = time.AfterFunc(s.quiet, func() { s.fire(id) })
	} else if !c.dirty {
		delete(s.cells, id)
	}
	s.mu.Unlock()
}

// Close stops all pending timers. Unflushed drafts are discarded.
func (s *Saver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, c := range s.cells {
		if c.timer != nil {
			c.timer.Stop()
		}
		if !c.inFlight {
			delete(s.cells, id)
		}
	}
}
