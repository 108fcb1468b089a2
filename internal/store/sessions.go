package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session groups contributors and optionally carries the allocation
// algorithm text shown during the review step.
type Session struct {
	ID                       uuid.UUID
	Name                     string
	AlgorithmText            *string
	CollectAlgorithmFeedback bool
	CreatedAt                time.Time
}

// HasAlgorithmText reports whether the review step applies to this session.
func (s *Session) HasAlgorithmText() bool {
	return s.AlgorithmText != nil && *s.AlgorithmText != ""
}

func (s *Store) CreateSession(ctx context.Context, name string, algorithmText *string, collectFeedback bool) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, name, algorithm_text, collect_algorithm_feedback)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, algorithm_text, collect_algorithm_feedback, created_at`,
		uuid.New(), name, algorithmText, collectFeedback,
	)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Name, &sess.AlgorithmText, &sess.CollectAlgorithmFeedback, &sess.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, id uuid.UUID, name string, algorithmText *string, collectFeedback bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET name = $1, algorithm_text = $2, collect_algorithm_feedback = $3
		WHERE id = $4`,
		name, algorithmText, collectFeedback, id,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, algorithm_text, collect_algorithm_feedback, created_at
		FROM sessions WHERE id = $1`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Name, &sess.AlgorithmText, &sess.CollectAlgorithmFeedback, &sess.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, algorithm_text, collect_algorithm_feedback, created_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.AlgorithmText, &sess.CollectAlgorithmFeedback, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
