package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of an interview transcript. Append-only.
type Message struct {
	ID            uuid.UUID
	ContributorID uuid.UUID
	Role          string
	Content       string
	CreatedAt     time.Time
}

// AppendMessage appends one transcript turn.
func (s *Store) AppendMessage(ctx context.Context, contributorID uuid.UUID, role, content string) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, contributor_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, contributor_id, role, content, created_at`,
		uuid.New(), contributorID, role, content,
	)
	var m Message
	if err := row.Scan(&m.ID, &m.ContributorID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

// ListMessages returns a contributor's transcript ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, contributorID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, contributor_id, role, content, created_at
		FROM messages
		WHERE contributor_id = $1
		ORDER BY created_at ASC`, contributorID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ContributorID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
