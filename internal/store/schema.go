package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	algorithm_text text,
	collect_algorithm_feedback boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contributors (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	token text NOT NULL UNIQUE,
	session_id uuid REFERENCES sessions(id),
	created_at timestamptz NOT NULL DEFAULT now(),

	algorithm_acknowledged_at timestamptz,
	algorithm_feedback text,
	allocation_prefs_submitted_at timestamptz,
	interview_completed boolean NOT NULL DEFAULT false,
	interview_completed_at timestamptz,
	evidence_text text NOT NULL DEFAULT '',

	cap_table_expertise text NOT NULL DEFAULT '',
	cap_table_expertise_description text NOT NULL DEFAULT '',
	bucket_deferred boolean NOT NULL DEFAULT false,
	bucket_delegated_to text NOT NULL DEFAULT '',
	bucket_votes jsonb,
	bucket_rationale text NOT NULL DEFAULT '',
	lockup_deferred boolean NOT NULL DEFAULT false,
	lockup_delegated_to text NOT NULL DEFAULT '',
	lockup_cliff_months int,
	lockup_vesting_months int,
	lockup_tge_percent int,
	lockup_rationale text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
	id uuid PRIMARY KEY,
	contributor_id uuid NOT NULL REFERENCES contributors(id),
	role text NOT NULL CHECK (role IN ('user', 'assistant')),
	content text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_contributor_created
	ON messages (contributor_id, created_at);
`

// EnsureSchema creates the tables if they do not exist. Safe to run on
// every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
