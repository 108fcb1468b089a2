package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mothercollective/intake/internal/flow"
)

// Contributor is one row in the contributors table: identity, progress
// flags and the autosaved allocation draft.
type Contributor struct {
	ID        uuid.UUID
	Name      string
	Token     string
	SessionID *uuid.UUID
	CreatedAt time.Time

	AlgorithmAcknowledgedAt    *time.Time
	AlgorithmFeedback          *string
	AllocationPrefsSubmittedAt *time.Time
	InterviewCompleted         bool
	InterviewCompletedAt       *time.Time
	EvidenceText               string

	Draft flow.AllocationDraft
}

const contributorColumns = `
	id, name, token, session_id, created_at,
	algorithm_acknowledged_at, algorithm_feedback,
	allocation_prefs_submitted_at, interview_completed, interview_completed_at,
	evidence_text,
	cap_table_expertise, cap_table_expertise_description,
	bucket_deferred, bucket_delegated_to, bucket_votes, bucket_rationale,
	lockup_deferred, lockup_delegated_to,
	lockup_cliff_months, lockup_vesting_months, lockup_tge_percent,
	lockup_rationale`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContributor(row rowScanner) (*Contributor, error) {
	var c Contributor
	var votes []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.Token, &c.SessionID, &c.CreatedAt,
		&c.AlgorithmAcknowledgedAt, &c.AlgorithmFeedback,
		&c.AllocationPrefsSubmittedAt, &c.InterviewCompleted, &c.InterviewCompletedAt,
		&c.EvidenceText,
		&c.Draft.Expertise, &c.Draft.ExpertiseDescription,
		&c.Draft.BucketDeferred, &c.Draft.BucketDelegatedTo, &votes, &c.Draft.BucketRationale,
		&c.Draft.LockupDeferred, &c.Draft.LockupDelegatedTo,
		&c.Draft.CliffMonths, &c.Draft.VestingMonths, &c.Draft.TGEPercent,
		&c.Draft.LockupRationale,
	)
	if err != nil {
		return nil, err
	}
	if len(votes) > 0 {
		if err := json.Unmarshal(votes, &c.Draft.BucketVotes); err != nil {
			return nil, fmt.Errorf("decode bucket votes: %w", err)
		}
	}
	return &c, nil
}

func votesJSON(votes map[string]int) (any, error) {
	if votes == nil {
		return nil, nil
	}
	data, err := json.Marshal(votes)
	if err != nil {
		return nil, fmt.Errorf("encode bucket votes: %w", err)
	}
	return data, nil
}

// CreateContributor inserts a contributor with a freshly generated access
// token, all progress flags unset, and an optional session scope.
func (s *Store) CreateContributor(ctx context.Context, name string, sessionID *uuid.UUID) (*Contributor, error) {
	token, err := newAccessToken()
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contributors (id, name, token, session_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+contributorColumns,
		id, name, token, sessionID,
	)
	c, err := scanContributor(row)
	if err != nil {
		return nil, fmt.Errorf("insert contributor: %w", err)
	}
	return c, nil
}

// GetContributorByToken resolves the access token carried in contributor
// links. Returns ErrNotFound for unknown tokens.
func (s *Store) GetContributorByToken(ctx context.Context, token string) (*Contributor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contributorColumns+`
		FROM contributors WHERE token = $1`, token)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) GetContributorByID(ctx context.Context, id uuid.UUID) (*Contributor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+contributorColumns+`
		FROM contributors WHERE id = $1`, id)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListContributors returns contributors newest first, optionally filtered
// by session.
func (s *Store) ListContributors(ctx context.Context, sessionID *uuid.UUID) ([]Contributor, error) {
	query := `SELECT ` + contributorColumns + ` FROM contributors`
	args := []any{}
	if sessionID != nil {
		query += ` WHERE session_id = $1`
		args = append(args, *sessionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	defer rows.Close()

	var out []Contributor
	for rows.Next() {
		c, err := scanContributor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contributor: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveDraft overwrites the allocation draft fields. Last write wins; the
// autosave layer guarantees writes for one contributor never overlap.
func (s *Store) SaveDraft(ctx context.Context, id uuid.UUID, d flow.AllocationDraft) error {
	votes, err := votesJSON(d.BucketVotes)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE contributors SET
			cap_table_expertise = $1,
			cap_table_expertise_description = $2,
			bucket_deferred = $3,
			bucket_delegated_to = $4,
			bucket_votes = $5,
			bucket_rationale = $6,
			lockup_deferred = $7,
			lockup_delegated_to = $8,
			lockup_cliff_months = $9,
			lockup_vesting_months = $10,
			lockup_tge_percent = $11,
			lockup_rationale = $12
		WHERE id = $13`,
		d.Expertise, d.ExpertiseDescription,
		d.BucketDeferred, d.BucketDelegatedTo, votes, d.BucketRationale,
		d.LockupDeferred, d.LockupDelegatedTo,
		d.CliffMonths, d.VestingMonths, d.TGEPercent,
		d.LockupRationale, id,
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitAllocationPrefs persists the finalized draft and stamps the
// submission timestamp. Returns ErrAlreadySubmitted when the timestamp was
// already set; the row is left untouched in that case.
func (s *Store) SubmitAllocationPrefs(ctx context.Context, id uuid.UUID, d flow.AllocationDraft) error {
	votes, err := votesJSON(d.BucketVotes)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE contributors SET
			cap_table_expertise = $1,
			cap_table_expertise_description = $2,
			bucket_deferred = $3,
			bucket_delegated_to = $4,
			bucket_votes = $5,
			bucket_rationale = $6,
			lockup_deferred = $7,
			lockup_delegated_to = $8,
			lockup_cliff_months = $9,
			lockup_vesting_months = $10,
			lockup_tge_percent = $11,
			lockup_rationale = $12,
			allocation_prefs_submitted_at = now()
		WHERE id = $13 AND allocation_prefs_submitted_at IS NULL`,
		d.Expertise, d.ExpertiseDescription,
		d.BucketDeferred, d.BucketDelegatedTo, votes, d.BucketRationale,
		d.LockupDeferred, d.LockupDelegatedTo,
		d.CliffMonths, d.VestingMonths, d.TGEPercent,
		d.LockupRationale, id,
	)
	if err != nil {
		return fmt.Errorf("submit allocation prefs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySubmitted
	}
	return nil
}

// AcknowledgeAlgorithm stamps the review acknowledgement. A second call is
// a no-op so the review step is safe to hit directly.
func (s *Store) AcknowledgeAlgorithm(ctx context.Context, id uuid.UUID, feedback *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contributors SET
			algorithm_acknowledged_at = now(),
			algorithm_feedback = COALESCE($1, algorithm_feedback)
		WHERE id = $2 AND algorithm_acknowledged_at IS NULL`,
		feedback, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledge algorithm: %w", err)
	}
	return nil
}

// CompleteInterview stamps the completion flags and stores any supporting
// documentation text. Returns ErrAlreadySubmitted when already completed.
func (s *Store) CompleteInterview(ctx context.Context, id uuid.UUID, evidenceText string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contributors SET
			interview_completed = true,
			interview_completed_at = now(),
			evidence_text = $1
		WHERE id = $2 AND NOT interview_completed`,
		evidenceText, id,
	)
	if err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySubmitted
	}
	return nil
}

// DeleteContributor removes a contributor and its transcript in one
// transaction. Messages go first due to the referential constraint.
func (s *Store) DeleteContributor(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE contributor_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM contributors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete contributor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
