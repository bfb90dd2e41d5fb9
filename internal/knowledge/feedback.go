package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpetrenko/failtriage/internal/analysis"
)

// fingerprintVersion is baked into every fingerprint so the hashing scheme
// can change without old votes silently attaching to new hashes.
const fingerprintVersion = 1

// Fingerprint hashes a normalized error text into the stable key feedback
// votes are recorded under. Normalization happens first, so re-runs of the
// same failure with fresh ids and timestamps produce the same fingerprint.
func Fingerprint(errorText string) string {
	normalized := analysis.Normalize(errorText)
	sum := sha256.Sum256([]byte(fmt.Sprintf("v%d:%s", fingerprintVersion, normalized)))
	return hex.EncodeToString(sum[:])
}

// Vote is a reviewer verdict on one entry-to-error pairing.
type Vote string

const (
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)

// ValidVote reports whether v is a known verdict.
func ValidVote(v Vote) bool {
	return v == VoteLike || v == VoteDislike
}

// FeedbackVote records that a reviewer liked or disliked matching one entry
// against the error identified by Fingerprint. LaunchID and ClusterID are
// optional provenance.
type FeedbackVote struct {
	EntrySlug   string
	Fingerprint string
	Vote        Vote
	LaunchID    int64
	ClusterID   string
}

// FeedbackStore persists reviewer votes. The YAML backend has no write path,
// so feedback is only available with the Postgres backend.
type FeedbackStore interface {
	// RecordVote upserts a vote; a repeated vote on the same
	// (entry, fingerprint) pair overwrites the verdict. created reports
	// whether the vote was new rather than an overwrite.
	RecordVote(ctx context.Context, v FeedbackVote) (created bool, err error)

	// Exclusions returns the slugs of entries disliked for a fingerprint.
	Exclusions(ctx context.Context, fingerprint string) (map[string]struct{}, error)

	// Boosts returns the slugs of entries liked for a fingerprint.
	Boosts(ctx context.Context, fingerprint string) (map[string]struct{}, error)
}

// PostgresFeedback implements FeedbackStore on the knowledge database.
type PostgresFeedback struct {
	pool *pgxpool.Pool
}

// NewPostgresFeedback creates a PostgresFeedback sharing the store's pool.
func NewPostgresFeedback(pool *pgxpool.Pool) *PostgresFeedback {
	return &PostgresFeedback{pool: pool}
}

func (s *PostgresFeedback) RecordVote(ctx context.Context, v FeedbackVote) (bool, error) {
	var launchID *int64
	if v.LaunchID > 0 {
		launchID = &v.LaunchID
	}
	var clusterID *string
	if v.ClusterID != "" {
		clusterID = &v.ClusterID
	}

	// xmax = 0 only on a fresh insert, which is how we tell a new vote
	// from an overwrite inside a single statement.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO kb_feedback (entry_slug, error_fingerprint, vote, launch_id, cluster_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (entry_slug, error_fingerprint)
		 DO UPDATE SET vote = EXCLUDED.vote, created_at = NOW()
		 RETURNING (xmax = 0) AS is_insert`,
		v.EntrySlug, v.Fingerprint, string(v.Vote), launchID, clusterID)

	var created bool
	if err := row.Scan(&created); err != nil {
		return false, fmt.Errorf("record feedback vote for %q: %w", v.EntrySlug, err)
	}
	return created, nil
}

func (s *PostgresFeedback) Exclusions(ctx context.Context, fingerprint string) (map[string]struct{}, error) {
	return s.votedSlugs(ctx, fingerprint, VoteDislike)
}

func (s *PostgresFeedback) Boosts(ctx context.Context, fingerprint string) (map[string]struct{}, error) {
	return s.votedSlugs(ctx, fingerprint, VoteLike)
}

func (s *PostgresFeedback) votedSlugs(ctx context.Context, fingerprint string, vote Vote) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_slug FROM kb_feedback WHERE error_fingerprint = $1 AND vote = $2`,
		fingerprint, string(vote))
	if err != nil {
		return nil, fmt.Errorf("%w: read feedback: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	slugs := make(map[string]struct{})
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan feedback vote: %w", err)
		}
		slugs[slug] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read feedback: %v", ErrStoreUnavailable, err)
	}
	return slugs, nil
}

var _ FeedbackStore = (*PostgresFeedback)(nil)
