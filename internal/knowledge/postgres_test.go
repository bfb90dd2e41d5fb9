package knowledge_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vpetrenko/failtriage/internal/knowledge"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("failtriage_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = knowledge.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func seedEntry(slug string, scope models.Scope, title string) models.KnowledgeEntry {
	return models.KnowledgeEntry{
		Slug:            slug,
		Scope:           scope,
		Title:           title,
		Description:     "description of " + slug,
		ErrorExample:    "example error text for " + slug,
		Category:        models.RootCauseEnv,
		ResolutionSteps: []string{"step one", "step two"},
	}
}

func TestPostgresStore_UpsertAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := knowledge.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntry(ctx, seedEntry("db-down", models.GlobalScope, "global db")))
	require.NoError(t, s.UpsertEntry(ctx, seedEntry("db-down", models.ProjectScope(42), "project db")))
	require.NoError(t, s.UpsertEntry(ctx, seedEntry("flaky-dns", models.GlobalScope, "dns")))

	// Global scope sees only global entries.
	global, err := s.ListEntries(ctx, models.GlobalScope)
	require.NoError(t, err)
	require.Len(t, global, 2)
	for _, e := range global {
		assert.True(t, e.Scope.IsGlobal())
	}

	// Project scope sees global plus its own.
	scoped, err := s.ListEntries(ctx, models.ProjectScope(42))
	require.NoError(t, err)
	assert.Len(t, scoped, 3)

	// A different project sees only global.
	other, err := s.ListEntries(ctx, models.ProjectScope(7))
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

func TestPostgresStore_UpsertReplacesWithinScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := knowledge.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntry(ctx, seedEntry("db-down", models.GlobalScope, "first title")))
	updated := seedEntry("db-down", models.GlobalScope, "second title")
	updated.ResolutionSteps = []string{"new step"}
	require.NoError(t, s.UpsertEntry(ctx, updated))

	entries, err := s.ListEntries(ctx, models.GlobalScope)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second title", entries[0].Title)
	assert.Equal(t, []string{"new step"}, entries[0].ResolutionSteps)
}

func TestPostgresStore_RoundTripFields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := knowledge.NewPostgresStore(pool)
	ctx := context.Background()

	in := seedEntry("full-entry", models.ProjectScope(9), "full")
	require.NoError(t, s.UpsertEntry(ctx, in))

	entries, err := s.ListEntries(ctx, models.ProjectScope(9))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, in.Slug, got.Slug)
	assert.Equal(t, in.Scope, got.Scope)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.ErrorExample, got.ErrorExample)
	assert.Equal(t, in.Category, got.Category)
	assert.Equal(t, in.ResolutionSteps, got.ResolutionSteps)
}

func TestPostgresFeedback_RecordAndRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	fb := knowledge.NewPostgresFeedback(pool)
	ctx := context.Background()

	fp := knowledge.Fingerprint("connection refused by gateway")

	created, err := fb.RecordVote(ctx, knowledge.FeedbackVote{
		EntrySlug:   "gw-refused",
		Fingerprint: fp,
		Vote:        knowledge.VoteLike,
		LaunchID:    101,
		ClusterID:   "abc123",
	})
	require.NoError(t, err)
	assert.True(t, created)

	boosts, err := fb.Boosts(ctx, fp)
	require.NoError(t, err)
	assert.Contains(t, boosts, "gw-refused")

	exclusions, err := fb.Exclusions(ctx, fp)
	require.NoError(t, err)
	assert.Empty(t, exclusions)
}

func TestPostgresFeedback_RevoteOverwrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	fb := knowledge.NewPostgresFeedback(pool)
	ctx := context.Background()

	fp := knowledge.Fingerprint("stale element reference")
	vote := knowledge.FeedbackVote{EntrySlug: "selenium", Fingerprint: fp, Vote: knowledge.VoteLike}

	created, err := fb.RecordVote(ctx, vote)
	require.NoError(t, err)
	assert.True(t, created)

	// The reviewer changes their mind; the verdict flips in place.
	vote.Vote = knowledge.VoteDislike
	created, err = fb.RecordVote(ctx, vote)
	require.NoError(t, err)
	assert.False(t, created)

	boosts, err := fb.Boosts(ctx, fp)
	require.NoError(t, err)
	assert.Empty(t, boosts)

	exclusions, err := fb.Exclusions(ctx, fp)
	require.NoError(t, err)
	assert.Contains(t, exclusions, "selenium")
}

func TestPostgresFeedback_ScopedToFingerprint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	fb := knowledge.NewPostgresFeedback(pool)
	ctx := context.Background()

	fpA := knowledge.Fingerprint("error a")
	fpB := knowledge.Fingerprint("error b")

	_, err := fb.RecordVote(ctx, knowledge.FeedbackVote{
		EntrySlug: "db-down", Fingerprint: fpA, Vote: knowledge.VoteDislike})
	require.NoError(t, err)

	exclusions, err := fb.Exclusions(ctx, fpB)
	require.NoError(t, err)
	assert.Empty(t, exclusions)
}
