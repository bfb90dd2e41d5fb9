package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// PostgresStore implements Store using pgx/v5. A NULL project_id marks a
// global entry.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ListEntries(ctx context.Context, scope models.Scope) ([]models.KnowledgeEntry, error) {
	query := `SELECT slug, project_id, title, description, error_example, category, resolution_steps
		 FROM kb_entries WHERE project_id IS NULL`
	args := []any{}
	if projectID, ok := scope.ProjectID(); ok {
		query += ` OR project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY project_id NULLS FIRST, slug`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var entries []models.KnowledgeEntry
	for rows.Next() {
		var (
			e         models.KnowledgeEntry
			projectID *int64
		)
		if err := rows.Scan(&e.Slug, &projectID, &e.Title, &e.Description,
			&e.ErrorExample, &e.Category, &e.ResolutionSteps); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		if projectID == nil {
			e.Scope = models.GlobalScope
		} else {
			e.Scope = models.ProjectScope(*projectID)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read entries: %v", ErrStoreUnavailable, err)
	}
	return entries, nil
}

// UpsertEntry inserts or replaces an entry within its scope. Used by the KB
// push command to sync a YAML file into the database.
func (s *PostgresStore) UpsertEntry(ctx context.Context, e models.KnowledgeEntry) error {
	var projectID *int64
	if id, ok := e.Scope.ProjectID(); ok {
		projectID = &id
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO kb_entries (slug, project_id, title, description, error_example, category, resolution_steps, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (slug, scope_key) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   error_example = EXCLUDED.error_example,
		   category = EXCLUDED.category,
		   resolution_steps = EXCLUDED.resolution_steps,
		   updated_at = NOW()`,
		e.Slug, projectID, e.Title, e.Description, e.ErrorExample, e.Category, e.ResolutionSteps)
	if err != nil {
		return fmt.Errorf("upsert knowledge entry %q: %w", e.Slug, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
