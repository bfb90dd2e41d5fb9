// Package knowledge stores known-issue entries and matches cluster documents
// against them.
package knowledge

import (
	"context"
	"errors"
	"sort"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// ErrStoreUnavailable indicates the knowledge backend could not be reached.
// Matching is skipped for the run and the degradation is recorded; nothing
// else is aborted.
var ErrStoreUnavailable = errors.New("knowledge store unavailable")

// Store is the data access interface for knowledge entries.
type Store interface {
	// ListEntries returns every entry visible to the scope: all global
	// entries plus, for a project scope, that project's entries.
	ListEntries(ctx context.Context, scope models.Scope) ([]models.KnowledgeEntry, error)
}

// ResolveShadowing collapses a visible entry set so that a project-scoped
// entry replaces a global entry with the same slug. The result is sorted by
// slug for deterministic downstream iteration.
func ResolveShadowing(entries []models.KnowledgeEntry) []models.KnowledgeEntry {
	bySlug := make(map[string]models.KnowledgeEntry, len(entries))
	for _, e := range entries {
		prev, ok := bySlug[e.Slug]
		if !ok || (prev.Scope.IsGlobal() && !e.Scope.IsGlobal()) {
			bySlug[e.Slug] = e
		}
	}

	out := make([]models.KnowledgeEntry, 0, len(bySlug))
	for _, e := range bySlug {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Slug < out[b].Slug })
	return out
}
