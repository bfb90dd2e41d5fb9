package knowledge

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// yamlFile is the on-disk layout: global entries plus per-project overrides.
type yamlFile struct {
	Global   []models.KnowledgeEntry           `yaml:"global"`
	Projects map[int64][]models.KnowledgeEntry `yaml:"projects"`
}

// YAMLStore implements Store from a single YAML file, for running without a
// database. The file is read once at load time.
type YAMLStore struct {
	entries []models.KnowledgeEntry
}

// LoadYAMLStore reads and validates a knowledge file.
func LoadYAMLStore(path string) (*YAMLStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var file yamlFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse knowledge file %s: %w", path, err)
	}

	var entries []models.KnowledgeEntry
	for _, e := range file.Global {
		e.Scope = models.GlobalScope
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("knowledge file %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	for projectID, list := range file.Projects {
		for _, e := range list {
			e.Scope = models.ProjectScope(projectID)
			if err := validateEntry(e); err != nil {
				return nil, fmt.Errorf("knowledge file %s: %w", path, err)
			}
			entries = append(entries, e)
		}
	}
	return &YAMLStore{entries: entries}, nil
}

func (s *YAMLStore) ListEntries(_ context.Context, scope models.Scope) ([]models.KnowledgeEntry, error) {
	var out []models.KnowledgeEntry
	for _, e := range s.entries {
		if e.Scope.IsGlobal() || e.Scope == scope {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry in the file regardless of scope. Used by the KB
// push command.
func (s *YAMLStore) All() []models.KnowledgeEntry {
	return s.entries
}

func validateEntry(e models.KnowledgeEntry) error {
	if e.Slug == "" {
		return fmt.Errorf("entry with empty slug in scope %s", e.Scope)
	}
	if e.ErrorExample == "" {
		return fmt.Errorf("entry %q has no error_example", e.Slug)
	}
	if e.Category != "" && !models.ValidRootCause(e.Category) {
		return fmt.Errorf("entry %q has unknown category %q", e.Slug, e.Category)
	}
	return nil
}

var _ Store = (*YAMLStore)(nil)
