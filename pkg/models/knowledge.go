package models

import "fmt"

// Scope identifies the visibility of a knowledge entry: the global scope or a
// single project.
type Scope string

// GlobalScope is the scope of entries visible to every project.
const GlobalScope Scope = "global"

// ProjectScope returns the scope for one project.
func ProjectScope(projectID int64) Scope {
	return Scope(fmt.Sprintf("project:%d", projectID))
}

// IsGlobal reports whether the scope is the global one.
func (s Scope) IsGlobal() bool { return s == GlobalScope }

// ProjectID returns the project a scope refers to, or false for the global
// scope and malformed values.
func (s Scope) ProjectID() (int64, bool) {
	var id int64
	if _, err := fmt.Sscanf(string(s), "project:%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// RootCause is the fixed taxonomy of knowledge-entry categories.
type RootCause string

const (
	RootCauseTest RootCause = "test"
	RootCauseApp  RootCause = "app"
	RootCauseEnv  RootCause = "env"
	RootCauseData RootCause = "data"
)

// ValidRootCause reports whether c belongs to the taxonomy.
func ValidRootCause(c RootCause) bool {
	switch c {
	case RootCauseTest, RootCauseApp, RootCauseEnv, RootCauseData:
		return true
	}
	return false
}

// KnowledgeEntry is a known issue with matching text and resolution steps.
// Within a scope, Slug is unique; a project-scoped entry shadows a global
// entry with the same slug for that project.
type KnowledgeEntry struct {
	Slug            string    `json:"slug"            yaml:"slug"`
	Scope           Scope     `json:"scope"           yaml:"-"`
	Title           string    `json:"title"           yaml:"title"`
	Description     string    `json:"description"     yaml:"description"`
	ErrorExample    string    `json:"error_example"   yaml:"error_example"`
	Category        RootCause `json:"category"        yaml:"category"`
	ResolutionSteps []string  `json:"resolution_steps" yaml:"resolution_steps"`
}

// KnowledgeMatch is one scored match of a cluster document against an entry.
type KnowledgeMatch struct {
	Entry   KnowledgeEntry `json:"entry"`
	Score   float64        `json:"score"`
	Reasons []string       `json:"reasons,omitempty"`
}
