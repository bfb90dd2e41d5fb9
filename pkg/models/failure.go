package models

// Failure is the triage view of a failed test result after error-text
// extraction. Immutable once extraction completes.
type Failure struct {
	TestResultID int64      `json:"test_result_id"`
	Name         string     `json:"name"`
	Status       TestStatus `json:"status"`
	Category     string     `json:"category,omitempty"`
	Message      string     `json:"message,omitempty"`
	Trace        string     `json:"trace,omitempty"`
	TestCaseID   *int64     `json:"test_case_id,omitempty"`
	Link         string     `json:"link,omitempty"`
	LogSnippet   string     `json:"log_snippet,omitempty"`

	// Textless marks a failure no extraction tier could resolve.
	// Textless failures always cluster as singletons.
	Textless bool `json:"textless"`
}
