// Package models contains shared data models used across the failtriage codebase.
package models

// TestStatus is the normalized status of a test result.
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusBroken  TestStatus = "broken"
	StatusSkipped TestStatus = "skipped"
	StatusUnknown TestStatus = "unknown"
)

// IsFailure reports whether the status indicates a defect worth triaging.
func (s TestStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusBroken
}

// Launch is launch metadata from the test-management API.
type Launch struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// TestResult is a raw test result as returned by the test-management API.
// Fields the API may omit are pointers or zero values; the bulk listing
// usually omits status details, which the extractor compensates for.
type TestResult struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"fullName,omitempty"`
	Status        string    `json:"status"`
	StatusMessage string    `json:"statusMessage,omitempty"`
	StatusTrace   string    `json:"statusTrace,omitempty"`
	Category      string    `json:"category,omitempty"`
	TestCaseID    *int64    `json:"testCaseId,omitempty"`
	LaunchID      int64     `json:"launchId,omitempty"`
	Duration      int64     `json:"duration,omitempty"`
	Execution     *StepNode `json:"execution,omitempty"`
}

// StepNode is one node of an execution-step tree. Children are owned by the
// parent; there are no back-references.
type StepNode struct {
	Name    string     `json:"name"`
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Trace   string     `json:"trace,omitempty"`
	Steps   []StepNode `json:"steps,omitempty"`
}

// Comment is a comment attached to a test case in the sink.
type Comment struct {
	ID         int64  `json:"id"`
	TestCaseID int64  `json:"testCaseId"`
	Body       string `json:"body"`
}
