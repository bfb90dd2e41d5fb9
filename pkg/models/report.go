package models

// TriageReport summarizes a launch's results by status.
type TriageReport struct {
	LaunchID     int64     `json:"launch_id"`
	LaunchName   string    `json:"launch_name,omitempty"`
	TotalResults int       `json:"total_results"`
	PassedCount  int       `json:"passed_count"`
	FailedCount  int       `json:"failed_count"`
	BrokenCount  int       `json:"broken_count"`
	SkippedCount int       `json:"skipped_count"`
	UnknownCount int       `json:"unknown_count"`
	Failures     []Failure `json:"failures"`
}

// FailureCount is the number of results worth triaging.
func (r *TriageReport) FailureCount() int {
	return r.FailedCount + r.BrokenCount
}

// RunReport is the complete outcome of one pipeline run. Per-item problems
// are surfaced in Degraded instead of failing the run; only infrastructure
// errors abort a run outright.
type RunReport struct {
	Triage     *TriageReport               `json:"triage"`
	Clustering *ClusteringReport           `json:"clustering,omitempty"`
	Matches    map[string][]KnowledgeMatch `json:"matches,omitempty"`
	Analyses   map[string]*AnalysisResult  `json:"analyses,omitempty"`
	WriteBacks []WriteBackRecord           `json:"write_backs,omitempty"`
	Degraded   []string                    `json:"degraded,omitempty"`
}
