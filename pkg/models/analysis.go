package models

// AnalysisStatus tracks the per-cluster analysis state machine.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisInFlight  AnalysisStatus = "in_flight"
	AnalysisSucceeded AnalysisStatus = "succeeded"
	AnalysisExhausted AnalysisStatus = "exhausted"
)

// AnalysisRequest is the cluster context sent to the external analysis service.
type AnalysisRequest struct {
	ClusterID   string           `json:"cluster_id"`
	Label       string           `json:"label"`
	Document    string           `json:"document"`
	Category    string           `json:"category,omitempty"`
	MemberCount int              `json:"member_count"`
	Matches     []KnowledgeMatch `json:"matches,omitempty"`
	LogSnippet  string           `json:"log_snippet,omitempty"`
}

// AnalysisSections is the structured output of one analysis call.
type AnalysisSections struct {
	Situation   string `json:"situation"`
	Category    string `json:"category"`
	Remediation string `json:"remediation"`
	Severity    string `json:"severity"`
}

// AnalysisResult is the terminal outcome of an analysis attempt sequence for
// one cluster. Immutable once the status is succeeded or exhausted.
type AnalysisResult struct {
	ClusterID string            `json:"cluster_id"`
	Status    AnalysisStatus    `json:"status"`
	Sections  *AnalysisSections `json:"sections,omitempty"`
	Attempts  int               `json:"attempts"`
	Error     string            `json:"error,omitempty"`
}

// WriteBackRecord is the outcome of one logical write to the sink. DedupKey
// guarantees at most one write per target per run for a given content tag.
type WriteBackRecord struct {
	TargetID int64  `json:"target_id"`
	DedupKey string `json:"dedup_key"`
	Status   string `json:"status"` // written, failed, skipped
	Error    string `json:"error,omitempty"`
}
