package models

// Cluster is a group of failures sharing one underlying defect. Clusters are
// recomputed on every run and never persisted; the ID is a stable hash of the
// cluster signature so repeated runs over the same failures agree.
type Cluster struct {
	ID             string  `json:"cluster_id"`
	Label          string  `json:"label"`
	Category       string  `json:"category,omitempty"`
	MemberIDs      []int64 `json:"member_test_ids"`
	MemberCount    int     `json:"member_count"`
	Document       string  `json:"-"`
	// Fingerprint identifies the underlying error for feedback votes. Set
	// during knowledge matching; empty when the stage is disabled.
	Fingerprint    string  `json:"error_fingerprint,omitempty"`
	ExampleMessage string  `json:"example_message,omitempty"`
	ExampleTrace   string  `json:"example_trace,omitempty"`
}

// ClusteringReport is the outcome of one clustering run over a launch.
type ClusteringReport struct {
	LaunchID       int64     `json:"launch_id"`
	TotalFailures  int       `json:"total_failures"`
	ClusterCount   int       `json:"cluster_count"`
	SingletonCount int       `json:"singleton_count"`
	Clusters       []Cluster `json:"clusters"`
}
