package cache

import "fmt"

// AnalysisKey caches the analysis verdict for one cluster. Cluster ids are
// content hashes, so the same defect text hits the same key across runs.
func AnalysisKey(clusterID string) string {
	return fmt.Sprintf("analysis:%s", clusterID)
}

// RunReportKey caches the last full report for a launch.
func RunReportKey(launchID int64) string {
	return fmt.Sprintf("report:launch:%d", launchID)
}

// RateLimitKey counts requests per caller for the serve-mode rate limiter.
func RateLimitKey(caller string) string {
	return fmt.Sprintf("ratelimit:%s", caller)
}
