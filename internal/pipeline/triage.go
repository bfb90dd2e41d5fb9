// Package pipeline wires triage, clustering, knowledge matching, analysis
// and write-back into one launch-level run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vpetrenko/failtriage/internal/extract"
	"github.com/vpetrenko/failtriage/internal/testops"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// Triager fetches a launch, counts outcomes and resolves error text for the
// failed results.
type Triager struct {
	source    testops.Source
	extractor *extract.Extractor
	endpoint  string
}

// NewTriager creates a Triager. endpoint is used to build deep links into
// the test-management UI.
func NewTriager(source testops.Source, extractor *extract.Extractor, endpoint string) *Triager {
	return &Triager{
		source:    source,
		extractor: extractor,
		endpoint:  strings.TrimRight(endpoint, "/"),
	}
}

// Triage produces the status summary for a launch and the extracted failure
// set worth clustering.
func (t *Triager) Triage(ctx context.Context, launchID int64) (*models.TriageReport, error) {
	launch, err := t.source.GetLaunch(ctx, launchID)
	if err != nil {
		return nil, fmt.Errorf("get launch %d: %w", launchID, err)
	}

	results, err := t.source.ListTestResults(ctx, launchID)
	if err != nil {
		return nil, fmt.Errorf("list results for launch %d: %w", launchID, err)
	}

	report := &models.TriageReport{
		LaunchID:     launchID,
		LaunchName:   launch.Name,
		TotalResults: len(results),
	}

	var failed []models.TestResult
	for _, r := range results {
		switch extract.NormalizeStatus(r.Status) {
		case models.StatusPassed:
			report.PassedCount++
		case models.StatusFailed:
			report.FailedCount++
			failed = append(failed, r)
		case models.StatusBroken:
			report.BrokenCount++
			failed = append(failed, r)
		case models.StatusSkipped:
			report.SkippedCount++
		default:
			report.UnknownCount++
		}
	}

	report.Failures = t.extractor.Resolve(ctx, failed)
	for i := range report.Failures {
		report.Failures[i].Link = fmt.Sprintf("%s/launch/%d/testresult/%d",
			t.endpoint, launchID, report.Failures[i].TestResultID)
	}

	slog.Info("triage complete",
		"launch_id", launchID,
		"launch_name", launch.Name,
		"total", report.TotalResults,
		"passed", report.PassedCount,
		"failed", report.FailedCount,
		"broken", report.BrokenCount,
		"skipped", report.SkippedCount,
		"unknown", report.UnknownCount)
	return report, nil
}
