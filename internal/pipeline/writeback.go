package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vpetrenko/failtriage/internal/testops"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// CommentPrefix marks every comment this tool writes, so cleanup can find
// them later without touching human comments.
const CommentPrefix = "[failtriage]"

const (
	kbHeader       = CommentPrefix + " Knowledge-base recommendation"
	analysisHeader = CommentPrefix + " Automated failure analysis"
	separator      = "========================================"

	tagKnowledge = "kb"
	tagAnalysis  = "analysis"
)

// Writer pushes triage output back to the sink as comments. One Writer
// instance covers one run: the dedup set guarantees at most one logical
// write per target per content tag, however many clusters share a test case.
type Writer struct {
	sink testops.Sink

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewWriter creates a Writer for a single run.
func NewWriter(sink testops.Sink) *Writer {
	return &Writer{sink: sink, seen: make(map[string]struct{})}
}

// PushMatches writes knowledge-base recommendations for each cluster with
// matches to every member's test case. Per-comment failures are recorded,
// not propagated.
func (w *Writer) PushMatches(ctx context.Context, failures []models.Failure, clusters []models.Cluster, matches map[string][]models.KnowledgeMatch) []models.WriteBackRecord {
	byID := failuresByID(failures)
	var records []models.WriteBackRecord

	for _, c := range clusters {
		ms := matches[c.ID]
		if len(ms) == 0 {
			continue
		}
		body := formatMatchComment(ms)
		for _, memberID := range c.MemberIDs {
			records = w.pushOne(ctx, byID[memberID], tagKnowledge, body, records)
		}
	}
	return records
}

// PushAnalyses writes the analysis verdict of each succeeded cluster to
// every member's test case. Exhausted clusters are skipped.
func (w *Writer) PushAnalyses(ctx context.Context, failures []models.Failure, clusters []models.Cluster, analyses map[string]*models.AnalysisResult) []models.WriteBackRecord {
	byID := failuresByID(failures)
	var records []models.WriteBackRecord

	for _, c := range clusters {
		result := analyses[c.ID]
		if result == nil || result.Status != models.AnalysisSucceeded || result.Sections == nil {
			continue
		}
		body := formatAnalysisComment(c, result.Sections)
		for _, memberID := range c.MemberIDs {
			records = w.pushOne(ctx, byID[memberID], tagAnalysis, body, records)
		}
	}
	return records
}

// pushOne performs one deduplicated comment write. Failures without a test
// case id have nowhere to write and are skipped silently.
func (w *Writer) pushOne(ctx context.Context, f *models.Failure, tag, body string, records []models.WriteBackRecord) []models.WriteBackRecord {
	if f == nil || f.TestCaseID == nil {
		return records
	}
	targetID := *f.TestCaseID
	key := fmt.Sprintf("%d:%s", targetID, tag)

	w.mu.Lock()
	_, dup := w.seen[key]
	if !dup {
		w.seen[key] = struct{}{}
	}
	w.mu.Unlock()
	if dup {
		return append(records, models.WriteBackRecord{
			TargetID: targetID, DedupKey: key, Status: "skipped",
		})
	}

	record := models.WriteBackRecord{TargetID: targetID, DedupKey: key, Status: "written"}
	if err := w.sink.UpsertComment(ctx, targetID, body); err != nil {
		record.Status = "failed"
		record.Error = err.Error()
		slog.Warn("comment write failed", "test_case_id", targetID, "tag", tag, "error", err)
	}
	return append(records, record)
}

func failuresByID(failures []models.Failure) map[int64]*models.Failure {
	byID := make(map[int64]*models.Failure, len(failures))
	for i := range failures {
		byID[failures[i].TestResultID] = &failures[i]
	}
	return byID
}

// formatMatchComment renders the matched entries for one cluster.
func formatMatchComment(matches []models.KnowledgeMatch) string {
	var b strings.Builder
	b.WriteString(kbHeader + "\n" + separator + "\n")

	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
		}
		fmt.Fprintf(&b, "\n%s (score: %.2f)\n", m.Entry.Title, m.Score)
		if m.Entry.Category != "" {
			fmt.Fprintf(&b, "Root cause: %s\n", m.Entry.Category)
		}
		if m.Entry.Description != "" {
			b.WriteString(m.Entry.Description + "\n")
		}
		if len(m.Entry.ResolutionSteps) > 0 {
			b.WriteString("\nResolution steps:\n")
			for n, step := range m.Entry.ResolutionSteps {
				fmt.Fprintf(&b, "  %d. %s\n", n+1, step)
			}
		}
		if len(m.Reasons) > 0 {
			fmt.Fprintf(&b, "\nMatched on: %s\n", strings.Join(m.Reasons, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAnalysisComment renders the structured verdict for one cluster.
func formatAnalysisComment(c models.Cluster, s *models.AnalysisSections) string {
	var b strings.Builder
	b.WriteString(analysisHeader + "\n" + separator + "\n\n")
	fmt.Fprintf(&b, "Cluster: %s (%d affected)\n\n", c.Label, c.MemberCount)
	fmt.Fprintf(&b, "Situation:\n%s\n", s.Situation)
	if s.Category != "" {
		fmt.Fprintf(&b, "\nRoot cause category: %s\n", s.Category)
	}
	if s.Remediation != "" {
		fmt.Fprintf(&b, "\nRemediation:\n%s\n", s.Remediation)
	}
	if s.Severity != "" {
		fmt.Fprintf(&b, "\nSeverity: %s\n", s.Severity)
	}
	return strings.TrimRight(b.String(), "\n")
}
