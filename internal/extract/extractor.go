// Package extract resolves the best-available error text for failed test
// results via a tiered fallback, keeping extra network calls to the minimum.
package extract

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// Fetcher is the narrow slice of the source collaborator used by the tier-3
// fallback. Only unresolved failures ever reach it.
type Fetcher interface {
	GetTestResult(ctx context.Context, testResultID int64) (*models.TestResult, error)
	GetExecutionSteps(ctx context.Context, testResultID int64) (*models.StepNode, error)
}

// Extractor resolves (message, trace) pairs for failures in three tiers:
//
//  1. depth-first walk of the already-fetched execution-step tree,
//  2. status-detail fields from the bulk listing,
//  3. one targeted fetch of the full record (the only tier doing I/O).
//
// Failures no tier can resolve are marked textless and cluster as forced
// singletons downstream.
type Extractor struct {
	fetcher Fetcher
	sem     *semaphore.Weighted
}

// New creates an Extractor. detailConcurrency bounds concurrent tier-3
// fetches so a launch full of textless failures cannot flood the source.
func New(fetcher Fetcher, detailConcurrency int64) *Extractor {
	if detailConcurrency < 1 {
		detailConcurrency = 1
	}
	return &Extractor{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(detailConcurrency),
	}
}

// Resolve produces one Failure per test result, in input order. Tier-3
// fetches for unresolved failures run concurrently under the semaphore; a
// fetch failure degrades that one failure to textless instead of failing the
// batch.
func (e *Extractor) Resolve(ctx context.Context, results []models.TestResult) []models.Failure {
	failures := make([]models.Failure, len(results))
	var unresolved []int

	for i, r := range results {
		failures[i] = baseFailure(r)

		if msg, trace, ok := fromSteps(r.Execution); ok {
			failures[i].Message = msg
			failures[i].Trace = trace
			continue
		}
		if msg, trace, ok := fromStatusDetails(r); ok {
			failures[i].Message = msg
			failures[i].Trace = trace
			continue
		}
		unresolved = append(unresolved, i)
	}

	if len(unresolved) > 0 {
		e.fetchUnresolved(ctx, failures, unresolved)
	}

	textless := 0
	for i := range failures {
		if failures[i].Message == "" && failures[i].Trace == "" {
			failures[i].Textless = true
			textless++
		}
	}
	if textless > 0 {
		slog.Info("extraction left textless failures", "count", textless, "total", len(failures))
	}
	return failures
}

func (e *Extractor) fetchUnresolved(ctx context.Context, failures []models.Failure, unresolved []int) {
	g, gctx := errgroup.WithContext(ctx)
	for _, i := range unresolved {
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer e.sem.Release(1)

			msg, trace := e.fetchOne(gctx, failures[i].TestResultID)
			failures[i].Message = msg
			failures[i].Trace = trace
			return nil
		})
	}
	// Workers never return errors; per-item failures degrade to textless.
	_ = g.Wait()
}

// fetchOne is the tier-3 fallback: fetch the full record and use its
// top-level trace, taking the first trace line as the message when the
// record has none. If the record is still empty, try its execution steps.
func (e *Extractor) fetchOne(ctx context.Context, testResultID int64) (string, string) {
	full, err := e.fetcher.GetTestResult(ctx, testResultID)
	if err != nil {
		slog.Warn("tier-3 fetch failed", "test_result_id", testResultID, "error", err)
		return "", ""
	}

	msg := strings.TrimSpace(full.StatusMessage)
	trace := strings.TrimSpace(full.StatusTrace)
	if msg == "" && trace != "" {
		msg = firstLine(trace)
	}
	if msg != "" || trace != "" {
		return msg, trace
	}

	if m, t, ok := fromSteps(full.Execution); ok {
		return m, t
	}
	root, err := e.fetcher.GetExecutionSteps(ctx, testResultID)
	if err != nil {
		slog.Warn("execution-step fetch failed", "test_result_id", testResultID, "error", err)
		return "", ""
	}
	if m, t, ok := fromSteps(root); ok {
		return m, t
	}
	return "", ""
}

// fromSteps walks the execution-step tree depth-first and returns the text
// of the first step whose own status indicates failure.
func fromSteps(node *models.StepNode) (string, string, bool) {
	if node == nil {
		return "", "", false
	}
	if failedStatus(node.Status) && (node.Message != "" || node.Trace != "") {
		return strings.TrimSpace(node.Message), strings.TrimSpace(node.Trace), true
	}
	for i := range node.Steps {
		if msg, trace, ok := fromSteps(&node.Steps[i]); ok {
			return msg, trace, true
		}
	}
	return "", "", false
}

// fromStatusDetails reads the status fields the bulk listing already
// carries. A trace-only listing uses its first trace line as the message,
// the same rule fetchOne applies to a full record, so such failures resolve
// here without a detail fetch.
func fromStatusDetails(r models.TestResult) (string, string, bool) {
	msg := strings.TrimSpace(r.StatusMessage)
	trace := strings.TrimSpace(r.StatusTrace)
	if msg == "" && trace == "" {
		return "", "", false
	}
	if msg == "" {
		msg = firstLine(trace)
	}
	return msg, trace, true
}

func baseFailure(r models.TestResult) models.Failure {
	return models.Failure{
		TestResultID: r.ID,
		Name:         r.Name,
		Status:       NormalizeStatus(r.Status),
		Category:     r.Category,
		TestCaseID:   r.TestCaseID,
	}
}

// NormalizeStatus converts a raw status string into the TestStatus taxonomy.
func NormalizeStatus(raw string) models.TestStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "passed":
		return models.StatusPassed
	case "failed":
		return models.StatusFailed
	case "broken":
		return models.StatusBroken
	case "skipped":
		return models.StatusSkipped
	default:
		return models.StatusUnknown
	}
}

func failedStatus(raw string) bool {
	return NormalizeStatus(raw).IsFailure()
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}
