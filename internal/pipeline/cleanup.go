package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vpetrenko/failtriage/internal/testops"
)

// CleanupReport summarizes one comment cleanup pass.
type CleanupReport struct {
	TestCases int  `json:"test_cases"`
	Matched   int  `json:"matched"`
	Deleted   int  `json:"deleted"`
	Failed    int  `json:"failed"`
	DryRun    bool `json:"dry_run"`
}

// Cleaner removes comments this tool wrote earlier, identified by the
// CommentPrefix. Human comments are never touched.
type Cleaner struct {
	sink        testops.Sink
	concurrency int64
}

// NewCleaner creates a Cleaner with the given scan concurrency.
func NewCleaner(sink testops.Sink, concurrency int) *Cleaner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Cleaner{sink: sink, concurrency: int64(concurrency)}
}

// Cleanup scans the given test cases and deletes matching comments. With
// dryRun it only counts what would be deleted. Per-comment failures are
// counted, not propagated.
func (c *Cleaner) Cleanup(ctx context.Context, testCaseIDs []int64, dryRun bool) (*CleanupReport, error) {
	report := &CleanupReport{TestCases: len(testCaseIDs), DryRun: dryRun}
	var mu sync.Mutex

	sem := semaphore.NewWeighted(c.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, tcID := range testCaseIDs {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			comments, err := c.sink.ListComments(gctx, tcID)
			if err != nil {
				slog.Warn("listing comments failed", "test_case_id", tcID, "error", err)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}

			for _, comment := range comments {
				if !strings.HasPrefix(comment.Body, CommentPrefix) {
					continue
				}
				mu.Lock()
				report.Matched++
				mu.Unlock()

				if dryRun {
					continue
				}
				if err := c.sink.DeleteComment(gctx, comment.ID); err != nil {
					slog.Warn("deleting comment failed",
						"test_case_id", tcID, "comment_id", comment.ID, "error", err)
					mu.Lock()
					report.Failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				report.Deleted++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	slog.Info("cleanup complete",
		"test_cases", report.TestCases,
		"matched", report.Matched,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"dry_run", dryRun)
	return report, nil
}
