package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vpetrenko/failtriage/internal/analysis"
	"github.com/vpetrenko/failtriage/internal/knowledge"
	"github.com/vpetrenko/failtriage/internal/testops"
	"github.com/vpetrenko/failtriage/pkg/models"
)

// RunnerOptions assembles a Runner. Engine, KBStore, Orchestrator and Sink
// may each be nil when the corresponding stage is disabled.
type RunnerOptions struct {
	Triager      *Triager
	Engine       *analysis.Engine
	KBStore      knowledge.Store
	Feedback     knowledge.FeedbackStore
	Orchestrator *Orchestrator
	Sink         testops.Sink

	Scope        models.Scope
	MinScore     float64
	MaxResults   int
	PushMatches  bool
	PushAnalyses bool
}

// Runner executes the full launch pipeline: triage, clustering, knowledge
// matching, analysis and write-back. Stage failures after triage degrade
// the report instead of aborting.
type Runner struct {
	opts RunnerOptions
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{opts: opts}
}

// Run triages a launch and carries the results through every enabled stage.
// Only triage and malformed clustering input are fatal.
func (r *Runner) Run(ctx context.Context, launchID int64) (*models.RunReport, error) {
	triage, err := r.opts.Triager.Triage(ctx, launchID)
	if err != nil {
		return nil, err
	}
	report := &models.RunReport{Triage: triage}

	if r.opts.Engine == nil || len(triage.Failures) == 0 {
		return report, nil
	}

	clustering, err := r.opts.Engine.Cluster(launchID, triage.Failures)
	if err != nil {
		return nil, fmt.Errorf("clustering launch %d: %w", launchID, err)
	}
	report.Clustering = clustering
	slog.Info("clustering complete",
		"launch_id", launchID,
		"failures", clustering.TotalFailures,
		"clusters", clustering.ClusterCount,
		"singletons", clustering.SingletonCount)

	r.matchKnowledge(ctx, report)
	r.analyze(ctx, report)
	r.writeBack(ctx, report)
	return report, nil
}

// matchKnowledge scores each cluster against the knowledge store. A dead
// store skips the stage and records the degradation.
func (r *Runner) matchKnowledge(ctx context.Context, report *models.RunReport) {
	if r.opts.KBStore == nil {
		return
	}

	entries, err := r.opts.KBStore.ListEntries(ctx, r.opts.Scope)
	if err != nil {
		if errors.Is(err, knowledge.ErrStoreUnavailable) {
			slog.Warn("knowledge store unavailable, skipping matching", "error", err)
			report.Degraded = append(report.Degraded, "knowledge: "+err.Error())
			return
		}
		slog.Error("listing knowledge entries failed", "error", err)
		report.Degraded = append(report.Degraded, "knowledge: "+err.Error())
		return
	}

	matcher := knowledge.NewMatcher(entries)
	matches := make(map[string][]models.KnowledgeMatch)
	for i := range report.Clustering.Clusters {
		c := &report.Clustering.Clusters[i]
		c.Fingerprint = knowledge.Fingerprint(c.Document)

		fb := r.lookupFeedback(ctx, c.Fingerprint)
		if ms := matcher.MatchWithFeedback(c.Document, r.opts.MinScore, r.opts.MaxResults, fb); len(ms) > 0 {
			matches[c.ID] = ms
		}
	}
	if len(matches) > 0 {
		report.Matches = matches
	}
	slog.Info("knowledge matching complete",
		"entries", len(matcher.Entries()), "matched_clusters", len(matches))
}

// lookupFeedback fetches reviewer votes for a fingerprint. Feedback is a
// ranking hint only; read failures degrade to no votes.
func (r *Runner) lookupFeedback(ctx context.Context, fingerprint string) knowledge.Feedback {
	if r.opts.Feedback == nil {
		return knowledge.Feedback{}
	}

	exclusions, err := r.opts.Feedback.Exclusions(ctx, fingerprint)
	if err != nil {
		slog.Warn("reading feedback exclusions failed", "error", err)
		exclusions = nil
	}
	boosts, err := r.opts.Feedback.Boosts(ctx, fingerprint)
	if err != nil {
		slog.Warn("reading feedback boosts failed", "error", err)
		boosts = nil
	}
	return knowledge.Feedback{Exclusions: exclusions, Boosts: boosts}
}

func (r *Runner) analyze(ctx context.Context, report *models.RunReport) {
	if r.opts.Orchestrator == nil {
		return
	}

	reqs := make([]models.AnalysisRequest, 0, len(report.Clustering.Clusters))
	for _, c := range report.Clustering.Clusters {
		reqs = append(reqs, models.AnalysisRequest{
			ClusterID:   c.ID,
			Label:       c.Label,
			Document:    c.Document,
			Category:    c.Category,
			MemberCount: c.MemberCount,
			Matches:     report.Matches[c.ID],
			LogSnippet:  c.ExampleTrace,
		})
	}

	report.Analyses = r.opts.Orchestrator.Run(ctx, reqs)

	exhausted := 0
	for _, result := range report.Analyses {
		if result.Status == models.AnalysisExhausted {
			exhausted++
		}
	}
	if exhausted > 0 {
		report.Degraded = append(report.Degraded,
			fmt.Sprintf("analysis: %d of %d clusters exhausted", exhausted, len(reqs)))
	}
	slog.Info("analysis complete", "clusters", len(reqs), "exhausted", exhausted)
}

func (r *Runner) writeBack(ctx context.Context, report *models.RunReport) {
	if r.opts.Sink == nil || (!r.opts.PushMatches && !r.opts.PushAnalyses) {
		return
	}

	writer := NewWriter(r.opts.Sink)
	if r.opts.PushMatches && len(report.Matches) > 0 {
		report.WriteBacks = append(report.WriteBacks,
			writer.PushMatches(ctx, report.Triage.Failures, report.Clustering.Clusters, report.Matches)...)
	}
	if r.opts.PushAnalyses && len(report.Analyses) > 0 {
		report.WriteBacks = append(report.WriteBacks,
			writer.PushAnalyses(ctx, report.Triage.Failures, report.Clustering.Clusters, report.Analyses)...)
	}

	written, failed := 0, 0
	for _, rec := range report.WriteBacks {
		switch rec.Status {
		case "written":
			written++
		case "failed":
			failed++
		}
	}
	slog.Info("write-back complete", "written", written, "failed", failed)
}
