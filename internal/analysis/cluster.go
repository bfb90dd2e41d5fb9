package analysis

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vpetrenko/failtriage/pkg/models"
)

const (
	vocabCap     = 500
	labelTerms   = 4
	labelMaxLen  = 120
	clusterIDLen = 16
	patternLen   = 100
	traceSnippet = 5
)

// ErrInputMismatch indicates a malformed input set. This is a programming
// defect in the caller and aborts clustering entirely.
var ErrInputMismatch = errors.New("document count does not match failure count")

// Tokens that carry no meaning in a cluster label: stop words plus the
// lowercased residue of normalization placeholders.
var labelStopTokens = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "was": {}, "at": {}, "in": {},
	"for": {}, "to": {}, "of": {}, "and": {}, "or": {}, "but": {}, "with": {},
	"not": {}, "no": {}, "be": {}, "by": {}, "on": {}, "it": {}, "that": {},
	"this": {}, "from": {}, "has": {}, "had": {}, "have": {},
	"id": {}, "ts": {}, "ip": {}, "num": {},
}

// Engine partitions failures into clusters of one underlying defect via
// complete-linkage hierarchical clustering over TF-IDF cosine distance.
type Engine struct {
	threshold float64
}

// NewEngine creates an Engine cutting the dendrogram at the given cosine
// distance threshold (inclusive).
func NewEngine(threshold float64) *Engine {
	return &Engine{threshold: threshold}
}

// BuildDocument concatenates a failure's message, trace and category and
// normalizes the result into the document used for comparison.
func BuildDocument(f models.Failure) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{f.Message, f.Trace, f.Category} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return Normalize(strings.Join(parts, "\n"))
}

// Cluster builds one document per failure and partitions the failures.
func (e *Engine) Cluster(launchID int64, failures []models.Failure) (*models.ClusteringReport, error) {
	docs := make([]string, len(failures))
	for i, f := range failures {
		docs[i] = BuildDocument(f)
	}
	return e.ClusterDocuments(launchID, failures, docs)
}

// ClusterDocuments partitions failures using pre-built documents. The two
// slices must be parallel; a length mismatch aborts the run.
//
// The partition is permutation-invariant: the same failure set in any input
// order yields the same member sets and the same cluster ids.
func (e *Engine) ClusterDocuments(launchID int64, failures []models.Failure, docs []string) (*models.ClusteringReport, error) {
	if len(docs) != len(failures) {
		return nil, fmt.Errorf("%w: %d documents for %d failures", ErrInputMismatch, len(docs), len(failures))
	}

	report := &models.ClusteringReport{
		LaunchID:      launchID,
		TotalFailures: len(failures),
		Clusters:      []models.Cluster{},
	}
	if len(failures) == 0 {
		return report, nil
	}

	// Stable processing order regardless of input order.
	order := make([]int, len(failures))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return failures[order[a]].TestResultID < failures[order[b]].TestResultID
	})

	var clusterable, singletons []int
	for _, i := range order {
		if failures[i].Textless || strings.TrimSpace(docs[i]) == "" {
			singletons = append(singletons, i)
		} else {
			clusterable = append(clusterable, i)
		}
	}

	groups := e.partition(clusterable, docs)
	for _, i := range singletons {
		groups = append(groups, []int{i})
	}

	for _, g := range groups {
		report.Clusters = append(report.Clusters, buildCluster(failures, docs, g))
	}
	sort.Slice(report.Clusters, func(a, b int) bool {
		ca, cb := report.Clusters[a], report.Clusters[b]
		if ca.MemberCount != cb.MemberCount {
			return ca.MemberCount > cb.MemberCount
		}
		return ca.ID < cb.ID
	})

	report.ClusterCount = len(report.Clusters)
	for _, c := range report.Clusters {
		if c.MemberCount == 1 {
			report.SingletonCount++
		}
	}
	return report, nil
}

// partition groups clusterable failure indices by complete-linkage
// agglomerative clustering. A single document short-circuits without any
// distance computation; an empty vocabulary degrades to all-singletons.
func (e *Engine) partition(idxs []int, docs []string) [][]int {
	if len(idxs) == 0 {
		return nil
	}
	if len(idxs) == 1 {
		return [][]int{{idxs[0]}}
	}

	corpus := make([]string, len(idxs))
	for i, idx := range idxs {
		corpus[i] = docs[idx]
	}

	vec := NewVectorizer(vocabCap)
	if !vec.Fit(corpus) {
		out := make([][]int, len(idxs))
		for i, idx := range idxs {
			out[i] = []int{idx}
		}
		return out
	}

	vectors := make([]map[int]float64, len(corpus))
	for i, doc := range corpus {
		vectors[i] = vec.Transform(doc)
	}
	dist := make([][]float64, len(vectors))
	for i := range vectors {
		dist[i] = make([]float64, len(vectors))
	}
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			d := 1 - CosineSimilarity(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	merged := completeLinkage(dist, e.threshold)
	out := make([][]int, len(merged))
	for gi, g := range merged {
		out[gi] = make([]int, len(g))
		for mi, pos := range g {
			out[gi][mi] = idxs[pos]
		}
		sort.Ints(out[gi])
	}
	return out
}

// completeLinkage merges groups greedily by the smallest complete-linkage
// distance until no candidate merge stays within the threshold (inclusive).
// The merge criterion is the maximum pairwise distance across the candidate
// merged group, so every pair inside a final group is within the threshold.
func completeLinkage(dist [][]float64, threshold float64) [][]int {
	n := len(dist)
	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}

	for len(groups) > 1 {
		bestI, bestJ := -1, -1
		var bestD float64
		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				d := linkageDistance(groups[i], groups[j], dist)
				if d > threshold {
					continue
				}
				// Strict < keeps the earliest pair on ties, which is
				// deterministic because groups are in stable order.
				if bestI == -1 || d < bestD {
					bestI, bestJ, bestD = i, j, d
				}
			}
		}
		if bestI == -1 {
			break
		}
		groups[bestI] = append(groups[bestI], groups[bestJ]...)
		sort.Ints(groups[bestI])
		groups = append(groups[:bestJ], groups[bestJ+1:]...)
	}
	return groups
}

func linkageDistance(a, b []int, dist [][]float64) float64 {
	var max float64
	for _, i := range a {
		for _, j := range b {
			if dist[i][j] > max {
				max = dist[i][j]
			}
		}
	}
	return max
}

// buildCluster synthesizes the label, signature hash and examples for one
// group of member indices.
func buildCluster(failures []models.Failure, docs []string, members []int) models.Cluster {
	rep := members[0]
	for _, i := range members[1:] {
		if len(docs[i]) > len(docs[rep]) ||
			(len(docs[i]) == len(docs[rep]) && failures[i].TestResultID < failures[rep].TestResultID) {
			rep = i
		}
	}
	repFailure := failures[rep]

	memberIDs := make([]int64, len(members))
	for i, idx := range members {
		memberIDs[i] = failures[idx].TestResultID
	}
	sort.Slice(memberIDs, func(a, b int) bool { return memberIDs[a] < memberIDs[b] })

	memberDocs := make([]string, len(members))
	for i, idx := range members {
		memberDocs[i] = docs[idx]
	}

	return models.Cluster{
		ID:             clusterID(repFailure, docs[rep]),
		Label:          clusterLabel(repFailure, docs[rep], memberDocs),
		Category:       repFailure.Category,
		MemberIDs:      memberIDs,
		MemberCount:    len(memberIDs),
		Document:       docs[rep],
		ExampleMessage: repFailure.Message,
		ExampleTrace:   firstLines(repFailure.Trace, traceSnippet),
	}
}

// clusterID hashes the normalized signature (category + representative
// pattern) and truncates to a fixed length. Textless clusters fold the
// representative's id into the signature so forced singletons stay distinct.
func clusterID(rep models.Failure, doc string) string {
	pattern := doc
	if len(pattern) > patternLen {
		pattern = pattern[:patternLen]
	}
	signature := rep.Category + "\n" + pattern
	if strings.TrimSpace(doc) == "" {
		signature += fmt.Sprintf("\n%d", rep.TestResultID)
	}
	sum := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("%x", sum)[:clusterIDLen]
}

// clusterLabel prefers terms shared by every member document, falling back
// to the leading line of the representative's message or document.
func clusterLabel(rep models.Failure, repDoc string, memberDocs []string) string {
	shared := sharedTokens(memberDocs)
	if len(shared) > 0 {
		counts := make(map[string]int)
		for _, t := range tokenize(repDoc) {
			counts[t]++
		}
		sort.Slice(shared, func(a, b int) bool {
			if counts[shared[a]] != counts[shared[b]] {
				return counts[shared[a]] > counts[shared[b]]
			}
			return shared[a] < shared[b]
		})
		if len(shared) > labelTerms {
			shared = shared[:labelTerms]
		}
		return truncate(strings.Join(shared, " "), labelMaxLen)
	}

	line := firstLines(rep.Message, 1)
	if line == "" {
		line = firstLines(repDoc, 1)
	}
	if line == "" {
		line = fmt.Sprintf("test-result %d", rep.TestResultID)
	}
	return truncate(line, labelMaxLen)
}

func sharedTokens(memberDocs []string) []string {
	var shared map[string]struct{}
	for _, doc := range memberDocs {
		tokens := make(map[string]struct{})
		for _, t := range tokenize(doc) {
			if len(t) < 2 {
				continue
			}
			if _, stop := labelStopTokens[t]; stop {
				continue
			}
			tokens[t] = struct{}{}
		}
		if shared == nil {
			shared = tokens
			continue
		}
		for t := range shared {
			if _, ok := tokens[t]; !ok {
				delete(shared, t)
			}
		}
	}
	out := make([]string, 0, len(shared))
	for t := range shared {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func firstLines(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
