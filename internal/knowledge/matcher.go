package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vpetrenko/failtriage/internal/analysis"
	"github.com/vpetrenko/failtriage/pkg/models"
)

const (
	matcherVocabCap = 500
	exampleWeight   = 0.8
	metaWeight      = 0.2
	// A liked entry gains this much blended score, still clamped to 1.
	feedbackBoost = 0.1
	// A similarity dimension must contribute this much to the blended score
	// to be cited as a match reason.
	reasonMinContribution = 0.10
	reasonTermCap         = 3
)

// Feedback carries reviewer votes for one error fingerprint: entries to drop
// from the results and entries to rank higher. Slugs refer to the entry set
// after shadowing.
type Feedback struct {
	Exclusions map[string]struct{}
	Boosts     map[string]struct{}
}

// Matcher scores cluster documents against a fixed entry set. Every query is
// vectorized in one TF-IDF space fitted over the query plus all entry
// documents, so terms unique to the query still weigh against the
// similarity instead of silently vanishing. The blended score weights the
// error-example dimension heavier because the example text is what failures
// actually look like.
type Matcher struct {
	entries []models.KnowledgeEntry

	exampleDocs []string
	metaDocs    []string
}

// NewMatcher builds a Matcher over a visible entry set. Shadowing is resolved
// here, so callers pass the raw store listing.
func NewMatcher(entries []models.KnowledgeEntry) *Matcher {
	m := &Matcher{entries: ResolveShadowing(entries)}

	m.exampleDocs = make([]string, len(m.entries))
	m.metaDocs = make([]string, len(m.entries))
	for i, e := range m.entries {
		m.exampleDocs[i] = analysis.Normalize(e.ErrorExample)
		m.metaDocs[i] = analysis.Normalize(e.Title + "\n" + e.Description)
	}
	return m
}

// Entries returns the entry set after shadowing, sorted by slug.
func (m *Matcher) Entries() []models.KnowledgeEntry {
	return m.entries
}

// Match scores a normalized cluster document against every entry, returning
// matches with score >= minScore, best first, capped at maxResults. Equal
// scores order by slug.
func (m *Matcher) Match(document string, minScore float64, maxResults int) []models.KnowledgeMatch {
	return m.MatchWithFeedback(document, minScore, maxResults, Feedback{})
}

// MatchWithFeedback is Match with reviewer votes applied: excluded entries
// never appear, boosted entries gain a fixed score bonus.
func (m *Matcher) MatchWithFeedback(document string, minScore float64, maxResults int, fb Feedback) []models.KnowledgeMatch {
	if len(m.entries) == 0 || strings.TrimSpace(document) == "" {
		return nil
	}

	// One shared space per query: [document, example_0..example_N,
	// meta_0..meta_N]. The query sits in the corpus, so its vector keeps
	// the weight of terms no entry mentions.
	corpus := make([]string, 0, 1+2*len(m.entries))
	corpus = append(corpus, document)
	corpus = append(corpus, m.exampleDocs...)
	corpus = append(corpus, m.metaDocs...)

	vec := analysis.NewVectorizer(matcherVocabCap)
	if !vec.Fit(corpus) {
		return nil
	}
	query := vec.Transform(document)

	var matches []models.KnowledgeMatch
	for i, e := range m.entries {
		if _, excluded := fb.Exclusions[e.Slug]; excluded {
			continue
		}

		exampleVec := vec.Transform(m.exampleDocs[i])
		exampleSim := analysis.CosineSimilarity(query, exampleVec)
		metaSim := analysis.CosineSimilarity(query, vec.Transform(m.metaDocs[i]))

		score := exampleWeight*exampleSim + metaWeight*metaSim
		reasons := matchReasons(vec, query, exampleVec, exampleSim, metaSim)
		if _, boosted := fb.Boosts[e.Slug]; boosted {
			score += feedbackBoost
			reasons = append(reasons, "boosted by reviewer feedback")
		}
		if score > 1 {
			score = 1
		}
		if score < minScore {
			continue
		}
		matches = append(matches, models.KnowledgeMatch{
			Entry:   e,
			Score:   score,
			Reasons: reasons,
		})
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].Entry.Slug < matches[b].Entry.Slug
	})
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// matchReasons names each similarity dimension whose weighted contribution to
// the blended score is material, so a triage comment can say why an entry
// matched. The example dimension also lists the terms carrying most of its
// similarity.
func matchReasons(vec *analysis.Vectorizer, query, example map[int]float64, exampleSim, metaSim float64) []string {
	var out []string
	if exampleWeight*exampleSim >= reasonMinContribution {
		reason := fmt.Sprintf("error example similarity %.2f", exampleSim)
		if terms := topSharedTerms(vec, query, example); len(terms) > 0 {
			reason += " (" + strings.Join(terms, ", ") + ")"
		}
		out = append(out, reason)
	}
	if metaWeight*metaSim >= reasonMinContribution {
		out = append(out, fmt.Sprintf("title/description similarity %.2f", metaSim))
	}
	return out
}

// topSharedTerms ranks the vocabulary terms both vectors weight, by their
// contribution to the dot product.
func topSharedTerms(vec *analysis.Vectorizer, query, example map[int]float64) []string {
	type contrib struct {
		dim   int
		value float64
	}
	var contribs []contrib
	for dim, qv := range query {
		if ev, ok := example[dim]; ok && qv*ev > 0 {
			contribs = append(contribs, contrib{dim, qv * ev})
		}
	}
	sort.Slice(contribs, func(a, b int) bool {
		if contribs[a].value != contribs[b].value {
			return contribs[a].value > contribs[b].value
		}
		return vec.Term(contribs[a].dim) < vec.Term(contribs[b].dim)
	})
	if len(contribs) > reasonTermCap {
		contribs = contribs[:reasonTermCap]
	}

	out := make([]string, len(contribs))
	for i, c := range contribs {
		out[i] = vec.Term(c.dim)
	}
	return out
}
