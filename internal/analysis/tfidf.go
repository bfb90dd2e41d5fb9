package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// reToken accepts word runs from any script, not just ASCII.
var reToken = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenize(text string) []string {
	return reToken.FindAllString(strings.ToLower(text), -1)
}

// terms produces unigrams plus bigrams for a document.
func terms(text string) []string {
	tokens := tokenize(text)
	out := make([]string, 0, 2*len(tokens))
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// Vectorizer builds a capped TF-IDF vocabulary over a fixed document corpus
// and transforms documents into L2-normalized sparse vectors.
type Vectorizer struct {
	maxFeatures int
	vocab       map[string]int
	terms       []string
	idf         []float64
}

// NewVectorizer creates a Vectorizer keeping at most maxFeatures terms.
func NewVectorizer(maxFeatures int) *Vectorizer {
	return &Vectorizer{maxFeatures: maxFeatures}
}

// Fit builds the vocabulary and IDF weights from docs. Returns false when no
// document yields a single term; callers must treat that as "no vector
// space", not as an error.
//
// Vocabulary selection is deterministic: document frequency descending, then
// term ascending, truncated to maxFeatures.
func (v *Vectorizer) Fit(docs []string) bool {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, t := range terms(doc) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	if len(df) == 0 {
		return false
	}

	all := make([]string, 0, len(df))
	for t := range df {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if df[all[i]] != df[all[j]] {
			return df[all[i]] > df[all[j]]
		}
		return all[i] < all[j]
	})
	if v.maxFeatures > 0 && len(all) > v.maxFeatures {
		all = all[:v.maxFeatures]
	}

	n := float64(len(docs))
	v.vocab = make(map[string]int, len(all))
	v.terms = all
	v.idf = make([]float64, len(all))
	for i, t := range all {
		v.vocab[t] = i
		// Smoothed IDF: log((1+n)/(1+df)) + 1, keeps weights positive.
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
	return true
}

// Transform maps a document into the fitted vector space. The result is
// L2-normalized so cosine similarity reduces to a dot product.
func (v *Vectorizer) Transform(doc string) map[int]float64 {
	vec := make(map[int]float64)
	for _, t := range terms(doc) {
		if i, ok := v.vocab[t]; ok {
			vec[i]++
		}
	}
	var sq float64
	for i := range vec {
		vec[i] *= v.idf[i]
		sq += vec[i] * vec[i]
	}
	if sq > 0 {
		norm := math.Sqrt(sq)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Term returns the vocabulary term at index i.
func (v *Vectorizer) Term(i int) string {
	return v.terms[i]
}

// CosineSimilarity of two L2-normalized sparse vectors, clamped to [0,1].
// Term weights are non-negative, so the theoretical [-1,1] range never
// materializes below zero except through float noise.
func CosineSimilarity(a, b map[int]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for i, av := range a {
		if bv, ok := b[i]; ok {
			dot += av * bv
		}
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
