package store

import (
	"math"
	"sort"
	"strings"
)

// BM25 constants. Title terms count double via field weighting below.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// rankLexical scores candidate artifacts against the query terms with a
// BM25-style function and returns the top matches, highest score first.
// Artifacts with zero overlap are excluded.
func rankLexical(terms []string, candidates []MemoryArtifact, limit int) []MemoryArtifact {
	if len(terms) == 0 || len(candidates) == 0 {
		return nil
	}

	docs := make([][]string, len(candidates))
	var totalLen float64
	for i, c := range candidates {
		// Title tokens are doubled so matches there outrank body matches.
		text := c.Title + " " + c.Title + " " + c.Text + " " + strings.Join(c.Tags, " ")
		docs[i] = tokenize(text)
		totalLen += float64(len(docs[i]))
	}
	avgLen := totalLen / float64(len(docs))
	if avgLen == 0 {
		return nil
	}

	// Document frequency per term.
	df := make(map[string]int, len(terms))
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, tok := range doc {
			seen[tok] = true
		}
		for _, t := range terms {
			if seen[t] {
				df[t]++
			}
		}
	}

	n := float64(len(candidates))
	scored := make([]MemoryArtifact, 0, len(candidates))
	for i, c := range candidates {
		tf := make(map[string]int, len(docs[i]))
		for _, tok := range docs[i] {
			tf[tok]++
		}
		var score float64
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(len(docs[i]))/avgLen))
			score += idf * norm
		}
		if score > 0 {
			c.Score = score
			scored = append(scored, c)
		}
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// cosineDistance returns 1 - cosine similarity; 1 for degenerate vectors.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
