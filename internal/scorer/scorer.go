// Package scorer provides the similarity measures used by the loop detectors.
//
// DESIGN: Both functions are pure and never fail:
//   - VectorSimilarity:      dot product of pre-normalized embeddings
//   - TextOverlapSimilarity: Jaccard index over lower-cased whitespace tokens
//
// Embeddings are assumed to be unit length (OpenAI text-embedding-3-*, Gemini
// and most Ollama embedding models return normalized vectors), so the dot
// product equals cosine similarity. No re-normalization is performed.
package scorer

import "strings"

// VectorSimilarity returns the dot product of a and b.
// Mismatched lengths return 0 instead of an error so a provider swap mid-session
// degrades the detector rather than the request.
func VectorSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// TextOverlapSimilarity returns |A ∩ B| / |A ∪ B| of the token sets of s1 and s2.
// Returns 0 if either string has no tokens.
func TextOverlapSimilarity(s1, s2 string) float64 {
	a := tokenSet(s1)
	b := tokenSet(s2)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
