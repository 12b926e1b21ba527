package textutil

import "math"

// Vector is a sparse term-weight vector.
type Vector map[string]float64

// TermCounts returns raw term frequencies for text, or nil when text has no
// usable terms.
func TermCounts(text string) Vector {
	terms := Terms(text)
	if len(terms) == 0 {
		return nil
	}
	v := make(Vector, len(terms))
	for _, term := range terms {
		v[term]++
	}
	return v
}

// Scale multiplies each term by its weight. Terms without a weight keep
// their count.
func (v Vector) Scale(weights map[string]float64) Vector {
	if len(v) == 0 || len(weights) == 0 {
		return v
	}
	out := make(Vector, len(v))
	for term, count := range v {
		if w, ok := weights[term]; ok {
			count *= w
		}
		if count != 0 {
			out[term] = count
		}
	}
	return out
}

func (v Vector) length() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine of the angle between a and b, 0 when either is
// empty.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.length() * b.length())
}

// InverseFrequencies computes smoothed IDF weights over docs,
// 1 + ln((N+1)/(df+1)), so a term present in every document still counts.
func InverseFrequencies(docs []Vector) map[string]float64 {
	if len(docs) == 0 {
		return nil
	}
	df := make(map[string]int)
	for _, doc := range docs {
		for term := range doc {
			df[term]++
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = 1 + math.Log((n+1)/(float64(count)+1))
	}
	return idf
}

// Score ranks each document against query with TF-IDF cosine similarity.
// The result is parallel to docs.
func Score(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	q := TermCounts(query)
	if q == nil {
		return scores
	}
	vectors := make([]Vector, len(docs))
	for i, doc := range docs {
		vectors[i] = TermCounts(doc)
	}
	idf := InverseFrequencies(vectors)
	q = q.Scale(idf)
	for i, v := range vectors {
		scores[i] = Cosine(q, v.Scale(idf))
	}
	return scores
}
