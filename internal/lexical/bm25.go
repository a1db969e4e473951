package lexical

import (
	"math"
	"sort"
)

// idfEpsilon floors negative Okapi IDF values at a fraction of the mean IDF,
// so terms present in most documents still count a little.
const idfEpsilon = 0.25

type posting struct {
	row int
	tf  int
}

// fieldScorer is the transient BM25 structure for one field. It is rebuilt
// from the tokenized corpus on build and on snapshot load.
type fieldScorer struct {
	k1, b    float64
	avgLen   float64
	docLen   []int
	idf      map[string]float64
	postings map[string][]posting
}

func newFieldScorer(docs [][]string, k1, b float64) *fieldScorer {
	s := &fieldScorer{
		k1:       k1,
		b:        b,
		docLen:   make([]int, len(docs)),
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}

	total := 0
	for row, tokens := range docs {
		s.docLen[row] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, n := range tf {
			s.postings[term] = append(s.postings[term], posting{row: row, tf: n})
		}
	}
	if len(docs) > 0 {
		s.avgLen = float64(total) / float64(len(docs))
	}

	terms := make([]string, 0, len(s.postings))
	for term := range s.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	sum := 0.0
	var negative []string
	for _, term := range terms {
		df := float64(len(s.postings[term]))
		idf := math.Log((n - df + 0.5) / (df + 0.5))
		s.idf[term] = idf
		sum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(s.idf) > 0 {
		eps := idfEpsilon * sum / float64(len(s.idf))
		if eps <= 0 {
			// Tiny corpora can have a non-positive mean.
			eps = idfEpsilon
		}
		for _, term := range negative {
			s.idf[term] = eps
		}
	}
	return s
}

// score adds this field's BM25 contribution for each query token into acc,
// skipping rows rejected by allow.
func (s *fieldScorer) score(tokens []string, weight float64, allow func(row int) bool, acc map[int]float64) {
	if s.avgLen == 0 {
		return
	}
	for _, tok := range tokens {
		idf, ok := s.idf[tok]
		if !ok {
			continue
		}
		for _, p := range s.postings[tok] {
			if allow != nil && !allow(p.row) {
				continue
			}
			tf := float64(p.tf)
			norm := s.k1 * (1 - s.b + s.b*float64(s.docLen[p.row])/s.avgLen)
			acc[p.row] += weight * idf * tf * (s.k1 + 1) / (tf + norm)
		}
	}
}
