package ranking

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Metadata similarity weights. The proxy is coarse: it stands in for content
// similarity until chunk vectors are compared directly.
const (
	simSameCourt  = 0.5
	simSameStatus = 0.3
	simYearClose  = 0.2
	simYearNear   = 0.1
)

// similarity estimates how alike two cases are, in [0,1]. It takes the
// larger of the metadata proxy and the Jaccard overlap of title words.
// Anything at or above threshold counts as a duplicate.
func similarity(a, b *store.CaseRecord, threshold float64) float64 {
	s := 0.0
	if a.Court != "" && strings.EqualFold(a.Court, b.Court) {
		s += simSameCourt
	}
	if a.Status != "" && strings.EqualFold(a.Status, b.Status) {
		s += simSameStatus
	}
	if ya, yb := a.Year(), b.Year(); ya != 0 && yb != 0 {
		switch d := abs(ya - yb); {
		case d <= 1:
			s += simYearClose
		case d <= 5:
			s += simYearNear
		}
	}
	s = max(min(s, 1), titleJaccard(a.CaseTitle, b.CaseTitle))
	if threshold > 0 && s >= threshold {
		return 1
	}
	return s
}

func titleJaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(wa)+len(wb)-inter)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(query.CleanText(s)) {
		set[w] = true
	}
	return set
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// diversify selects topK candidates by maximal marginal relevance:
// λ×relevance + (1-λ)×(1 - mean similarity to the selected set).
// cands must be sorted by final score. The selection is returned in final
// score order.
func diversify(cands []Candidate, topK int, lambda, threshold float64, records Records) []Candidate {
	if topK <= 0 || len(cands) <= topK {
		return cands
	}
	maxFinal := cands[0].FinalScore
	relevance := func(c *Candidate) float64 {
		if maxFinal <= 0 {
			return 0
		}
		return c.FinalScore / maxFinal
	}

	recs := make([]*store.CaseRecord, len(cands))
	if records != nil {
		for i := range cands {
			if r, ok := records.Record(cands[i].CaseID); ok {
				recs[i] = &r
			}
		}
	}

	used := make([]bool, len(cands))
	picked := make([]int, 0, topK)
	seen := make(map[store.CaseID]bool, topK)
	for len(picked) < topK {
		best, bestScore := -1, 0.0
		for i := range cands {
			if used[i] || seen[cands[i].CaseID] {
				continue
			}
			sim := 0.0
			if len(picked) > 0 && recs[i] != nil {
				for _, j := range picked {
					if recs[j] != nil {
						sim += similarity(recs[i], recs[j], threshold)
					}
				}
				sim /= float64(len(picked))
			}
			score := lambda*relevance(&cands[i]) + (1-lambda)*(1-sim)
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		seen[cands[best].CaseID] = true
		picked = append(picked, best)
	}

	out := make([]Candidate, 0, len(picked))
	for _, i := range picked {
		out = append(out, cands[i])
	}
	sortCandidates(out)
	return out
}

// sortCandidates orders by final score descending, then case id ascending.
func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].FinalScore != cands[j].FinalScore {
			return cands[i].FinalScore > cands[j].FinalScore
		}
		return cands[i].CaseID < cands[j].CaseID
	})
}
