// Package precision trims the long tail of a ranked result list. How far it
// cuts depends on how specific the query is: citation and case-number
// queries keep few results, broad one-word queries keep many.
package precision

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/ranking"
)

// Stop reasons reported in Result.StopReason.
const (
	StopNone       = ""
	StopMaxResults = "max_results"
	StopFloor      = "below_floor"
	StopScoreDrop  = "score_drop"
)

// LowSpecificity is the specificity below which a query is treated as broad.
const LowSpecificity = 0.3

// broadMinimum is how many results a broad query always keeps.
const broadMinimum = 5

var (
	partyPattern  = regexp.MustCompile(`(?i)\bvs?\.?\s+\w+`)
	statusPattern = regexp.MustCompile(`(?i)\b(decided|pending|disposed)\b`)
	digitPattern  = regexp.MustCompile(`\d`)
)

// Specificity scores how narrowly a query targets cases, in [0,1]. Length,
// citations, identifiers, legal-term density, digits, party and status
// words raise it; generic words lower it.
func Specificity(q *query.NormalizedQuery) float64 {
	if q == nil {
		return 0
	}
	words := q.WordTokens()
	n := len(words)
	if n == 0 && len(q.Citations) == 0 && len(q.ExactIdentifiers) == 0 {
		return 0
	}

	var s float64
	switch {
	case n <= 1:
		s = 0.1
	case n <= 3:
		s = 0.3
	case n <= 6:
		s = 0.5
	default:
		s = 0.7
	}

	for _, c := range q.Citations {
		if c.IsStatute() {
			s += 0.2
		} else {
			s += 0.3
		}
	}
	s += 0.25 * float64(len(q.ExactIdentifiers))

	if n > 0 {
		density := float64(len(q.LegalTerms)) / float64(n)
		s += 0.15 * min(1, 2*density)

		generic := 0
		for _, w := range words {
			if query.IsGenericWord(w) {
				generic++
			}
		}
		s -= 0.2 * float64(generic) / float64(n)
	}

	if strings.Contains(q.Original, `"`) {
		s += 0.1
	}
	for _, re := range []*regexp.Regexp{partyPattern, statusPattern, digitPattern} {
		if re.MatchString(q.Original) {
			s += 0.05
		}
	}
	return min(1, max(0, s))
}

// MaxResults caps the result count by specificity.
func MaxResults(specificity float64) int {
	switch {
	case specificity >= 0.8:
		return 15
	case specificity >= 0.6:
		return 30
	case specificity >= LowSpecificity:
		return 50
	default:
		return 100
	}
}

// Cutoff holds the thresholds of the intelligent cutoff.
type Cutoff struct {
	// MinRelevance is the absolute final-score floor.
	MinRelevance float64
	// ScoreDrop is the fraction of the top score a result must reach.
	ScoreDrop float64

	// A result whose base fusion score exceeds LenientBase only needs
	// max(LenientFloor, ScoreDrop×LenientFactor) of the top score.
	LenientFactor float64
	LenientFloor  float64
	LenientBase   float64
}

// CutoffFromConfig reads the cutoff thresholds from the ranking config.
func CutoffFromConfig(cfg *config.RankingConfig) Cutoff {
	return Cutoff{
		MinRelevance:  cfg.RelevanceThreshold,
		ScoreDrop:     cfg.ScoreDropThreshold,
		LenientFactor: cfg.LenientFactor,
		LenientFloor:  cfg.LenientFloor,
		LenientBase:   cfg.LenientBaseScore,
	}
}

// threshold is the relative score a candidate must reach.
func (c Cutoff) threshold(cand *ranking.Candidate) float64 {
	if cand.BaseScore > c.LenientBase {
		return max(c.LenientFloor, c.ScoreDrop*c.LenientFactor)
	}
	return c.ScoreDrop
}

// Result is the trimmed list and how it was cut.
type Result struct {
	Candidates  []ranking.Candidate `json:"-"`
	Specificity float64             `json:"specificity"`
	MaxResults  int                 `json:"max_results"`
	Input       int                 `json:"input_count"`
	Kept        int                 `json:"kept_count"`
	StopReason  string              `json:"stop_reason,omitempty"`
	// Padded is set when the minimum result guarantee added results the
	// thresholds had cut.
	Padded bool `json:"padded,omitempty"`
}

// Optimize walks the ranked candidates in order and stops at the first one
// below the absolute floor or the relative threshold, or at MaxResults.
// At least one result survives, and broad queries keep min(5, n).
// cands must already be sorted by final score.
func Optimize(cands []ranking.Candidate, q *query.NormalizedQuery, c Cutoff) Result {
	spec := Specificity(q)
	res := Result{Specificity: spec, MaxResults: MaxResults(spec), Input: len(cands)}
	if len(cands) == 0 {
		return res
	}

	top := cands[0].FinalScore
	kept := 0
	for i := range cands {
		cand := &cands[i]
		if kept >= res.MaxResults {
			res.StopReason = StopMaxResults
			break
		}
		if cand.FinalScore < c.MinRelevance {
			res.StopReason = StopFloor
			break
		}
		if top > 0 && cand.FinalScore/top < c.threshold(cand) {
			res.StopReason = StopScoreDrop
			break
		}
		kept++
	}

	minimum := 1
	if spec < LowSpecificity {
		minimum = broadMinimum
	}
	minimum = min(minimum, len(cands), res.MaxResults)
	if kept < minimum {
		kept = minimum
		res.Padded = true
	}

	res.Candidates = cands[:kept]
	res.Kept = kept
	slog.Debug("precision_cutoff",
		slog.Float64("specificity", spec),
		slog.Int("input", res.Input),
		slog.Int("kept", kept),
		slog.String("stop_reason", res.StopReason),
		slog.Bool("padded", res.Padded))
	return res
}
