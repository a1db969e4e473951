package ranking

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Aman-CERP/casesearch/internal/config"
	cserrors "github.com/Aman-CERP/casesearch/internal/errors"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Engine ranks candidates with the currently published RankingConfig.
// It is safe for concurrent use; each Rank call reads one config snapshot.
type Engine struct {
	config *config.RankingHolder
}

// NewEngine creates an engine reading its tunables from holder.
func NewEngine(holder *config.RankingHolder) *Engine {
	return &Engine{config: holder}
}

// Config returns the config the next Rank call will use.
func (e *Engine) Config() *config.RankingConfig {
	return e.config.Load()
}

// Rank fuses, boosts, diversifies and orders the candidates of one query.
// It never fails: an internal error yields the raw-score fallback ranking
// with Output.Fallback set.
func (e *Engine) Rank(in Input) (out Output) {
	cfg := e.config.Load()
	defer func() {
		if r := recover(); r != nil {
			out = fallbackOutput(in, cserrors.RankingError("ranking panicked", fmt.Errorf("%v", r)))
		}
	}()

	cands := merge(in)
	if len(cands) == 0 {
		return Output{Weights: SelectWeights(in.Query, in.Mode, cfg)}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	weights := SelectWeights(in.Query, in.Mode, cfg)
	b := newBooster(cfg, in.Query, in.Filters, in.Records, in.Terms)

	for i := range cands {
		c := &cands[i]
		c.VectorScore = clamp01(c.VectorScore)
		c.KeywordScore = min(1, max(0, c.RawKeywordScore/KeywordScale))
		c.BaseScore = weights.Lexical*c.KeywordScore + weights.Semantic*c.VectorScore
		c.Boosts, c.TotalBoost = b.boosts(c.CaseID)
		if in.Records != nil {
			if rec, ok := in.Records.Record(c.CaseID); ok {
				c.RecencyScore = RecencyScore(&rec, now, cfg.RecencyDecayFactor)
			}
		}
		c.FinalScore = FinalScore(c.BaseScore, c.TotalBoost, c.RecencyScore, cfg)
		if math.IsNaN(c.FinalScore) || math.IsInf(c.FinalScore, 0) {
			err := cserrors.RankingError(fmt.Sprintf("non-finite score for case %d", c.CaseID), nil)
			return fallbackOutput(in, err)
		}
	}

	sortCandidates(cands)
	diversified := false
	if in.TopK > 0 && len(cands) > in.TopK {
		cands = diversify(cands, in.TopK, cfg.MMRLambda, cfg.DiversityThreshold, in.Records)
		diversified = true
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	return Output{Candidates: cands, Weights: weights, Diversified: diversified}
}

// FinalScore is base + total boost + recency × RecencyWeight.
func FinalScore(base, totalBoost, recency float64, cfg *config.RankingConfig) float64 {
	return base + totalBoost + recency*cfg.RecencyWeight
}

// merge collects one candidate per case, keeping the best score of each
// source. Sources outside the mode are ignored.
func merge(in Input) []Candidate {
	byID := make(map[store.CaseID]int)
	var cands []Candidate
	get := func(id store.CaseID) *Candidate {
		if i, ok := byID[id]; ok {
			return &cands[i]
		}
		byID[id] = len(cands)
		cands = append(cands, Candidate{CaseID: id})
		return &cands[len(cands)-1]
	}
	if in.Mode != ModeLexical {
		for _, h := range in.Vector {
			c := get(h.CaseID)
			c.VectorScore = max(c.VectorScore, h.Score)
		}
	}
	if in.Mode != ModeSemantic {
		for _, h := range in.Lexical {
			c := get(h.CaseID)
			c.RawKeywordScore = max(c.RawKeywordScore, h.Score)
		}
	}
	return cands
}

// Fallback ranks by max(vector, raw keyword / KeywordScale) per case with
// no boosts, recency or diversity. Non-finite scores count as zero.
func Fallback(in Input) []Candidate {
	cands := merge(in)
	for i := range cands {
		c := &cands[i]
		c.VectorScore = finite(c.VectorScore)
		c.RawKeywordScore = finite(c.RawKeywordScore)
		c.KeywordScore = c.RawKeywordScore / KeywordScale
		c.BaseScore = max(c.VectorScore, c.KeywordScore)
		c.FinalScore = c.BaseScore
	}
	sortCandidates(cands)
	if in.TopK > 0 && len(cands) > in.TopK {
		cands = cands[:in.TopK]
	}
	for i := range cands {
		cands[i].Rank = i + 1
	}
	return cands
}

func fallbackOutput(in Input, err error) Output {
	slog.Warn("ranking_fallback", slog.String("error", err.Error()))
	return Output{
		Candidates: Fallback(in),
		Weights:    Weights{Reason: "fallback"},
		Fallback:   true,
		Err:        err,
	}
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
