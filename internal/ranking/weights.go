package ranking

import (
	"github.com/Aman-CERP/casesearch/internal/config"
	"github.com/Aman-CERP/casesearch/internal/query"
)

// Weights are the fusion weights of one query. They sum to 1.
type Weights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
	// Reason names the rule that chose the weights.
	Reason string `json:"reason"`
}

// Dynamic weight rules.
var (
	exactWeights       = Weights{Lexical: 0.75, Semantic: 0.25, Reason: "exact"}
	shortWeights       = Weights{Lexical: 0.6, Semantic: 0.4, Reason: "short"}
	descriptiveWeights = Weights{Lexical: 0.35, Semantic: 0.65, Reason: "descriptive"}
)

// shortQueryTokens is the longest query still weighted as short.
const shortQueryTokens = 4

// SelectWeights picks fusion weights for a query. Citation and identifier
// queries lean lexical, short queries slightly lexical, longer descriptive
// queries semantic. A single-source mode gives its source all the weight.
func SelectWeights(q *query.NormalizedQuery, mode Mode, cfg *config.RankingConfig) Weights {
	switch mode {
	case ModeLexical:
		return Weights{Lexical: 1, Reason: "lexical_only"}
	case ModeSemantic:
		return Weights{Semantic: 1, Reason: "semantic_only"}
	}

	var w Weights
	switch {
	case !cfg.UseDynamicWeights():
		w = Weights{Lexical: cfg.LexicalWeight, Semantic: cfg.SemanticWeight, Reason: "static"}
	case q != nil && (q.HasExactSignals() || q.Type == query.TypeCitation):
		w = exactWeights
	case q == nil || len(q.WordTokens()) <= shortQueryTokens:
		w = shortWeights
	default:
		w = descriptiveWeights
	}
	return w.normalized()
}

func (w Weights) normalized() Weights {
	sum := w.Lexical + w.Semantic
	if sum <= 0 {
		return Weights{Lexical: 0.5, Semantic: 0.5, Reason: w.Reason}
	}
	w.Lexical /= sum
	w.Semantic /= sum
	return w
}
