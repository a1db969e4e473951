// Package ranking is the hybrid fusion and ranking engine. It merges
// lexical and vector candidates per case, fuses their scores with
// query-dependent weights, adds capped domain boosts and a recency term,
// and selects a diverse top set with maximal marginal relevance.
package ranking

import (
	"time"

	"github.com/Aman-CERP/casesearch/internal/facet"
	"github.com/Aman-CERP/casesearch/internal/query"
	"github.com/Aman-CERP/casesearch/internal/store"
)

// Mode selects which retrieval sources feed the ranking.
type Mode string

// Search modes.
const (
	ModeHybrid   Mode = "hybrid"
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
)

// ParseMode validates a mode name; empty means hybrid.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(s); m {
	case "":
		return ModeHybrid, true
	case ModeHybrid, ModeLexical, ModeSemantic:
		return m, true
	}
	return "", false
}

// KeywordScale maps raw lexical scores into [0,1]: keyword = min(1, raw/KeywordScale).
const KeywordScale = 10.0

// Hit is one source score for a case.
type Hit struct {
	CaseID store.CaseID
	Score  float64
}

// Boost is one named boost contribution, already capped.
type Boost struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Candidate is one case being ranked. It exists only for one request.
// RawKeywordScore is the lexical score before scaling into KeywordScore.
type Candidate struct {
	CaseID          store.CaseID `json:"case_id"`
	VectorScore     float64      `json:"vector_score"`
	KeywordScore    float64      `json:"keyword_score"`
	RawKeywordScore float64      `json:"raw_keyword_score"`
	BaseScore       float64      `json:"base_score"`
	Boosts          []Boost      `json:"boost_factors"`
	TotalBoost      float64      `json:"total_boost"`
	RecencyScore    float64      `json:"recency_score"`
	FinalScore      float64      `json:"final_score"`
	Rank            int          `json:"rank"`
}

// Records supplies case metadata.
type Records interface {
	Record(id store.CaseID) (store.CaseRecord, bool)
}

// Terms supplies per-case facet terms and occurrence counts.
type Terms interface {
	Occurrences(id store.CaseID, t facet.Type, canonical string) int
	CaseTerms(id store.CaseID, t facet.Type) []string
}

// Input is everything one ranking pass needs.
type Input struct {
	Query   *query.NormalizedQuery
	Mode    Mode
	Vector  []Hit
	Lexical []Hit
	Filters store.Filters
	Records Records
	Terms   Terms
	// TopK caps the ranked set; MMR runs when there are more candidates.
	TopK int
	// Now anchors recency; zero means time.Now.
	Now time.Time
}

// Output is the ranked candidate list.
type Output struct {
	Candidates []Candidate
	Weights    Weights
	// Fallback is set when the full pipeline failed and raw-score ranking
	// was used instead; Err holds the failure.
	Fallback bool
	Err      error
	// Diversified reports whether MMR selection ran.
	Diversified bool
}
