package config

import (
	"fmt"
	"math"
	"sync/atomic"
)

// RankingConfig holds every tunable of fusion, boosting, diversity and cutoff.
// A loaded RankingConfig is never mutated; changes go through RankingHolder.Swap.
type RankingConfig struct {
	Version int `yaml:"version" json:"version"`

	// Static fusion weights, used when dynamic weighting is disabled.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`
	DynamicWeights *bool   `yaml:"dynamic_weights,omitempty" json:"dynamic_weights,omitempty"`

	// Per-boost caps.
	ExactMatchBoost      float64 `yaml:"exact_match_boost" json:"exact_match_boost"`
	CitationBoost        float64 `yaml:"citation_boost" json:"citation_boost"`
	LegalTermBoost       float64 `yaml:"legal_term_boost" json:"legal_term_boost"`
	TitleBoost           float64 `yaml:"title_boost" json:"title_boost"`
	PartyBoost           float64 `yaml:"party_boost" json:"party_boost"`
	SubjectBoost         float64 `yaml:"subject_boost" json:"subject_boost"`
	SectionBoost         float64 `yaml:"section_boost" json:"section_boost"`
	FilterAlignmentBoost float64 `yaml:"filter_alignment_boost" json:"filter_alignment_boost"`
	CourtLevelBoost      float64 `yaml:"court_level_boost" json:"court_level_boost"`
	MaxBoost             float64 `yaml:"max_boost" json:"max_boost"`

	RecencyDecayFactor float64 `yaml:"recency_decay_factor" json:"recency_decay_factor"`
	RecencyWeight      float64 `yaml:"recency_weight" json:"recency_weight"`

	MMRLambda          float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	DiversityThreshold float64 `yaml:"diversity_threshold" json:"diversity_threshold"`

	// Precision cutoff.
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
	ScoreDropThreshold float64 `yaml:"score_drop_threshold" json:"score_drop_threshold"`
	// LenientFactor shrinks ScoreDropThreshold for candidates whose base
	// fusion score exceeds LenientBaseScore, floored at LenientFloor.
	LenientFactor    float64 `yaml:"lenient_factor" json:"lenient_factor"`
	LenientFloor     float64 `yaml:"lenient_floor" json:"lenient_floor"`
	LenientBaseScore float64 `yaml:"lenient_base_score" json:"lenient_base_score"`
}

// DefaultRankingConfig returns the production ranking defaults.
func DefaultRankingConfig() RankingConfig {
	dynamic := true
	return RankingConfig{
		Version:              1,
		SemanticWeight:       0.6,
		LexicalWeight:        0.4,
		DynamicWeights:       &dynamic,
		ExactMatchBoost:      3.0,
		CitationBoost:        2.0,
		LegalTermBoost:       1.5,
		TitleBoost:           3.0,
		PartyBoost:           2.0,
		SubjectBoost:         1.0,
		SectionBoost:         1.0,
		FilterAlignmentBoost: 0.3,
		CourtLevelBoost:      0.5,
		MaxBoost:             5.0,
		RecencyDecayFactor:   0.1,
		RecencyWeight:        0.1,
		MMRLambda:            0.5,
		DiversityThreshold:   0.7,
		RelevanceThreshold:   0.1,
		ScoreDropThreshold:   0.45,
		LenientFactor:        0.1,
		LenientFloor:         0.02,
		LenientBaseScore:     0.1,
	}
}

// UseDynamicWeights reports whether query-dependent weights replace the static pair.
func (r *RankingConfig) UseDynamicWeights() bool {
	return r.DynamicWeights == nil || *r.DynamicWeights
}

// Validate checks ranges and the weight sum.
func (r *RankingConfig) Validate() error {
	if r.SemanticWeight < 0 || r.SemanticWeight > 1 {
		return fmt.Errorf("ranking.semantic_weight must be between 0 and 1, got %f", r.SemanticWeight)
	}
	if r.LexicalWeight < 0 || r.LexicalWeight > 1 {
		return fmt.Errorf("ranking.lexical_weight must be between 0 and 1, got %f", r.LexicalWeight)
	}
	if sum := r.SemanticWeight + r.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("ranking.lexical_weight + ranking.semantic_weight must equal 1.0, got %.2f", sum)
	}

	boosts := map[string]float64{
		"exact_match_boost":      r.ExactMatchBoost,
		"citation_boost":         r.CitationBoost,
		"legal_term_boost":       r.LegalTermBoost,
		"title_boost":            r.TitleBoost,
		"party_boost":            r.PartyBoost,
		"subject_boost":          r.SubjectBoost,
		"section_boost":          r.SectionBoost,
		"filter_alignment_boost": r.FilterAlignmentBoost,
		"court_level_boost":      r.CourtLevelBoost,
		"max_boost":              r.MaxBoost,
		"recency_decay_factor":   r.RecencyDecayFactor,
		"recency_weight":         r.RecencyWeight,
		"relevance_threshold":    r.RelevanceThreshold,
		"lenient_floor":          r.LenientFloor,
		"lenient_base_score":     r.LenientBaseScore,
	}
	for name, v := range boosts {
		if v < 0 {
			return fmt.Errorf("ranking.%s must be non-negative, got %f", name, v)
		}
	}

	unit := map[string]float64{
		"mmr_lambda":           r.MMRLambda,
		"diversity_threshold":  r.DiversityThreshold,
		"score_drop_threshold": r.ScoreDropThreshold,
		"lenient_factor":       r.LenientFactor,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("ranking.%s must be between 0 and 1, got %f", name, v)
		}
	}

	return nil
}

// mergeWith copies non-zero fields of other into r.
func (r *RankingConfig) mergeWith(other *RankingConfig) {
	mergeInt(&r.Version, other.Version)
	mergeFloat(&r.SemanticWeight, other.SemanticWeight)
	mergeFloat(&r.LexicalWeight, other.LexicalWeight)
	if other.DynamicWeights != nil {
		r.DynamicWeights = other.DynamicWeights
	}
	mergeFloat(&r.ExactMatchBoost, other.ExactMatchBoost)
	mergeFloat(&r.CitationBoost, other.CitationBoost)
	mergeFloat(&r.LegalTermBoost, other.LegalTermBoost)
	mergeFloat(&r.TitleBoost, other.TitleBoost)
	mergeFloat(&r.PartyBoost, other.PartyBoost)
	mergeFloat(&r.SubjectBoost, other.SubjectBoost)
	mergeFloat(&r.SectionBoost, other.SectionBoost)
	mergeFloat(&r.FilterAlignmentBoost, other.FilterAlignmentBoost)
	mergeFloat(&r.CourtLevelBoost, other.CourtLevelBoost)
	mergeFloat(&r.MaxBoost, other.MaxBoost)
	mergeFloat(&r.RecencyDecayFactor, other.RecencyDecayFactor)
	mergeFloat(&r.RecencyWeight, other.RecencyWeight)
	mergeFloat(&r.MMRLambda, other.MMRLambda)
	mergeFloat(&r.DiversityThreshold, other.DiversityThreshold)
	mergeFloat(&r.RelevanceThreshold, other.RelevanceThreshold)
	mergeFloat(&r.ScoreDropThreshold, other.ScoreDropThreshold)
	mergeFloat(&r.LenientFactor, other.LenientFactor)
	mergeFloat(&r.LenientFloor, other.LenientFloor)
	mergeFloat(&r.LenientBaseScore, other.LenientBaseScore)
}

// RankingHolder publishes the active RankingConfig to concurrent readers.
// Readers always see one complete config; Swap replaces it as a whole.
type RankingHolder struct {
	current atomic.Pointer[RankingConfig]
}

// NewRankingHolder validates cfg and makes it the active config.
func NewRankingHolder(cfg RankingConfig) (*RankingHolder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &RankingHolder{}
	h.current.Store(&cfg)
	return h, nil
}

// Load returns the active config. Callers must not mutate it.
func (h *RankingHolder) Load() *RankingConfig {
	return h.current.Load()
}

// Swap validates cfg and installs it with the next version number.
// On validation failure the active config is left untouched.
func (h *RankingHolder) Swap(cfg RankingConfig) (*RankingConfig, error) {
	if err := cfg.Validate(); err != nil {
		return h.current.Load(), err
	}
	for {
		old := h.current.Load()
		next := cfg
		next.Version = old.Version + 1
		if h.current.CompareAndSwap(old, &next) {
			return &next, nil
		}
	}
}
