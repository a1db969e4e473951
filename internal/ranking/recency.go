package ranking

import (
	"math"
	"time"

	"github.com/Aman-CERP/casesearch/internal/store"
)

// Recency scores for records without a usable date.
const (
	recencyMissing    = 0.0
	recencyUnparsable = 0.5
)

// RecencyScore decays exponentially with the age of the case's decision
// date: exp(-decay × days/365). Dates in the future score 1.
func RecencyScore(rec *store.CaseRecord, now time.Time, decay float64) float64 {
	raw := rec.RecencyDate()
	if raw == "" {
		return recencyMissing
	}
	t, ok, err := store.ParseDate(raw)
	if err != nil || !ok {
		return recencyUnparsable
	}
	days := now.Sub(t).Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Exp(-decay * days / 365)
}
