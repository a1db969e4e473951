// Package store defines the case record model consumed by every index and
// the SQLite-backed source that ingestion writes to.
package store

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CaseID uniquely scopes all per-case data across the sub-indexes.
type CaseID int64

// String formats the id in base 10.
func (id CaseID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseCaseID parses a base-10 case id.
func ParseCaseID(s string) (CaseID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid case id %q: %w", s, err)
	}
	return CaseID(n), nil
}

// CaseRecord is one ingested case. It is read-only to the ranking engine.
// Dates are kept as ingested text; see ParseDate.
type CaseRecord struct {
	CaseID          CaseID   `json:"case_id"`
	CaseNumber      string   `json:"case_number"`
	CaseTitle       string   `json:"case_title"`
	Court           string   `json:"court"`
	Status          string   `json:"status"`
	Parties         []string `json:"parties"`
	Bench           []string `json:"bench,omitempty"`
	Advocates       []string `json:"advocates,omitempty"`
	Subjects        []string `json:"subjects,omitempty"`
	InstitutionDate string   `json:"institution_date"`
	HearingDate     string   `json:"hearing_date"`
	DisposalDate    string   `json:"disposal_date"`
	FullText        string   `json:"full_text"`
}

// Validate checks the ingestion contract's required keys.
func (r *CaseRecord) Validate() error {
	if r.CaseID <= 0 {
		return fmt.Errorf("case_id must be positive, got %d", r.CaseID)
	}
	if strings.TrimSpace(r.CaseNumber) == "" && strings.TrimSpace(r.CaseTitle) == "" {
		return fmt.Errorf("case %d: case_number or case_title is required", r.CaseID)
	}
	return nil
}

// Fingerprint hashes every indexed field. Incremental builds re-index a case
// only when its fingerprint changes.
func (r *CaseRecord) Fingerprint() uint64 {
	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(r.CaseNumber)
	write(r.CaseTitle)
	write(r.Court)
	write(r.Status)
	for _, list := range [][]string{r.Parties, r.Bench, r.Advocates, r.Subjects} {
		write(strings.Join(list, "\x1f"))
	}
	write(r.InstitutionDate)
	write(r.HearingDate)
	write(r.DisposalDate)
	write(r.FullText)
	return h.Sum64()
}

// CombinedText is the text chunked for embedding: title, number, then body.
func (r *CaseRecord) CombinedText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{r.CaseTitle, r.CaseNumber, r.FullText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// BestDate returns the first parseable of disposal, hearing and institution date.
func (r *CaseRecord) BestDate() (time.Time, bool) {
	for _, s := range []string{r.DisposalDate, r.HearingDate, r.InstitutionDate} {
		if t, ok, err := ParseDate(s); ok && err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RecencyDate returns the raw date used for recency decay, preferring the decision date.
func (r *CaseRecord) RecencyDate() string {
	for _, s := range []string{r.DisposalDate, r.HearingDate, r.InstitutionDate} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

var caseNumberYear = regexp.MustCompile(`\b\d{1,6}/(\d{4})\b`)

// Year is the institution year, falling back to other dates and then to the
// year embedded in the case number. Zero means unknown.
func (r *CaseRecord) Year() int {
	if t, ok, err := ParseDate(r.InstitutionDate); ok && err == nil {
		return t.Year()
	}
	if t, ok := r.BestDate(); ok {
		return t.Year()
	}
	if m := caseNumberYear.FindStringSubmatch(r.CaseNumber); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return 0
}

var caseTypeLabel = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z.\s]*?)\s*\.?\s*(?:No\.?\s*)?\d+\s*/\s*\d{4}`)

// CaseType is the normalized label preceding the number, e.g. "criminal misc"
// for "Crl. Misc. 12/2024". Empty when the number carries no label.
func (r *CaseRecord) CaseType() string {
	m := caseTypeLabel.FindStringSubmatch(r.CaseNumber)
	if m == nil {
		return ""
	}
	label := strings.ToLower(strings.TrimSpace(m[1]))
	label = strings.NewReplacer(".", " ").Replace(label)
	fields := strings.Fields(label)
	for i, f := range fields {
		if full, ok := caseTypeAbbreviations[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

var caseTypeAbbreviations = map[string]string{
	"crl":   "criminal",
	"cr":    "criminal",
	"civ":   "civil",
	"misc":  "misc",
	"pet":   "petition",
	"app":   "appeal",
	"rev":   "revision",
	"const": "constitutional",
	"wp":    "writ petition",
	"cp":    "constitutional petition",
}

// Chunk is a bounded slice of a case's text, the unit of embedding.
type Chunk struct {
	CaseID     CaseID    `json:"case_id"`
	Index      int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	Embedding  []float32 `json:"-"`
	Embedded   bool      `json:"embedded"`
}

// ID is the chunk's stable key, "<case_id>:<chunk_index>".
func (c *Chunk) ID() string {
	return ChunkID(c.CaseID, c.Index)
}

// ChunkID formats a chunk key.
func ChunkID(caseID CaseID, index int) string {
	return caseID.String() + ":" + strconv.Itoa(index)
}

// ParseChunkID splits a chunk key into case id and chunk index.
func ParseChunkID(id string) (CaseID, int, error) {
	caseStr, idxStr, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid chunk id %q", id)
	}
	caseID, err := ParseCaseID(caseStr)
	if err != nil {
		return 0, 0, err
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chunk index in %q: %w", id, err)
	}
	return caseID, idx, nil
}

// Filters narrow a search. Zero values mean "not filtered".
type Filters struct {
	Court    string `json:"court,omitempty"`
	Status   string `json:"status,omitempty"`
	Year     int    `json:"year,omitempty"`
	Judge    string `json:"judge,omitempty"`
	Section  string `json:"section,omitempty"`
	Citation string `json:"citation,omitempty"`
	// DateFrom and DateTo bound the institution date, inclusive.
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// MatchesRecord applies the metadata filters (court, status, year, date range).
// Judge, section and citation are resolved through the facet index.
func (f Filters) MatchesRecord(r *CaseRecord) bool {
	if f.Court != "" && !strings.Contains(strings.ToLower(r.Court), strings.ToLower(f.Court)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(strings.TrimSpace(r.Status), strings.TrimSpace(f.Status)) {
		return false
	}
	if f.Year != 0 && r.Year() != f.Year {
		return false
	}
	if f.DateFrom != "" || f.DateTo != "" {
		t, ok, err := ParseDate(r.InstitutionDate)
		if !ok || err != nil {
			return false
		}
		if from, ok, err := ParseDate(f.DateFrom); ok && err == nil && t.Before(from) {
			return false
		}
		if to, ok, err := ParseDate(f.DateTo); ok && err == nil && t.After(to) {
			return false
		}
	}
	return true
}
