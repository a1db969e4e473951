package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCase(id CaseID, number string) CaseRecord {
	return CaseRecord{
		CaseID:          id,
		CaseNumber:      number,
		CaseTitle:       "Muhammad Ali vs The State",
		Court:           "Lahore High Court",
		Status:          "Decided",
		Parties:         []string{"Muhammad Ali", "The State"},
		Bench:           []string{"Justice Ayesha Malik"},
		InstitutionDate: "2024-03-01",
		DisposalDate:    "2025-01-15",
		FullText:        "Bail granted under section 497 Cr.P.C.",
	}
}

// =============================================================================
// Model
// =============================================================================

func TestCaseRecord_Year_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		rec  CaseRecord
		want int
	}{
		{"institution date", CaseRecord{InstitutionDate: "2021-05-04", CaseNumber: "3/2019"}, 2021},
		{"disposal date", CaseRecord{DisposalDate: "12-06-2020"}, 2020},
		{"case number", CaseRecord{CaseNumber: "Crl. Misc. 12/2018"}, 2018},
		{"unknown", CaseRecord{CaseNumber: "pending"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Year())
		})
	}
}

func TestCaseRecord_CaseType(t *testing.T) {
	tests := map[string]string{
		"Crl. Misc. 12/2024":        "criminal misc",
		"Writ Petition No. 45/2023": "writ petition",
		"2/2025":                    "",
		"Civil Revision 7/2020":     "civil revision",
	}
	for number, want := range tests {
		t.Run(number, func(t *testing.T) {
			rec := CaseRecord{CaseNumber: number}
			assert.Equal(t, want, rec.CaseType())
		})
	}
}

func TestCaseRecord_FingerprintTracksContent(t *testing.T) {
	a := sampleCase(1, "2/2025")
	b := sampleCase(1, "2/2025")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Status = "Pending"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestCaseRecord_Validate(t *testing.T) {
	assert.NoError(t, (&CaseRecord{CaseID: 1, CaseNumber: "1/2020"}).Validate())
	assert.Error(t, (&CaseRecord{CaseID: 0, CaseNumber: "1/2020"}).Validate())
	assert.Error(t, (&CaseRecord{CaseID: 2}).Validate())
}

func TestChunkID_RoundTrip(t *testing.T) {
	c := Chunk{CaseID: 42, Index: 3}
	assert.Equal(t, "42:3", c.ID())

	id, idx, err := ParseChunkID("42:3")
	require.NoError(t, err)
	assert.Equal(t, CaseID(42), id)
	assert.Equal(t, 3, idx)

	_, _, err = ParseChunkID("nope")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	_, ok, err := ParseDate("")
	assert.False(t, ok)
	assert.NoError(t, err)

	d, ok, err := ParseDate("15-Jan-2025")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2025, d.Year())

	_, ok, err = ParseDate("sometime last year")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestFilters_MatchesRecord(t *testing.T) {
	rec := sampleCase(1, "2/2025")

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"none", Filters{}, true},
		{"court substring", Filters{Court: "high court"}, true},
		{"court mismatch", Filters{Court: "supreme"}, false},
		{"status", Filters{Status: "decided"}, true},
		{"year", Filters{Year: 2024}, true},
		{"year mismatch", Filters{Year: 2020}, false},
		{"date range", Filters{DateFrom: "2024-01-01", DateTo: "2024-12-31"}, true},
		{"date before range", Filters{DateFrom: "2024-06-01"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.MatchesRecord(&rec))
		})
	}
}

// =============================================================================
// SQLite case store
// =============================================================================

func TestSQLiteCaseStore_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLiteCaseStore(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	defer s.Close()

	// Given: two valid records and one invalid record
	n, errs := s.Upsert(ctx, sampleCase(2, "5/2024"), sampleCase(1, "2/2025"), CaseRecord{CaseID: -1})

	// Then: valid records are written, the invalid one reported
	assert.Equal(t, 2, n)
	require.Len(t, errs, 1)

	cases, err := s.ListCases(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, CaseID(1), cases[0].CaseID)
	assert.Equal(t, []string{"Muhammad Ali", "The State"}, cases[0].Parties)
	assert.Equal(t, []string{"Justice Ayesha Malik"}, cases[0].Bench)
	assert.Nil(t, cases[0].Subjects)
}

func TestSQLiteCaseStore_UpsertUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLiteCaseStore("")
	require.NoError(t, err)
	defer s.Close()

	rec := sampleCase(7, "7/2023")
	_, errs := s.Upsert(ctx, rec)
	require.Empty(t, errs)

	rec.Status = "Pending"
	_, errs = s.Upsert(ctx, rec)
	require.Empty(t, errs)

	got, ok, err := s.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pending", got.Status)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, ok, err = s.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteCaseStore_ImportJSONL(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLiteCaseStore("")
	require.NoError(t, err)
	defer s.Close()

	input := strings.Join([]string{
		`{"case_id": 1, "case_number": "2/2025", "case_title": "A vs B", "parties": ["A", "B"]}`,
		``,
		`{not json}`,
		`{"case_id": 2, "case_number": "3/2025", "case_title": "C vs D"}`,
	}, "\n")

	n, errs := s.ImportJSONL(ctx, strings.NewReader(input))

	assert.Equal(t, 2, n)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "line 3")
}

func TestSliceSource_SortsByID(t *testing.T) {
	src := SliceSource{sampleCase(3, "3/2020"), sampleCase(1, "1/2020")}
	got, err := src.ListCases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CaseID(1), got[0].CaseID)
	assert.Equal(t, CaseID(3), src[0].CaseID, "source must not be reordered")
}

// =============================================================================
// Gob snapshot files
// =============================================================================

func TestWriteGob_RoundTrip(t *testing.T) {
	// Given a record written to a nested path
	path := filepath.Join(t.TempDir(), "nested", "case.gob")
	in := CaseRecord{CaseID: 7, CaseNumber: "2/2025", Parties: []string{"A", "B"}}

	// When written and read back
	require.NoError(t, WriteGob(path, in))
	var out CaseRecord
	require.NoError(t, ReadGob(path, &out))

	// Then it round-trips and no temp file is left behind
	assert.Equal(t, in, out)
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadGob_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0644))

	var out CaseRecord
	assert.Error(t, ReadGob(path, &out))
}
