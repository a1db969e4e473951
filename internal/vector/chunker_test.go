package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/store"
)

func TestChunker_WordWindows(t *testing.T) {
	// Given: 10 words, windows of 4 sharing 1 word
	rec := &store.CaseRecord{CaseID: 7, CaseTitle: "a b c", FullText: "d e f g h i j"}
	c := NewChunker(4, 1)

	// When: chunking
	chunks := c.Chunk(rec)

	// Then: three windows starting at words 0, 3 and 6
	require.Len(t, chunks, 3)
	want := []string{"a b c\nd", "d e f g", "g h i j"}
	text := rec.CombinedText()
	for i, ch := range chunks {
		assert.Equal(t, store.CaseID(7), ch.CaseID)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, want[i], ch.Text)
		assert.Equal(t, 4, ch.TokenCount)
		assert.Equal(t, ch.Text, text[ch.CharStart:ch.CharEnd])
		assert.False(t, ch.Embedded)
	}
}

func TestChunker_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		rec     store.CaseRecord
		want    int
	}{
		{"no text", 4, 1, store.CaseRecord{CaseID: 1}, 0},
		{"whitespace only", 4, 1, store.CaseRecord{CaseID: 1, FullText: " \n\t "}, 0},
		{"shorter than window", 10, 2, store.CaseRecord{CaseID: 1, CaseTitle: "one two"}, 1},
		{"exact window", 3, 1, store.CaseRecord{CaseID: 1, CaseTitle: "one two three"}, 1},
		{"overlap clamped below size", 2, 5, store.CaseRecord{CaseID: 1, CaseTitle: "a b c d"}, 3},
		{"defaults for invalid size", 0, -1, store.CaseRecord{CaseID: 1, FullText: strings.Repeat("w ", 600)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChunker(tt.size, tt.overlap).Chunk(&tt.rec)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestChunker_Unicode(t *testing.T) {
	rec := &store.CaseRecord{CaseID: 1, FullText: "ملزم  کو ضمانت دی گئی"}
	chunks := NewChunker(2, 0).Chunk(rec)

	require.Len(t, chunks, 3)
	assert.Equal(t, "ملزم  کو", chunks[0].Text)
	assert.Equal(t, "گئی", chunks[2].Text)
}
