package vector

import (
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/casesearch/internal/store"
)

// Default chunking, in words.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Chunker splits case text into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a chunker of size words per chunk with overlap words
// shared between neighbours. Invalid values fall back to the defaults, and
// overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

type wordSpan struct{ start, end int }

// Chunk splits the record's combined text. Chunks index from zero and carry
// byte spans into CombinedText. Text without words yields no chunks.
func (c *Chunker) Chunk(rec *store.CaseRecord) []store.Chunk {
	text := rec.CombinedText()
	words := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []store.Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		span := wordSpan{start: words[start].start, end: words[end-1].end}
		chunks = append(chunks, store.Chunk{
			CaseID:     rec.CaseID,
			Index:      len(chunks),
			Text:       text[span.start:span.end],
			TokenCount: end - start,
			CharStart:  span.start,
			CharEnd:    span.end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

func splitWords(text string) []wordSpan {
	var words []wordSpan
	inWord := false
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if inWord {
				words = append(words, wordSpan{start: start, end: i})
				inWord = false
			}
		} else if !inWord {
			start = i
			inWord = true
		}
		i += size
	}
	if inWord {
		words = append(words, wordSpan{start: start, end: len(text)})
	}
	return words
}
