package snippet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/casesearch/internal/store"
)

// Indexed field names.
const (
	fieldCase = "case"
	fieldText = "text"
)

const indexBatchSize = 500

// Span is one query-term match inside a chunk, as byte offsets into the
// chunk text.
type Span struct {
	ChunkIndex int
	Start      int
	End        int
	Term       string
}

// TextIndex is an in-memory full-text index over chunk text. It locates
// query-term matches inside the chunks of one case.
type TextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	chunks map[string]store.Chunk
	closed bool
}

// NewTextIndex indexes the given chunks in memory.
func NewTextIndex(ctx context.Context, chunks []store.Chunk) (*TextIndex, error) {
	idx, err := bleve.NewMemOnly(textMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create text index: %w", err)
	}
	t := &TextIndex{index: idx, chunks: make(map[string]store.Chunk, len(chunks))}

	batch := idx.NewBatch()
	for i := range chunks {
		if i%indexBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				_ = idx.Close()
				return nil, err
			}
		}
		c := chunks[i]
		c.Embedding = nil
		id := c.ID()
		t.chunks[id] = c
		doc := map[string]any{
			fieldCase: c.CaseID.String(),
			fieldText: c.Text,
		}
		if err := batch.Index(id, doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index chunk %s: %w", id, err)
		}
		if batch.Size() >= indexBatchSize {
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	return t, nil
}

func textMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	caseField := bleve.NewKeywordFieldMapping()
	caseField.Store = false

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	textField.IncludeTermVectors = true

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldCase, caseField)
	doc.AddFieldMappingsAt(fieldText, textField)
	im.DefaultMapping = doc
	return im
}

// Len returns the number of indexed chunks.
func (t *TextIndex) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.chunks)
}

// Chunk returns an indexed chunk.
func (t *TextIndex) Chunk(id store.CaseID, index int) (store.Chunk, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.chunks[store.ChunkID(id, index)]
	return c, ok
}

// Find returns the matches of text's terms inside the chunks of one case,
// best-scoring chunks first and by position within a chunk. At most limit
// chunks are searched.
func (t *TextIndex) Find(ctx context.Context, id store.CaseID, text string, limit int) ([]Span, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("text index is closed")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	caseQuery := bleve.NewTermQuery(id.String())
	caseQuery.SetField(fieldCase)
	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField(fieldText)

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(caseQuery, matchQuery))
	req.Size = limit
	req.IncludeLocations = true

	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	var spans []Span
	for _, hit := range res.Hits {
		c, ok := t.chunks[hit.ID]
		if !ok {
			continue
		}
		var hitSpans []Span
		for term, locs := range hit.Locations[fieldText] {
			for _, loc := range locs {
				start, end := int(loc.Start), int(loc.End)
				if start < 0 || end > len(c.Text) || start >= end {
					continue
				}
				hitSpans = append(hitSpans, Span{ChunkIndex: c.Index, Start: start, End: end, Term: term})
			}
		}
		sort.Slice(hitSpans, func(i, j int) bool {
			if hitSpans[i].Start != hitSpans[j].Start {
				return hitSpans[i].Start < hitSpans[j].Start
			}
			return hitSpans[i].End < hitSpans[j].End
		})
		spans = append(spans, hitSpans...)
	}
	return spans, nil
}

// Close releases the index.
func (t *TextIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.index.Close()
}
