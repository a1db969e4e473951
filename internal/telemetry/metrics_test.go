package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_Order(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	assert.Empty(t, buf.Items())
	buf.Add("a")
	buf.Add("b")
	assert.Equal(t, []string{"a", "b"}, buf.Items())

	buf.Add("c")
	buf.Add("d")
	assert.Equal(t, []string{"b", "c", "d"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBuffer_DefaultCapacity(t *testing.T) {
	buf := NewCircularBuffer[int](0)
	for i := 0; i < 150; i++ {
		buf.Add(i)
	}
	assert.Equal(t, 100, buf.Size())
	assert.Equal(t, 50, buf.Items()[0])
}

// =============================================================================
// Helpers
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "drops generic and short words", query: "Bail in the case of murder", want: []string{"bail", "murder"}},
		{name: "folds punctuation", query: "State v. Ahmed!", want: []string{"state", "ahmed"}},
		{name: "empty", query: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

// memoryStore records flushed increments.
type memoryStore struct {
	mu        sync.Mutex
	types     map[string]int64
	modes     map[string]int64
	fallbacks int64
	terms     map[string]int64
	zero      []string
	latencies map[LatencyBucket]int64
	closed    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		types:     map[string]int64{},
		modes:     map[string]int64{},
		terms:     map[string]int64{},
		latencies: map[LatencyBucket]int64{},
	}
}

func (s *memoryStore) SaveQueryTypeCounts(_ string, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.types[k] += v
	}
	return nil
}

func (s *memoryStore) SaveModeCounts(_ string, counts map[string]int64, fallbacks int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.modes[k] += v
	}
	s.fallbacks += fallbacks
	return nil
}

func (s *memoryStore) UpsertTermCounts(terms map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range terms {
		s.terms[k] += v
	}
	return nil
}

func (s *memoryStore) AddZeroResultQuery(q string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero = append(s.zero, q)
	return nil
}

func (s *memoryStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.latencies[k] += v
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.closed = true
	return nil
}

func TestMetrics_RecordAndSnapshot(t *testing.T) {
	// Given a collector without storage
	m := New(nil, Config{})

	// When recording searches
	m.Record(SearchEvent{Query: "bail murder", QueryType: "legal_concept", Mode: "hybrid", ResultCount: 4, Latency: 5 * time.Millisecond})
	m.Record(SearchEvent{Query: "Bail murder", QueryType: "legal_concept", Mode: "hybrid", ResultCount: 4, Latency: 60 * time.Millisecond})
	m.Record(SearchEvent{Query: "pld 9999", QueryType: "citation", Mode: "lexical", ResultCount: 0, Fallback: true})

	// Then the snapshot aggregates them
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.QueryTypeCounts["legal_concept"])
	assert.Equal(t, int64(1), snap.QueryTypeCounts["citation"])
	assert.Equal(t, int64(2), snap.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"pld 9999"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.FallbackCount)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP100])
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "bail", Count: 2}, snap.TopTerms[0])
	assert.InDelta(t, 33.33, snap.ZeroResultPercentage(), 0.01)
}

func TestMetrics_FlushWritesIncrementsOnce(t *testing.T) {
	// Given a collector with a store
	store := newMemoryStore()
	m := New(store, Config{FlushInterval: 0})
	m.Record(SearchEvent{Query: "bail", QueryType: "legal_concept", Mode: "hybrid", ResultCount: 0, Fallback: true})

	// When flushing twice
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	// Then each increment is written once
	assert.Equal(t, int64(1), store.types["legal_concept"])
	assert.Equal(t, int64(1), store.modes["hybrid"])
	assert.Equal(t, int64(1), store.fallbacks)
	assert.Equal(t, int64(1), store.terms["bail"])
	assert.Equal(t, []string{"bail"}, store.zero)
}

func TestMetrics_CloseFlushesAndStopsRecording(t *testing.T) {
	store := newMemoryStore()
	m := New(store, Config{FlushInterval: time.Hour})
	m.Record(SearchEvent{Query: "revision", QueryType: "general", Mode: "lexical", ResultCount: 2})

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	m.Record(SearchEvent{Query: "ignored", QueryType: "general", Mode: "lexical", ResultCount: 2})

	assert.True(t, store.closed)
	assert.Equal(t, int64(1), store.types["general"])
	assert.Equal(t, int64(1), m.Snapshot().TotalQueries)
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := New(nil, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(SearchEvent{Query: "appeal", QueryType: "legal_concept", Mode: "hybrid", ResultCount: 1})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), m.Snapshot().TotalQueries)
}
