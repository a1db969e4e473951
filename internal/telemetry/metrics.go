// Package telemetry records local query telemetry: query types, search
// modes, latency buckets, top terms and zero-result queries. Nothing is
// reported externally; aggregates are flushed to a local SQLite database.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/casesearch/internal/query"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Search Event
// =============================================================================

// SearchEvent is one served search.
type SearchEvent struct {
	Query       string
	QueryType   string
	Mode        string
	ResultCount int
	Latency     time.Duration
	// Fallback is set when any stage degraded to its fallback.
	Fallback  bool
	Timestamp time.Time
}

// IsZeroResult reports whether the search returned nothing.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer; capacity defaults to 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
	} else {
		copy(out, b.items[b.head:])
		copy(out[b.capacity-b.head:], b.items[:b.head])
	}
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// =============================================================================
// Terms
// =============================================================================

// minTermLength drops short words from term statistics.
const minTermLength = 3

// ExtractTerms returns the query words worth counting: folded, without
// punctuation, at least three characters, and not generic filler.
func ExtractTerms(raw string) []string {
	var terms []string
	for _, w := range strings.Fields(query.CleanText(raw)) {
		if len([]rune(w)) < minTermLength || query.IsGenericWord(w) {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Snapshot
// =============================================================================

// MetricsSnapshot is a point-in-time copy of the collected metrics.
type MetricsSnapshot struct {
	QueryTypeCounts     map[string]int64        `json:"query_type_counts"`
	ModeCounts          map[string]int64        `json:"mode_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	FallbackCount       int64                   `json:"fallback_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result searches.
func (s *MetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// =============================================================================
// Store
// =============================================================================

// Store persists flushed aggregates. Counts passed to the Save methods are
// increments since the previous flush.
type Store interface {
	SaveQueryTypeCounts(date string, counts map[string]int64) error
	SaveModeCounts(date string, counts map[string]int64, fallbacks int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQuery(query string, timestamp time.Time) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	Close() error
}

// =============================================================================
// Metrics
// =============================================================================

// Config configures the collector.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	// FlushInterval is how often aggregates are written; 0 disables
	// periodic flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// delta holds the increments not yet flushed.
type delta struct {
	types      map[string]int64
	modes      map[string]int64
	fallbacks  int64
	terms      map[string]int64
	latencies  map[LatencyBucket]int64
	zeroResult []SearchEvent
}

func newDelta() delta {
	return delta{
		types:     make(map[string]int64),
		modes:     make(map[string]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (d *delta) empty() bool {
	return len(d.types) == 0 && len(d.zeroResult) == 0
}

// Metrics collects search telemetry. It is safe for concurrent use; Record
// never blocks on storage.
type Metrics struct {
	mu sync.Mutex

	queryTypes      map[string]int64
	modes           map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	fallbackCount   int64
	recentQueries   *lru.Cache[string, struct{}]
	exactRepeats    int64
	startTime       time.Time

	pending delta
	flushMu sync.Mutex
	store   Store
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  bool
}

// New creates a collector. A nil store keeps metrics in memory only.
func New(store Store, cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	m := &Metrics{
		queryTypes:    make(map[string]int64),
		modes:         make(map[string]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
		pending:       newDelta(),
		store:         store,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *Metrics) flushLoop(interval time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one search to the aggregates.
func (m *Metrics) Record(event SearchEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	terms := ExtractTerms(event.Query)
	bucket := LatencyToBucket(event.Latency)
	hash := hashQuery(event.Query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.queryTypes[event.QueryType]++
	m.pending.types[event.QueryType]++
	m.modes[event.Mode]++
	m.pending.modes[event.Mode]++
	m.latencies[bucket]++
	m.pending.latencies[bucket]++
	if event.Fallback {
		m.fallbackCount++
		m.pending.fallbacks++
	}
	for _, term := range terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pending.terms[term]++
	}
	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
		m.pending.zeroResult = append(m.pending.zeroResult, event)
	}
	if _, seen := m.recentQueries.Get(hash); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(hash, struct{}{})
}

// hashQuery keys repetition tracking on the cleaned query text.
func hashQuery(raw string) string {
	sum := sha256.Sum256([]byte(query.CleanText(raw)))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current aggregates.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &MetricsSnapshot{
		QueryTypeCounts:     make(map[string]int64, len(m.queryTypes)),
		ModeCounts:          make(map[string]int64, len(m.modes)),
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		FallbackCount:       m.fallbackCount,
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.startTime,
	}
	for k, v := range m.queryTypes {
		snap.QueryTypeCounts[k] = v
	}
	for k, v := range m.modes {
		snap.ModeCounts[k] = v
	}
	for k, v := range m.latencies {
		snap.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	sort.SliceStable(snap.TopTerms, func(i, j int) bool {
		if snap.TopTerms[i].Count != snap.TopTerms[j].Count {
			return snap.TopTerms[i].Count > snap.TopTerms[j].Count
		}
		return snap.TopTerms[i].Term < snap.TopTerms[j].Term
	})
	return snap
}

// Flush writes the increments recorded since the last flush. Increments
// that fail to write are dropped; telemetry is best effort.
func (m *Metrics) Flush() error {
	if m.store == nil {
		return nil
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	d := m.pending
	m.pending = newDelta()
	m.mu.Unlock()
	if d.empty() {
		return nil
	}

	today := time.Now().Format(time.DateOnly)
	if err := m.store.SaveQueryTypeCounts(today, d.types); err != nil {
		return err
	}
	if err := m.store.SaveModeCounts(today, d.modes, d.fallbacks); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(d.terms); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, d.latencies); err != nil {
		return err
	}
	for _, e := range d.zeroResult {
		if err := m.store.AddZeroResultQuery(e.Query, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Close stops periodic flushing, flushes once more and closes the store.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	err := m.Flush()
	if m.store != nil {
		if cerr := m.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
