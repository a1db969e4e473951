package ui

import (
	"sync"
	"time"

	"github.com/Aman-CERP/casesearch/internal/index"
)

const (
	// rateInterval is the minimum gap between throughput samples.
	rateInterval = 500 * time.Millisecond
	// rateSmoothing weights the newest throughput sample.
	rateSmoothing = 0.2
	// etaSmoothing weights the newest ETA estimate.
	etaSmoothing = 0.3
)

// Tracker folds progress events into per-stage state. It is safe for
// concurrent use.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	stage      index.Stage
	current    int
	total      int
	message    string
	start      time.Time
	stageStart time.Time
	timings    map[index.Stage]time.Duration

	lastETA    time.Duration
	lastCount  int
	lastSample time.Time
	rate       float64
	peakRate   float64
}

// Progress is a point-in-time view of a Tracker.
type Progress struct {
	Stage    index.Stage
	Current  int
	Total    int
	Message  string
	Fraction float64
	ETA      time.Duration
	Rate     float64
	PeakRate float64
	Elapsed  time.Duration
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	t := now()
	return &Tracker{
		now:        now,
		start:      t,
		stageStart: t,
		lastSample: t,
		timings:    make(map[index.Stage]time.Duration),
	}
}

// Observe applies a progress event. A new stage closes the previous one's
// timing and resets the counters.
func (t *Tracker) Observe(ev index.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if ev.Stage != t.stage {
		if t.stage != "" {
			t.timings[t.stage] += now.Sub(t.stageStart)
		}
		t.stage = ev.Stage
		t.stageStart = now
		t.lastSample = now
		t.lastCount = 0
		t.lastETA = 0
		t.rate = 0
		t.peakRate = 0
	}

	t.current = ev.Current
	t.total = ev.Total
	if ev.Message != "" {
		t.message = ev.Message
	}

	elapsed := now.Sub(t.lastSample)
	if elapsed < rateInterval {
		return
	}
	if delta := ev.Current - t.lastCount; delta > 0 {
		sample := float64(delta) / elapsed.Seconds()
		if t.rate == 0 {
			t.rate = sample
		} else {
			t.rate = rateSmoothing*sample + (1-rateSmoothing)*t.rate
		}
		if sample > t.peakRate {
			t.peakRate = sample
		}
	}
	t.lastCount = ev.Current
	t.lastSample = now
}

// Finish closes the timing of the running stage.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage != "" {
		t.timings[t.stage] += t.now().Sub(t.stageStart)
		t.stageStart = t.now()
	}
}

// Timings returns how long each completed stage took.
func (t *Tracker) Timings() map[index.Stage]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[index.Stage]time.Duration, len(t.timings))
	for k, v := range t.timings {
		out[k] = v
	}
	return out
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Progress{
		Stage:    t.stage,
		Current:  t.current,
		Total:    t.total,
		Message:  t.message,
		Rate:     t.rate,
		PeakRate: t.peakRate,
		Elapsed:  t.now().Sub(t.start),
	}
	if t.total > 0 {
		p.Fraction = min(float64(t.current)/float64(t.total), 1)
	}
	p.ETA = t.eta(p.Fraction)
	return p
}

// eta estimates the stage's remaining time, smoothed against the previous
// estimate. Callers hold mu.
func (t *Tracker) eta(fraction float64) time.Duration {
	if fraction <= 0 || fraction >= 1 {
		return 0
	}
	elapsed := t.now().Sub(t.stageStart)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining <= 0 {
		return 0
	}
	if t.lastETA > 0 {
		remaining = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(t.lastETA))
	}
	t.lastETA = remaining
	return remaining
}
