package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/casesearch/internal/index"
)

// plainSteps is how many lines a counted stage prints at most.
const plainSteps = 10

// PlainRenderer writes one line per notable progress event, without ANSI
// escapes, for logs and pipes.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	tracker  *Tracker
	stage    index.Stage
	lastStep int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, tracker: NewTracker(), lastStep: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// Update implements Renderer. Counted stages print at most plainSteps lines;
// a new stage always prints.
func (r *PlainRenderer) Update(ev index.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(ev)

	step := -1
	if ev.Total > 0 {
		step = ev.Current * plainSteps / ev.Total
	}
	if ev.Stage == r.stage && (step <= r.lastStep || step < 0) {
		return
	}
	r.stage = ev.Stage
	r.lastStep = step

	if ev.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", StageTag(ev.Stage), ev.Current, ev.Total, ev.Message)
	} else {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", StageTag(ev.Stage), ev.Message)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Finish()
	writeSummary(r.out, s, r.tracker.Timings())
}

// Fail implements Renderer.
func (r *PlainRenderer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "ERROR: %v\n", err)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

// writeSummary prints the build result shared by the plain renderer and the
// TUI's final frame.
func writeSummary(w io.Writer, s Summary, timings map[index.Stage]time.Duration) {
	st := s.Stats
	_, _ = fmt.Fprintf(w, "Indexed %s in %s\n", st.String(), st.Duration.Round(time.Millisecond))
	if st.SnapshotID != "" {
		_, _ = fmt.Fprintf(w, "Snapshot: %s\n", st.SnapshotID)
	}
	if st.Reused > 0 || st.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Reused %d embedded chunks, skipped %d invalid records\n", st.Reused, st.Skipped)
	}

	if len(timings) > 0 {
		_, _ = fmt.Fprintln(w, "Stages:")
		for _, stage := range stageOrder {
			d, ok := timings[stage]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-6s %s", StageLabel(stage)+":", d.Round(time.Millisecond))
			if stage == index.StageEmbedding && st.Embedded > 0 && d > 0 {
				line += fmt.Sprintf(" (%.1f chunks/sec)", float64(st.Embedded)/d.Seconds())
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}

	if s.Embedder.Model != "" {
		_, _ = fmt.Fprintf(w, "Embedder: %s (%s, %d dims)\n", s.Embedder.Provider, s.Embedder.Model, s.Embedder.Dimensions)
	} else {
		_, _ = fmt.Fprintln(w, "Embedder: none (lexical only)")
	}

	for _, e := range st.Errors {
		_, _ = fmt.Fprintf(w, "WARN: %s\n", e)
	}
}
