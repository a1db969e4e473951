package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/casesearch/internal/index"
)

// EmbedderStatus describes the configured embedder for status output.
type EmbedderStatus struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	// Status is "ready", "offline" or "disabled".
	Status string `json:"status"`
}

// StatusInfo is everything the status command reports.
type StatusInfo struct {
	Index     index.Status   `json:"index"`
	Embedder  EmbedderStatus `json:"embedder"`
	DiskBytes int64          `json:"disk_bytes"`
}

// StatusRenderer writes StatusInfo as text or JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	st := info.Index
	w := r.out

	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Title.Render("Index Status: "+st.DataDir))

	switch {
	case st.Building && !st.Built:
		_, _ = fmt.Fprintf(w, "  State:       %s\n", r.styles.Warn.Render("building"))
	case !st.Built:
		_, _ = fmt.Fprintf(w, "  State:       %s\n", r.styles.Error.Render("not built"))
		_, _ = fmt.Fprintln(w, "  Run 'casesearch index' to build it.")
		return nil
	default:
		_, _ = fmt.Fprintf(w, "  State:       %s\n", r.styles.Good.Render("ready"))
	}

	_, _ = fmt.Fprintf(w, "  Snapshot:    %s\n", st.SnapshotID)
	if !st.BuiltAt.IsZero() {
		_, _ = fmt.Fprintf(w, "  Built:       %s\n", r.relative(st.BuiltAt))
	}
	_, _ = fmt.Fprintf(w, "  Cases:       %d\n", st.Counts.Cases)
	_, _ = fmt.Fprintf(w, "  Chunks:      %d\n", st.Counts.Chunks)
	_, _ = fmt.Fprintf(w, "  Facet terms: %d\n", st.Counts.FacetTerms)
	_, _ = fmt.Fprintf(w, "  Disk:        %s\n", FormatBytes(info.DiskBytes))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "  Semantic search:")
	if st.HasVector {
		_, _ = fmt.Fprintf(w, "    Vectors:   %d embedded, %d unembedded (%s)\n",
			st.Counts.Embedded, st.Counts.Unembedded, st.Model)
	} else {
		_, _ = fmt.Fprintf(w, "    Vectors:   %s\n", r.styles.Warn.Render("none, hybrid and semantic fall back to lexical"))
	}
	e := info.Embedder
	_, _ = fmt.Fprintf(w, "    Embedder:  %s %s\n", e.Provider, r.renderState(e.Status))
	if e.Model != "" {
		_, _ = fmt.Fprintf(w, "    Model:     %s (%d dims)\n", e.Model, e.Dimensions)
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderState(s string) string {
	switch s {
	case "ready":
		return r.styles.Good.Render(s)
	case "offline":
		return r.styles.Warn.Render(s)
	case "disabled":
		return r.styles.Pending.Render(s)
	default:
		return s
	}
}

// relative renders t as "just now", "5 minutes ago" and so on, switching to
// a date after a week.
func (r *StatusRenderer) relative(t time.Time) string {
	diff := r.now().Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
