package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/casesearch/internal/index"
)

const (
	tickInterval = 100 * time.Millisecond
	stopTimeout  = 2 * time.Second
	minWidth     = 40
)

// TUIRenderer draws build progress with bubbletea. Progress events only
// update the tracker; the model redraws from it on every tick.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker
	model   *buildModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	tracker := NewTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newBuildModel(tracker, cfg.Title, GetStyles(cfg.NoColor)),
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	r.program = tea.NewProgram(r.model,
		tea.WithContext(ctx),
		tea.WithOutput(r.cfg.Output),
	)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(ev index.ProgressEvent) {
	r.tracker.Observe(ev)
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.tracker.Finish()
	r.send(completeMsg(s))
}

// Fail implements Renderer.
func (r *TUIRenderer) Fail(err error) {
	r.send(failMsg{err: err})
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		p.Quit()
		<-r.done
	}
	return nil
}

type (
	tickMsg     time.Time
	completeMsg Summary
	failMsg     struct{ err error }
)

// buildModel is the bubbletea model for an index build.
type buildModel struct {
	tracker  *Tracker
	title    string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	summary  *Summary
	timings  map[index.Stage]time.Duration
	err      error
	quitting bool
}

func newBuildModel(tracker *Tracker, title string, styles Styles) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	return &buildModel{
		tracker: tracker,
		title:   title,
		styles:  styles,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(minWidth),
			progress.WithoutPercentage(),
		),
		width: 80,
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		s := Summary(msg)
		m.summary = &s
		m.timings = m.tracker.Timings()
		return m, tea.Quit
	case failMsg:
		m.err = msg.err
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	switch {
	case m.quitting:
		return "Cancelled.\n"
	case m.err != nil:
		return m.styles.Error.Render("✗ Build failed: "+m.err.Error()) + "\n"
	case m.summary != nil:
		return m.renderSummary()
	}

	width := max(m.width-4, minWidth)
	p := m.tracker.Snapshot()

	sections := []string{
		m.renderStages(p.Stage),
		m.renderBar(p),
		m.renderRate(p),
	}
	if p.Message != "" {
		sections = append(sections, m.styles.Label.Render(truncate(p.Message, width-2)))
	}

	title := "casesearch index"
	if m.title != "" {
		title += " • " + m.title
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Title.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(sections, "\n")),
	) + "\n"
}

// renderStages draws Load → Index → Embed → Save with the active stage
// spinning.
func (m *buildModel) renderStages(current index.Stage) string {
	pos := stagePosition(current)
	parts := make([]string, 0, len(stageOrder))
	for i, st := range stageOrder {
		switch {
		case pos >= 0 && i < pos:
			parts = append(parts, m.styles.Done.Render("● "+StageLabel(st)))
		case i == pos:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+StageLabel(st)))
		default:
			parts = append(parts, m.styles.Pending.Render("○ "+StageLabel(st)))
		}
	}
	return strings.Join(parts, m.styles.Pending.Render(" → "))
}

func (m *buildModel) renderBar(p Progress) string {
	if p.Total == 0 {
		return m.spinner.View() + " " + m.styles.Label.Render("working...")
	}
	unit := "cases"
	if p.Stage == index.StageEmbedding {
		unit = "chunks"
	}
	return fmt.Sprintf("%s  %s\n%s",
		m.bar.ViewAs(p.Fraction),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", p.Fraction*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d %s", p.Current, p.Total, unit)))
}

func (m *buildModel) renderRate(p Progress) string {
	parts := []string{m.styles.Label.Render("Elapsed: " + formatDuration(p.Elapsed))}
	if p.Rate > 0 {
		parts = append(parts, m.styles.Label.Render(fmt.Sprintf("Rate: %.0f/s (peak %.0f)", p.Rate, p.PeakRate)))
	}
	if p.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(p.ETA)))
	}
	return strings.Join(parts, m.styles.Pending.Render("  •  "))
}

func (m *buildModel) renderSummary() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Good.Render("✓ Index ready"))
	sb.WriteString("\n\n")
	writeSummary(&sb, *m.summary, m.timings)
	return m.styles.Panel.Width(max(m.width-4, minWidth)).Render(strings.TrimRight(sb.String(), "\n")) + "\n"
}

// formatDuration renders d as "42s", "3m 5s" or "1h 2m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}

var _ Renderer = (*TUIRenderer)(nil)
