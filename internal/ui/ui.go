// Package ui renders index build progress and index status on the terminal.
// Interactive terminals get a bubbletea view; pipes, CI and --plain get
// line-oriented text.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/casesearch/internal/index"
)

// stageOrder lists the build stages in the order the manager reports them.
var stageOrder = []index.Stage{
	index.StageLoading,
	index.StageIndexing,
	index.StageEmbedding,
	index.StageSaving,
}

// stagePosition returns the stage's position in stageOrder, or -1.
func stagePosition(s index.Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StageLabel returns the short display name of a build stage.
func StageLabel(s index.Stage) string {
	switch s {
	case index.StageLoading:
		return "Load"
	case index.StageIndexing:
		return "Index"
	case index.StageEmbedding:
		return "Embed"
	case index.StageSaving:
		return "Save"
	default:
		return "?"
	}
}

// StageTag returns the bracketed tag used by plain output.
func StageTag(s index.Stage) string {
	switch s {
	case index.StageLoading:
		return "LOAD"
	case index.StageIndexing:
		return "INDEX"
	case index.StageEmbedding:
		return "EMBED"
	case index.StageSaving:
		return "SAVE"
	default:
		return "???"
	}
}

// EmbedderInfo describes the embedder a build used.
type EmbedderInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Summary is what a renderer shows once a build finishes.
type Summary struct {
	Stats    index.BuildStats
	Embedder EmbedderInfo
}

// Renderer displays build progress.
type Renderer interface {
	Start(ctx context.Context) error
	// Update must not block; the manager calls it from build goroutines.
	Update(event index.ProgressEvent)
	Complete(summary Summary)
	Fail(err error)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI panel header, typically the data directory.
	Title string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithTitle sets the TUI panel title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) { c.Title = title }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	return cfg
}

// NewRenderer picks the TUI for interactive terminals and plain text
// everywhere else.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether we appear to run under CI.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
