package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/casesearch/internal/index"
)

func newTestModel() (*buildModel, *Tracker) {
	tr := NewTracker()
	return newBuildModel(tr, "/data/cases", PlainStyles()), tr
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestBuildModel_StageIndicators(t *testing.T) {
	// Given a build in the embedding stage
	m, tr := newTestModel()
	tr.Observe(index.ProgressEvent{Stage: index.StageEmbedding, Current: 25, Total: 100, Message: "embedding chunks"})

	// When rendering
	view := m.View()

	// Then finished, active and pending stages are drawn with progress
	assert.Contains(t, view, "● Load")
	assert.Contains(t, view, "● Index")
	assert.Contains(t, view, "Embed")
	assert.Contains(t, view, "○ Save")
	assert.Contains(t, view, "25 / 100 chunks")
	assert.Contains(t, view, "25%")
	assert.Contains(t, view, "embedding chunks")
	assert.Contains(t, view, "casesearch index • /data/cases")
}

func TestBuildModel_UnknownTotal(t *testing.T) {
	m, tr := newTestModel()
	tr.Observe(index.ProgressEvent{Stage: index.StageSaving, Message: "writing snapshot"})

	view := m.View()

	assert.Contains(t, view, "working...")
	assert.Contains(t, view, "● Embed")
}

func TestBuildModel_Complete(t *testing.T) {
	// Given a running model
	m, _ := newTestModel()

	// When the build completes
	_, cmd := m.Update(completeMsg(Summary{Stats: index.BuildStats{IndexBuilt: true, Cases: 3, Chunks: 6}}))

	// Then the program quits showing the summary
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index ready")
	assert.Contains(t, view, "Indexed 3 cases, 6 chunks")
}

func TestBuildModel_Fail(t *testing.T) {
	m, _ := newTestModel()

	_, cmd := m.Update(failMsg{err: errors.New("disk full")})

	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Build failed: disk full")
}

func TestBuildModel_CtrlC(t *testing.T) {
	m, _ := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestBuildModel_WindowResize(t *testing.T) {
	m, _ := newTestModel()

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3 * time.Minute, "3m"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{time.Hour + 2*time.Minute, "1h 2m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "embeddi...", truncate("embedding chunks", 10))
	assert.Equal(t, "abcdef", truncate("abcdef", 3))
}
