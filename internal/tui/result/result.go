// Package result renders the outcome of a finished run.
package result

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/probe"
	"sessionprobe/internal/stats"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/styles"
)

// Verdict is the one-line outcome of a run, shared with the headless CLI.
func Verdict(st probe.RunState) string {
	if st.Err != nil {
		return "Test aborted: " + st.Err.Error()
	}
	switch st.Status {
	case probe.StatusTimeoutDetected:
		off, _ := st.Detected()
		return "Session timeout detected: " + timefmt.Format(int64(off))
	case probe.StatusCompleted:
		return "Test complete. No session timeout detected."
	case probe.StatusCancelled:
		return "Test cancelled."
	case probe.StatusRunning:
		return "Test running..."
	default:
		return "No test run yet."
	}
}

type Model struct {
	State probe.RunState
	Stats stats.Snapshot

	Width  int
	Height int
}

func NewModel(st probe.RunState, snap stats.Snapshot) Model {
	return Model{State: st, Stats: snap}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	color := styles.StatusColor(m.State.Status)
	if m.State.Err != nil {
		color = styles.ColorError
	}
	s.WriteString(styles.Verdict.BorderForeground(color).Foreground(color).Render(Verdict(m.State)))
	s.WriteString("\n\n")

	overview := fmt.Sprintf(
		"Probes sent:  %d\nMatched:      %d\nFailed:       %d\nElapsed:      %s\nTotal bytes:  %d",
		m.Stats.Probes, m.Stats.Matched, m.Stats.Failed,
		timefmt.Format(m.State.Elapsed), m.Stats.Bytes,
	)
	latency := fmt.Sprintf(
		"Avg: %.2f ms\nP50: %.2f ms\nP99: %.2f ms\nMax: %.2f ms",
		m.Stats.AvgLatencyMs, m.Stats.P50LatencyMs, m.Stats.P99LatencyMs, m.Stats.MaxLatencyMs,
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Active.Render("Overview")+"\n"+styles.Box.Render(overview),
		styles.Active.Render("Probe latency")+"\n"+styles.Box.Render(latency),
	))
	return s.String()
}
