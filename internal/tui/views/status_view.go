package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/probe"
	"sessionprobe/internal/stats"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/components"
	"sessionprobe/internal/tui/result"
	"sessionprobe/internal/tui/styles"
)

const recentProbes = 6

// StatusView follows a run snapshot by snapshot.
type StatusView struct {
	State    probe.RunState
	Config   probe.Config
	Endpoint string
	Horizon  int64

	Recent  []probe.ProbeRecord
	seen    int
	Latency components.Sparkline

	// Result is set once the run is over.
	Result *result.Model

	Progress progress.Model
	Viewport viewport.Model

	Width  int
	Height int
}

func NewStatusView(cfg probe.Config, endpoint string, width, height int) StatusView {
	prog := progress.New(
		progress.WithGradient(styles.ColorProgressFrom, styles.ColorProgressTo),
		progress.WithWidth(max(width-10, 10)),
	)
	return StatusView{
		Config:   cfg,
		Endpoint: endpoint,
		Horizon:  probe.TotalHorizon(cfg.MinOffset, cfg.MaxOffset, cfg.Interval),
		Latency:  components.NewSparkline(40, "Probe latency", "ms", styles.Active),
		Progress: prog,
		Viewport: viewport.New(max(width-6, 0), max(height-4, 0)),
		Width:    width,
		Height:   height,
	}
}

// Percent is elapsed over horizon, clamped to [0, 1].
func (m StatusView) Percent() float64 {
	if m.Horizon <= 0 {
		return 1
	}
	return max(0, min(float64(m.State.Elapsed)/float64(m.Horizon), 1))
}

// SetResults feeds probes issued since the last call into the sparkline
// and the recent probe list.
func (m *StatusView) SetResults(all []probe.ProbeRecord) {
	if len(all) < m.seen {
		m.seen = 0
		m.Latency.Reset()
	}
	for _, r := range all[m.seen:] {
		m.Latency.Add(float64(r.Latency.Microseconds()) / 1000.0)
	}
	m.seen = len(all)

	start := max(len(all)-recentProbes, 0)
	m.Recent = append(m.Recent[:0], all[start:]...)
}

// Finish freezes the view on the final snapshot.
func (m *StatusView) Finish(st probe.RunState, snap stats.Snapshot) {
	m.State = st
	res := result.NewModel(st, snap)
	m.Result = &res
}

func (m StatusView) Init() tea.Cmd {
	return nil
}

func (m StatusView) Update(msg tea.Msg) (StatusView, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case probe.RunState:
		m.State = msg
		cmds = append(cmds, m.Progress.SetPercent(m.Percent()))

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-10, 10)
		m.Viewport.Width = max(msg.Width-6, 0)
		m.Viewport.Height = max(msg.Height-4, 0)

	case progress.FrameMsg:
		newModel, cmd := m.Progress.Update(msg)
		if p, ok := newModel.(progress.Model); ok {
			m.Progress = p
		}
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// Content renders the view without the scrolling viewport.
func (m StatusView) Content() string {
	s := strings.Builder{}

	st := m.State
	statusLine := styles.StatusStyle(st.Status).Render(strings.ToUpper(st.Status.String()))
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render("⏱  Session Timeout Test"),
		lipgloss.NewStyle().MarginLeft(2).Render(statusLine),
		lipgloss.NewStyle().MarginLeft(2).Foreground(styles.ColorSubtle).Render(m.Endpoint),
	)
	s.WriteString(header)
	s.WriteString("\n\n")

	s.WriteString(m.Progress.ViewAs(m.Percent()))
	s.WriteString("\n\n")

	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Testing interval", styles.Active.Render(timefmt.Format(int64(st.NextOffset)))),
		MakeCard("Next test", styles.Value.Render(timefmt.Format(int64(st.UntilNextProbe)))),
		MakeCard("Total time elapsed", styles.Text.Render(timefmt.Format(st.Elapsed))),
		MakeCard("Time remaining", styles.Text.Render(timefmt.Format(st.Remaining))),
	)
	s.WriteString(row1)
	s.WriteString("\n")

	probeTotal := probe.ProbeCount(m.Config.MinOffset, m.Config.MaxOffset, m.Config.Interval)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Probes", styles.Value.Render(fmt.Sprintf("%d / %d", st.Probes, probeTotal))),
		MakeCard("Range", styles.Subtle.Render(fmt.Sprintf("%s-%s",
			timefmt.Format(int64(m.Config.MinOffset)), timefmt.Format(int64(m.Config.MaxOffset))))),
		MakeCard("Step", styles.Subtle.Render(timefmt.Format(int64(m.Config.Interval)))),
	)
	s.WriteString(row2)
	s.WriteString("\n\n")

	if len(m.Latency.Data) > 0 {
		s.WriteString(m.Latency.View())
		s.WriteString("\n\n")
	}

	if len(m.Recent) > 0 {
		s.WriteString(styles.Subtle.Render("Last probes"))
		s.WriteString("\n")
		for _, r := range m.Recent {
			s.WriteString(renderProbe(r))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if m.Result != nil {
		s.WriteString(m.Result.View())
	}
	return s.String()
}

func (m StatusView) View() string {
	content := styles.Panel.Width(max(m.Width-6, 0)).Render(m.Content())
	m.Viewport.SetContent(content)
	return m.Viewport.View()
}

func renderProbe(r probe.ProbeRecord) string {
	outcome := styles.Value.Render("no match")
	switch {
	case r.Err != "":
		msg := r.Err
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		outcome = styles.Error.Render(msg)
	case r.Matched:
		outcome = styles.Warn.Render("MATCH")
	}

	code := styles.Text.Render(fmt.Sprintf("%d", r.StatusCode))
	if r.StatusCode >= 400 {
		code = styles.Warn.Render(fmt.Sprintf("%d", r.StatusCode))
	}
	return fmt.Sprintf("#%-3d %s idle  %s  %6.1f ms  %s",
		r.Seq, timefmt.Format(int64(r.Offset)), code, float64(r.Latency.Microseconds())/1000.0, outcome)
}

func MakeCard(title, value string) string {
	return styles.Box.Width(22).Align(lipgloss.Center).Render(
		fmt.Sprintf("%s\n%s", styles.Subtle.Render(title), value),
	)
}
