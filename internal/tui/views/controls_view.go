package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/capture"
	"sessionprobe/internal/config"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/styles"
)

// Field indices
const (
	FieldMatch = iota
	FieldMin
	FieldMax
	FieldInterval
	FieldFile
	fieldCount
)

// ControlsView edits the probe parameters and shows the loaded request.
type ControlsView struct {
	Inputs []textinput.Model
	Focus  int

	// Base is the request every probe replays; nil until one is loaded.
	Base *probe.BaseRequest
	// Running switches the action label between START and STOP.
	Running bool

	Viewport viewport.Model

	Width  int
	Height int
}

func NewControlsView(settings config.ProbeSettings, requestFile string, base *probe.BaseRequest) ControlsView {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		inputs[i] = textinput.New()
		inputs[i].PromptStyle = styles.Subtle
		inputs[i].TextStyle = styles.Subtle
		inputs[i].Width = 30
	}

	inputs[FieldMatch].Prompt = "String to match: "
	inputs[FieldMatch].Placeholder = "Your session has expired"
	inputs[FieldMatch].SetValue(settings.Match)
	inputs[FieldMatch].Width = 40

	inputs[FieldMin].Prompt = "Minimum session duration: "
	inputs[FieldMin].Placeholder = config.DefaultMin
	inputs[FieldMin].SetValue(settings.Min)

	inputs[FieldMax].Prompt = "Maximum session duration: "
	inputs[FieldMax].Placeholder = config.DefaultMax
	inputs[FieldMax].SetValue(settings.Max)

	inputs[FieldInterval].Prompt = "Interval: "
	inputs[FieldInterval].Placeholder = config.DefaultInterval
	inputs[FieldInterval].SetValue(settings.Interval)

	inputs[FieldFile].Prompt = "Request file: "
	inputs[FieldFile].Placeholder = "request.txt or Burp XML export"
	inputs[FieldFile].SetValue(requestFile)
	inputs[FieldFile].Width = 40

	v := ControlsView{
		Inputs:   inputs,
		Base:     base,
		Viewport: viewport.New(0, 0),
	}
	v, _ = v.focusCmd()
	return v
}

// SetConfig loads cfg (whole seconds) into the duration fields.
func (m *ControlsView) SetConfig(cfg probe.Config) {
	m.Inputs[FieldMatch].SetValue(cfg.Match)
	m.Inputs[FieldMin].SetValue(secondsText(cfg.MinOffset))
	m.Inputs[FieldMax].SetValue(secondsText(cfg.MaxOffset))
	m.Inputs[FieldInterval].SetValue(secondsText(cfg.Interval))
}

func secondsText(s uint) string {
	return (time.Duration(s) * time.Second).String()
}

// GetConfig parses the inputs. Range checks are left to the scheduler.
func (m ControlsView) GetConfig() (probe.Config, error) {
	cfg := probe.Config{Match: m.Inputs[FieldMatch].Value()}
	fields := []struct {
		name string
		idx  int
		dst  *uint
	}{
		{"Minimum session duration", FieldMin, &cfg.MinOffset},
		{"Maximum session duration", FieldMax, &cfg.MaxOffset},
		{"Interval", FieldInterval, &cfg.Interval},
	}
	for _, f := range fields {
		v, err := config.ParseSeconds(m.Inputs[f.idx].Value())
		if err != nil {
			return probe.Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return cfg, nil
}

// RequestFile is the path typed into the request field.
func (m ControlsView) RequestFile() string {
	return strings.TrimSpace(m.Inputs[FieldFile].Value())
}

func (m ControlsView) GetHelp() string {
	switch m.Focus {
	case FieldMatch:
		return "Text that only appears once the session has expired,\ne.g. an error message or the login form title.\n\nThe indicator must appear after the first byte\nof the response to count."
	case FieldMin:
		return "Idle time before the first probe.\nAccepts seconds (900) or a duration (15m, 1h30m)."
	case FieldMax:
		return "Largest idle time to try.\nThe test stops after this offset without a match."
	case FieldInterval:
		return "How much the idle time grows between probes.\nEach probe waits as long as its own offset."
	case FieldFile:
		return "Raw HTTP request or Burp \"Save items\" XML.\nLoaded when the test starts.\n\nThe cookie in this request must belong to a\nfreshly logged in session."
	}
	return ""
}

func (m ControlsView) Init() tea.Cmd {
	return textinput.Blink
}

func (m ControlsView) Update(msg tea.Msg) (ControlsView, tea.Cmd) {
	var cmds []tea.Cmd
	isNav := false
	dir := 0

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "down", "enter", "ctrl+n":
			isNav, dir = true, 1
		case "shift+tab", "up", "ctrl+p":
			isNav, dir = true, -1
		}
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Viewport.Width = msg.Width - 4
		m.Viewport.Height = msg.Height - 4
	}

	if isNav {
		m.Focus = (m.Focus + dir + fieldCount) % fieldCount
		var cmd tea.Cmd
		m, cmd = m.focusCmd()
		cmds = append(cmds, cmd)
	} else if !m.Running {
		var cmd tea.Cmd
		m.Inputs[m.Focus], cmd = m.Inputs[m.Focus].Update(msg)
		cmds = append(cmds, cmd)
	}

	var vpCmd tea.Cmd
	m.Viewport, vpCmd = m.Viewport.Update(msg)
	cmds = append(cmds, vpCmd)
	return m, tea.Batch(cmds...)
}

func (m ControlsView) focusCmd() (ControlsView, tea.Cmd) {
	var cmds []tea.Cmd
	for i := range m.Inputs {
		if i == m.Focus {
			cmds = append(cmds, m.Inputs[i].Focus())
			m.Inputs[i].PromptStyle = styles.Active
			m.Inputs[i].TextStyle = styles.Text
		} else {
			m.Inputs[i].Blur()
			m.Inputs[i].PromptStyle = styles.Subtle
			m.Inputs[i].TextStyle = styles.Subtle
		}
	}
	return m, tea.Batch(cmds...)
}

func (m ControlsView) renderInput(idx int) string {
	style := styles.InputNormal
	if idx == m.Focus {
		style = styles.InputActive
	}
	return style.Render(m.Inputs[idx].View())
}

func (m ControlsView) requestSummary() string {
	if m.Base == nil {
		return styles.Warn.Render("No request loaded.") + "\n" +
			styles.Subtle.Render("Fill in the request file or start with --request.")
	}
	var s strings.Builder
	s.WriteString(styles.Subtle.Render("Target   ") + styles.Value.Render(m.Base.Endpoint.String()) + "\n")
	s.WriteString(styles.Subtle.Render("Request  ") + styles.Text.Render(capture.RequestLine(m.Base.Raw)) + "\n")
	if host := capture.HostHeader(m.Base.Raw); host != "" {
		s.WriteString(styles.Subtle.Render("Host     ") + styles.Text.Render(host) + "\n")
	}
	s.WriteString(styles.Subtle.Render("Size     ") + styles.Text.Render(fmt.Sprintf("%d bytes", len(m.Base.Raw))))
	return s.String()
}

func (m ControlsView) planSummary() string {
	cfg, err := m.GetConfig()
	if err != nil {
		return styles.Error.Render(err.Error())
	}
	if cfg.Interval == 0 || cfg.MaxOffset < cfg.MinOffset {
		return styles.Warn.Render("Check the duration range and interval.")
	}
	return fmt.Sprintf("%s probes, up to %s in total",
		styles.Value.Render(fmt.Sprint(probe.ProbeCount(cfg.MinOffset, cfg.MaxOffset, cfg.Interval))),
		styles.Value.Render(timefmt.Format(probe.TotalHorizon(cfg.MinOffset, cfg.MaxOffset, cfg.Interval))),
	)
}

func (m ControlsView) View() string {
	inputCol := strings.Builder{}
	inputCol.WriteString("\n")
	for i := 0; i < fieldCount; i++ {
		inputCol.WriteString(m.renderInput(i))
		inputCol.WriteString("\n")
	}
	inputCol.WriteString("\n")
	inputCol.WriteString(m.planSummary())
	inputCol.WriteString("\n\n")

	action := styles.Success.Render("▶ START TEST")
	if m.Running {
		action = styles.Error.Render("■ STOP TEST")
	}
	inputCol.WriteString(styles.Box.Render(action + styles.Subtle.Render("  (ctrl+r)")))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.ColorBorder).
		Padding(1, 2).
		Width(55)

	side := lipgloss.JoinVertical(lipgloss.Left,
		box.Render(styles.Subtle.Bold(true).Render("Request")+"\n\n"+m.requestSummary()),
		box.Render(styles.Subtle.Bold(true).Render("Information")+"\n\n"+
			styles.Text.Foreground(styles.ColorSecondary).Render(m.GetHelp())),
	)

	mainRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(70).Render(inputCol.String()),
		side,
	)

	m.Viewport.SetContent(mainRow)
	return m.Viewport.View()
}
