// Package app is the bubbletea program: controls, live status and history
// views around one probe.Scheduler.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/capture"
	"sessionprobe/internal/config"
	"sessionprobe/internal/logx"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/storage"
	"sessionprobe/internal/tui/result"
	"sessionprobe/internal/tui/styles"
	"sessionprobe/internal/tui/views"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

type ViewID int

const (
	ViewControls ViewID = iota
	ViewStatus
	ViewHistory
)

// StateMsg carries one snapshot of the active run.
type StateMsg probe.RunState

// RunFinishedMsg is sent once the active run's update channel is closed.
type RunFinishedMsg struct {
	Handle *probe.Handle
}

// quitGrace bounds how long quitting waits for a cancelled run to end.
const quitGrace = 5 * time.Second

type quitTimeoutMsg struct {
	Handle *probe.Handle
}

type Options struct {
	Scheduler *probe.Scheduler
	Store     storage.Store
	Logger    logx.Logger

	// Base is the request loaded at startup, if any.
	Base        *probe.BaseRequest
	RequestFile string
	Target      string
	Plain       bool

	Probe config.ProbeSettings
}

type Model struct {
	Scheduler *probe.Scheduler
	Store     storage.Store
	Logger    logx.Logger

	Base       *probe.BaseRequest
	loadedFile string
	target     string
	plain      bool

	handle *probe.Handle
	// quitting is set when quit was asked for during a run; the program
	// exits once that run is saved.
	quitting bool
	// last holds the most recent finished run for export.
	last *storage.HistoryItem

	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	ControlsView views.ControlsView
	StatusView   views.StatusView
	HistoryView  views.HistoryView

	StatusMsg string
}

func NewModel(opts Options) Model {
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	return Model{
		Scheduler:    opts.Scheduler,
		Store:        opts.Store,
		Logger:       opts.Logger,
		Base:         opts.Base,
		loadedFile:   opts.RequestFile,
		target:       opts.Target,
		plain:        opts.Plain,
		CurrentView:  ViewControls,
		MenuItems:    []string{"[1] Test", "[2] Status", "[3] History"},
		ControlsView: views.NewControlsView(opts.Probe, opts.RequestFile, opts.Base),
		StatusView:   views.NewStatusView(probe.Config{}, "", 0, 0),
		HistoryView:  views.NewHistoryView(opts.Store),
	}
}

// Running reports whether a run is in progress.
func (m Model) Running() bool { return m.handle != nil }

func (m Model) Init() tea.Cmd {
	return m.ControlsView.Init()
}

func waitForUpdate(h *probe.Handle) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-h.Updates()
		if !ok {
			return RunFinishedMsg{Handle: h}
		}
		return StateMsg(st)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			if m.handle == nil || m.quitting {
				return m, tea.Quit
			}
			h := m.handle
			h.Cancel()
			m.quitting = true
			m.StatusMsg = "Stopping run before quitting..."
			return m, tea.Tick(quitGrace, func(time.Time) tea.Msg {
				return quitTimeoutMsg{Handle: h}
			})

		case "ctrl+d":
			m.CurrentView = ViewStatus
			return m, nil

		case "ctrl+h":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil

		case "ctrl+right":
			m.CurrentView = (m.CurrentView + 1) % 3
			return m, nil
		case "ctrl+left":
			m.CurrentView = (m.CurrentView + 2) % 3
			return m, nil

		case "ctrl+r":
			if m.handle != nil {
				return m.stopRun()
			}
			return m.startRun()

		case "ctrl+s":
			return m.stopRun()

		case "ctrl+p":
			if m.CurrentView == ViewStatus || m.CurrentView == ViewHistory {
				return m.export()
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		inner := tea.WindowSizeMsg{Width: m.Width, Height: m.Height - 7}

		m.ControlsView, _ = m.ControlsView.Update(inner)
		m.StatusView, _ = m.StatusView.Update(inner)
		m.HistoryView, _ = m.HistoryView.Update(inner)
		return m, nil

	case StateMsg:
		if m.handle == nil {
			return m, nil
		}
		var c tea.Cmd
		m.StatusView, c = m.StatusView.Update(probe.RunState(msg))
		m.StatusView.SetResults(m.handle.Results())
		return m, tea.Batch(c, waitForUpdate(m.handle))

	case RunFinishedMsg:
		if msg.Handle != m.handle {
			return m, nil
		}
		m = m.finishRun()
		if m.quitting {
			return m, tea.Quit
		}
		return m, clearStatusCmd()

	case quitTimeoutMsg:
		if !m.quitting || msg.Handle != m.handle {
			return m, nil
		}
		// the run did not end in time; keep what it has so far
		if item := m.currentItem(); item != nil {
			_ = m.saveHistory(*item)
		}
		return m, tea.Quit
	}

	var viewCmd tea.Cmd
	switch m.CurrentView {
	case ViewControls:
		m.ControlsView, viewCmd = m.ControlsView.Update(msg)
	case ViewStatus:
		m.StatusView, viewCmd = m.StatusView.Update(msg)
	case ViewHistory:
		m.HistoryView, viewCmd = m.HistoryView.Update(msg)
		if m.HistoryView.SelectedConfig != nil {
			m.ControlsView.SetConfig(*m.HistoryView.SelectedConfig)
			m.HistoryView.SelectedConfig = nil
			m.CurrentView = ViewControls
			m.StatusMsg = "Loaded parameters from history."
			cmds = append(cmds, clearStatusCmd())
		}
	}
	cmds = append(cmds, viewCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) fail(format string, args ...any) (Model, tea.Cmd) {
	m.StatusMsg = fmt.Sprintf(format, args...)
	return m, clearStatusCmd()
}

func (m Model) startRun() (Model, tea.Cmd) {
	cfg, err := m.ControlsView.GetConfig()
	if err != nil {
		return m.fail("Invalid parameters: %v", err)
	}

	if file := m.ControlsView.RequestFile(); file != "" && (m.Base == nil || file != m.loadedFile) {
		base, err := capture.LoadFile(file, m.target, m.plain)
		if err != nil {
			return m.fail("Could not load request: %v", err)
		}
		m.Base = &base
		m.loadedFile = file
		m.ControlsView.Base = m.Base
	}
	if m.Base == nil {
		return m.fail("No request loaded.")
	}

	h, err := m.Scheduler.Start(context.Background(), cfg, *m.Base)
	if err != nil {
		return m.fail("Cannot start: %v", err)
	}
	m.Logger.Info("tui run started", logx.String("run", h.ID()))

	m.handle = h
	m.last = nil
	m.ControlsView.Running = true
	m.StatusView = views.NewStatusView(cfg, m.Base.Endpoint.String(), m.Width, m.Height-7)
	m.StatusView.State = h.State()
	m.CurrentView = ViewStatus
	return m, waitForUpdate(h)
}

// stopRun asks the active run to stop; the closing update channel then
// delivers RunFinishedMsg.
func (m Model) stopRun() (Model, tea.Cmd) {
	if m.handle == nil {
		return m, nil
	}
	m.handle.Cancel()
	m.StatusMsg = "Stopping..."
	return m, nil
}

func (m Model) finishRun() Model {
	h := m.handle
	final := h.State()
	snap := h.Stats().Snapshot()

	m.StatusView.SetResults(h.Results())
	m.StatusView.Finish(final, snap)

	item := storage.NewItem(h.ID(), h.Base(), h.Config(), final, h.Results(), snap.AvgLatencyMs, snap.P99LatencyMs)
	m.last = &item
	m.handle = nil
	m.ControlsView.Running = false

	m.StatusMsg = result.Verdict(final)
	if err := m.saveHistory(item); err != nil {
		m.StatusMsg += fmt.Sprintf(" (history not saved: %v)", err)
	}
	m.HistoryView.Refresh()
	return m
}

func (m Model) saveHistory(item storage.HistoryItem) error {
	if m.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Store.Save(ctx, item); err != nil {
		m.Logger.Warn("history save failed", logx.String("run", item.ID), logx.Err(err))
		return err
	}
	return nil
}

func (m Model) export() (Model, tea.Cmd) {
	var item *storage.HistoryItem
	prefix := ""
	switch m.CurrentView {
	case ViewStatus:
		item = m.currentItem()
		prefix = "sessionprobe_report_" + time.Now().Format("20060102-150405")
	case ViewHistory:
		item = m.HistoryView.GetSelectedItem()
		if item != nil {
			prefix = "sessionprobe_history_" + item.ID
		}
	}
	if item == nil || len(item.Results) == 0 {
		return m.fail("No results to export yet.")
	}
	if err := ExportRun(*item, prefix); err != nil {
		return m.fail("Export failed: %v", err)
	}
	return m.fail("Exported to %s.{csv,json,_summary.json}", prefix)
}

// currentItem is the active run so far, or the last finished one.
func (m Model) currentItem() *storage.HistoryItem {
	if m.handle == nil {
		return m.last
	}
	h := m.handle
	snap := h.Stats().Snapshot()
	item := storage.NewItem(h.ID(), h.Base(), h.Config(), h.State(), h.Results(), snap.AvgLatencyMs, snap.P99LatencyMs)
	return &item
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewControls:
		contentStr = m.ControlsView.View()
	case ViewStatus:
		contentStr = m.StatusView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}
	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	action := "START TEST"
	if m.handle != nil {
		action = "STOP TEST"
	}
	keys1 := []string{
		styles.RenderKey("Ctrl+<->", "View"),
		styles.RenderKey("Tab", "Field"),
		styles.RenderKey("Enter", "Next/Load"),
	}
	keys2 := []string{
		styles.RenderKey("Ctrl+R", action),
		styles.RenderKey("Ctrl+S", "Stop"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("Ctrl+Q", "Quit"),
	}
	keys3 := []string{
		styles.RenderKey("Ctrl+D", "Status"),
		styles.RenderKey("Ctrl+H", "History"),
	}

	footer := lipgloss.JoinVertical(lipgloss.Left,
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys1, "   ")),
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys2, "   ")),
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys3, "   ")),
	)

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorPrimary).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}
