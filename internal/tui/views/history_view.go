package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/probe"
	"sessionprobe/internal/storage"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/styles"
)

type HistoryView struct {
	Store storage.Store
	Table table.Model

	items   []storage.HistoryItem
	loadErr error

	// SelectedConfig is set on Enter for the parent to pick up.
	SelectedConfig *probe.Config

	Width  int
	Height int
}

func NewHistoryView(store storage.Store) HistoryView {
	columns := []table.Column{
		{Title: "Time", Width: 17},
		{Title: "Endpoint", Width: 30},
		{Title: "Match", Width: 22},
		{Title: "Range", Width: 19},
		{Title: "Status", Width: 17},
		{Title: "Timeout", Width: 9},
		{Title: "Probes", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#1A1A1A")).
		Background(styles.ColorPrimary).
		Bold(true)
	t.SetStyles(s)

	m := HistoryView{Store: store, Table: t}
	m.Refresh()
	return m
}

// Refresh reloads the stored runs, newest first.
func (m *HistoryView) Refresh() {
	if m.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := m.Store.List(ctx)
	m.loadErr = err
	if err != nil {
		return
	}
	m.items = items

	rows := make([]table.Row, len(items))
	for i, item := range items {
		detected := "-"
		if item.Summary.DetectedOffset != nil {
			detected = timefmt.Format(int64(*item.Summary.DetectedOffset))
		}
		rows[i] = table.Row{
			item.Timestamp.Local().Format("01-02 15:04:05"),
			item.Endpoint,
			truncate(item.Config.Match, 22),
			fmt.Sprintf("%s-%s", timefmt.Format(int64(item.Config.MinOffset)), timefmt.Format(int64(item.Config.MaxOffset))),
			item.Summary.Status,
			detected,
			fmt.Sprintf("%d", item.Summary.Probes),
		}
	}
	m.Table.SetRows(rows)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (m HistoryView) Init() tea.Cmd {
	return nil
}

func (m HistoryView) Update(msg tea.Msg) (HistoryView, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(msg.Height-8, 3))

	case tea.KeyMsg:
		if msg.String() == "enter" {
			if item := m.GetSelectedItem(); item != nil {
				cfg := item.Config
				m.SelectedConfig = &cfg
				return m, nil
			}
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m HistoryView) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📜 Past Runs"))
	s.WriteString("\n\n")

	switch {
	case m.Store == nil:
		s.WriteString(styles.Subtle.Render("History is disabled (storage.driver: none)."))
	case m.loadErr != nil:
		s.WriteString(styles.Error.Render("Could not load history: " + m.loadErr.Error()))
	case len(m.Table.Rows()) == 0:
		s.WriteString(styles.Subtle.Render("No history found.\nRun a test to generate data."))
	default:
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("[Enter] Load parameters  [Ctrl+P] Export selected"))
	return s.String()
}

// GetSelectedItem returns the run under the cursor, or nil.
func (m HistoryView) GetSelectedItem() *storage.HistoryItem {
	idx := m.Table.Cursor()
	if idx < 0 || idx >= len(m.items) {
		return nil
	}
	item := m.items[idx]
	return &item
}
