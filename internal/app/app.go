// Package app is the terminal dashboard behind the watch command: a
// bubbletea model that polls the ledger and renders the newest processing
// runs and file state transitions.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cgdops/rtaingest/internal/db"
)

// --- Styles ---
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	sectionStyle = lipgloss.NewStyle().PaddingLeft(1)

	stateStyles = map[string]lipgloss.Style{
		db.RunStateStarted:          lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		db.RunStateSent:             lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		db.RunStateRetryPending:     lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		db.RunStateReprocessPending: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		db.RunStateFailed:           lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		db.RunStateRejected:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		db.FileStateLoading:         lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		db.FileStateRetryPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		db.FileStateFailed:          lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		db.FileStateRejected:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Fetcher produces one ledger snapshot per poll.
type Fetcher func(ctx context.Context) (Snapshot, error)

// WatchModel is the bubbletea model for the dashboard.
type WatchModel struct {
	State    AppState
	fetch    Fetcher
	interval time.Duration
	spinner  spinner.Model

	snapshot  Snapshot
	lastError error
	Quitting  bool

	termWidth  int
	termHeight int
}

func NewWatchModel(fetch Fetcher, interval time.Duration) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &WatchModel{
		State:    Loading,
		fetch:    fetch,
		interval: interval,
		spinner:  s,
	}
}

// --- Bubbletea Interface ---

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd())
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.Quitting = true
			m.State = Exiting
			return m, tea.Quit
		case "r":
			cmds = append(cmds, m.fetchCmd())
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.lastError = nil
		m.State = ShowDashboard
		cmds = append(cmds, m.tickCmd())
	case GeneralErrorMsg:
		m.lastError = msg.Err
		m.State = ShowError
		cmds = append(cmds, m.tickCmd())
	case tickMsg:
		cmds = append(cmds, m.fetchCmd())
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- Response Ingestion Ledger ---"))
	b.WriteString("\n\n")

	switch m.State {
	case Loading:
		b.WriteString(fmt.Sprintf("%s Loading ledger...\n", m.spinner.View()))
	case ShowDashboard:
		b.WriteString(m.viewRuns())
		b.WriteString("\n")
		b.WriteString(m.viewTransitions())
	case ShowError:
		b.WriteString(errorStyle.Render("Ledger poll failed:"))
		b.WriteString("\n")
		if m.lastError != nil {
			b.WriteString(m.lastError.Error())
		}
		b.WriteString("\n")
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n")
	if m.State == ShowDashboard {
		b.WriteString(infoStyle.Render(fmt.Sprintf(
			"Updated %s. 'r' to refresh, 'q' or Ctrl+C to quit.",
			m.snapshot.At.Format("15:04:05"))))
	} else if m.State != Exiting {
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to quit."))
	}

	return b.String()
}

// --- View Helpers ---

func (m *WatchModel) viewRuns() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-18s | %-4s | %-38s | %-4s | %-20s | %s",
		"File ID", "Run", "Archive", "Type", "State", "Attempts")))
	b.WriteString("\n")

	if len(m.snapshot.Runs) == 0 {
		b.WriteString(sectionStyle.Render(infoStyle.Render("no processing runs yet")))
		b.WriteString("\n")
		return b.String()
	}
	for _, r := range m.snapshot.Runs {
		line := fmt.Sprintf("%-18d | %-4d | %-38s | %-4s | %-20s | %d",
			r.FileID, r.RunID, truncate(r.ZipName, 38), r.ResponseType,
			m.styleState(r.State), r.LoadAttempts)
		b.WriteString(sectionStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *WatchModel) viewTransitions() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-18s | %-26s | %-26s | %s",
		"File ID", "From", "To", "Changed")))
	b.WriteString("\n")

	if len(m.snapshot.Transitions) == 0 {
		b.WriteString(sectionStyle.Render(infoStyle.Render("no state transitions yet")))
		b.WriteString("\n")
		return b.String()
	}
	for _, t := range m.snapshot.Transitions {
		line := fmt.Sprintf("%-18d | %-26s | %-26s | %s",
			t.FileID, t.FromState, m.styleState(t.ToState),
			t.ChangedAt.Format("2006-01-02 15:04:05"))
		b.WriteString(sectionStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *WatchModel) styleState(state string) string {
	if style, ok := stateStyles[state]; ok {
		return style.Render(state)
	}
	return state
}

func truncate(s string, maxWidth int) string {
	if len(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return s[:maxWidth]
	}
	return s[:maxWidth-3] + "..."
}

// --- Commands ---

func (m *WatchModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := m.fetch(ctx)
		if err != nil {
			return NewError(err)
		}
		return NewSnapshot(snap)
	}
}

func (m *WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
