// Package tui implements the interactive fact-check dashboard.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/puzzle-agent/pzl/internal/api"
	"github.com/puzzle-agent/pzl/internal/event"
	"github.com/puzzle-agent/pzl/internal/session"
	"github.com/puzzle-agent/pzl/internal/tui/components"
	"github.com/puzzle-agent/pzl/internal/tui/theme"
)

const snapshotPollInterval = 200 * time.Millisecond

type pollMsg time.Time

type startResultMsg struct {
	err error
}

type interruptResultMsg struct {
	err error
}

type reportRenderedMsg struct {
	source   string
	rendered string
	err      error
}

type keyMap struct {
	Submit    key.Binding
	Interrupt key.Binding
	Reset     key.Binding
	Report    key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Interrupt, k.Reset, k.Report, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Interrupt}, {k.Reset, k.Report, k.Quit}}
}

var defaultKeys = keyMap{
	Submit: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "start check"),
	),
	Interrupt: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "interrupt"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "new check"),
	),
	Report: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "toggle report"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the root bubbletea model for the dashboard. It polls the
// session controller for snapshots rather than subscribing, so all
// session state crosses into the render loop as values.
type Model struct {
	controller *session.Controller
	launch     api.LaunchConfig
	logger     *log.Logger
	keys       keyMap
	help       help.Model

	input   textarea.Model
	spinner spinner.Model

	width  int
	height int

	snapshot       session.Snapshot
	renderedReport string
	renderedSource string
	showReport     bool
	notice         string
}

// New constructs the dashboard model around an existing controller. Every
// run started from the dashboard uses the same launch configuration.
func New(controller *session.Controller, launch api.LaunchConfig, logger *log.Logger) *Model {
	input := textarea.New()
	input.Placeholder = "Paste a claim or news text to fact-check..."
	input.CharLimit = 0
	input.SetHeight(4)
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(theme.AmberColor)

	return &Model{
		controller: controller,
		launch:     launch,
		logger:     logger,
		keys:       defaultKeys,
		help:       help.New(),
		input:      input,
		spinner:    spin,
		snapshot:   controller.Snapshot(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, pollCmd())
}

func pollCmd() tea.Cmd {
	return tea.Tick(snapshotPollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m *Model) startCmd(claim string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		defer cancel()
		return startResultMsg{err: m.controller.Start(ctx, claim, m.launch)}
	}
}

func (m *Model) interruptCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return interruptResultMsg{err: m.controller.Interrupt(ctx)}
	}
}

func renderReportCmd(report string, width int) tea.Cmd {
	return func() tea.Msg {
		wrap := width - 4
		if wrap < 40 {
			wrap = 40
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return reportRenderedMsg{source: report, err: err}
		}
		out, err := renderer.Render(report)
		return reportRenderedMsg{source: report, rendered: out, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.help.Width = typed.Width
		m.input.SetWidth(typed.Width - 4)
		return m, nil

	case pollMsg:
		m.snapshot = m.controller.Snapshot()
		cmds := []tea.Cmd{pollCmd()}
		if result := m.snapshot.Result; result != nil && m.renderedSource != result.Report {
			m.renderedSource = result.Report
			m.showReport = true
			cmds = append(cmds, renderReportCmd(result.Report, m.width))
		}
		return m, tea.Batch(cmds...)

	case startResultMsg:
		if typed.err != nil {
			m.notice = typed.err.Error()
		}
		m.snapshot = m.controller.Snapshot()
		return m, nil

	case interruptResultMsg:
		if typed.err != nil {
			m.notice = typed.err.Error()
		}
		m.snapshot = m.controller.Snapshot()
		return m, nil

	case reportRenderedMsg:
		if typed.err != nil {
			m.logger.Warn("report render failed", "error", typed.err)
			m.renderedReport = typed.source
			return m, nil
		}
		m.renderedReport = typed.rendered
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(typed)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	status := m.snapshot.Status

	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	// The textarea owns plain "q" while editing.
	if key.Matches(msg, m.keys.Quit) && status != session.StatusIdle {
		return m, tea.Quit
	}

	switch status {
	case session.StatusIdle:
		if key.Matches(msg, m.keys.Submit) {
			claim := strings.TrimSpace(m.input.Value())
			if claim == "" {
				m.notice = "enter some text to check first"
				return m, nil
			}
			m.notice = ""
			m.showReport = false
			m.renderedReport = ""
			m.renderedSource = ""
			return m, m.startCmd(claim)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case session.StatusRunning, session.StatusInterrupting:
		if key.Matches(msg, m.keys.Interrupt) {
			m.notice = ""
			return m, m.interruptCmd()
		}

	case session.StatusCompleted, session.StatusInterrupted:
		if key.Matches(msg, m.keys.Reset) {
			if err := m.controller.Reset(); err != nil {
				m.notice = err.Error()
				return m, nil
			}
			m.notice = ""
			m.showReport = false
			m.renderedReport = ""
			m.renderedSource = ""
			m.input.Reset()
			m.input.Focus()
			m.snapshot = m.controller.Snapshot()
			return m, textarea.Blink
		}
		if key.Matches(msg, m.keys.Report) && m.snapshot.Result != nil {
			m.showReport = !m.showReport
			return m, nil
		}
	}

	return m, nil
}

func (m *Model) View() string {
	var sections []string
	sections = append(sections, m.renderHeader())

	switch m.snapshot.Status {
	case session.StatusIdle:
		sections = append(sections,
			theme.PanelBorder.Width(max(m.width-2, 30)).Render(m.input.View()))
	default:
		sections = append(sections, m.renderBody())
	}

	if m.notice != "" {
		sections = append(sections, theme.WarningStyle.Render(theme.IconAlert+" "+m.notice))
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	title := theme.PanelTitleStyle.Render("PZL FACT CHECK")
	badge := components.RenderStatusBadge(m.snapshot.Status, components.WithBadgeBold(true))

	parts := []string{title, "  ", badge}
	if m.snapshot.Status.Active() {
		parts = append(parts, "  ", m.spinner.View())
	}
	if m.snapshot.SessionID != "" {
		parts = append(parts, "  ", theme.MutedStyle.Render("session "+m.snapshot.SessionID))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func (m *Model) renderBody() string {
	if m.showReport && m.renderedReport != "" {
		verdict := ""
		if m.snapshot.Result != nil {
			verdict = renderVerdict(m.snapshot.Result.Verdict)
		}
		return lipgloss.JoinVertical(lipgloss.Left, verdict, m.renderedReport)
	}

	height := m.height - 6
	if height < 4 {
		height = 4
	}
	return components.RenderEventLog(components.EventLogConfig{
		Width:      m.width - 2,
		Height:     height,
		Events:     m.snapshot.Events,
		AutoScroll: true,
	})
}

func renderVerdict(verdict event.Verdict) string {
	style := theme.InfoStyle
	switch verdict {
	case event.VerdictTrue, event.VerdictMostlyTrue:
		style = theme.SuccessStyle
	case event.VerdictFalse, event.VerdictMostlyFalse:
		style = theme.ErrorStyle
	case event.VerdictNotEnoughEvidence:
		style = theme.WarningStyle
	}
	return style.Render("VERDICT: " + strings.ToUpper(string(verdict)))
}
