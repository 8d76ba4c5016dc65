package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/puzzle-agent/pzl/internal/event"
	"github.com/puzzle-agent/pzl/internal/tui/theme"
)

const (
	eventLogMinWidth          = 24
	eventLogDefaultMaxEntries = 200
)

// EventLogConfig contains render-time settings for the event log panel.
type EventLogConfig struct {
	Width      int
	Height     int
	Events     []event.Event
	MaxEntries int
	AutoScroll bool
}

// BuildEventLogViewport constructs a viewport model for the run's event feed.
func BuildEventLogViewport(config EventLogConfig) viewport.Model {
	viewWidth := config.Width
	if viewWidth < eventLogMinWidth {
		viewWidth = eventLogMinWidth
	}
	viewHeight := config.Height
	if viewHeight < 2 {
		viewHeight = 2
	}

	lines := formatEventLines(config.Events, config.MaxEntries)
	if len(lines) == 0 {
		lines = []string{theme.MutedStyle.Faint(true).Render("No events yet")}
	}

	model := viewport.New(viewWidth, viewHeight)
	model.SetContent(strings.Join(lines, "\n"))
	if config.AutoScroll {
		model.GotoBottom()
	}
	return model
}

// RenderEventLog renders a scrollable event feed string.
func RenderEventLog(config EventLogConfig) string {
	return BuildEventLogViewport(config).View()
}

func formatEventLines(events []event.Event, maxEntries int) []string {
	lines := make([]string, 0, len(events))
	for _, evt := range events {
		lines = append(lines, renderEventRow(evt))
	}

	limit := maxEntries
	if limit <= 0 {
		limit = eventLogDefaultMaxEntries
	}
	if len(lines) > limit {
		lines = append([]string(nil), lines[len(lines)-limit:]...)
	}
	return lines
}

func renderEventRow(evt event.Event) string {
	timestamp := "--:--:--"
	if !evt.ReceivedAt.IsZero() {
		timestamp = evt.ReceivedAt.Format("15:04:05")
	}

	label := KindLabel(evt.Kind)
	message := strings.TrimSpace(evt.Message())

	labelStyle := kindStyle(evt.Kind)
	parts := []string{
		theme.MutedStyle.Render(timestamp),
		" ",
		labelStyle.Render(label),
	}
	if message != "" {
		parts = append(parts, " ", lipgloss.NewStyle().Foreground(theme.OffWhiteColor).Render(message))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func kindStyle(kind event.Kind) lipgloss.Style {
	switch kind {
	case event.KindError:
		return theme.ErrorStyle
	case event.KindTaskInterrupted:
		return theme.WarningStyle
	case event.KindTaskComplete, event.KindReportEnd:
		return theme.SuccessStyle
	case event.KindLLMDecision, event.KindToolStart, event.KindToolEnd:
		return theme.InfoStyle
	default:
		return theme.StageStyle
	}
}

var kindLabels = map[event.Kind]string{
	event.KindAgentStart:                "Agent started",
	event.KindCheckIfNewsTextStart:      "Checking input is news text",
	event.KindCheckIfNewsTextEnd:        "Input check finished",
	event.KindExtractBasicMetadataStart: "Extracting metadata",
	event.KindExtractBasicMetadataEnd:   "Metadata extracted",
	event.KindExtractKnowledgeStart:     "Extracting knowledge",
	event.KindExtractKnowledgeEnd:       "Knowledge extracted",
	event.KindRetrieveKnowledgeStart:    "Retrieving knowledge",
	event.KindRetrieveKnowledgeEnd:      "Knowledge retrieved",
	event.KindExtractCheckPointStart:    "Extracting check points",
	event.KindExtractCheckPointEnd:      "Check points extracted",
	event.KindSearchAgentStart:          "Search agent started",
	event.KindEvaluateStatusStart:       "Evaluating progress",
	event.KindEvaluateStatusEnd:         "Progress evaluated",
	event.KindGenerateAnswerStart:       "Generating answer",
	event.KindGenerateAnswerEnd:         "Answer generated",
	event.KindEvaluateSearchResultStart: "Evaluating search results",
	event.KindEvaluateSearchResultEnd:   "Search results evaluated",
	event.KindLLMDecision:               "Model decision",
	event.KindToolStart:                 "Tool call started",
	event.KindToolEnd:                   "Tool call finished",
	event.KindReportStart:               "Writing report",
	event.KindReportEnd:                 "Report ready",
	event.KindTaskComplete:              "Task complete",
	event.KindTaskInterrupted:           "Task interrupted",
	event.KindError:                     "Error",
	event.KindHeartbeat:                 "Heartbeat",
}

// KindLabel returns the human-readable label for an event kind.
func KindLabel(kind event.Kind) string {
	if label, ok := kindLabels[kind]; ok {
		return label
	}
	return fmt.Sprintf("event %s", string(kind))
}
