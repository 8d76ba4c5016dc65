package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/puzzle-agent/pzl/internal/session"
	"github.com/puzzle-agent/pzl/internal/tui/theme"
)

// BadgeOpt configures optional rendering behavior for the status badge.
type BadgeOpt func(*badgeOptions)

type badgeOptions struct {
	showIcon bool
	bold     bool
}

type badgeVariant struct {
	icon  string
	label string
	color lipgloss.TerminalColor
}

var statusBadgeVariants = map[session.Status]badgeVariant{
	session.StatusIdle: {
		icon:  theme.IconWaiting,
		label: "IDLE",
		color: theme.BlueColor,
	},
	session.StatusRunning: {
		icon:  theme.IconRunning,
		label: "RUNNING",
		color: theme.AmberColor,
	},
	session.StatusInterrupting: {
		icon:  theme.IconAlert,
		label: "INTERRUPTING",
		color: theme.YellowColor,
	},
	session.StatusInterrupted: {
		icon:  theme.IconStopped,
		label: "INTERRUPTED",
		color: theme.RedColor,
	},
	session.StatusCompleted: {
		icon:  theme.IconDone,
		label: "COMPLETED",
		color: theme.GreenColor,
	},
}

// WithBadgeIcon controls whether the icon is shown (default: true).
func WithBadgeIcon(show bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.showIcon = show
	}
}

// WithBadgeBold controls whether the badge text is bold (default: false).
func WithBadgeBold(bold bool) BadgeOpt {
	return func(options *badgeOptions) {
		options.bold = bold
	}
}

// RenderStatusBadge renders `[icon] LABEL` with semantic color styling
// for a session status.
func RenderStatusBadge(status session.Status, opts ...BadgeOpt) string {
	options := badgeOptions{
		showIcon: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	variant, ok := statusBadgeVariants[status]
	if !ok {
		variant = badgeVariant{
			icon:  theme.IconAlert,
			label: strings.ToUpper(strings.TrimSpace(string(status))),
			color: theme.SlateGrayColor,
		}
		if variant.label == "" {
			variant.label = "UNKNOWN"
		}
	}

	content := variant.label
	if options.showIcon {
		content = variant.icon + " " + variant.label
	}

	return lipgloss.NewStyle().
		Foreground(variant.color).
		Bold(options.bold).
		Render(content)
}
