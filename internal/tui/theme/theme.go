// Package theme holds the terminal color palette and shared styles for
// the pzl dashboard.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	// Amber is the primary active accent color.
	Amber = "#FFAA33"
	// Blue is the informational blue.
	Blue = "#7FA8D9"
	// Teal is the stage-progress accent.
	Teal = "#4FC9B0"
	// Red is the high-severity red.
	Red = "#FF4444"
	// Yellow is the caution yellow.
	Yellow = "#FFCC00"
	// Green is the success green.
	Green = "#3FE07A"
	// SlateGray is the muted neutral.
	SlateGray = "#5A5A72"
	// OffWhite is the primary text color.
	OffWhite = "#F2F3F7"
	// LightGray is the secondary text color.
	LightGray = "#C8C8C8"
	// Violet is the focus ring color.
	Violet = "#9966FF"
)

const (
	// IconDone indicates a finished stage.
	IconDone = "✓"
	// IconRunning indicates an active stage.
	IconRunning = "▸"
	// IconWaiting indicates an idle session.
	IconWaiting = "⏸"
	// IconFailed indicates a failed run.
	IconFailed = "✗"
	// IconAlert indicates a warning.
	IconAlert = "⚠"
	// IconStopped indicates an interrupted run.
	IconStopped = "◼"
)

var (
	// AmberColor is the profile-aware terminal color for Amber.
	AmberColor = paletteColor(Amber, "214", "11")
	// BlueColor is the profile-aware terminal color for Blue.
	BlueColor = paletteColor(Blue, "110", "12")
	// TealColor is the profile-aware terminal color for Teal.
	TealColor = paletteColor(Teal, "43", "14")
	// RedColor is the profile-aware terminal color for Red.
	RedColor = paletteColor(Red, "203", "9")
	// YellowColor is the profile-aware terminal color for Yellow.
	YellowColor = paletteColor(Yellow, "220", "11")
	// GreenColor is the profile-aware terminal color for Green.
	GreenColor = paletteColor(Green, "78", "10")
	// SlateGrayColor is the profile-aware terminal color for SlateGray.
	SlateGrayColor = paletteColor(SlateGray, "60", "8")
	// OffWhiteColor is the profile-aware terminal color for OffWhite.
	OffWhiteColor = paletteColor(OffWhite, "255", "15")
	// LightGrayColor is the profile-aware terminal color for LightGray.
	LightGrayColor = paletteColor(LightGray, "252", "7")
	// VioletColor is the profile-aware terminal color for Violet.
	VioletColor = paletteColor(Violet, "99", "5")
)

var (
	// ActiveStyle marks currently active interface elements.
	ActiveStyle = lipgloss.NewStyle().Foreground(AmberColor).Bold(true)
	// SuccessStyle marks successful/completed states.
	SuccessStyle = lipgloss.NewStyle().Foreground(GreenColor).Bold(true)
	// ErrorStyle marks error/failure states.
	ErrorStyle = lipgloss.NewStyle().Foreground(RedColor).Bold(true)
	// WarningStyle marks warning/caution states.
	WarningStyle = lipgloss.NewStyle().Foreground(YellowColor).Bold(true)
	// InfoStyle marks informational states.
	InfoStyle = lipgloss.NewStyle().Foreground(BlueColor)
	// StageStyle marks pipeline stage progress lines.
	StageStyle = lipgloss.NewStyle().Foreground(TealColor)
	// MutedStyle marks secondary text.
	MutedStyle = lipgloss.NewStyle().Foreground(SlateGrayColor)
)

var (
	// PanelBorder is the default panel border style.
	PanelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SlateGrayColor)

	// PanelBorderFocused is the focused panel border style.
	PanelBorderFocused = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(VioletColor).
				Bold(true)

	// PanelTitleStyle is the panel-title style helper.
	PanelTitleStyle = lipgloss.NewStyle().Foreground(AmberColor).Bold(true)
)

var colorProfileFn = lipgloss.ColorProfile

func paletteColor(hex string, ansi256 string, ansi string) lipgloss.TerminalColor {
	switch colorProfileFn() {
	case termenv.TrueColor:
		return lipgloss.AdaptiveColor{Light: hex, Dark: hex}
	case termenv.ANSI256, termenv.ANSI:
		return lipgloss.CompleteAdaptiveColor{
			Light: lipgloss.CompleteColor{
				TrueColor: hex,
				ANSI256:   ansi256,
				ANSI:      ansi,
			},
			Dark: lipgloss.CompleteColor{
				TrueColor: hex,
				ANSI256:   ansi256,
				ANSI:      ansi,
			},
		}
	default:
		return lipgloss.AdaptiveColor{Light: hex, Dark: hex}
	}
}
