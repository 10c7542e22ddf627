package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mechcc/hotchocolabot/internal/events"
)

// styles contains all lipgloss styles used by the TUI.
var styles = struct {
	// Layout styles
	Container lipgloss.Style
	Divider   lipgloss.Style

	// Header styles
	Title   lipgloss.Style
	Stats   lipgloss.Style
	Run     lipgloss.Style
	Spinner lipgloss.Style
	Notice  lipgloss.Style

	// LCD panel
	LCD lipgloss.Style

	// Footer style
	Footer lipgloss.Style

	// Event styles
	Pump     lipgloss.Style
	Dispense lipgloss.Style
	Safety   lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style

	// Safety state colors
	StateIdle    lipgloss.Style
	StateSafe    lipgloss.Style
	StateActive  lipgloss.Style
	StateAnomaly lipgloss.Style
	StateUnsafe  lipgloss.Style
	Latched      lipgloss.Style
}{
	Container: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")),

	Divider: lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")),

	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("173")),

	Stats: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Run: lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")),

	Spinner: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	Notice: lipgloss.NewStyle().
		Italic(true).
		Foreground(lipgloss.Color("220")),

	LCD: lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("28")).
		Foreground(lipgloss.Color("16")).
		Background(lipgloss.Color("113")),

	Footer: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Pump: lipgloss.NewStyle().
		Foreground(lipgloss.Color("250")),

	Dispense: lipgloss.NewStyle().
		Foreground(lipgloss.Color("114")),

	Safety: lipgloss.NewStyle().
		Foreground(lipgloss.Color("177")),

	Error: lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")),

	Muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	StateIdle: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	StateSafe: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("82")),

	StateActive: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")),

	StateAnomaly: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("214")),

	StateUnsafe: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196")),

	Latched: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("231")).
		Background(lipgloss.Color("160")),
}

// StyleForEvent returns the appropriate style for an event type.
func StyleForEvent(event events.Event) lipgloss.Style {
	switch e := event.(type) {
	case *events.PumpStartEvent:
		return styles.Pump
	case *events.PumpEndEvent:
		if e.Error != "" {
			return styles.Error
		}
		return styles.Pump
	case *events.DispenseStartEvent, *events.TemperatureReadEvent:
		return styles.Dispense
	case *events.DispenseEndEvent:
		if !e.Success {
			return styles.Error
		}
		return styles.Dispense
	case *events.EmergencyStopEvent, *events.ErrorEvent:
		return styles.Error
	case *events.PreflightCheckEvent:
		if !e.Passed {
			return styles.Error
		}
		return styles.Safety
	case *events.SafetyStateChangedEvent, *events.EmergencyResetEvent, *events.PreflightCompleteEvent:
		return styles.Safety
	default:
		return styles.Muted
	}
}

// styleForState colors a safety state name.
func styleForState(state string) lipgloss.Style {
	switch state {
	case "safe":
		return styles.StateSafe
	case "operating":
		return styles.StateActive
	case "anomaly":
		return styles.StateAnomaly
	case "unsafe":
		return styles.StateUnsafe
	default:
		return styles.StateIdle
	}
}
