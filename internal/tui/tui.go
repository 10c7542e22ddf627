// Package tui provides a terminal dashboard for the bot using bubbletea:
// a mirror of the LCD, the safety state and latch, pump totals and a
// scrolling event feed.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mechcc/hotchocolabot/internal/events"
)

// Status is a point-in-time view of the machine for the header.
type Status struct {
	State    string
	Latched  bool
	Reason   string
	Failures int
	Milk     time.Duration
	Cocoa    time.Duration
	Sugar    time.Duration
}

// StatusFunc is polled on every tick.
type StatusFunc func() Status

// TUI is the terminal dashboard.
type TUI struct {
	eventChan       <-chan events.Event
	panel           *Panel
	status          StatusFunc
	onEmergencyStop func()
	onReset         func()
	onDispense      func()
	onQuit          func()
}

// Option configures the TUI.
type Option func(*TUI)

// New creates a TUI reading events from eventChan.
func New(eventChan <-chan events.Event, opts ...Option) *TUI {
	t := &TUI{
		eventChan: eventChan,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithPanel sets the LCD panel mirrored in the dashboard.
func WithPanel(p *Panel) Option {
	return func(t *TUI) {
		t.panel = p
	}
}

// WithStatus sets the status provider for the header.
func WithStatus(fn StatusFunc) Option {
	return func(t *TUI) {
		t.status = fn
	}
}

// WithOnEmergencyStop sets the callback invoked when the user presses 'e'.
func WithOnEmergencyStop(fn func()) Option {
	return func(t *TUI) {
		t.onEmergencyStop = fn
	}
}

// WithOnReset sets the callback invoked when the user presses 'r'.
func WithOnReset(fn func()) Option {
	return func(t *TUI) {
		t.onReset = fn
	}
}

// WithOnDispense sets the callback invoked when the user presses 'd'.
func WithOnDispense(fn func()) Option {
	return func(t *TUI) {
		t.onDispense = fn
	}
}

// WithOnQuit sets the callback invoked when the user presses 'q'.
func WithOnQuit(fn func()) Option {
	return func(t *TUI) {
		t.onQuit = fn
	}
}

// Run starts the TUI and blocks until it exits. Without a terminal, or
// in a terminal too small for the layout, events are printed line by line.
func (t *TUI) Run() error {
	if !isTerminal() || terminalTooSmall() {
		return t.runSimple()
	}

	m := newModel(t.eventChan, t.panel, t.status, callbacks{
		emergencyStop: t.onEmergencyStop,
		reset:         t.onReset,
		dispense:      t.onDispense,
		quit:          t.onQuit,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
