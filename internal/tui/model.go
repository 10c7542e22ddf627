package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mechcc/hotchocolabot/internal/events"
)

// eventLine represents a formatted event for display.
type eventLine struct {
	Time  time.Time
	Text  string
	Style lipgloss.Style
}

// runInfo tracks the dispense in progress.
type runInfo struct {
	ID        string
	Step      string
	StartTime time.Time
}

// modelStats holds counts accumulated from events.
type modelStats struct {
	Completed int
	Failed    int
	Stops     int
}

type callbacks struct {
	emergencyStop func()
	reset         func()
	dispense      func()
	quit          func()
}

// model is the bubbletea model for the TUI.
type model struct {
	eventChan <-chan events.Event
	panel     *Panel
	statusFn  StatusFunc
	cb        callbacks

	status      Status
	current     *runInfo
	stats       modelStats
	temperature float64
	haveTemp    bool
	notice      string

	eventLines []eventLine

	spinner    spinner.Model
	width      int
	height     int
	scrollPos  int
	autoScroll bool
}

// eventMsg wraps an event for the bubbletea message system.
type eventMsg events.Event

func newModel(eventChan <-chan events.Event, panel *Panel, statusFn StatusFunc, cb callbacks) model {
	m := model{
		eventChan:  eventChan,
		panel:      panel,
		statusFn:   statusFn,
		cb:         cb,
		autoScroll: true,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Spinner)),
	}
	if statusFn != nil {
		m.status = statusFn()
	}
	return m
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.eventChan),
		doTick(),
		m.spinner.Tick,
	)
}

// visibleLines returns the number of event lines that fit in the viewport.
func (m model) visibleLines() int {
	// Height minus border (2), header (3), panel (rows + 2), dividers (2), footer (1)
	return max(1, m.height-8-m.panelHeight())
}

func (m model) panelHeight() int {
	if m.panel == nil {
		return 0
	}
	lines, _, _ := m.panel.Snapshot()
	return len(lines) + 2
}
