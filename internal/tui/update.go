package tui

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mechcc/hotchocolabot/internal/events"
)

const (
	// maxEventLines is the maximum number of event lines to keep in the buffer.
	maxEventLines = 1000
	// trimEventLines is the number of lines to remove when buffer exceeds max.
	trimEventLines = 100
	// tickInterval is how often the status and panel are refreshed.
	tickInterval = 250 * time.Millisecond
)

// channelClosedMsg signals that the event channel was closed.
type channelClosedMsg struct{}

// tickMsg signals a periodic refresh.
type tickMsg time.Time

// waitForEvent creates a command that waits for the next event from the channel.
// Returns channelClosedMsg if the channel is closed.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return eventMsg(event)
	}
}

func doTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case eventMsg:
		m.handleEvent(events.Event(msg))
		return m, waitForEvent(m.eventChan)

	case channelClosedMsg:
		slog.Info("event channel closed, exiting TUI")
		return m, tea.Quit

	case tickMsg:
		m.refreshStatus()
		return m, doTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKey processes keyboard input.
func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.cb.quit != nil {
			m.cb.quit()
		}
		return m, tea.Quit

	case "e":
		if m.cb.emergencyStop != nil {
			m.cb.emergencyStop()
		}
		m.notice = "emergency stop requested"
		m.refreshStatus()
		return m, nil

	case "r":
		if m.cb.reset != nil {
			m.cb.reset()
		}
		m.notice = "reset requested"
		m.refreshStatus()
		return m, nil

	case "d":
		if m.current != nil {
			m.notice = "dispense already in progress"
			return m, nil
		}
		if m.cb.dispense != nil {
			m.cb.dispense()
		}
		m.notice = "dispense requested"
		return m, nil

	case "up", "k":
		m.autoScroll = false
		if m.scrollPos > 0 {
			m.scrollPos--
		}
		return m, nil

	case "down", "j":
		maxScroll := len(m.eventLines) - m.visibleLines()
		if m.scrollPos < maxScroll {
			m.scrollPos++
		}
		if m.scrollPos >= maxScroll {
			m.autoScroll = true
		}
		return m, nil

	case "home", "g":
		m.autoScroll = false
		m.scrollPos = 0
		return m, nil

	case "end", "G":
		m.autoScroll = true
		m.scrollPos = max(0, len(m.eventLines)-m.visibleLines())
		return m, nil
	}
	return m, nil
}

// handleEvent processes an event and updates model state.
func (m *model) handleEvent(event events.Event) {
	switch e := event.(type) {
	case *events.SafetyStateChangedEvent:
		m.status.State = e.To

	case *events.EmergencyStopEvent:
		m.status.Latched = true
		if !e.AlreadyActive {
			m.status.Reason = e.Reason
			m.stats.Stops++
		}

	case *events.EmergencyResetEvent:
		if e.Accepted {
			m.status.Latched = false
			m.status.Reason = ""
		}
		m.status.Failures = e.ConsecutiveFailures

	case *events.DispenseStartEvent:
		m.current = &runInfo{ID: e.RunID.String(), StartTime: event.Timestamp()}
		m.notice = ""

	case *events.TemperatureReadEvent:
		m.temperature = e.Celsius
		m.haveTemp = true

	case *events.PumpStartEvent:
		if m.current != nil {
			m.current.Step = e.Ingredient
		}

	case *events.DispenseEndEvent:
		m.current = nil
		if e.Success {
			m.stats.Completed++
		} else {
			m.stats.Failed++
		}
	}

	text := events.Format(event)
	if text == "" {
		return
	}
	m.eventLines = append(m.eventLines, eventLine{
		Time:  event.Timestamp(),
		Text:  text,
		Style: StyleForEvent(event),
	})

	if len(m.eventLines) > maxEventLines {
		m.eventLines = m.eventLines[trimEventLines:]
		m.scrollPos = max(0, m.scrollPos-trimEventLines)
	}

	if m.autoScroll {
		maxScroll := len(m.eventLines) - m.visibleLines()
		if maxScroll > 0 {
			m.scrollPos = maxScroll
		}
	}
}

// refreshStatus pulls the authoritative status. Events may lag it.
func (m *model) refreshStatus() {
	if m.statusFn == nil {
		return
	}
	m.status = m.statusFn()
}
