package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mechcc/hotchocolabot/internal/events"
)

const (
	minWidth  = 60
	minHeight = 18
)

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.width < minWidth || m.height < minHeight {
		return m.renderTooSmall()
	}

	w := safeWidth(m.width - 4) // Account for container borders

	sections := []string{m.renderHeader(w)}
	if m.panel != nil {
		sections = append(sections, m.renderPanel(w))
	}
	sections = append(sections,
		m.renderDivider(w),
		m.renderEvents(w),
		m.renderDivider(w),
		m.renderFooter(),
	)

	rendered := styles.Container.
		Width(safeWidth(m.width - 2)).
		Render(strings.Join(sections, "\n"))

	return lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, rendered)
}

// renderTooSmall renders a minimal message for terminals that are too small.
func (m model) renderTooSmall() string {
	return fmt.Sprintf("Terminal too small (%dx%d). Need %dx%d minimum.",
		m.width, m.height, minWidth, minHeight)
}

// renderHeader renders the title and state line, the run line and the stats line.
func (m model) renderHeader(w int) string {
	title := styles.Title.Render("HOTCHOCOLABOT")
	state := m.renderState()
	titleLine := spread(w, title, state)

	var runLine string
	if m.current != nil {
		text := "dispensing " + events.ShortID(m.current.ID)
		if m.current.Step != "" {
			text += " - " + strings.ToLower(m.current.Step)
		}
		if !m.current.StartTime.IsZero() {
			text += fmt.Sprintf(" (%s)", time.Since(m.current.StartTime).Round(100*time.Millisecond))
		}
		runLine = m.spinner.View() + " " + styles.Run.Render(text)
	} else {
		runLine = styles.Run.Render("idle")
	}
	if m.haveTemp {
		runLine = spread(w, runLine, styles.Stats.Render(fmt.Sprintf("%.1fC", m.temperature)))
	}

	pumps := styles.Stats.Render(fmt.Sprintf("milk %s  cocoa %s  sugar %s",
		seconds(m.status.Milk), seconds(m.status.Cocoa), seconds(m.status.Sugar)))
	counts := styles.Stats.Render(fmt.Sprintf("done: %d  failed: %d  resets: %d",
		m.stats.Completed, m.stats.Failed, m.status.Failures))
	statsLine := spread(w, pumps, counts)

	return strings.Join([]string{titleLine, runLine, statsLine}, "\n")
}

// renderState renders the safety state and, when set, the latch banner.
func (m model) renderState() string {
	name := m.status.State
	if name == "" {
		name = "uninitialized"
	}
	state := styleForState(name).Render(strings.ToUpper(name))
	if !m.status.Latched {
		return state
	}
	banner := " E-STOP "
	if m.status.Reason != "" {
		banner = " E-STOP: " + events.Truncate(m.status.Reason, 30) + " "
	}
	return styles.Latched.Render(banner) + " " + state
}

// renderPanel draws the LCD mirror at its native width.
func (m model) renderPanel(w int) string {
	lines, cols, _ := m.panel.Snapshot()
	for i, l := range lines {
		lines[i] = l + strings.Repeat(" ", max(0, cols-len([]rune(l))))
	}
	box := styles.LCD.Render(strings.Join(lines, "\n"))
	return lipgloss.PlaceHorizontal(w, lipgloss.Center, box)
}

func (m model) renderDivider(w int) string {
	return styles.Divider.Render(strings.Repeat("─", w))
}

// renderEvents renders the scrollable event feed.
func (m model) renderEvents(w int) string {
	visible := m.visibleLines()

	if len(m.eventLines) == 0 {
		placeholder := "Waiting for events..."
		padding := strings.Repeat("\n", visible/2)
		body := padding + lipgloss.PlaceHorizontal(w, lipgloss.Center, placeholder)
		for strings.Count(body, "\n") < visible-1 {
			body += "\n"
		}
		return body
	}

	scrollPos := safeScroll(m.scrollPos, len(m.eventLines), visible)
	endPos := min(scrollPos+visible, len(m.eventLines))

	lines := make([]string, 0, visible)
	for _, el := range m.eventLines[scrollPos:endPos] {
		lines = append(lines, m.renderEventLine(el, w))
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderEventLine renders a single event with timestamp and styling.
func (m model) renderEventLine(el eventLine, maxWidth int) string {
	prefix := el.Time.Format("15:04:05") + " "
	textWidth := max(10, maxWidth-len(prefix))
	return styles.Muted.Render(prefix) + el.Style.Render(events.Truncate(el.Text, textWidth))
}

// renderFooter renders keyboard shortcuts, or the last notice.
func (m model) renderFooter() string {
	help := "d: dispense  e: e-stop  q: quit  ↑/↓: scroll"
	if m.status.Latched {
		help = "r: reset  q: quit  ↑/↓: scroll"
	}
	if m.notice != "" {
		return styles.Notice.Render(m.notice) + "  " + styles.Footer.Render(help)
	}
	return styles.Footer.Render(help)
}

// spread places left and right at either end of a line of width w.
func spread(w int, left, right string) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		left,
		strings.Repeat(" ", max(1, w-lipgloss.Width(left)-lipgloss.Width(right))),
		right,
	)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// safeWidth returns a width that is at least 1 to prevent negative values.
func safeWidth(w int) int {
	if w < 1 {
		return 1
	}
	return w
}

// safeScroll clamps scroll position to valid bounds.
func safeScroll(pos, totalLines, visibleLines int) int {
	if pos < 0 {
		return 0
	}
	maxScroll := totalLines - visibleLines
	if maxScroll < 0 {
		return 0
	}
	if pos > maxScroll {
		return maxScroll
	}
	return pos
}
