package serialbridge

import (
	"strings"
	"sync"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// Display is the LCD attached to the bridge.
type Display struct {
	bridge *Bridge

	mu     sync.Mutex
	screen *hardware.Screen
}

// Display returns the bridge LCD with the given geometry.
func (b *Bridge) Display(rows, cols int) *Display {
	return &Display{bridge: b, screen: hardware.NewScreen(rows, cols)}
}

// Write sends text a row at a time, clipped to the display width.
func (d *Display) Write(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row, col := d.screen.Cursor()
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			row++
			col = 0
			if row >= d.screen.Rows() {
				break
			}
			if err := d.bridge.command("LCD POS %d,%d", row, col); err != nil {
				return err
			}
		}
		if row >= d.screen.Rows() {
			break
		}
		visible := clip(line, d.screen.Cols()-col)
		if visible == "" {
			continue
		}
		if err := d.bridge.command("LCD TXT %s", visible); err != nil {
			return err
		}
		col += len(visible)
	}
	d.screen.Write(text)
	return nil
}

// Clear blanks the LCD.
func (d *Display) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bridge.command("LCD CLR"); err != nil {
		return err
	}
	d.screen.Clear()
	return nil
}

// SetCursor moves the LCD cursor.
func (d *Display) SetCursor(row, col int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.screen.SetCursor(row, col); err != nil {
		return err
	}
	return d.bridge.command("LCD POS %d,%d", row, col)
}

// Text returns what the LCD should be showing.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen.Text()
}

// clip keeps at most n printable ASCII characters; anything else shows as '?'.
func clip(s string, n int) string {
	var sb strings.Builder
	for _, r := range s {
		if sb.Len() >= n {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var _ hardware.Display = (*Display)(nil)
