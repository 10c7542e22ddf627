package tui

import (
	"sync"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// Panel is an on-screen character LCD. It implements hardware.Display so
// the dispense controller can write to it directly, alone or alongside a
// physical display through hardware.TeeDisplay.
type Panel struct {
	mu      sync.Mutex
	screen  *hardware.Screen
	version uint64
}

// NewPanel returns a blank panel with the given geometry.
func NewPanel(rows, cols int) *Panel {
	return &Panel{screen: hardware.NewScreen(rows, cols)}
}

// Write implements hardware.Display.
func (p *Panel) Write(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screen.Write(text)
	p.version++
	return nil
}

// Clear implements hardware.Display.
func (p *Panel) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screen.Clear()
	p.version++
	return nil
}

// SetCursor implements hardware.Display.
func (p *Panel) SetCursor(row, col int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screen.SetCursor(row, col)
}

// Snapshot returns the rows, the panel width and a version
// that changes whenever the content does.
func (p *Panel) Snapshot() (lines []string, cols int, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screen.Lines(), p.screen.Cols(), p.version
}

var _ hardware.Display = (*Panel)(nil)
