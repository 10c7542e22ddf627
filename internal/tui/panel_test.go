package tui

import (
	"errors"
	"testing"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

func TestPanel_ImplementsDisplay(t *testing.T) {
	p := NewPanel(2, 16)

	if err := hardware.ShowMessage(p, "Temp: 62.0C\nPreparing..."); err != nil {
		t.Fatalf("ShowMessage: %v", err)
	}

	lines, cols, version := p.Snapshot()
	if cols != 16 {
		t.Errorf("cols = %d, want 16", cols)
	}
	if lines[0] != "Temp: 62.0C" || lines[1] != "Preparing..." {
		t.Errorf("lines = %q", lines)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2 (clear + write)", version)
	}
}

func TestPanel_SetCursorBounds(t *testing.T) {
	p := NewPanel(2, 16)

	if err := p.SetCursor(1, 15); err != nil {
		t.Fatalf("SetCursor(1, 15): %v", err)
	}
	if err := p.SetCursor(2, 0); !errors.Is(err, hardware.ErrOutOfBounds) {
		t.Errorf("SetCursor(2, 0) = %v, want ErrOutOfBounds", err)
	}
}

func TestPanel_TeeWithPhysicalDisplay(t *testing.T) {
	p := NewPanel(2, 16)
	other := NewPanel(2, 16)
	d := hardware.TeeDisplay(other, p)

	if err := hardware.ShowMessage(d, "Complete!\nEnjoy!"); err != nil {
		t.Fatalf("ShowMessage: %v", err)
	}
	lines, _, _ := p.Snapshot()
	if lines[0] != "Complete!" || lines[1] != "Enjoy!" {
		t.Errorf("lines = %q", lines)
	}
}
