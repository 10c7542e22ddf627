package tui

import (
	"testing"

	"github.com/mechcc/hotchocolabot/internal/events"
)

func TestNew_AppliesOptions(t *testing.T) {
	eventChan := make(chan events.Event)
	panel := NewPanel(2, 16)
	var stop, reset, dispense, quit bool

	tui := New(eventChan,
		WithPanel(panel),
		WithStatus(func() Status { return Status{State: "safe"} }),
		WithOnEmergencyStop(func() { stop = true }),
		WithOnReset(func() { reset = true }),
		WithOnDispense(func() { dispense = true }),
		WithOnQuit(func() { quit = true }),
	)

	if tui.eventChan != eventChan {
		t.Error("eventChan not set")
	}
	if tui.panel != panel {
		t.Error("panel not set")
	}
	if tui.status == nil || tui.status().State != "safe" {
		t.Error("status not set")
	}

	tui.onEmergencyStop()
	tui.onReset()
	tui.onDispense()
	tui.onQuit()
	if !stop || !reset || !dispense || !quit {
		t.Errorf("callbacks: stop=%v reset=%v dispense=%v quit=%v", stop, reset, dispense, quit)
	}
}
