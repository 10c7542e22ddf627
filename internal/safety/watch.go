package safety

import (
	"context"
	"time"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// DefaultPollInterval is used by WatchButton when interval is not positive.
const DefaultPollInterval = 50 * time.Millisecond

// unreadableAfter is how many consecutive failed button reads latch the stop.
const unreadableAfter = 3

// WatchButton polls button until ctx is done and triggers the emergency stop
// on each press edge. A button that cannot be read unreadableAfter times in
// a row is treated as pressed.
func WatchButton(ctx context.Context, button hardware.EmergencyButton, m *Monitor, interval time.Duration) {
	if button == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		wasPressed bool
		readErrors int
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pressed, err := button.Pressed(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			readErrors++
			m.logger.Warn("emergency stop button read failed", "error", err, "consecutive", readErrors)
			if readErrors == unreadableAfter {
				m.TriggerEmergencyStop("emergency stop button unreadable")
			}
			continue
		}
		readErrors = 0

		if pressed && !wasPressed {
			m.TriggerEmergencyStop("emergency stop button pressed")
		}
		wasPressed = pressed
	}
}
