// Package hardware defines the capability interfaces the dispense core
// depends on. Concrete drivers live in subpackages (mock, gpio,
// serialbridge) and are selected at construction time.
package hardware

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/multierr"
)

// Error kinds shared by every driver.
var (
	// ErrSensor is returned when a temperature reading cannot be produced.
	ErrSensor = errors.New("sensor error")
	// ErrHardwareFault wraps pump and display operation failures.
	ErrHardwareFault = errors.New("hardware fault")
	// ErrOutOfBounds is returned by SetCursor for positions outside the display geometry.
	ErrOutOfBounds = errors.New("cursor position out of bounds")
)

// Pump is a timed actuator for a single ingredient.
type Pump interface {
	// Name identifies the pump in logs and events.
	Name() string
	// Dispense runs the pump for d and blocks until it has stopped.
	// Calling Dispense on a running pump logs a warning and returns nil.
	Dispense(ctx context.Context, d time.Duration) error
	// Stop switches the pump off immediately.
	Stop() error
	IsRunning() bool
	// TotalRuntime is monotonically increasing until ResetCounter.
	TotalRuntime() time.Duration
	ResetCounter()
}

// TemperatureSensor reports the product temperature in degrees Celsius.
type TemperatureSensor interface {
	ReadTemperature(ctx context.Context) (float64, error)
	IsHealthy() bool
}

// Display is a small character display.
type Display interface {
	Write(text string) error
	Clear() error
	// SetCursor moves the cursor, failing with ErrOutOfBounds outside the geometry.
	SetCursor(row, col int) error
}

// EmergencyButton is an optional physical stop button.
type EmergencyButton interface {
	Pressed(ctx context.Context) (bool, error)
}

// PowerMonitor is an optional supply voltage probe.
type PowerMonitor interface {
	SupplyVoltage(ctx context.Context) (float64, error)
}

// Checker is implemented by drivers that can probe their own connectivity.
type Checker interface {
	Check(ctx context.Context) error
}

// ShowMessage clears the display and writes text.
func ShowMessage(d Display, text string) error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.Write(text)
}

// Set bundles the hardware handles owned by a dispense controller.
type Set struct {
	Milk    Pump
	Cocoa   Pump
	Sugar   Pump
	Sensor  TemperatureSensor
	Display Display

	// Optional capabilities, nil when the driver has none.
	Button EmergencyButton
	Power  PowerMonitor

	closers []io.Closer
}

// Pumps returns the pumps in dispense order: milk, cocoa, sugar.
func (s *Set) Pumps() []Pump {
	return []Pump{s.Milk, s.Cocoa, s.Sugar}
}

// AddCloser registers a resource released by Close.
func (s *Set) AddCloser(c io.Closer) {
	s.closers = append(s.closers, c)
}

// Close stops every pump and releases registered resources in reverse order.
func (s *Set) Close() error {
	var err error
	for _, p := range s.Pumps() {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.Stop())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close())
	}
	s.closers = nil
	return err
}
