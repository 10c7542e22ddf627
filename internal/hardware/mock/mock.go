// Package mock provides in-memory hardware doubles for development and tests.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	return hardware.Sleep(ctx, d)
}

// NoSleep returns immediately unless ctx is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Pump is a mock pump. Runtime accrues by the commanded duration so tests
// can run with NoSleep and still observe realistic counters.
type Pump struct {
	name   string
	logger *slog.Logger
	sleep  SleepFunc

	mu       sync.Mutex
	running  bool
	total    time.Duration
	calls    []time.Duration
	failNext error
	stopErr  error
	checkErr error
}

// PumpOption configures a mock Pump.
type PumpOption func(*Pump)

// WithSleep replaces the sleep used while dispensing.
func WithSleep(fn SleepFunc) PumpOption {
	return func(p *Pump) {
		p.sleep = fn
	}
}

// WithLogger sets the pump logger.
func WithLogger(logger *slog.Logger) PumpOption {
	return func(p *Pump) {
		p.logger = logger
	}
}

// NewPump creates a mock pump.
func NewPump(name string, opts ...PumpOption) *Pump {
	p := &Pump{name: name, sleep: Sleep}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Name implements hardware.Pump.
func (p *Pump) Name() string { return p.name }

// Dispense implements hardware.Pump.
func (p *Pump) Dispense(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("pump already running", "pump", p.name)
		return nil
	}
	if err := p.failNext; err != nil {
		p.failNext = nil
		p.mu.Unlock()
		return fmt.Errorf("%w: %s pump: %w", hardware.ErrHardwareFault, p.name, err)
	}
	p.running = true
	p.calls = append(p.calls, d)
	p.mu.Unlock()

	p.logger.Info("[MOCK] pump dispensing", "pump", p.name, "duration_ms", d.Milliseconds())

	err := p.sleep(ctx, d)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if err != nil {
		return err
	}
	p.total += d
	return nil
}

// Stop implements hardware.Pump.
func (p *Pump) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return p.stopErr
}

// IsRunning implements hardware.Pump.
func (p *Pump) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// TotalRuntime implements hardware.Pump.
func (p *Pump) TotalRuntime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// ResetCounter implements hardware.Pump.
func (p *Pump) ResetCounter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("[MOCK] pump counter reset", "pump", p.name, "was_ms", p.total.Milliseconds())
	p.total = 0
}

// Calls returns the durations passed to Dispense, in order.
func (p *Pump) Calls() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.calls...)
}

// FailNext makes the next Dispense return err wrapped as a hardware fault.
func (p *Pump) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// SetStopError makes Stop return err.
func (p *Pump) SetStopError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopErr = err
}

// Check implements hardware.Checker.
func (p *Pump) Check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkErr != nil {
		return p.checkErr
	}
	if p.running {
		return fmt.Errorf("%s pump is running", p.name)
	}
	return nil
}

// SetCheckError makes Check fail with err until cleared with nil.
func (p *Pump) SetCheckError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkErr = err
}

// Sensor is a mock temperature source. It implements both
// hardware.TemperatureSensor and hardware.RawSensor.
type Sensor struct {
	mu        sync.Mutex
	temp      float64
	err       error
	failEvery int
	reads     int
}

// NewSensor creates a sensor reporting temp.
func NewSensor(temp float64) *Sensor {
	return &Sensor{temp: temp}
}

// SetTemperature changes the reported temperature.
func (s *Sensor) SetTemperature(temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp = temp
}

// SetError makes every read fail with err until cleared with nil.
func (s *Sensor) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FailEvery makes every nth read fail. Zero disables injection.
func (s *Sensor) FailEvery(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEvery = n
}

// ReadTemperature implements hardware.TemperatureSensor.
func (s *Sensor) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return 0, s.err
	}
	if s.failEvery > 0 && s.reads%s.failEvery == 0 {
		return 0, fmt.Errorf("injected read failure %d", s.reads)
	}
	return s.temp, nil
}

// ReadRaw implements hardware.RawSensor.
func (s *Sensor) ReadRaw(ctx context.Context) (float64, error) {
	return s.ReadTemperature(ctx)
}

// IsHealthy implements hardware.TemperatureSensor.
func (s *Sensor) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err == nil
}

// Reads returns the number of read attempts.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Display is a mock character display.
type Display struct {
	logger *slog.Logger

	mu       sync.Mutex
	screen   *hardware.Screen
	messages []string
	err      error
}

// NewDisplay creates a mock display with the given geometry.
func NewDisplay(rows, cols int, logger *slog.Logger) *Display {
	if logger == nil {
		logger = slog.Default()
	}
	return &Display{logger: logger, screen: hardware.NewScreen(rows, cols)}
}

// Write implements hardware.Display.
func (d *Display) Write(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return fmt.Errorf("%w: display: %w", hardware.ErrHardwareFault, d.err)
	}
	d.screen.Write(text)
	d.messages = append(d.messages, text)
	d.logger.Debug("[MOCK] display write", "text", text)
	return nil
}

// Clear implements hardware.Display.
func (d *Display) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return fmt.Errorf("%w: display: %w", hardware.ErrHardwareFault, d.err)
	}
	d.screen.Clear()
	return nil
}

// SetCursor implements hardware.Display.
func (d *Display) SetCursor(row, col int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen.SetCursor(row, col)
}

// Text returns what is currently visible.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen.Text()
}

// Messages returns every string passed to Write.
func (d *Display) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

// SetError makes Write and Clear fail with err until cleared with nil.
func (d *Display) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Button is a mock emergency stop button.
type Button struct {
	pressed atomic.Bool
}

// NewButton creates a released button.
func NewButton() *Button {
	return &Button{}
}

// Press simulates pressing the button.
func (b *Button) Press() { b.pressed.Store(true) }

// Release simulates releasing the button.
func (b *Button) Release() { b.pressed.Store(false) }

// Pressed implements hardware.EmergencyButton.
func (b *Button) Pressed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.pressed.Load(), nil
}

// PowerSupply is a mock supply voltage probe.
type PowerSupply struct {
	mu      sync.Mutex
	voltage float64
	err     error
}

// NewPowerSupply creates a probe reporting volts.
func NewPowerSupply(volts float64) *PowerSupply {
	return &PowerSupply{voltage: volts}
}

// Set changes the reported voltage and error.
func (p *PowerSupply) Set(volts float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voltage = volts
	p.err = err
}

// SupplyVoltage implements hardware.PowerMonitor.
func (p *PowerSupply) SupplyVoltage(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voltage, p.err
}

// Compile-time interface satisfaction checks.
var (
	_ hardware.Pump              = (*Pump)(nil)
	_ hardware.Checker           = (*Pump)(nil)
	_ hardware.TemperatureSensor = (*Sensor)(nil)
	_ hardware.RawSensor         = (*Sensor)(nil)
	_ hardware.Display           = (*Display)(nil)
	_ hardware.EmergencyButton   = (*Button)(nil)
	_ hardware.PowerMonitor      = (*PowerSupply)(nil)
)

// NewSet builds a complete mock hardware set at temp degrees with instant pumps
// when sleep is NoSleep. It is intended for tests and development.
func NewSet(temp float64, sleep SleepFunc, logger *slog.Logger) (*hardware.Set, *Fixture) {
	f := &Fixture{
		Milk:    NewPump("Milk", WithSleep(sleep), WithLogger(logger)),
		Cocoa:   NewPump("Cocoa", WithSleep(sleep), WithLogger(logger)),
		Sugar:   NewPump("Sugar", WithSleep(sleep), WithLogger(logger)),
		Sensor:  NewSensor(temp),
		Display: NewDisplay(hardware.DefaultRows, hardware.DefaultCols, logger),
		Button:  NewButton(),
		Power:   NewPowerSupply(5.0),
	}
	return f.Set(), f
}

// Fixture exposes the concrete mocks behind a hardware.Set.
type Fixture struct {
	Milk, Cocoa, Sugar *Pump
	Sensor             *Sensor
	Display            *Display
	Button             *Button
	Power              *PowerSupply
}

// Set returns a hardware.Set over the fixture's devices.
func (f *Fixture) Set() *hardware.Set {
	return &hardware.Set{
		Milk:    f.Milk,
		Cocoa:   f.Cocoa,
		Sugar:   f.Sugar,
		Sensor:  f.Sensor,
		Display: f.Display,
		Button:  f.Button,
		Power:   f.Power,
	}
}
