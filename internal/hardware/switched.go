package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Switch is a single on/off output such as a relay pin.
type Switch interface {
	SetOn(on bool) error
}

// SwitchFunc adapts a function to Switch.
type SwitchFunc func(on bool) error

// SetOn calls f.
func (f SwitchFunc) SetOn(on bool) error {
	return f(on)
}

// SwitchedPump is a pump driven by a relay: on, wait, off. Runtime is the
// measured time the switch was on.
type SwitchedPump struct {
	name   string
	sw     Switch
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time

	mu      sync.Mutex
	running bool
	total   time.Duration
}

// SwitchedPumpOption configures a SwitchedPump.
type SwitchedPumpOption func(*SwitchedPump)

// WithPumpLogger sets the pump's logger.
func WithPumpLogger(logger *slog.Logger) SwitchedPumpOption {
	return func(p *SwitchedPump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPumpClock replaces the wait and clock, for tests.
func WithPumpClock(sleep func(ctx context.Context, d time.Duration) error, now func() time.Time) SwitchedPumpOption {
	return func(p *SwitchedPump) {
		if sleep != nil {
			p.sleep = sleep
		}
		if now != nil {
			p.now = now
		}
	}
}

// NewSwitchedPump creates a pump named name on sw. The switch is driven off.
func NewSwitchedPump(name string, sw Switch, opts ...SwitchedPumpOption) (*SwitchedPump, error) {
	p := &SwitchedPump{
		name:   name,
		sw:     sw,
		logger: slog.Default(),
		sleep:  Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := sw.SetOn(false); err != nil {
		return nil, fmt.Errorf("%w: init %s pump: %w", ErrHardwareFault, name, err)
	}
	return p, nil
}

// Name implements Pump.
func (p *SwitchedPump) Name() string { return p.name }

// Dispense implements Pump. If ctx ends early the pump is switched off and
// ctx.Err() is returned; the partial runtime still counts.
func (p *SwitchedPump) Dispense(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("pump already running", "pump", p.name)
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("pump on", "pump", p.name, "duration_ms", d.Milliseconds())
	if err := p.sw.SetOn(true); err != nil {
		p.setStopped(0)
		return fmt.Errorf("%w: %s pump on: %w", ErrHardwareFault, p.name, err)
	}
	start := p.now()

	waitErr := p.sleep(ctx, d)

	offErr := p.sw.SetOn(false)
	p.setStopped(p.now().Sub(start))
	p.logger.Info("pump off", "pump", p.name)

	if offErr != nil {
		return fmt.Errorf("%w: %s pump off: %w", ErrHardwareFault, p.name, offErr)
	}
	return waitErr
}

func (p *SwitchedPump) setStopped(ran time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.total += ran
}

// Stop implements Pump.
func (p *SwitchedPump) Stop() error {
	if err := p.sw.SetOn(false); err != nil {
		return fmt.Errorf("%w: stop %s pump: %w", ErrHardwareFault, p.name, err)
	}
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning implements Pump.
func (p *SwitchedPump) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// TotalRuntime implements Pump.
func (p *SwitchedPump) TotalRuntime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// ResetCounter implements Pump.
func (p *SwitchedPump) ResetCounter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
}

// Check implements Checker when the switch can probe itself.
func (p *SwitchedPump) Check(ctx context.Context) error {
	if c, ok := p.sw.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

var (
	_ Pump    = (*SwitchedPump)(nil)
	_ Checker = (*SwitchedPump)(nil)
)
