// Package dispense sequences a recipe across the pumps, consulting the
// safety monitor before every actuation.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/events"
	"github.com/mechcc/hotchocolabot/internal/hardware"
	"github.com/mechcc/hotchocolabot/internal/safety"
)

// StatusHold is how long ShowStatus leaves the status screen up.
const StatusHold = 2 * time.Second

// ErrBusy is returned when a dispense is requested while another is running.
var ErrBusy = errors.New("dispense already in progress")

// Display messages.
const (
	msgReady     = "HotChocolaBot\nReady!"
	msgComplete  = "Complete!\nEnjoy!"
	msgStopped   = "STOPPED\nCall an adult"
	msgFailed    = "Dispense failed\nSee operator"
	msgPreparing = "Temp: %.1fC\nPreparing..."
	msgStatus    = "Temp: %.1fC\nPumps: %s"
	msgAdding    = "Adding %s..."
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// PumpStats is a snapshot of accumulated pump runtimes.
type PumpStats struct {
	Milk  time.Duration
	Cocoa time.Duration
	Sugar time.Duration
}

// Total returns the combined runtime.
func (s PumpStats) Total() time.Duration {
	return s.Milk + s.Cocoa + s.Sugar
}

// Controller owns a hardware set and runs recipes on it. Only one dispense
// runs at a time.
type Controller struct {
	hw     *hardware.Set
	cfg    *config.Config
	logger *slog.Logger
	router *events.Router
	sleep  SleepFunc

	running sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRouter publishes dispense events to router.
func WithRouter(router *events.Router) Option {
	return func(c *Controller) {
		c.router = router
	}
}

// WithSleep replaces the wait used for observation delays and the status hold.
func WithSleep(fn SleepFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New creates a Controller over hw.
func New(hw *hardware.Set, cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		hw:     hw,
		cfg:    cfg,
		logger: slog.Default(),
		sleep:  hardware.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hardware returns the set the controller drives.
func (c *Controller) Hardware() *hardware.Set {
	return c.hw
}

// Run greets on the display, optionally shows the system status, dispenses
// the named recipe and shows the completion message.
func (c *Controller) Run(ctx context.Context, monitor *safety.Monitor, recipeName string) error {
	recipe, err := c.cfg.Recipes.Lookup(recipeName)
	if err != nil {
		return err
	}

	c.logger.Info("hotchocolabot ready", "recipe", recipeName)
	c.show(msgReady)

	if c.cfg.Education.ShowInternals {
		if err := c.ShowStatus(ctx); err != nil {
			c.logger.Warn("status display failed", "error", err)
		}
	}

	if err := c.DispenseRecipe(ctx, recipe, monitor); err != nil {
		if monitor.IsEmergencyStop() {
			c.show(msgStopped)
		} else {
			c.show(msgFailed)
		}
		return err
	}

	c.show(msgComplete)
	return nil
}

// DispenseRecipe runs recipe in the fixed order milk, cocoa, sugar.
//
// The temperature is read and validated before any pump moves. Each step
// checks the runtime cap (a violation latches the emergency stop) and then
// the latch itself, so a stop raised elsewhere takes effect at the next step
// boundary. Steps already dispensed are not rolled back.
func (c *Controller) DispenseRecipe(ctx context.Context, recipe config.Recipe, monitor *safety.Monitor) error {
	if !c.running.TryLock() {
		return ErrBusy
	}
	defer c.running.Unlock()

	run := events.NewRunID()
	start := time.Now()
	logger := c.logger.With("run_id", run.String())

	monitor.Fire(safety.EventStartOperation)
	c.emit(&events.DispenseStartEvent{
		BaseEvent: events.NewDispenseEvent(events.EventDispenseStart),
		RunID:     run,
	})
	logger.Info("starting dispense sequence")

	aborted, err := c.dispense(ctx, logger, run, recipe, monitor)

	end := &events.DispenseEndEvent{
		BaseEvent: events.NewDispenseEvent(events.EventDispenseEnd),
		RunID:     run,
		Success:   err == nil,
		Elapsed:   time.Since(start),
		Aborted:   string(aborted),
	}
	if err != nil {
		end.Error = err.Error()
		logger.Error("dispense aborted", "error", err, "at", aborted)
	} else {
		monitor.RecordSuccess()
		logger.Info("dispense complete", "elapsed", end.Elapsed)
	}
	monitor.Fire(safety.EventCompleteOperation)
	c.emit(end)
	return err
}

func (c *Controller) dispense(ctx context.Context, logger *slog.Logger, run uuid.UUID, recipe config.Recipe, monitor *safety.Monitor) (config.Ingredient, error) {
	temp, err := c.hw.Sensor.ReadTemperature(ctx)
	if err != nil {
		if !errors.Is(err, hardware.ErrSensor) {
			err = fmt.Errorf("%w: %w", hardware.ErrSensor, err)
		}
		return "", fmt.Errorf("read temperature: %w", err)
	}
	c.emit(&events.TemperatureReadEvent{
		BaseEvent: events.NewDispenseEvent(events.EventTemperatureRead),
		RunID:     run,
		Celsius:   temp,
	})

	if err := monitor.ValidateTemperature(temp); err != nil {
		return "", fmt.Errorf("validate temperature: %w", err)
	}

	c.show(fmt.Sprintf(msgPreparing, temp))
	if err := c.observe(ctx); err != nil {
		return "", err
	}

	for _, ing := range config.DispenseOrder {
		if err := c.step(ctx, logger, run, ing, recipe.Duration(ing), monitor); err != nil {
			return ing, err
		}
	}
	return "", nil
}

func (c *Controller) step(ctx context.Context, logger *slog.Logger, run uuid.UUID, ing config.Ingredient, d time.Duration, monitor *safety.Monitor) error {
	pump := c.pump(ing)

	if err := monitor.CheckPumpRuntime(string(ing), d); err != nil {
		monitor.TriggerEmergencyStop(err.Error())
		return fmt.Errorf("dispense %s: %w", ing, err)
	}

	if monitor.IsEmergencyStop() {
		return fmt.Errorf("dispense %s: %w", ing, safety.ErrEmergencyStopActive)
	}

	c.show(fmt.Sprintf(msgAdding, ing))
	logger.Info("dispensing", "ingredient", ing, "pump", pump.Name(), "duration", d)
	c.emit(&events.PumpStartEvent{
		BaseEvent:  events.NewDispenseEvent(events.EventPumpStart),
		RunID:      run,
		Ingredient: string(ing),
		Duration:   d,
	})

	err := pump.Dispense(ctx, d)

	pumpEnd := &events.PumpEndEvent{
		BaseEvent:  events.NewDispenseEvent(events.EventPumpEnd),
		RunID:      run,
		Ingredient: string(ing),
		Duration:   d,
	}
	if err != nil {
		pumpEnd.Error = err.Error()
	}
	c.emit(pumpEnd)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.stopAll(logger)
			return fmt.Errorf("dispense %s: %w", ing, ctxErr)
		}
		if !errors.Is(err, hardware.ErrHardwareFault) {
			err = fmt.Errorf("%w: %w", hardware.ErrHardwareFault, err)
		}
		c.handleAnomaly(logger, monitor)
		return fmt.Errorf("dispense %s: %w", ing, err)
	}

	return c.observe(ctx)
}

// handleAnomaly moves the monitor through Anomaly and tries to recover by
// switching every pump off.
func (c *Controller) handleAnomaly(logger *slog.Logger, monitor *safety.Monitor) {
	monitor.Fire(safety.EventDetectAnomaly)
	if err := c.stopAll(logger); err != nil {
		monitor.Fire(safety.EventFailRecovery)
		return
	}
	monitor.Fire(safety.EventRecover)
}

func (c *Controller) stopAll(logger *slog.Logger) error {
	var errs error
	for _, p := range c.hw.Pumps() {
		if err := p.Stop(); err != nil {
			logger.Error("pump stop failed", "pump", p.Name(), "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Controller) pump(ing config.Ingredient) hardware.Pump {
	switch ing {
	case config.Milk:
		return c.hw.Milk
	case config.Cocoa:
		return c.hw.Cocoa
	default:
		return c.hw.Sugar
	}
}

// PumpStats reports the accumulated runtime of each pump.
func (c *Controller) PumpStats() PumpStats {
	return PumpStats{
		Milk:  c.hw.Milk.TotalRuntime(),
		Cocoa: c.hw.Cocoa.TotalRuntime(),
		Sugar: c.hw.Sugar.TotalRuntime(),
	}
}

// ResetPumpCounters zeroes every pump's runtime counter.
func (c *Controller) ResetPumpCounters() {
	for _, p := range c.hw.Pumps() {
		p.ResetCounter()
	}
}

// ShowStatus puts the temperature and pump readiness on the display and
// holds it for StatusHold.
func (c *Controller) ShowStatus(ctx context.Context) error {
	temp, err := c.hw.Sensor.ReadTemperature(ctx)
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}

	pumps := "Ready"
	for _, p := range c.hw.Pumps() {
		if p.IsRunning() {
			pumps = "Busy"
			break
		}
	}

	if err := hardware.ShowMessage(c.hw.Display, fmt.Sprintf(msgStatus, temp, pumps)); err != nil {
		return fmt.Errorf("show status: %w", err)
	}
	return c.sleep(ctx, StatusHold)
}

// observe waits for the configured observation delay.
func (c *Controller) observe(ctx context.Context) error {
	d := c.cfg.Education.ObservationDelay()
	if d <= 0 {
		return nil
	}
	return c.sleep(ctx, d)
}

// show writes to the display. Display failures never interrupt a dispense.
func (c *Controller) show(text string) {
	if c.hw.Display == nil {
		return
	}
	if err := hardware.ShowMessage(c.hw.Display, text); err != nil {
		c.logger.Warn("display update failed", "error", err)
	}
}

func (c *Controller) emit(event events.Event) {
	c.router.Emit(event)
}
