// Package safety owns the interlocks that every dispense consults: the
// safety state machine, the emergency-stop latch with its consecutive
// failure counter, range and runtime validation, and the preflight battery.
package safety

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/events"
)

// MaxResetFailures is the number of resets allowed without an intervening
// successful dispense. Beyond it the latch can only be cleared by restarting
// after manual inspection.
const MaxResetFailures = 3

// Monitor is the process-wide safety authority. All methods are safe for
// concurrent use.
type Monitor struct {
	cfg    config.SafetyConfig
	logger *slog.Logger
	router *events.Router

	mu            sync.RWMutex
	state         State
	estop         bool
	estopReason   string
	failures      int
	lastPreflight []CheckResult
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRouter publishes safety events to router.
func WithRouter(router *events.Router) Option {
	return func(m *Monitor) {
		m.router = router
	}
}

// New creates a Monitor in the Uninitialized state with the latch clear.
func New(cfg config.SafetyConfig, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		logger: slog.Default(),
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the limits the monitor enforces.
func (m *Monitor) Config() config.SafetyConfig {
	return m.cfg
}

// ValidateTemperature fails with an *OutOfRangeError when temp lies outside
// [min_temperature, max_temperature]. The bounds are inclusive; NaN is
// never in range.
func (m *Monitor) ValidateTemperature(temp float64) error {
	if !(temp >= m.cfg.MinTemperature && temp <= m.cfg.MaxTemperature) {
		err := &OutOfRangeError{
			Quantity: "temperature",
			Value:    temp,
			Min:      m.cfg.MinTemperature,
			Max:      m.cfg.MaxTemperature,
		}
		m.logger.Error("temperature out of range",
			"temperature", temp,
			"min", m.cfg.MinTemperature,
			"max", m.cfg.MaxTemperature)
		return err
	}
	m.verbose("temperature within range", "temperature", temp)
	return nil
}

// CheckPumpRuntime fails with a *RuntimeCapError when d exceeds the
// configured per-actuation ceiling. A duration equal to the cap passes.
func (m *Monitor) CheckPumpRuntime(pump string, d time.Duration) error {
	limit := m.cfg.MaxPumpRuntime()
	if d > limit {
		m.logger.Error("pump runtime exceeds limit",
			"pump", pump,
			"requested", d,
			"limit", limit)
		return &RuntimeCapError{Pump: pump, Requested: d, Limit: limit}
	}
	m.verbose("pump runtime within limit", "pump", pump, "requested", d)
	return nil
}

// TriggerEmergencyStop sets the latch. It is idempotent and never fails;
// repeated triggers are logged and published but change nothing.
func (m *Monitor) TriggerEmergencyStop(reason string) {
	m.mu.Lock()
	already := m.estop
	m.estop = true
	if !already {
		m.estopReason = reason
	}
	from, to, moved := m.applyLocked(EventEmergencyStop)
	m.mu.Unlock()

	m.logger.Error("EMERGENCY STOP", "reason", reason, "already_active", already)
	m.router.Emit(&events.EmergencyStopEvent{
		BaseEvent:     events.NewSafetyEvent(events.EventEmergencyStop),
		Reason:        reason,
		AlreadyActive: already,
	})
	m.emitTransition(from, to, EventEmergencyStop, moved)
}

// ResetEmergencyStop clears the latch and counts the reset. It is refused
// with ErrTooManyFailures once more than MaxResetFailures resets have
// happened without a successful dispense in between.
func (m *Monitor) ResetEmergencyStop() error {
	m.mu.Lock()
	if m.failures > MaxResetFailures {
		failures := m.failures
		m.mu.Unlock()

		m.logger.Error("emergency stop reset refused", "consecutive_failures", failures)
		m.router.Emit(&events.EmergencyResetEvent{
			BaseEvent:           events.NewSafetyEvent(events.EventEmergencyReset),
			ConsecutiveFailures: failures,
		})
		return fmt.Errorf("%w (%d resets since last success)", ErrTooManyFailures, failures)
	}

	m.estop = false
	m.estopReason = ""
	m.failures++
	failures := m.failures
	from, to, moved := m.applyLocked(EventReset)
	m.mu.Unlock()

	m.logger.Warn("emergency stop reset", "consecutive_failures", failures)
	m.router.Emit(&events.EmergencyResetEvent{
		BaseEvent:           events.NewSafetyEvent(events.EventEmergencyReset),
		Accepted:            true,
		ConsecutiveFailures: failures,
	})
	m.emitTransition(from, to, EventReset, moved)
	return nil
}

// RecordSuccess clears the consecutive failure counter.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
	m.verbose("operation recorded as successful")
}

// IsEmergencyStop reports whether the latch is set.
func (m *Monitor) IsEmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.estop
}

// EmergencyStopReason returns the reason given by the first trigger of the
// current latch, or "" when clear.
func (m *Monitor) EmergencyStopReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.estopReason
}

// State returns the current safety state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ConsecutiveFailures returns the reset counter.
func (m *Monitor) ConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// Fire applies event to the state machine. Rejected transitions are
// advisory: they are logged at debug and the state is kept.
func (m *Monitor) Fire(event Event) State {
	m.mu.Lock()
	from, to, moved := m.applyLocked(event)
	m.mu.Unlock()

	m.emitTransition(from, to, event, moved)
	return to
}

// applyLocked must be called with m.mu held.
func (m *Monitor) applyLocked(event Event) (from, to State, moved bool) {
	from = m.state
	to, err := Transition(from, event)
	if err != nil {
		if errors.Is(err, ErrTransitionRejected) {
			m.logger.Debug("state transition ignored", "state", from, "event", event)
		}
		return from, from, false
	}
	m.state = to
	return from, to, to != from
}

func (m *Monitor) emitTransition(from, to State, event Event, moved bool) {
	if !moved {
		return
	}
	m.logger.Info("safety state changed", "from", from, "to", to, "event", event)
	m.router.Emit(&events.SafetyStateChangedEvent{
		BaseEvent: events.NewSafetyEvent(events.EventSafetyStateChanged),
		From:      string(from),
		To:        string(to),
		Trigger:   string(event),
	})
}

func (m *Monitor) verbose(msg string, args ...any) {
	if m.cfg.VerboseLogging {
		m.logger.Info(msg, args...)
		return
	}
	m.logger.Debug(msg, args...)
}
