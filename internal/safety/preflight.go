package safety

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/mechcc/hotchocolabot/internal/events"
	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// Severity grades a failed preflight check.
type Severity string

// Check severities. Only a failed Critical check blocks operation.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name     string
	Passed   bool
	Message  string
	Severity Severity
}

// Blocking reports whether the result prevents operation.
func (r CheckResult) Blocking() bool {
	return !r.Passed && r.Severity == SeverityCritical
}

type preflightCheck struct {
	name string
	run  func(ctx context.Context, set *hardware.Set) (CheckResult, error)
}

// checks returns the battery in execution order.
func (m *Monitor) checks() []preflightCheck {
	return []preflightCheck{
		{"temperature_sensor", m.checkSensor},
		{"pump_connectivity", m.checkPumps},
		{"emergency_stop", m.checkEmergencyStop},
		{"power_supply", m.checkPower},
	}
}

// RunPreflightChecks runs the preflight battery against set and reports
// whether the machine may operate. Any failed Critical check yields false;
// failed Info or Warning checks are reported but do not block. A check that
// cannot execute counts as a Critical failure.
//
// The returned error is reserved for the battery itself not running: a nil
// set or a cancelled context. A false result is not an error.
func (m *Monitor) RunPreflightChecks(ctx context.Context, set *hardware.Set) (bool, error) {
	if set == nil {
		return false, errors.New("run preflight checks: no hardware")
	}

	m.Fire(EventInitialize)
	m.logger.Info("running preflight checks")

	var (
		results []CheckResult
		execErr error
		passed  = true
	)
	for _, c := range m.checks() {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("run preflight checks: %w", err)
		}

		result := m.runCheck(ctx, c, set)
		if result.err != nil {
			execErr = multierr.Append(execErr, fmt.Errorf("%s: %w", c.name, result.err))
		}
		results = append(results, result.CheckResult)
		if result.Blocking() {
			passed = false
		}
		m.logCheck(result.CheckResult)
	}

	if execErr != nil {
		m.logger.Warn("preflight checks could not execute", "error", execErr)
	}

	failures := 0
	for _, r := range results {
		if !r.Passed {
			failures++
		}
	}

	m.mu.Lock()
	m.lastPreflight = results
	m.mu.Unlock()

	if passed {
		m.Fire(EventPassPreflight)
		m.logger.Info("preflight checks passed", "failed_non_critical", failures)
	} else {
		m.Fire(EventFailPreflight)
		m.logger.Error("preflight checks failed", "failed", failures)
	}
	m.router.Emit(&events.PreflightCompleteEvent{
		BaseEvent: events.NewSafetyEvent(events.EventPreflightComplete),
		Passed:    passed,
		Failures:  failures,
	})

	return passed, nil
}

// LastPreflight returns the results of the most recent preflight run.
func (m *Monitor) LastPreflight() []CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CheckResult, len(m.lastPreflight))
	copy(out, m.lastPreflight)
	return out
}

type checkOutcome struct {
	CheckResult
	err error
}

func (m *Monitor) runCheck(ctx context.Context, c preflightCheck, set *hardware.Set) checkOutcome {
	if timeout := m.cfg.OperationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.run(ctx, set)
	if err != nil {
		return checkOutcome{
			CheckResult: CheckResult{
				Name:     c.name,
				Passed:   false,
				Message:  fmt.Sprintf("check could not run: %v", err),
				Severity: SeverityCritical,
			},
			err: err,
		}
	}
	result.Name = c.name
	return checkOutcome{CheckResult: result}
}

func (m *Monitor) logCheck(r CheckResult) {
	switch {
	case r.Passed:
		m.logger.Info("preflight check passed", "check", r.Name, "message", r.Message)
	case r.Severity == SeverityCritical:
		m.logger.Error("preflight check failed", "check", r.Name, "message", r.Message, "severity", r.Severity)
	default:
		m.logger.Warn("preflight check failed", "check", r.Name, "message", r.Message, "severity", r.Severity)
	}
	m.router.Emit(&events.PreflightCheckEvent{
		BaseEvent: events.NewSafetyEvent(events.EventPreflightCheck),
		Name:      r.Name,
		Passed:    r.Passed,
		Message:   r.Message,
		Severity:  string(r.Severity),
	})
}

func (m *Monitor) checkSensor(ctx context.Context, set *hardware.Set) (CheckResult, error) {
	if set.Sensor == nil {
		return CheckResult{Message: "no temperature sensor", Severity: SeverityCritical}, nil
	}
	if !set.Sensor.IsHealthy() {
		return CheckResult{Message: "temperature sensor unhealthy", Severity: SeverityCritical}, nil
	}
	temp, err := set.Sensor.ReadTemperature(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("read temperature: %w", err)
	}
	return CheckResult{
		Passed:   true,
		Message:  fmt.Sprintf("sensor healthy, reading %.1fC", temp),
		Severity: SeverityCritical,
	}, nil
}

func (m *Monitor) checkPumps(ctx context.Context, set *hardware.Set) (CheckResult, error) {
	for _, p := range set.Pumps() {
		if p == nil {
			return CheckResult{Message: "pump missing from hardware set", Severity: SeverityCritical}, nil
		}
		if p.IsRunning() {
			return CheckResult{Message: fmt.Sprintf("%s pump is already running", p.Name()), Severity: SeverityCritical}, nil
		}
		if c, ok := p.(hardware.Checker); ok {
			if err := c.Check(ctx); err != nil {
				return CheckResult{}, fmt.Errorf("probe %s pump: %w", p.Name(), err)
			}
		}
	}
	return CheckResult{Passed: true, Message: "all pumps responding", Severity: SeverityCritical}, nil
}

func (m *Monitor) checkEmergencyStop(ctx context.Context, set *hardware.Set) (CheckResult, error) {
	if !m.cfg.EmergencyStopEnabled {
		return CheckResult{Message: "emergency stop disabled in config", Severity: SeverityWarning}, nil
	}
	if m.IsEmergencyStop() {
		return CheckResult{Message: "emergency stop latch is active", Severity: SeverityCritical}, nil
	}
	if set.Button == nil {
		return CheckResult{Message: "no emergency stop button wired", Severity: SeverityWarning}, nil
	}
	pressed, err := set.Button.Pressed(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("read emergency stop button: %w", err)
	}
	if pressed {
		return CheckResult{Message: "emergency stop button is engaged", Severity: SeverityCritical}, nil
	}
	return CheckResult{Passed: true, Message: "emergency stop armed", Severity: SeverityCritical}, nil
}

func (m *Monitor) checkPower(ctx context.Context, set *hardware.Set) (CheckResult, error) {
	if !m.cfg.VoltageMonitored() || set.Power == nil {
		return CheckResult{Passed: true, Message: "supply voltage not monitored", Severity: SeverityInfo}, nil
	}
	volts, err := set.Power.SupplyVoltage(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("read supply voltage: %w", err)
	}
	if volts < m.cfg.MinSupplyVoltage || volts > m.cfg.MaxSupplyVoltage {
		return CheckResult{
			Message: fmt.Sprintf("supply %.2fV outside [%.2f, %.2f]",
				volts, m.cfg.MinSupplyVoltage, m.cfg.MaxSupplyVoltage),
			Severity: SeverityCritical,
		}, nil
	}
	return CheckResult{Passed: true, Message: fmt.Sprintf("supply stable at %.2fV", volts), Severity: SeverityCritical}, nil
}
