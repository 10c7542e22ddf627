// Package events defines the event taxonomy shared by the safety monitor,
// the dispense controller and their observers (TUI, metrics, console).
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the category and nature of an event.
type EventType string

const (
	// Safety events
	EventSafetyStateChanged EventType = "safety.state_changed"
	EventEmergencyStop      EventType = "safety.emergency_stop"
	EventEmergencyReset     EventType = "safety.reset"
	EventPreflightCheck     EventType = "safety.preflight_check"
	EventPreflightComplete  EventType = "safety.preflight_complete"

	// Dispense events
	EventDispenseStart   EventType = "dispense.start"
	EventDispenseEnd     EventType = "dispense.end"
	EventTemperatureRead EventType = "dispense.temperature"
	EventPumpStart       EventType = "pump.start"
	EventPumpEnd         EventType = "pump.end"

	// Error events
	EventError EventType = "error"
)

// Source constants identify the origin of events.
const (
	SourceSafety   = "safety"
	SourceDispense = "dispense"
	SourceOperator = "operator"
)

// Event is the base interface for all events in the system.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	Source() string
}

// BaseEvent provides the common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	Time      time.Time `json:"timestamp"`
	Src       string    `json:"source"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// Source returns the origin of the event.
func (e BaseEvent) Source() string {
	return e.Src
}

// SafetyStateChangedEvent is emitted when the safety state machine moves.
type SafetyStateChangedEvent struct {
	BaseEvent
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

// EmergencyStopEvent is emitted every time the latch is triggered,
// including repeat triggers while already latched.
type EmergencyStopEvent struct {
	BaseEvent
	Reason        string `json:"reason"`
	AlreadyActive bool   `json:"already_active,omitempty"`
}

// EmergencyResetEvent is emitted on a reset attempt.
type EmergencyResetEvent struct {
	BaseEvent
	Accepted            bool `json:"accepted"`
	ConsecutiveFailures int  `json:"consecutive_failures"`
}

// PreflightCheckEvent reports one preflight check result.
type PreflightCheckEvent struct {
	BaseEvent
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// PreflightCompleteEvent is emitted after the whole battery has run.
type PreflightCompleteEvent struct {
	BaseEvent
	Passed   bool `json:"passed"`
	Failures int  `json:"failures"`
}

// DispenseStartEvent is emitted when a recipe run begins.
type DispenseStartEvent struct {
	BaseEvent
	RunID uuid.UUID `json:"run_id"`
}

// TemperatureReadEvent carries the reading taken before the pumps run.
type TemperatureReadEvent struct {
	BaseEvent
	RunID   uuid.UUID `json:"run_id"`
	Celsius float64   `json:"celsius"`
}

// PumpStartEvent is emitted just before a pump is actuated.
type PumpStartEvent struct {
	BaseEvent
	RunID      uuid.UUID     `json:"run_id"`
	Ingredient string        `json:"ingredient"`
	Duration   time.Duration `json:"duration"`
}

// PumpEndEvent is emitted when an actuation returns.
type PumpEndEvent struct {
	BaseEvent
	RunID      uuid.UUID     `json:"run_id"`
	Ingredient string        `json:"ingredient"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// DispenseEndEvent is emitted when a recipe run finishes either way.
type DispenseEndEvent struct {
	BaseEvent
	RunID   uuid.UUID     `json:"run_id"`
	Success bool          `json:"success"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
	Aborted string        `json:"aborted,omitempty"` // ingredient the run stopped at
}

// Severity constants for error events.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ErrorEvent is emitted for operator-visible error conditions.
type ErrorEvent struct {
	BaseEvent
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// NewEvent creates a BaseEvent with the given type and source.
func NewEvent(eventType EventType, source string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
		Src:       source,
	}
}

// NewSafetyEvent creates a BaseEvent with the safety monitor as the source.
func NewSafetyEvent(eventType EventType) BaseEvent {
	return NewEvent(eventType, SourceSafety)
}

// NewDispenseEvent creates a BaseEvent with the dispense controller as the source.
func NewDispenseEvent(eventType EventType) BaseEvent {
	return NewEvent(eventType, SourceDispense)
}

// NewRunID returns a fresh dispense run identifier.
func NewRunID() uuid.UUID {
	return uuid.New()
}
