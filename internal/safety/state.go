package safety

import (
	"errors"
	"fmt"
)

// State is the coarse safety state of the machine.
type State string

// Safety states.
const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateSafe          State = "safe"
	StateOperating     State = "operating"
	StateAnomaly       State = "anomaly"
	StateUnsafe        State = "unsafe"
)

// Event drives a state transition.
type Event string

// State machine events.
const (
	EventInitialize        Event = "initialize"
	EventPassPreflight     Event = "pass_preflight"
	EventFailPreflight     Event = "fail_preflight"
	EventStartOperation    Event = "start_operation"
	EventCompleteOperation Event = "complete_operation"
	EventDetectAnomaly     Event = "detect_anomaly"
	EventRecover           Event = "recover"
	EventFailRecovery      Event = "fail_recovery"
	EventEmergencyStop     Event = "emergency_stop"
	EventReset             Event = "reset"
)

// ErrTransitionRejected is returned by Transition for undefined state/event pairs.
var ErrTransitionRejected = errors.New("transition rejected")

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateUninitialized, EventInitialize}:    StateInitialized,
	{StateInitialized, EventPassPreflight}:   StateSafe,
	{StateInitialized, EventFailPreflight}:   StateUnsafe,
	{StateSafe, EventStartOperation}:         StateOperating,
	{StateOperating, EventCompleteOperation}: StateSafe,
	{StateOperating, EventDetectAnomaly}:     StateAnomaly,
	{StateAnomaly, EventRecover}:             StateSafe,
	{StateAnomaly, EventFailRecovery}:        StateUnsafe,
	{StateUnsafe, EventReset}:                StateInitialized,
}

// Transition returns the state reached by applying event to from.
// EmergencyStop is accepted from every state.
func Transition(from State, event Event) (State, error) {
	if event == EventEmergencyStop {
		return StateUnsafe, nil
	}
	if to, ok := transitions[transitionKey{from, event}]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s in state %s", ErrTransitionRejected, event, from)
}
