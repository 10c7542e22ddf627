package safety

import (
	"errors"
	"fmt"
	"time"
)

// Interlock error kinds. Match with errors.Is; detail types are
// available through errors.As.
var (
	ErrOutOfRange          = errors.New("value out of safe range")
	ErrRuntimeCapExceeded  = errors.New("pump runtime exceeded")
	ErrEmergencyStopActive = errors.New("emergency stop active")
	ErrTooManyFailures     = errors.New("too many consecutive failures, manual inspection required")
)

// OutOfRangeError describes a reading outside its configured bounds.
type OutOfRangeError struct {
	Quantity string
	Value    float64
	Min      float64
	Max      float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %.1f outside safe range [%.1f, %.1f]", e.Quantity, e.Value, e.Min, e.Max)
}

// Is matches ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// RuntimeCapError describes a requested actuation above the runtime cap.
type RuntimeCapError struct {
	Pump      string
	Requested time.Duration
	Limit     time.Duration
}

func (e *RuntimeCapError) Error() string {
	return fmt.Sprintf("%s pump runtime %v exceeds limit %v", e.Pump, e.Requested, e.Limit)
}

// Is matches ErrRuntimeCapExceeded.
func (e *RuntimeCapError) Is(target error) bool {
	return target == ErrRuntimeCapExceeded
}
