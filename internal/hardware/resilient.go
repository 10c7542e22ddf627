package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Resilience defaults for temperature sensors.
const (
	// DefaultMaxConsecutiveFailures is the failure count after which reads hard-fail.
	DefaultMaxConsecutiveFailures = 5
	// DefaultUnhealthyAfter is the failure count at which IsHealthy turns false.
	DefaultUnhealthyAfter = 3
	// DefaultMaxReadingAge bounds how long a last known reading may stand in.
	DefaultMaxReadingAge = 30 * time.Second
)

const lastReadingKey = "last"

// RawSensor is a single-shot temperature read with no retry policy.
type RawSensor interface {
	ReadRaw(ctx context.Context) (float64, error)
}

// RawSensorFunc adapts a function to RawSensor.
type RawSensorFunc func(ctx context.Context) (float64, error)

// ReadRaw calls f.
func (f RawSensorFunc) ReadRaw(ctx context.Context) (float64, error) {
	return f(ctx)
}

// ResilientSensor degrades gracefully over transient read failures.
// A failed read returns the last known value while it is younger than the
// maximum reading age. More than MaxConsecutiveFailures failures in a row
// are reported as ErrSensor regardless of the cached value.
type ResilientSensor struct {
	raw    RawSensor
	logger *slog.Logger
	cache  *ttlcache.Cache[string, float64]

	maxFailures    int
	unhealthyAfter int

	mu       sync.Mutex
	failures int
}

// ResilientOption configures a ResilientSensor.
type ResilientOption func(*resilientOptions)

type resilientOptions struct {
	logger         *slog.Logger
	maxAge         time.Duration
	maxFailures    int
	unhealthyAfter int
}

// WithSensorLogger sets the logger used for degraded-read warnings.
func WithSensorLogger(logger *slog.Logger) ResilientOption {
	return func(o *resilientOptions) {
		o.logger = logger
	}
}

// WithMaxReadingAge bounds how old a fallback reading may be.
func WithMaxReadingAge(d time.Duration) ResilientOption {
	return func(o *resilientOptions) {
		o.maxAge = d
	}
}

// WithFailureThresholds overrides the hard-fail and unhealthy thresholds.
func WithFailureThresholds(maxFailures, unhealthyAfter int) ResilientOption {
	return func(o *resilientOptions) {
		o.maxFailures = maxFailures
		o.unhealthyAfter = unhealthyAfter
	}
}

// NewResilientSensor wraps raw with the last-known-value policy.
func NewResilientSensor(raw RawSensor, opts ...ResilientOption) *ResilientSensor {
	o := resilientOptions{
		maxAge:         DefaultMaxReadingAge,
		maxFailures:    DefaultMaxConsecutiveFailures,
		unhealthyAfter: DefaultUnhealthyAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cache := ttlcache.New[string, float64](
		ttlcache.WithTTL[string, float64](o.maxAge),
		ttlcache.WithDisableTouchOnHit[string, float64](),
	)

	return &ResilientSensor{
		raw:            raw,
		logger:         o.logger,
		cache:          cache,
		maxFailures:    o.maxFailures,
		unhealthyAfter: o.unhealthyAfter,
	}
}

// ReadTemperature implements TemperatureSensor.
func (s *ResilientSensor) ReadTemperature(ctx context.Context) (float64, error) {
	temp, err := s.raw.ReadRaw(ctx)
	if err == nil && (math.IsNaN(temp) || math.IsInf(temp, 0)) {
		err = fmt.Errorf("non-finite reading %v", temp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.failures = 0
		s.cache.Set(lastReadingKey, temp, ttlcache.DefaultTTL)
		return temp, nil
	}

	s.failures++
	s.logger.Warn("temperature read failed", "attempt", s.failures, "error", err)

	if s.failures > s.maxFailures {
		return 0, fmt.Errorf("%w: %d consecutive read failures: %w", ErrSensor, s.failures, err)
	}

	if item := s.cache.Get(lastReadingKey); item != nil {
		s.logger.Warn("using last known temperature", "celsius", item.Value())
		return item.Value(), nil
	}

	return 0, fmt.Errorf("%w: %w", ErrSensor, err)
}

// IsHealthy reports whether recent reads have mostly succeeded.
func (s *ResilientSensor) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures < s.unhealthyAfter
}

// ConsecutiveFailures returns the current failure streak.
func (s *ResilientSensor) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

var _ TemperatureSensor = (*ResilientSensor)(nil)
