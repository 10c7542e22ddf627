package hardware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSensor returns queued results in order, then repeats the last one.
type scriptedSensor struct {
	mu      sync.Mutex
	results []result
}

type result struct {
	temp float64
	err  error
}

func (s *scriptedSensor) ReadRaw(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.temp, r.err
}

var errBus = errors.New("i2c nack")

func TestResilientSensor_ReturnsFreshReading(t *testing.T) {
	s := NewResilientSensor(&scriptedSensor{results: []result{{temp: 21.5}}})

	temp, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)
	assert.True(t, s.IsHealthy())
}

func TestResilientSensor_FallsBackToLastKnown(t *testing.T) {
	raw := &scriptedSensor{results: []result{{temp: 64.0}, {err: errBus}}}
	s := NewResilientSensor(raw)
	ctx := context.Background()

	_, err := s.ReadTemperature(ctx)
	require.NoError(t, err)

	for i := 1; i <= DefaultMaxConsecutiveFailures; i++ {
		temp, err := s.ReadTemperature(ctx)
		require.NoError(t, err, "failure %d", i)
		assert.Equal(t, 64.0, temp)
	}

	_, err = s.ReadTemperature(ctx)
	require.ErrorIs(t, err, ErrSensor)
	assert.ErrorIs(t, err, errBus)
}

func TestResilientSensor_NonFiniteReadingIsAFailure(t *testing.T) {
	raw := &scriptedSensor{results: []result{{temp: 64.0}, {temp: math.NaN()}, {temp: math.Inf(1)}}}
	s := NewResilientSensor(raw)
	ctx := context.Background()

	_, err := s.ReadTemperature(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		temp, err := s.ReadTemperature(ctx)
		require.NoError(t, err)
		assert.Equal(t, 64.0, temp, "last finite reading stands in")
	}
	assert.Equal(t, 2, s.ConsecutiveFailures())
}

func TestResilientSensor_NonFiniteWithoutHistory(t *testing.T) {
	s := NewResilientSensor(&scriptedSensor{results: []result{{temp: math.NaN()}}})

	_, err := s.ReadTemperature(context.Background())
	require.ErrorIs(t, err, ErrSensor)
	assert.ErrorContains(t, err, "non-finite")
}

func TestResilientSensor_NoReadingYet(t *testing.T) {
	s := NewResilientSensor(&scriptedSensor{results: []result{{err: errBus}}})

	_, err := s.ReadTemperature(context.Background())
	require.ErrorIs(t, err, ErrSensor)
}

func TestResilientSensor_StaleReadingExpires(t *testing.T) {
	raw := &scriptedSensor{results: []result{{temp: 50.0}, {err: errBus}}}
	s := NewResilientSensor(raw, WithMaxReadingAge(20*time.Millisecond))
	ctx := context.Background()

	_, err := s.ReadTemperature(ctx)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = s.ReadTemperature(ctx)
	require.ErrorIs(t, err, ErrSensor)
}

func TestResilientSensor_Health(t *testing.T) {
	raw := &scriptedSensor{results: []result{{temp: 30}, {err: errBus}, {err: errBus}, {err: errBus}, {temp: 31}}}
	s := NewResilientSensor(raw)
	ctx := context.Background()

	_, _ = s.ReadTemperature(ctx)
	_, _ = s.ReadTemperature(ctx)
	_, _ = s.ReadTemperature(ctx)
	assert.True(t, s.IsHealthy(), "two failures is still healthy")

	_, _ = s.ReadTemperature(ctx)
	assert.False(t, s.IsHealthy())
	assert.Equal(t, 3, s.ConsecutiveFailures())

	temp, err := s.ReadTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 31.0, temp)
	assert.True(t, s.IsHealthy())
	assert.Zero(t, s.ConsecutiveFailures())
}

func TestResilientSensor_CustomThresholds(t *testing.T) {
	raw := &scriptedSensor{results: []result{{temp: 40}, {err: errBus}}}
	s := NewResilientSensor(raw, WithFailureThresholds(1, 1))
	ctx := context.Background()

	_, _ = s.ReadTemperature(ctx)

	temp, err := s.ReadTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, temp)
	assert.False(t, s.IsHealthy())

	_, err = s.ReadTemperature(ctx)
	assert.ErrorIs(t, err, ErrSensor)
}
