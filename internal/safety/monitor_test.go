package safety

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig is the reference bench configuration: 5..90C, 30s cap.
func testConfig() config.SafetyConfig {
	return config.Default().Safety
}

func newTestMonitor(opts ...Option) *Monitor {
	return New(testConfig(), append([]Option{WithLogger(testLogger())}, opts...)...)
}

func collect(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestNewMonitor(t *testing.T) {
	m := newTestMonitor()
	assert.Equal(t, StateUninitialized, m.State())
	assert.False(t, m.IsEmergencyStop())
	assert.Equal(t, 0, m.ConsecutiveFailures())
}

func TestValidateTemperature(t *testing.T) {
	m := newTestMonitor()

	tests := []struct {
		name    string
		temp    float64
		wantErr bool
	}{
		{"serving temperature", 65.0, false},
		{"lower bound inclusive", 5.0, false},
		{"upper bound inclusive", 90.0, false},
		{"just below min", 4.9, true},
		{"too hot", 95.0, true},
		{"freezing", -10, true},
		{"not a number", math.NaN(), true},
		{"positive infinity", math.Inf(1), true},
		{"negative infinity", math.Inf(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateTemperature(tt.temp)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrOutOfRange)

			var rangeErr *OutOfRangeError
			require.ErrorAs(t, err, &rangeErr)
			if math.IsNaN(tt.temp) {
				assert.True(t, math.IsNaN(rangeErr.Value))
			} else {
				assert.Equal(t, tt.temp, rangeErr.Value)
			}
			assert.Equal(t, 5.0, rangeErr.Min)
			assert.Equal(t, 90.0, rangeErr.Max)
		})
	}
}

func TestValidateTemperatureHasNoSideEffects(t *testing.T) {
	m := newTestMonitor()
	_ = m.ValidateTemperature(200)
	assert.False(t, m.IsEmergencyStop())
	assert.Equal(t, StateUninitialized, m.State())
}

func TestCheckPumpRuntime(t *testing.T) {
	m := newTestMonitor()

	tests := []struct {
		name    string
		d       time.Duration
		wantErr bool
	}{
		{"zero", 0, false},
		{"standard milk", 5 * time.Second, false},
		{"exactly at cap", 30 * time.Second, false},
		{"one millisecond over", 30*time.Second + time.Millisecond, true},
		{"far over", 40 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.CheckPumpRuntime("cocoa", tt.d)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrRuntimeCapExceeded)

			var capErr *RuntimeCapError
			require.ErrorAs(t, err, &capErr)
			assert.Equal(t, "cocoa", capErr.Pump)
			assert.Equal(t, tt.d, capErr.Requested)
			assert.Equal(t, 30*time.Second, capErr.Limit)
		})
	}

	assert.False(t, m.IsEmergencyStop(), "runtime check must not latch by itself")
}

func TestTriggerEmergencyStop(t *testing.T) {
	t.Run("sets latch and moves to unsafe", func(t *testing.T) {
		m := newTestMonitor()
		m.TriggerEmergencyStop("test")

		assert.True(t, m.IsEmergencyStop())
		assert.Equal(t, StateUnsafe, m.State())
		assert.Equal(t, "test", m.EmergencyStopReason())
	})

	t.Run("is idempotent", func(t *testing.T) {
		m := newTestMonitor()
		m.TriggerEmergencyStop("first")
		m.TriggerEmergencyStop("second")

		assert.True(t, m.IsEmergencyStop())
		assert.Equal(t, "first", m.EmergencyStopReason())
		assert.Equal(t, 0, m.ConsecutiveFailures(), "trigger never touches the counter")
	})

	t.Run("publishes events", func(t *testing.T) {
		router := events.NewRouter(10)
		defer router.Close()
		ch := router.Subscribe()

		m := newTestMonitor(WithRouter(router))
		m.TriggerEmergencyStop("button")
		m.TriggerEmergencyStop("button again")

		got := collect(ch)
		require.Len(t, got, 3)

		first, ok := got[0].(*events.EmergencyStopEvent)
		require.True(t, ok)
		assert.Equal(t, "button", first.Reason)
		assert.False(t, first.AlreadyActive)

		change, ok := got[1].(*events.SafetyStateChangedEvent)
		require.True(t, ok)
		assert.Equal(t, string(StateUninitialized), change.From)
		assert.Equal(t, string(StateUnsafe), change.To)

		repeat, ok := got[2].(*events.EmergencyStopEvent)
		require.True(t, ok)
		assert.True(t, repeat.AlreadyActive)
	})
}

func TestResetEmergencyStop(t *testing.T) {
	t.Run("clears latch and counts", func(t *testing.T) {
		m := newTestMonitor()
		m.TriggerEmergencyStop("test")

		require.NoError(t, m.ResetEmergencyStop())
		assert.False(t, m.IsEmergencyStop())
		assert.Equal(t, 1, m.ConsecutiveFailures())
		assert.Equal(t, StateInitialized, m.State())
		assert.Empty(t, m.EmergencyStopReason())
	})

	t.Run("refused after more than three resets", func(t *testing.T) {
		m := newTestMonitor()

		for i := 1; i <= 4; i++ {
			m.TriggerEmergencyStop("test")
			require.NoError(t, m.ResetEmergencyStop(), "reset %d", i)
			assert.Equal(t, i, m.ConsecutiveFailures())
		}

		m.TriggerEmergencyStop("fifth")
		err := m.ResetEmergencyStop()
		require.ErrorIs(t, err, ErrTooManyFailures)
		assert.True(t, m.IsEmergencyStop(), "refused reset leaves latch set")
		assert.Equal(t, 4, m.ConsecutiveFailures(), "refused reset does not count")
	})

	t.Run("success re-enables reset", func(t *testing.T) {
		m := newTestMonitor()
		for i := 0; i < 4; i++ {
			m.TriggerEmergencyStop("test")
			require.NoError(t, m.ResetEmergencyStop())
		}
		m.TriggerEmergencyStop("test")
		require.ErrorIs(t, m.ResetEmergencyStop(), ErrTooManyFailures)

		m.RecordSuccess()
		assert.Equal(t, 0, m.ConsecutiveFailures())
		require.NoError(t, m.ResetEmergencyStop())
		assert.False(t, m.IsEmergencyStop())
	})

	t.Run("refusal is published", func(t *testing.T) {
		router := events.NewRouter(100)
		defer router.Close()

		m := newTestMonitor(WithRouter(router))
		for i := 0; i < 4; i++ {
			require.NoError(t, m.ResetEmergencyStop())
		}
		ch := router.Subscribe()
		require.Error(t, m.ResetEmergencyStop())

		got := collect(ch)
		require.Len(t, got, 1)
		reset, ok := got[0].(*events.EmergencyResetEvent)
		require.True(t, ok)
		assert.False(t, reset.Accepted)
		assert.Equal(t, 4, reset.ConsecutiveFailures)
	})
}

func TestFireIsAdvisory(t *testing.T) {
	m := newTestMonitor()

	assert.Equal(t, StateUninitialized, m.Fire(EventStartOperation))
	assert.Equal(t, StateInitialized, m.Fire(EventInitialize))
	assert.Equal(t, StateSafe, m.Fire(EventPassPreflight))
	assert.Equal(t, StateOperating, m.Fire(EventStartOperation))
	assert.Equal(t, StateOperating, m.Fire(EventReset), "undefined pair keeps state")
	assert.Equal(t, StateSafe, m.Fire(EventCompleteOperation))
}

func TestMonitorConcurrentAccess(t *testing.T) {
	m := newTestMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.TriggerEmergencyStop("concurrent")
		}()
		go func() {
			defer wg.Done()
			_ = m.IsEmergencyStop()
			_ = m.State()
		}()
		go func() {
			defer wg.Done()
			m.RecordSuccess()
		}()
	}
	wg.Wait()

	assert.True(t, m.IsEmergencyStop())
}

func TestErrorMessages(t *testing.T) {
	rangeErr := &OutOfRangeError{Quantity: "temperature", Value: 95, Min: 5, Max: 90}
	assert.Equal(t, "temperature 95.0 outside safe range [5.0, 90.0]", rangeErr.Error())
	assert.False(t, errors.Is(rangeErr, ErrRuntimeCapExceeded))

	capErr := &RuntimeCapError{Pump: "cocoa", Requested: 40 * time.Second, Limit: 30 * time.Second}
	assert.Equal(t, "cocoa pump runtime 40s exceeds limit 30s", capErr.Error())
}
