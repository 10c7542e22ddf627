package hardware_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// relay records every SetOn call.
type relay struct {
	mu      sync.Mutex
	states  []bool
	failOn  error
	failOff error
}

func (r *relay) SetOn(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on && r.failOn != nil {
		return r.failOn
	}
	if !on && r.failOff != nil {
		return r.failOff
	}
	r.states = append(r.states, on)
	return nil
}

func (r *relay) history() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

// fakeClock advances by the slept duration.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newSwitchedPump(t *testing.T, r *relay) *hardware.SwitchedPump {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	p, err := hardware.NewSwitchedPump("Milk", r, hardware.WithPumpClock(clock.Sleep, clock.Now))
	require.NoError(t, err)
	return p
}

func TestSwitchedPumpDispense(t *testing.T) {
	r := &relay{}
	p := newSwitchedPump(t, r)

	require.NoError(t, p.Dispense(context.Background(), 5*time.Second))
	require.NoError(t, p.Dispense(context.Background(), time.Second))

	assert.Equal(t, []bool{false, true, false, true, false}, r.history(), "starts off, then on/off per dispense")
	assert.Equal(t, 6*time.Second, p.TotalRuntime())
	assert.False(t, p.IsRunning())

	p.ResetCounter()
	assert.Equal(t, time.Duration(0), p.TotalRuntime())
}

func TestSwitchedPumpCancelled(t *testing.T) {
	r := &relay{}
	p, err := hardware.NewSwitchedPump("Cocoa", r)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = p.Dispense(ctx, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.IsRunning())
	assert.Equal(t, []bool{false, true, false}, r.history(), "switched off on cancellation")
	assert.Less(t, p.TotalRuntime(), time.Minute)
}

func TestSwitchedPumpFaults(t *testing.T) {
	t.Run("init failure", func(t *testing.T) {
		_, err := hardware.NewSwitchedPump("Sugar", &relay{failOff: errors.New("bus error")})
		require.ErrorIs(t, err, hardware.ErrHardwareFault)
	})

	t.Run("on failure", func(t *testing.T) {
		r := &relay{}
		p := newSwitchedPump(t, r)
		r.failOn = errors.New("relay dead")

		err := p.Dispense(context.Background(), time.Second)
		require.ErrorIs(t, err, hardware.ErrHardwareFault)
		assert.False(t, p.IsRunning())
		assert.Equal(t, time.Duration(0), p.TotalRuntime())
	})

	t.Run("off failure", func(t *testing.T) {
		r := &relay{}
		p := newSwitchedPump(t, r)
		r.failOff = errors.New("relay welded")

		err := p.Dispense(context.Background(), time.Second)
		require.ErrorIs(t, err, hardware.ErrHardwareFault)
		require.ErrorIs(t, p.Stop(), hardware.ErrHardwareFault)
	})
}

func TestSwitchedPumpAlreadyRunning(t *testing.T) {
	r := &relay{}
	started := make(chan struct{})
	release := make(chan struct{})
	p, err := hardware.NewSwitchedPump("Milk", r, hardware.WithPumpClock(func(ctx context.Context, d time.Duration) error {
		close(started)
		<-release
		return nil
	}, nil))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Dispense(context.Background(), time.Second) }()
	<-started

	assert.True(t, p.IsRunning())
	require.NoError(t, p.Dispense(context.Background(), time.Second), "second dispense is a warned no-op")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []bool{false, true, false}, r.history())
}
