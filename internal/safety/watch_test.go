package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mechcc/hotchocolabot/internal/hardware"
	hwmock "github.com/mechcc/hotchocolabot/internal/hardware/mock"
)

type stubButton struct{ mock.Mock }

func (b *stubButton) Pressed(ctx context.Context) (bool, error) {
	ret := b.Called(ctx)
	return ret.Bool(0), ret.Error(1)
}

func runWatcher(t *testing.T, m *Monitor, button hardware.EmergencyButton) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchButton(ctx, button, m, time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatchButton_PressLatches(t *testing.T) {
	m := newTestMonitor()
	button := hwmock.NewButton()
	runWatcher(t, m, button)

	time.Sleep(5 * time.Millisecond)
	require.False(t, m.IsEmergencyStop())

	button.Press()
	require.Eventually(t, m.IsEmergencyStop, time.Second, time.Millisecond)
	assert.Equal(t, "emergency stop button pressed", m.EmergencyStopReason())
}

func TestWatchButton_HeldButtonTriggersOncePerPress(t *testing.T) {
	m := newTestMonitor()
	button := hwmock.NewButton()
	button.Press()
	runWatcher(t, m, button)

	require.Eventually(t, m.IsEmergencyStop, time.Second, time.Millisecond)

	// Still held: a reset is not immediately undone by the same press.
	require.NoError(t, m.ResetEmergencyStop())
	time.Sleep(10 * time.Millisecond)
	assert.False(t, m.IsEmergencyStop())

	button.Release()
	time.Sleep(5 * time.Millisecond)
	button.Press()
	require.Eventually(t, m.IsEmergencyStop, time.Second, time.Millisecond)
}

func TestWatchButton_UnreadableButtonLatches(t *testing.T) {
	m := newTestMonitor()
	button := &stubButton{}
	button.On("Pressed", mock.Anything).Return(false, errors.New("gpio gone"))
	runWatcher(t, m, button)

	require.Eventually(t, m.IsEmergencyStop, time.Second, time.Millisecond)
	assert.Equal(t, "emergency stop button unreadable", m.EmergencyStopReason())
}

func TestWatchButton_TransientErrorTolerated(t *testing.T) {
	m := newTestMonitor()
	button := &stubButton{}
	button.On("Pressed", mock.Anything).Return(false, errors.New("glitch")).Once()
	button.On("Pressed", mock.Anything).Return(false, nil)
	runWatcher(t, m, button)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, m.IsEmergencyStop())
}

func TestWatchButton_NilButtonReturns(t *testing.T) {
	m := newTestMonitor()
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchButton(context.Background(), nil, m, time.Millisecond)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchButton with nil button did not return")
	}
}
