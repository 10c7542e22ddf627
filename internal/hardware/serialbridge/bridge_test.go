package serialbridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// fakeDevice answers commands as the bridge firmware would. Unscripted
// commands are acknowledged with "ok".
type fakeDevice struct {
	mu       sync.Mutex
	replies  map[string][]string
	commands []string
	pending  []byte
	out      bytes.Buffer
	closed   bool
	writeErr error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		replies: map[string][]string{
			"ID":   {"<<HotChocolaBridge 1.2>>", "ok"},
			"TEMP": {"61.25", "ok"},
			"BTN":  {"0", "ok"},
			"VOLT": {"12.1", "ok"},
		},
	}
}

func (d *fakeDevice) reply(cmd string, lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[cmd] = lines
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.pending = append(d.pending, p...)
	for {
		i := bytes.IndexByte(d.pending, '\r')
		if i < 0 {
			break
		}
		cmd := string(d.pending[:i])
		d.pending = d.pending[i+1:]
		d.commands = append(d.commands, cmd)
		lines, ok := d.replies[cmd]
		if !ok {
			lines = []string{"ok"}
		}
		for _, l := range lines {
			d.out.WriteString(l + "\r\n")
		}
	}
	return len(p), nil
}

// Read returns a zero-length read when nothing is queued, like a serial timeout.
func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func connect(t *testing.T) (*Bridge, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	b, err := New(dev)
	require.NoError(t, err)
	return b, dev
}

func TestNew_Identifies(t *testing.T) {
	b, dev := connect(t)

	assert.Equal(t, "HotChocolaBridge 1.2", b.Ident())
	assert.Equal(t, []string{"ID"}, dev.sent())
}

func TestNew_InvalidIdentification(t *testing.T) {
	dev := newFakeDevice()
	dev.reply("ID", "hello", "ok")

	_, err := New(dev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identification")
	assert.False(t, dev.closed)
}

func TestNew_Silent(t *testing.T) {
	dev := newFakeDevice()
	dev.reply("ID")

	_, err := New(dev)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, hardware.ErrHardwareFault)
}

func TestBridge_Queries(t *testing.T) {
	b, dev := connect(t)
	ctx := context.Background()

	temp, err := b.ReadRaw(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 61.25, temp, 1e-9)

	pressed, err := b.Pressed(ctx)
	require.NoError(t, err)
	assert.False(t, pressed)

	dev.reply("BTN", "1", "ok")
	pressed, err = b.Pressed(ctx)
	require.NoError(t, err)
	assert.True(t, pressed)

	volts, err := b.SupplyVoltage(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 12.1, volts, 1e-9)

	require.NoError(t, b.Check(ctx))
	assert.Equal(t, []string{"ID", "TEMP", "BTN", "BTN", "VOLT", "PING"}, dev.sent())
}

func TestBridge_MalformedReplies(t *testing.T) {
	b, dev := connect(t)
	ctx := context.Background()

	dev.reply("TEMP", "hot", "ok")
	_, err := b.ReadRaw(ctx)
	assert.ErrorContains(t, err, "parse reply")

	dev.reply("BTN", "maybe", "ok")
	_, err = b.Pressed(ctx)
	assert.ErrorContains(t, err, "unexpected reply")

	dev.reply("VOLT", "12.0", "nak")
	_, err = b.SupplyVoltage(ctx)
	assert.ErrorIs(t, err, hardware.ErrHardwareFault)
}

func TestBridge_NonFiniteReplies(t *testing.T) {
	b, dev := connect(t)
	ctx := context.Background()

	for _, reply := range []string{"nan", "NaN", "inf", "-Inf"} {
		dev.reply("TEMP", reply, "ok")
		_, err := b.ReadRaw(ctx)
		assert.ErrorContains(t, err, "non-finite", "reply %q", reply)
	}

	dev.reply("VOLT", "nan", "ok")
	_, err := b.SupplyVoltage(ctx)
	assert.ErrorContains(t, err, "non-finite")
}

func TestBridge_DeviceError(t *testing.T) {
	b, dev := connect(t)
	dev.reply("TEMP", "err sensor not found")

	_, err := b.ReadRaw(context.Background())
	require.Error(t, err)

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "TEMP", devErr.Command)
	assert.Equal(t, "sensor not found", devErr.Message)
	assert.ErrorIs(t, err, hardware.ErrHardwareFault)
}

func TestBridge_CancelledContext(t *testing.T) {
	b, dev := connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.ReadRaw(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.Pressed(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, b.Check(ctx), context.Canceled)
	assert.Equal(t, []string{"ID"}, dev.sent())
}

func TestBridge_WriteFailure(t *testing.T) {
	b, dev := connect(t)
	dev.mu.Lock()
	dev.writeErr = errors.New("unplugged")
	dev.mu.Unlock()

	err := b.Check(context.Background())
	assert.ErrorIs(t, err, hardware.ErrHardwareFault)
	assert.ErrorContains(t, err, "unplugged")
}

func TestBridge_PumpSwitch(t *testing.T) {
	b, dev := connect(t)

	pump, err := hardware.NewSwitchedPump("Cocoa", b.Pump(CocoaChannel),
		hardware.WithPumpClock(func(context.Context, time.Duration) error { return nil }, nil))
	require.NoError(t, err)

	require.NoError(t, pump.Dispense(context.Background(), 10*time.Millisecond))
	require.NoError(t, pump.Check(context.Background()))

	assert.Equal(t, []string{"ID", "PUMP 1 OFF", "PUMP 1 ON", "PUMP 1 OFF", "PING"}, dev.sent())
}

func TestBridge_PumpSwitchFault(t *testing.T) {
	b, dev := connect(t)
	dev.reply("PUMP 2 ON", "err relay stuck")

	sw := b.Pump(SugarChannel)
	err := sw.SetOn(true)
	assert.ErrorIs(t, err, hardware.ErrHardwareFault)
	assert.True(t, strings.Contains(err.Error(), "relay stuck"))
}

func TestBridge_Close(t *testing.T) {
	b, dev := connect(t)
	require.NoError(t, b.Close())
	assert.True(t, dev.closed)
}
