// Package serialbridge talks to a microcontroller that owns the pump
// relays, sensor, LCD and stop button, over a line-oriented serial
// protocol.
//
// Commands are ASCII terminated by "\r". Every command is acknowledged
// with "ok"; queries send one reply line before the acknowledgement.
// A line starting with "err " reports a device-side failure.
//
//	ID               -> <<name version>>, ok
//	PING             -> ok
//	PUMP <n> ON|OFF  -> ok
//	TEMP             -> <celsius>, ok
//	BTN              -> 0|1, ok
//	VOLT             -> <volts>, ok
//	LCD CLR          -> ok
//	LCD POS <r>,<c>  -> ok
//	LCD TXT <text>   -> ok
package serialbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// Defaults for Open.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 2 * time.Second
)

// Pump channels on the bridge.
const (
	MilkChannel  = 0
	CocoaChannel = 1
	SugarChannel = 2
)

// ErrTimeout is returned when the device does not finish a reply line in time.
var ErrTimeout = errors.New("serial bridge: reply timeout")

// DeviceError is an "err" reply from the bridge.
type DeviceError struct {
	Command string
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("serial bridge: %s: %s", e.Command, e.Message)
}

// Is reports device errors as hardware faults.
func (e *DeviceError) Is(target error) bool {
	return target == hardware.ErrHardwareFault
}

// Bridge is a connected microcontroller. Commands are serialised, so a
// Bridge may be shared by the pumps, the button watcher and the display.
type Bridge struct {
	stream io.ReadWriteCloser
	logger *slog.Logger
	ident  string

	mu sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Open opens port at baud (0 means DefaultBaudRate) and identifies the device.
func Open(port string, baud int, opts ...Option) (*Bridge, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	stream, err := serial.Open(port, &mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	if err := stream.SetReadTimeout(DefaultReadTimeout); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", port, err)
	}
	b, err := New(stream, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	return b, nil
}

// New identifies the device on an open stream. The stream is not closed on error.
func New(stream io.ReadWriteCloser, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		stream: stream,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	reply, err := b.query("ID")
	if err != nil {
		return nil, fmt.Errorf("identify bridge: %w", err)
	}
	if !strings.HasPrefix(reply, "<<") || !strings.HasSuffix(reply, ">>") {
		return nil, fmt.Errorf("identify bridge: invalid identification %q, expected '<< ... >>'", reply)
	}
	b.ident = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(reply, "<<"), ">>"))
	b.logger.Info("serial bridge connected", "ident", b.ident)
	return b, nil
}

// Ident returns the identification string without the angle brackets.
func (b *Bridge) Ident() string {
	return b.ident
}

// Close releases the stream.
func (b *Bridge) Close() error {
	return b.stream.Close()
}

// Check pings the device. It implements hardware.Checker.
func (b *Bridge) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.command("PING")
}

// Pump returns the relay on channel as a hardware.Switch.
func (b *Bridge) Pump(channel int) hardware.Switch {
	return &pumpSwitch{bridge: b, channel: channel}
}

// ReadRaw reads the temperature once. It implements hardware.RawSensor.
func (b *Bridge) ReadRaw(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.queryFloat("TEMP")
}

// Pressed reads the stop button. It implements hardware.EmergencyButton.
func (b *Bridge) Pressed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	reply, err := b.query("BTN")
	if err != nil {
		return false, err
	}
	switch reply {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("BTN: unexpected reply %q", reply)
}

// SupplyVoltage reads the supply rail. It implements hardware.PowerMonitor.
func (b *Bridge) SupplyVoltage(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.queryFloat("VOLT")
}

func (b *Bridge) queryFloat(cmd string) (float64, error) {
	reply, err := b.query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parse reply %q: %w", cmd, reply, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: non-finite reply %q", cmd, reply)
	}
	return v, nil
}

// command sends cmd and waits for the acknowledgement.
func (b *Bridge) command(format string, a ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd := fmt.Sprintf(format, a...)
	if err := b.emit(cmd); err != nil {
		return err
	}
	return b.awaitAck(cmd)
}

// query sends cmd and returns its reply line.
func (b *Bridge) query(cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.emit(cmd); err != nil {
		return "", err
	}
	reply, err := b.awaitReply(cmd)
	if err != nil {
		return "", err
	}
	if err := b.awaitAck(cmd); err != nil {
		return "", err
	}
	return reply, nil
}

func (b *Bridge) emit(cmd string) error {
	b.logger.Debug("serial bridge send", "command", cmd)
	if _, err := io.WriteString(b.stream, cmd+"\r"); err != nil {
		return fmt.Errorf("%w: write %s: %w", hardware.ErrHardwareFault, cmd, err)
	}
	return nil
}

func (b *Bridge) awaitAck(cmd string) error {
	ack, err := b.awaitReply(cmd)
	if err != nil {
		return err
	}
	if ack != "ok" {
		return fmt.Errorf("%w: %s: expected 'ok', got %q", hardware.ErrHardwareFault, cmd, ack)
	}
	return nil
}

// awaitReply reads one line, dropping '\r'. An "err" line becomes a DeviceError.
func (b *Bridge) awaitReply(cmd string) (string, error) {
	buf := []byte{0}
	var out []byte
	for {
		n, err := b.stream.Read(buf)
		if err != nil {
			return "", fmt.Errorf("%w: read %s reply: %w", hardware.ErrHardwareFault, cmd, err)
		}
		if n == 0 {
			// go.bug.st/serial reports a read timeout as a zero-length read.
			return "", fmt.Errorf("%w: %s: %w", hardware.ErrHardwareFault, cmd, ErrTimeout)
		}
		if buf[0] == '\r' {
			continue
		}
		if buf[0] == '\n' {
			break
		}
		out = append(out, buf[0])
	}

	line := string(out)
	b.logger.Debug("serial bridge reply", "command", cmd, "reply", line)
	if msg, ok := strings.CutPrefix(line, "err "); ok {
		return "", &DeviceError{Command: cmd, Message: msg}
	}
	return line, nil
}

type pumpSwitch struct {
	bridge  *Bridge
	channel int
}

func (p *pumpSwitch) SetOn(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return p.bridge.command("PUMP %d %s", p.channel, state)
}

func (p *pumpSwitch) Check(ctx context.Context) error {
	return p.bridge.Check(ctx)
}

var (
	_ hardware.RawSensor       = (*Bridge)(nil)
	_ hardware.EmergencyButton = (*Bridge)(nil)
	_ hardware.PowerMonitor    = (*Bridge)(nil)
	_ hardware.Checker         = (*Bridge)(nil)
)
