package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/mechcc/hotchocolabot/internal/hardware"
)

// PCF8574 backpack bits.
const (
	lcdBacklight = 0x08
	lcdEnable    = 0x04
	lcdRegSelect = 0x01
)

// HD44780 commands.
const (
	lcdClear      = 0x01
	lcdSetDDRAM   = 0x80
	lcdClearDelay = 2 * time.Millisecond
)

var lcdInitSequence = []byte{0x33, 0x32, 0x28, 0x0C, 0x06, 0x01}

var lcdRowOffsets = []int{0x00, 0x40, 0x14, 0x54}

// LCD is an HD44780 character display driven in 4-bit mode through a
// PCF8574 I2C expander. It implements hardware.Display and keeps a shadow
// Screen for bounds checks and readback.
type LCD struct {
	dev   conn.Conn
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	screen *hardware.Screen
}

// NewLCD initialises the controller on dev and clears it.
func NewLCD(dev conn.Conn, rows, cols int) (*LCD, error) {
	return newLCD(dev, rows, cols, hardware.Sleep)
}

func newLCD(dev conn.Conn, rows, cols int, sleep func(context.Context, time.Duration) error) (*LCD, error) {
	if rows > len(lcdRowOffsets) {
		return nil, fmt.Errorf("lcd: %d rows unsupported (max %d)", rows, len(lcdRowOffsets))
	}
	l := &LCD{dev: dev, sleep: sleep, screen: hardware.NewScreen(rows, cols)}
	for _, cmd := range lcdInitSequence {
		if err := l.send(cmd, 0); err != nil {
			return nil, fmt.Errorf("lcd init: %w", err)
		}
	}
	_ = l.sleep(context.Background(), lcdClearDelay)
	return l, nil
}

// Write implements hardware.Display. Text past the last column is dropped
// and '\n' moves to the next row.
func (l *LCD) Write(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, col := l.screen.Cursor()
	for _, r := range text {
		if r == '\n' {
			row++
			col = 0
			if row < l.screen.Rows() {
				if err := l.moveTo(row, col); err != nil {
					return err
				}
			}
			continue
		}
		if row >= l.screen.Rows() || col >= l.screen.Cols() {
			continue
		}
		if err := l.send(charCode(r), lcdRegSelect); err != nil {
			return fmt.Errorf("%w: lcd write: %w", hardware.ErrHardwareFault, err)
		}
		col++
	}
	l.screen.Write(text)
	return nil
}

// Clear implements hardware.Display.
func (l *LCD) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.send(lcdClear, 0); err != nil {
		return fmt.Errorf("%w: lcd clear: %w", hardware.ErrHardwareFault, err)
	}
	l.screen.Clear()
	return l.sleep(context.Background(), lcdClearDelay)
}

// SetCursor implements hardware.Display.
func (l *LCD) SetCursor(row, col int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.screen.SetCursor(row, col); err != nil {
		return err
	}
	return l.moveTo(row, col)
}

// Text returns the shadow screen contents.
func (l *LCD) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.screen.Text()
}

func (l *LCD) moveTo(row, col int) error {
	if err := l.send(byte(lcdSetDDRAM|(lcdRowOffsets[row]+col)), 0); err != nil {
		return fmt.Errorf("%w: lcd cursor: %w", hardware.ErrHardwareFault, err)
	}
	return nil
}

// send writes one byte as two nibbles, each latched by pulsing Enable.
func (l *LCD) send(b byte, mode byte) error {
	high := mode | (b & 0xF0) | lcdBacklight
	low := mode | ((b << 4) & 0xF0) | lcdBacklight
	frame := []byte{
		high | lcdEnable, high,
		low | lcdEnable, low,
	}
	return l.dev.Tx(frame, nil)
}

// charCode maps a rune onto the HD44780 ROM; non-ASCII shows as '?'.
func charCode(r rune) byte {
	if r < 0x20 || r > 0x7E {
		return '?'
	}
	return byte(r)
}

var _ hardware.Display = (*LCD)(nil)
