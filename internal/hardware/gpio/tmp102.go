package gpio

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3"
)

const (
	tmp102TempRegister = 0x00
	tmp102Resolution   = 0.0625 // degrees C per LSB
)

// TMP102 reads a Texas Instruments TMP102 over I2C. It implements
// hardware.RawSensor; wrap it in hardware.ResilientSensor for use.
type TMP102 struct {
	dev conn.Conn
}

// NewTMP102 returns a sensor on dev, usually an *i2c.Dev.
func NewTMP102(dev conn.Conn) *TMP102 {
	return &TMP102{dev: dev}
}

// ReadRaw reads the temperature register once.
func (s *TMP102) ReadRaw(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{tmp102TempRegister}, buf); err != nil {
		return 0, fmt.Errorf("tmp102 read %s: %w", s.dev, err)
	}
	return DecodeTMP102(buf[0], buf[1]), nil
}

// DecodeTMP102 converts the two register bytes to degrees Celsius.
// The reading is a 12-bit two's complement value, MSB first.
func DecodeTMP102(msb, lsb byte) float64 {
	raw := int16(uint16(msb)<<4 | uint16(lsb)>>4)
	if raw&0x800 != 0 {
		raw -= 0x1000
	}
	return float64(raw) * tmp102Resolution
}
