// Package gpio drives the bench hardware directly from a Raspberry Pi:
// relay pumps and the stop button on GPIO pins, a TMP102 sensor and an
// HD44780 LCD behind a PCF8574 backpack on I2C.
package gpio

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Init loads the periph host drivers. It must run before any pin lookup.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph host: %w", err)
	}
	return nil
}

// PinName returns the periph name of a BCM pin number.
func PinName(bcm int) string {
	return fmt.Sprintf("GPIO%d", bcm)
}

func lookup(bcm int) (gpio.PinIO, error) {
	pin := gpioreg.ByName(PinName(bcm))
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %d not found", bcm)
	}
	return pin, nil
}

// Relay is an active-high relay output.
type Relay struct {
	pin gpio.PinOut
}

// OpenRelay looks up a BCM pin for relay output.
func OpenRelay(bcm int) (*Relay, error) {
	pin, err := lookup(bcm)
	if err != nil {
		return nil, err
	}
	return NewRelay(pin), nil
}

// NewRelay wraps an output pin.
func NewRelay(pin gpio.PinOut) *Relay {
	return &Relay{pin: pin}
}

// SetOn implements hardware.Switch.
func (r *Relay) SetOn(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := r.pin.Out(level); err != nil {
		return fmt.Errorf("set %s %v: %w", r.pin, level, err)
	}
	return nil
}

// Button is a normally-open stop button wired to ground with the internal
// pull-up enabled, so a press reads low.
type Button struct {
	pin gpio.PinIn
}

// OpenButton looks up and configures a BCM pin as the stop button input.
func OpenButton(bcm int) (*Button, error) {
	pin, err := lookup(bcm)
	if err != nil {
		return nil, err
	}
	return NewButton(pin)
}

// NewButton configures pin as a pulled-up input.
func NewButton(pin gpio.PinIn) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure button %s: %w", pin, err)
	}
	return &Button{pin: pin}, nil
}

// Pressed implements hardware.EmergencyButton.
func (b *Button) Pressed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.pin.Read() == gpio.Low, nil
}
