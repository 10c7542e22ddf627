// Package rig assembles a hardware.Set for the configured driver.
package rig

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/hardware"
	"github.com/mechcc/hotchocolabot/internal/hardware/gpio"
	"github.com/mechcc/hotchocolabot/internal/hardware/mock"
	"github.com/mechcc/hotchocolabot/internal/hardware/serialbridge"
)

// Open builds the hardware for cfg.Hardware.Driver. Real sensors are
// wrapped in a hardware.ResilientSensor. Close the returned set to switch
// the pumps off and release buses and ports.
func Open(cfg *config.Config, logger *slog.Logger) (*hardware.Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", cfg.Hardware.Driver)

	switch cfg.Hardware.Driver {
	case config.DriverMock:
		set, _ := OpenMock(cfg, logger)
		return set, nil
	case config.DriverGPIO:
		return openGPIO(cfg, logger)
	case config.DriverSerial:
		bridge, err := serialbridge.Open(cfg.Hardware.SerialPort, cfg.Hardware.BaudRate,
			serialbridge.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		set, err := FromBridge(cfg, bridge, logger)
		if err != nil {
			_ = bridge.Close()
			return nil, err
		}
		return set, nil
	}
	return nil, fmt.Errorf("unknown hardware driver %q", cfg.Hardware.Driver)
}

// OpenMock builds simulated hardware. Pumps return immediately unless
// hardware.mock_realtime is set. With education.enable_teaching_failures
// the sensor fails every Nth read, and the resilient wrapper covers for it.
func OpenMock(cfg *config.Config, logger *slog.Logger) (*hardware.Set, *mock.Fixture) {
	sleep := mock.NoSleep
	if cfg.Hardware.MockRealtime {
		sleep = mock.Sleep
	}
	_, fx := mock.NewSet(cfg.Hardware.MockTemperature, sleep, logger)
	fx.Display = mock.NewDisplay(cfg.Hardware.DisplayRows, cfg.Hardware.DisplayCols, logger)

	if s := cfg.Safety; s.VoltageMonitored() {
		fx.Power.Set((s.MinSupplyVoltage+s.MaxSupplyVoltage)/2, nil)
	}

	set := fx.Set()
	if cfg.Education.EnableTeachingFailures {
		fx.Sensor.FailEvery(cfg.Education.TeachingFailureEvery)
		set.Sensor = resilient(fx.Sensor, logger)
		logger.Info("teaching failures enabled", "fail_every", cfg.Education.TeachingFailureEvery)
	}
	return set, fx
}

// FromBridge builds a set whose devices all live behind a serial bridge.
// The bridge is closed with the set.
func FromBridge(cfg *config.Config, bridge *serialbridge.Bridge, logger *slog.Logger) (*hardware.Set, error) {
	set := &hardware.Set{
		Sensor:  resilient(bridge, logger),
		Display: bridge.Display(cfg.Hardware.DisplayRows, cfg.Hardware.DisplayCols),
		Button:  bridge,
		Power:   bridge,
	}
	set.AddCloser(bridge)

	pumps := []struct {
		name    string
		channel int
		dst     *hardware.Pump
	}{
		{"Milk", serialbridge.MilkChannel, &set.Milk},
		{"Cocoa", serialbridge.CocoaChannel, &set.Cocoa},
		{"Sugar", serialbridge.SugarChannel, &set.Sugar},
	}
	for _, p := range pumps {
		pump, err := hardware.NewSwitchedPump(p.name, bridge.Pump(p.channel), hardware.WithPumpLogger(logger))
		if err != nil {
			return nil, err
		}
		*p.dst = pump
	}
	return set, nil
}

func openGPIO(cfg *config.Config, logger *slog.Logger) (*hardware.Set, error) {
	hw := cfg.Hardware
	if err := gpio.Init(); err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(hw.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", hw.I2CBus, err)
	}
	set := &hardware.Set{}
	set.AddCloser(bus)

	fail := func(err error) (*hardware.Set, error) {
		_ = set.Close()
		return nil, err
	}

	lcd, err := gpio.NewLCD(&i2c.Dev{Bus: bus, Addr: uint16(hw.LCDAddr)}, hw.DisplayRows, hw.DisplayCols)
	if err != nil {
		return fail(err)
	}
	set.Display = lcd
	set.Sensor = resilient(gpio.NewTMP102(&i2c.Dev{Bus: bus, Addr: uint16(hw.TempSensorAddr)}), logger)

	pumps := []struct {
		name string
		pin  int
		dst  *hardware.Pump
	}{
		{"Milk", hw.MilkPumpPin, &set.Milk},
		{"Cocoa", hw.CocoaPumpPin, &set.Cocoa},
		{"Sugar", hw.SugarPumpPin, &set.Sugar},
	}
	for _, p := range pumps {
		relay, err := gpio.OpenRelay(p.pin)
		if err != nil {
			return fail(err)
		}
		pump, err := hardware.NewSwitchedPump(p.name, relay, hardware.WithPumpLogger(logger))
		if err != nil {
			return fail(err)
		}
		*p.dst = pump
	}

	if cfg.Safety.EmergencyStopEnabled {
		button, err := gpio.OpenButton(hw.EmergencyStopPin)
		if err != nil {
			return fail(err)
		}
		set.Button = button
	}

	logger.Info("gpio hardware ready",
		"milk_pin", hw.MilkPumpPin,
		"cocoa_pin", hw.CocoaPumpPin,
		"sugar_pin", hw.SugarPumpPin,
		"i2c_bus", hw.I2CBus)
	return set, nil
}

func resilient(raw hardware.RawSensor, logger *slog.Logger) *hardware.ResilientSensor {
	return hardware.NewResilientSensor(raw, hardware.WithSensorLogger(logger))
}
