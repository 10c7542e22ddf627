// Package config provides configuration types and defaults for hotchocolabot.
package config

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
)

// Hardware driver names.
const (
	DriverMock   = "mock"
	DriverGPIO   = "gpio"
	DriverSerial = "serial"
)

// Config holds all configuration for hotchocolabot.
type Config struct {
	Hardware    HardwareConfig    `yaml:"hardware" mapstructure:"hardware"`
	Safety      SafetyConfig      `yaml:"safety" mapstructure:"safety"`
	Recipes     RecipeConfig      `yaml:"recipes" mapstructure:"recipes"`
	Education   EducationConfig   `yaml:"education" mapstructure:"education"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	LogRotation LogRotationConfig `yaml:"log_rotation" mapstructure:"log_rotation"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// HardwareConfig selects the driver and holds pin and bus assignments.
type HardwareConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // mock, gpio or serial

	// GPIO pin numbers (BCM numbering)
	CocoaPumpPin     int `yaml:"cocoa_pump_pin" mapstructure:"cocoa_pump_pin"`
	MilkPumpPin      int `yaml:"milk_pump_pin" mapstructure:"milk_pump_pin"`
	SugarPumpPin     int `yaml:"sugar_pump_pin" mapstructure:"sugar_pump_pin"`
	EmergencyStopPin int `yaml:"emergency_stop_pin" mapstructure:"emergency_stop_pin"`

	// I2C
	I2CBus         string `yaml:"i2c_bus" mapstructure:"i2c_bus"` // empty = first available bus
	TempSensorAddr int    `yaml:"temp_sensor_addr" mapstructure:"temp_sensor_addr"`
	LCDAddr        int    `yaml:"lcd_addr" mapstructure:"lcd_addr"`
	DisplayRows    int    `yaml:"display_rows" mapstructure:"display_rows"`
	DisplayCols    int    `yaml:"display_cols" mapstructure:"display_cols"`

	// Serial bridge
	SerialPort string `yaml:"serial_port" mapstructure:"serial_port"`
	BaudRate   int    `yaml:"baud_rate" mapstructure:"baud_rate"`

	// Mock driver
	MockTemperature float64 `yaml:"mock_temperature" mapstructure:"mock_temperature"`
	MockRealtime    bool    `yaml:"mock_realtime" mapstructure:"mock_realtime"` // sleep for real dispense durations
}

// SafetyConfig holds the interlock limits.
type SafetyConfig struct {
	MaxTemperature       float64       `yaml:"max_temperature" mapstructure:"max_temperature"`
	MinTemperature       float64       `yaml:"min_temperature" mapstructure:"min_temperature"`
	MaxPumpRuntimeS      uint64        `yaml:"max_pump_runtime_s" mapstructure:"max_pump_runtime_s"`
	OperationTimeoutS    uint64        `yaml:"operation_timeout_s" mapstructure:"operation_timeout_s"`
	VerboseLogging       bool          `yaml:"verbose_logging" mapstructure:"verbose_logging"`
	EmergencyStopEnabled bool          `yaml:"emergency_stop_enabled" mapstructure:"emergency_stop_enabled"`
	ButtonPollInterval   time.Duration `yaml:"button_poll_interval" mapstructure:"button_poll_interval"`
	MinSupplyVoltage     float64       `yaml:"min_supply_voltage" mapstructure:"min_supply_voltage"` // 0 with max 0 = unmonitored
	MaxSupplyVoltage     float64       `yaml:"max_supply_voltage" mapstructure:"max_supply_voltage"`
}

// MaxPumpRuntime returns the per-actuation runtime ceiling.
func (c SafetyConfig) MaxPumpRuntime() time.Duration {
	return time.Duration(c.MaxPumpRuntimeS) * time.Second
}

// OperationTimeout bounds individual hardware queries such as preflight checks.
func (c SafetyConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutS) * time.Second
}

// VoltageMonitored reports whether a supply voltage window is configured.
func (c SafetyConfig) VoltageMonitored() bool {
	return c.MinSupplyVoltage != 0 || c.MaxSupplyVoltage != 0
}

// Ingredient names a pump line.
type Ingredient string

// Ingredients, listed in dispense order.
const (
	Milk  Ingredient = "milk"
	Cocoa Ingredient = "cocoa"
	Sugar Ingredient = "sugar"
)

// DispenseOrder is the fixed ingredient sequence: base liquid first.
var DispenseOrder = []Ingredient{Milk, Cocoa, Sugar}

// Recipe is one drink definition.
type Recipe struct {
	CocoaMS    uint64  `yaml:"cocoa_ms" mapstructure:"cocoa_ms"`
	MilkMS     uint64  `yaml:"milk_ms" mapstructure:"milk_ms"`
	SugarMS    uint64  `yaml:"sugar_ms" mapstructure:"sugar_ms"`
	TargetTemp float64 `yaml:"target_temp" mapstructure:"target_temp"`
}

// Duration returns the dispense time for an ingredient.
func (r Recipe) Duration(i Ingredient) time.Duration {
	var ms uint64
	switch i {
	case Milk:
		ms = r.MilkMS
	case Cocoa:
		ms = r.CocoaMS
	case Sugar:
		ms = r.SugarMS
	}
	return time.Duration(ms) * time.Millisecond
}

// RecipeConfig holds the named recipes.
type RecipeConfig struct {
	Standard Recipe `yaml:"standard" mapstructure:"standard"`
	Light    Recipe `yaml:"light" mapstructure:"light"`
	Rich     Recipe `yaml:"rich" mapstructure:"rich"`
}

// ErrUnknownRecipe is returned by Lookup for names other than standard, light and rich.
var ErrUnknownRecipe = errors.New("unknown recipe")

// All returns the recipes keyed by name.
func (c RecipeConfig) All() map[string]Recipe {
	return map[string]Recipe{
		"standard": c.Standard,
		"light":    c.Light,
		"rich":     c.Rich,
	}
}

// Names returns the recipe names in sorted order.
func (c RecipeConfig) Names() []string {
	names := make([]string, 0, 3)
	for name := range c.All() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a recipe by name.
func (c RecipeConfig) Lookup(name string) (Recipe, error) {
	r, ok := c.All()[name]
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownRecipe, name, c.Names())
	}
	return r, nil
}

// EducationConfig holds classroom settings.
type EducationConfig struct {
	ChallengeMode          bool   `yaml:"challenge_mode" mapstructure:"challenge_mode"`
	ShowInternals          bool   `yaml:"show_internals" mapstructure:"show_internals"`
	EnableTeachingFailures bool   `yaml:"enable_teaching_failures" mapstructure:"enable_teaching_failures"`
	TeachingFailureEvery   int    `yaml:"teaching_failure_every" mapstructure:"teaching_failure_every"` // mock sensor fails every Nth read
	ObservationDelayMS     uint64 `yaml:"observation_delay_ms" mapstructure:"observation_delay_ms"`
}

// ObservationDelay is the pause inserted after each step for observation.
func (c EducationConfig) ObservationDelay() time.Duration {
	return time.Duration(c.ObservationDelayMS) * time.Millisecond
}

// PathsConfig holds file locations.
type PathsConfig struct {
	Log    string `yaml:"log" mapstructure:"log"`       // debug log used by the TUI, console and serve
	Socket string `yaml:"socket" mapstructure:"socket"` // control socket for serve
	PID    string `yaml:"pid" mapstructure:"pid"`       // instance lock held by serve
}

// LogRotationConfig holds settings for log file rotation.
// Used for the TUI debug log (lumberjack-based automatic rotation).
type LogRotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `yaml:"compress" mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"` // empty disables
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var err error

	s := c.Safety
	if s.MaxTemperature <= s.MinTemperature {
		err = multierr.Append(err, fmt.Errorf("safety.max_temperature (%.1f) must be greater than safety.min_temperature (%.1f)",
			s.MaxTemperature, s.MinTemperature))
	}
	if s.MaxPumpRuntimeS == 0 {
		err = multierr.Append(err, errors.New("safety.max_pump_runtime_s must be greater than 0"))
	}
	if s.VoltageMonitored() && s.MaxSupplyVoltage <= s.MinSupplyVoltage {
		err = multierr.Append(err, fmt.Errorf("safety.max_supply_voltage (%.2f) must be greater than safety.min_supply_voltage (%.2f)",
			s.MaxSupplyVoltage, s.MinSupplyVoltage))
	}

	switch c.Hardware.Driver {
	case DriverMock, DriverGPIO:
	case DriverSerial:
		if c.Hardware.SerialPort == "" {
			err = multierr.Append(err, errors.New("hardware.serial_port is required for the serial driver"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("hardware.driver %q is not one of %s, %s, %s",
			c.Hardware.Driver, DriverMock, DriverGPIO, DriverSerial))
	}

	return err
}

// Warnings reports recipe steps that will trip the runtime cap. They are
// not validation errors: an oversized step escalates to an emergency stop
// at dispense time.
func (c *Config) Warnings() []string {
	var warnings []string
	limit := c.Safety.MaxPumpRuntime()
	for _, name := range c.Recipes.Names() {
		r := c.Recipes.All()[name]
		for _, ing := range DispenseOrder {
			if d := r.Duration(ing); d > limit {
				warnings = append(warnings, fmt.Sprintf("recipe %s: %s runs %v, above the %v pump runtime limit", name, ing, d, limit))
			}
		}
	}
	return warnings
}

// Default returns a Config matching the reference bench build.
func Default() *Config {
	return &Config{
		Hardware: HardwareConfig{
			Driver:           DriverMock,
			CocoaPumpPin:     17,
			MilkPumpPin:      27,
			SugarPumpPin:     22,
			EmergencyStopPin: 23,
			TempSensorAddr:   0x48,
			LCDAddr:          0x27,
			DisplayRows:      2,
			DisplayCols:      16,
			SerialPort:       "/dev/ttyUSB0",
			BaudRate:         115200,
			MockTemperature:  20.0,
		},
		Safety: SafetyConfig{
			MaxTemperature:       90.0,
			MinTemperature:       5.0,
			MaxPumpRuntimeS:      30,
			OperationTimeoutS:    120,
			VerboseLogging:       true,
			EmergencyStopEnabled: true,
			ButtonPollInterval:   50 * time.Millisecond,
			MinSupplyVoltage:     4.75,
			MaxSupplyVoltage:     5.25,
		},
		Recipes: RecipeConfig{
			Standard: Recipe{CocoaMS: 2000, MilkMS: 5000, SugarMS: 1000, TargetTemp: 65.0},
			Light:    Recipe{CocoaMS: 1000, MilkMS: 6000, SugarMS: 800, TargetTemp: 65.0},
			Rich:     Recipe{CocoaMS: 3000, MilkMS: 4000, SugarMS: 1200, TargetTemp: 70.0},
		},
		Education: EducationConfig{
			ChallengeMode:          false,
			ShowInternals:          true,
			EnableTeachingFailures: false,
			TeachingFailureEvery:   4,
			ObservationDelayMS:     500,
		},
		Paths: PathsConfig{
			Log:    ".hotchocolabot/hotchocolabot-debug.log",
			Socket: ".hotchocolabot/hotchocolabot.sock",
			PID:    ".hotchocolabot/hotchocolabot.pid",
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}
