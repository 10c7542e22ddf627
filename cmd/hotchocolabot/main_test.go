package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `hardware:
  driver: mock
education:
  show_internals: false
  observation_delay_ms: 0
`

// writeConfig writes a config file and isolates the run from any user or
// working-directory config. An empty body means baseConfig.
func writeConfig(t *testing.T, body string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)

	if body == "" {
		body = baseConfig
	}
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cmd := newRootCmd(viper.New(), logger, &slog.LevelVar{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hotchocolabot dev\n", out)
}

func TestPreflightCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "preflight")
	require.NoError(t, err)
	assert.Contains(t, out, "temperature_sensor")
	assert.Contains(t, out, "emergency_stop")
	assert.Contains(t, out, "preflight passed")
}

func TestPreflightCommandVoltageWindow(t *testing.T) {
	cfgPath, _ := writeConfig(t, baseConfig+`safety:
  min_supply_voltage: 11.5
  max_supply_voltage: 12.5
`)
	out, err := execute(t, "--config", cfgPath, "preflight")
	require.NoError(t, err)
	assert.Contains(t, out, "supply stable at 12.00V")
}

func TestDispenseBlockedByTemperature(t *testing.T) {
	cfgPath, _ := writeConfig(t, `hardware:
  driver: mock
  mock_temperature: 150
education:
  show_internals: false
  observation_delay_ms: 0
`)
	out, err := execute(t, "--config", cfgPath, "dispense", "standard")
	require.Error(t, err)
	assert.Contains(t, out, "preflight passed", "an over-range reading is caught at dispense time")
	assert.Contains(t, out, "temperature: 150.0C")
	assert.NotContains(t, out, "pump milk on")
}

func TestDispenseCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t, "")
	metricsPath := filepath.Join(dir, "hotchoc.prom")

	out, err := execute(t, "--config", cfgPath, "--metrics-textfile", metricsPath, "dispense", "light")
	require.NoError(t, err)
	assert.Contains(t, out, "pump milk on for 6s")
	assert.Contains(t, out, "pump sugar off")
	assert.Contains(t, out, "complete in")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `hotchocolabot_dispenses_total{result="success"} 1`)
}

func TestDispenseUnknownRecipe(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "dispense", "espresso")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown recipe")
}

func TestRunCommandPlain(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	out, err := execute(t, "--config", cfgPath, "run", "--tui=false")
	require.NoError(t, err)
	assert.Contains(t, out, "preflight passed")
	assert.Contains(t, out, "pump milk on for 5s", "standard recipe by default")
}

func TestDriverFlagOverride(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "--driver", "serial", "--serial-port", filepath.Join(t.TempDir(), "missing"), "preflight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open hardware")

	_, err = execute(t, "--config", cfgPath, "--driver", "abacus", "preflight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestConfigInitAndShow(t *testing.T) {
	_, dir := writeConfig(t, "")

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(".hotchocolabot", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, ".hotchocolabot", "config.yaml"))

	_, err = execute(t, "config", "init")
	require.Error(t, err, "existing file is kept without --force")

	_, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "init", "--global")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "xdg", "hotchocolabot", "config.yaml"))
	assert.Contains(t, out, "xdg")

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_pump_runtime_s: 30")
	assert.Contains(t, out, "button_poll_interval: 50ms")
}

func TestConfigShowWarnings(t *testing.T) {
	cfgPath, _ := writeConfig(t, baseConfig+`recipes:
  rich:
    milk_ms: 45000
`)
	out, err := execute(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# warning: recipe rich: milk runs 45s")
}
