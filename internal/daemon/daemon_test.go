package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/dispense"
	"github.com/mechcc/hotchocolabot/internal/hardware/mock"
	"github.com/mechcc/hotchocolabot/internal/safety"
)

// shortSocketPath returns a socket path short enough for the Unix limit
// (104 bytes on macOS, 108 on Linux).
func shortSocketPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "sock")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path)
	t.Cleanup(func() { _ = os.Remove(path) })
	return path
}

type testDaemon struct {
	*Daemon
	fixture *mock.Fixture
	client  *Client
}

// startDaemon serves a mock machine on a fresh socket until the test ends.
func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)
	cfg.Education.ShowInternals = false
	cfg.Education.ObservationDelayMS = 0

	set, fx := mock.NewSet(20.0, mock.NoSleep, logger)
	monitor := safety.New(cfg.Safety, safety.WithLogger(logger))
	ctrl := dispense.New(set, cfg, dispense.WithLogger(logger))
	d := New(cfg, ctrl, monitor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Start returned %v", err)
		}
	})

	client := NewClient(cfg.Paths.Socket)
	deadline := time.Now().Add(2 * time.Second)
	for !client.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("socket did not become ready")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return &testDaemon{Daemon: d, fixture: fx, client: client}
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	d := New(cfg, nil, nil, nil)

	if d.SocketPath() != cfg.Paths.Socket {
		t.Errorf("SocketPath() = %q, want %q", d.SocketPath(), cfg.Paths.Socket)
	}
	if d.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if d.Running() {
		t.Error("daemon should not be running before Start")
	}
	if !d.StartTime().IsZero() {
		t.Error("start time should be zero before Start")
	}
}

func TestDaemon_StartStop(t *testing.T) {
	td := startDaemon(t)

	if !td.Running() {
		t.Error("daemon should be running after Start")
	}
	info, err := os.Stat(td.SocketPath())
	if err != nil {
		t.Fatalf("socket should exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != socketPermissions {
		t.Errorf("socket permissions = %o, want %o", perm, socketPermissions)
	}

	if err := td.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if td.Running() {
		t.Error("daemon should not be running after Stop")
	}
	if _, err := os.Stat(td.SocketPath()); !os.IsNotExist(err) {
		t.Error("socket should be removed after Stop")
	}
	if err := td.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}

func TestDaemon_StopMethodEndsStart(t *testing.T) {
	td := startDaemon(t)

	if err := td.client.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for td.Running() {
		if time.Now().After(deadline) {
			t.Fatal("daemon still running after stop request")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemon_DispenseRequiresPreflight(t *testing.T) {
	td := startDaemon(t)

	if _, err := td.client.Dispense("standard"); err == nil {
		t.Fatal("dispense before preflight should be refused")
	}
	if calls := td.fixture.Milk.Calls(); len(calls) != 0 {
		t.Fatalf("no pump should run, milk calls = %v", calls)
	}

	pf, err := td.client.Preflight()
	if err != nil {
		t.Fatalf("Preflight() error: %v", err)
	}
	if !pf.Passed || len(pf.Checks) != 4 {
		t.Fatalf("preflight = %+v, want 4 passing checks", pf)
	}

	result, err := td.client.Dispense("light")
	if err != nil {
		t.Fatalf("Dispense() error: %v", err)
	}
	if result.Recipe != "light" {
		t.Errorf("Recipe = %q, want light", result.Recipe)
	}
	if got := td.fixture.Milk.Calls(); len(got) != 1 || got[0] != 6*time.Second {
		t.Errorf("milk calls = %v, want [6s]", got)
	}

	status, err := td.client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Pumps.MilkMS != 6000 || status.Pumps.CocoaMS != 1000 || status.Pumps.SugarMS != 800 {
		t.Errorf("pump totals = %+v", status.Pumps)
	}
	if status.State != string(safety.StateSafe) || !status.Ready {
		t.Errorf("status = %+v, want ready in safe state", status)
	}
}

func TestDaemon_UnknownRecipe(t *testing.T) {
	td := startDaemon(t)
	if _, err := td.Preflight(context.Background()); err != nil {
		t.Fatalf("Preflight() error: %v", err)
	}

	_, err := td.client.Dispense("espresso")
	if err == nil {
		t.Fatal("expected error for unknown recipe")
	}
}

func TestDaemon_EstopAndReset(t *testing.T) {
	td := startDaemon(t)
	if passed, err := td.Preflight(context.Background()); err != nil || !passed {
		t.Fatalf("Preflight() = %v, %v", passed, err)
	}

	if err := td.client.EmergencyStop("kid pressed the big red button"); err != nil {
		t.Fatalf("EmergencyStop() error: %v", err)
	}

	status, err := td.client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !status.EmergencyStop || status.Ready || status.Reason != "kid pressed the big red button" {
		t.Errorf("status after estop = %+v", status)
	}

	if _, err := td.client.Dispense("standard"); err == nil {
		t.Fatal("dispense while latched should be refused")
	}

	pf, err := td.client.Reset()
	if err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if !pf.Passed {
		t.Errorf("preflight after reset = %+v", pf)
	}
	if !td.Ready() {
		t.Error("daemon should be ready after a reset with passing preflight")
	}
}

func TestDaemon_ResetRefusedAfterRepeatedFailures(t *testing.T) {
	td := startDaemon(t)

	var lastErr error
	for i := 0; i <= safety.MaxResetFailures+1; i++ {
		if err := td.client.EmergencyStop(""); err != nil {
			t.Fatalf("EmergencyStop() error: %v", err)
		}
		_, lastErr = td.client.Reset()
	}
	if lastErr == nil {
		t.Fatal("reset should be refused once the failure counter is exhausted")
	}
	if !td.monitor.IsEmergencyStop() {
		t.Error("latch should stay set after a refused reset")
	}
}

func TestDaemon_PreflightFailureClearsReadiness(t *testing.T) {
	td := startDaemon(t)
	if passed, _ := td.Preflight(context.Background()); !passed {
		t.Fatal("first preflight should pass")
	}

	td.fixture.Sensor.SetError(errors.New("i2c nack"))
	pf, err := td.client.Preflight()
	if err != nil {
		t.Fatalf("Preflight() error: %v", err)
	}
	if pf.Passed {
		t.Fatal("preflight should fail with a broken sensor")
	}
	if td.Ready() {
		t.Error("a failed preflight should clear readiness")
	}
}
