package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/dispense"
	"github.com/mechcc/hotchocolabot/internal/events"
	"github.com/mechcc/hotchocolabot/internal/hardware"
	"github.com/mechcc/hotchocolabot/internal/metrics"
	"github.com/mechcc/hotchocolabot/internal/rig"
	"github.com/mechcc/hotchocolabot/internal/safety"
	"github.com/mechcc/hotchocolabot/internal/tui"
)

// errPreflightFailed makes the process exit non-zero without a usage dump.
var errPreflightFailed = errors.New("preflight checks failed")

// app wires one hardware set to the safety monitor, the dispense
// controller and the background workers.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	set      *hardware.Set
	router   *events.Router
	monitor  *safety.Monitor
	ctrl     *dispense.Controller
	recorder *metrics.Recorder
	panel    *tui.Panel

	cancel context.CancelFunc
	group  *errgroup.Group
}

// openApp opens the configured hardware. With withPanel the LCD output is
// mirrored to an on-screen panel.
func openApp(cfg *config.Config, logger *slog.Logger, withPanel bool) (*app, error) {
	set, err := rig.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open hardware: %w", err)
	}
	var panel *tui.Panel
	if withPanel {
		panel = tui.NewPanel(cfg.Hardware.DisplayRows, cfg.Hardware.DisplayCols)
		set.Display = hardware.TeeDisplay(set.Display, panel)
	}
	a := newApp(cfg, logger, set)
	a.panel = panel
	return a, nil
}

// newApp builds the application around an already opened hardware set.
func newApp(cfg *config.Config, logger *slog.Logger, set *hardware.Set) *app {
	router := events.NewRouter(events.DefaultBufferSize, events.WithRouterLogger(logger))
	recorder := metrics.NewRecorder(
		metrics.WithLogger(logger),
		metrics.WithTextfile(cfg.Metrics.Textfile),
		metrics.WithDroppedEvents(router),
	)
	return &app{
		cfg:      cfg,
		logger:   logger,
		set:      set,
		router:   router,
		recorder: recorder,
		monitor:  safety.New(cfg.Safety, safety.WithLogger(logger), safety.WithRouter(router)),
		ctrl: dispense.New(set, cfg,
			dispense.WithLogger(logger),
			dispense.WithRouter(router)),
	}
}

// start launches the metrics recorder and, when enabled, the emergency
// button watcher. The watcher stops when ctx is done; the recorder drains
// its subscription until Close shuts the router.
func (a *app) start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	a.group = g

	metricsEvents := a.router.SubscribeBuffered(500)
	g.Go(func() error {
		a.recorder.Run(context.WithoutCancel(ctx), metricsEvents)
		return nil
	})

	if a.cfg.Safety.EmergencyStopEnabled && a.set.Button != nil {
		g.Go(func() error {
			safety.WatchButton(ctx, a.set.Button, a.monitor, a.cfg.Safety.ButtonPollInterval)
			return nil
		})
	}
}

// preflight runs the check battery and prints a line per check.
func (a *app) preflight(ctx context.Context, w io.Writer) error {
	passed, err := a.monitor.RunPreflightChecks(ctx, a.set)
	if err != nil {
		return err
	}
	for _, r := range a.monitor.LastPreflight() {
		mark := "PASS"
		if !r.Passed {
			mark = string(r.Severity)
		}
		fmt.Fprintf(w, "[%-8s] %-20s %s\n", mark, r.Name, r.Message)
	}
	if !passed {
		return errPreflightFailed
	}
	return nil
}

// status snapshots the monitor and pump counters for the TUI header.
func (a *app) status() tui.Status {
	stats := a.ctrl.PumpStats()
	return tui.Status{
		State:    string(a.monitor.State()),
		Latched:  a.monitor.IsEmergencyStop(),
		Reason:   a.monitor.EmergencyStopReason(),
		Failures: a.monitor.ConsecutiveFailures(),
		Milk:     stats.Milk,
		Cocoa:    stats.Cocoa,
		Sugar:    stats.Sugar,
	}
}

// stopPumps switches every pump off.
func (a *app) stopPumps(context.Context) error {
	var err error
	for _, p := range a.set.Pumps() {
		err = multierr.Append(err, p.Stop())
	}
	return err
}

// Close stops the background workers, then releases the hardware.
func (a *app) Close() error {
	a.router.Close()
	if a.cancel != nil {
		a.cancel()
		_ = a.group.Wait()
	}
	return a.set.Close()
}

// printEvents writes every event on ch to w until ch closes or ctx is done.
func printEvents(ctx context.Context, ch <-chan events.Event, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if line := events.FormatWithTimestamp(event); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}
}
