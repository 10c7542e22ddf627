// Package daemon serves a running machine over a Unix socket so other
// processes can read its status, latch or reset the emergency stop, run
// preflight checks and order drinks.
package daemon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/dispense"
	"github.com/mechcc/hotchocolabot/internal/safety"
)

// Daemon exposes one controller and monitor on a control socket.
//
// Dispense requests are refused until a preflight run through the daemon
// (at startup or via the preflight or reset methods) has passed. A failed
// preflight, a reset or a latched emergency stop clears readiness again.
type Daemon struct {
	cfg      *config.Config
	ctrl     *dispense.Controller
	monitor  *safety.Monitor
	sockPath string
	logger   *slog.Logger

	mu        sync.RWMutex
	listener  net.Listener
	running   bool
	ready     bool
	startTime time.Time
	stopReq   chan struct{}
	stopOnce  sync.Once
}

// New creates a Daemon listening on cfg.Paths.Socket.
func New(cfg *config.Config, ctrl *dispense.Controller, monitor *safety.Monitor, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:      cfg,
		ctrl:     ctrl,
		monitor:  monitor,
		sockPath: cfg.Paths.Socket,
		logger:   logger,
		stopReq:  make(chan struct{}),
	}
}

// Running returns whether the daemon is accepting connections.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Ready reports whether dispense requests are accepted.
func (d *Daemon) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready && !d.monitor.IsEmergencyStop()
}

func (d *Daemon) setReady(ready bool) {
	d.mu.Lock()
	d.ready = ready
	d.mu.Unlock()
}

// StartTime returns when the daemon started listening.
func (d *Daemon) StartTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTime
}

// SocketPath returns the Unix socket path.
func (d *Daemon) SocketPath() string {
	return d.sockPath
}

// Preflight runs the check battery and updates readiness.
func (d *Daemon) Preflight(ctx context.Context) (bool, error) {
	passed, err := d.monitor.RunPreflightChecks(ctx, d.ctrl.Hardware())
	if err != nil {
		d.setReady(false)
		return false, err
	}
	d.setReady(passed)
	return passed, nil
}

// requestStop asks Start to return. It is safe to call more than once.
func (d *Daemon) requestStop() {
	d.stopOnce.Do(func() { close(d.stopReq) })
}
