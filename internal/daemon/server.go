package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	// maxMessageSize bounds one request.
	maxMessageSize = 64 * 1024
	// readTimeout is the timeout for reading a request from a client.
	readTimeout = 10 * time.Second
	// socketPermissions are the file permissions for the Unix socket.
	socketPermissions = 0600
)

// Start listens on the socket and serves requests until ctx is done or a
// client sends stop. In-flight requests see their context cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.mu.Unlock()

	_ = os.Remove(d.sockPath)

	listener, err := net.Listen("unix", d.sockPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(d.sockPath, socketPermissions); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	d.mu.Lock()
	d.listener = listener
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info("control socket listening", "socket", d.sockPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.serve(ctx, listener)

	select {
	case <-ctx.Done():
	case <-d.stopReq:
		d.logger.Info("stop requested over control socket")
	}
	return d.Stop()
}

// Stop closes the listener and removes the socket file.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	if d.listener != nil {
		if err := d.listener.Close(); err != nil {
			d.logger.Error("error closing listener", "error", err)
		}
		d.listener = nil
	}
	_ = os.Remove(d.sockPath)

	d.logger.Info("control socket closed")
	return nil
}

func (d *Daemon) serve(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || !d.Running() {
				return
			}
			d.logger.Error("accept error", "error", err)
			continue
		}
		go d.handleConnection(ctx, conn)
	}
}

// handleConnection reads one request, dispatches it and writes the response.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		d.logger.Error("set read deadline error", "error", err)
		return
	}

	decoder := json.NewDecoder(io.LimitReader(conn, maxMessageSize))
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(Response{Error: fmt.Sprintf("decode error: %v", err)})
		return
	}
	// A dispense can outlast the read deadline.
	_ = conn.SetReadDeadline(time.Time{})

	d.logger.Debug("control request", "method", req.Method, "id", req.ID)
	resp := d.handleRequest(ctx, &req)
	resp.ID = req.ID
	_ = encoder.Encode(resp)
}
