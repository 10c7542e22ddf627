package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

const (
	// DefaultClientTimeout is the default timeout for quick control calls.
	DefaultClientTimeout = 5 * time.Second
	// DefaultDispenseTimeout bounds a remote dispense, which blocks until
	// the drink is finished.
	DefaultDispenseTimeout = 3 * time.Minute
)

// Client talks to a running daemon over its Unix socket.
type Client struct {
	sockPath        string
	timeout         time.Duration
	dispenseTimeout time.Duration
}

// NewClient creates a client for the socket at sockPath.
func NewClient(sockPath string) *Client {
	return &Client{
		sockPath:        sockPath,
		timeout:         DefaultClientTimeout,
		dispenseTimeout: DefaultDispenseTimeout,
	}
}

// SetTimeout sets the timeout for every call except Dispense.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetDispenseTimeout sets the timeout for Dispense.
func (c *Client) SetDispenseTimeout(d time.Duration) {
	c.dispenseTimeout = d
}

// call sends one request and decodes the result into out when non-nil.
func (c *Client) call(method string, params any, timeout time.Duration, out any) error {
	conn, err := net.DialTimeout("unix", c.sockPath, timeout)
	if err != nil {
		return c.wrapConnError(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(Request{Method: method, Params: params}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result,omitempty"`
		Error  string          `json:"error,omitempty"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return c.wrapConnError(fmt.Errorf("read response: %w", err))
	}
	if resp.Error != "" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// wrapConnError converts connection errors to user-friendly messages.
func (c *Client) wrapConnError(err error) error {
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ENOENT:
			return errors.New("daemon not running (socket not found)")
		case syscall.ECONNREFUSED:
			return errors.New("daemon not running (connection refused)")
		}
	}
	if os.IsNotExist(err) {
		return errors.New("daemon not running (socket not found)")
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.New("daemon request timed out")
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

// Status returns the machine status.
func (c *Client) Status() (*StatusResponse, error) {
	var status StatusResponse
	if err := c.call(MethodStatus, nil, c.timeout, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// EmergencyStop latches the emergency stop with reason.
func (c *Client) EmergencyStop(reason string) error {
	return c.call(MethodEstop, EstopParams{Reason: reason}, c.timeout, nil)
}

// Reset clears the latch and returns the preflight run that follows.
func (c *Client) Reset() (*PreflightResponse, error) {
	var result PreflightResponse
	if err := c.call(MethodReset, nil, c.timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Preflight runs the preflight checks on the daemon's hardware.
func (c *Client) Preflight() (*PreflightResponse, error) {
	var result PreflightResponse
	if err := c.call(MethodPreflight, nil, c.timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Dispense orders one drink and waits for it to finish.
func (c *Client) Dispense(recipe string) (*DispenseResponse, error) {
	var result DispenseResponse
	if err := c.call(MethodDispense, DispenseParams{Recipe: recipe}, c.dispenseTimeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() error {
	return c.call(MethodStop, nil, c.timeout, nil)
}

// IsRunning checks whether something accepts connections on the socket.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
