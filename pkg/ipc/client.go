package ipc

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/conduit/pkg/types"
)

// ErrTimeout is returned by SendCommand when no complete response line
// arrived within the caller's budget. A timed-out command is "no answer",
// not a negative result: the command may still have executed.
var ErrTimeout = errors.New("ipc: timed out waiting for response")

// ErrClosed is returned when the client's connection is no longer usable.
var ErrClosed = errors.New("ipc: client is closed")

// Client is one connection to an instance's command socket. Only one
// request may be in flight at a time; SendCommand serializes callers with
// a send-side mutex.
//
// A transport failure or deadline expiry surfaces as a non-nil error; an
// empty string with a nil error is a legitimately empty response.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	poll      time.Duration
	connected bool
}

// ClientOption customizes client construction.
type ClientOption func(*Client)

// WithClientPollInterval overrides the partial-read poll tick.
func WithClientPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.poll = d }
}

// Dial connects to the instance's socket. The path is derived the same way
// the server derives it.
func Dial(dir string, instance types.InstanceID, opts ...ClientOption) (*Client, error) {
	path := SocketPath(dir, instance)
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	c := &Client{conn: conn, poll: DefaultPollInterval, connected: true}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connected reports whether the connection is still usable.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendCommand writes one command line and waits for one response line.
//
// A newline is appended if absent. The timeout is cumulative across the
// whole call: elapsed time is tracked from entry, not reset per partial
// read, so total latency is bounded by timeout regardless of how the
// response fragments. The returned line has its trailing newline stripped.
func (c *Client) SendCommand(command string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", ErrClosed
	}

	deadline := time.Now().Add(timeout)

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}

	if err := c.writeAll([]byte(command), deadline); err != nil {
		return "", err
	}
	line, err := c.readLine(deadline)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// writeAll writes data fully, retrying would-block writes on short polls
// until the cumulative deadline.
func (c *Client) writeAll(data []byte, deadline time.Time) error {
	for len(data) > 0 {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		if err := c.conn.SetWriteDeadline(c.pollDeadline(deadline)); err != nil {
			c.connected = false
			return err
		}
		n, err := c.conn.Write(data)
		data = data[n:]
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.connected = false
			return fmt.Errorf("ipc: write failed: %w", err)
		}
	}
	return nil
}

// readLine reads until a newline-terminated line is assembled, under the
// same cumulative deadline.
func (c *Client) readLine(deadline time.Time) (string, error) {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
			return string(buf[:idx+1]), nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}
		if err := c.conn.SetReadDeadline(c.pollDeadline(deadline)); err != nil {
			c.connected = false
			return "", err
		}
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			c.connected = false
			return "", fmt.Errorf("ipc: read failed: %w", err)
		}
	}
}

// pollDeadline returns the next poll tick, clamped to the cumulative
// deadline.
func (c *Client) pollDeadline(deadline time.Time) time.Time {
	next := time.Now().Add(c.poll)
	if next.After(deadline) {
		return deadline
	}
	return next
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}
