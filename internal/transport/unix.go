package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	defaultUnixConnectTimeout = 5 * time.Second
	socketPollInterval        = 100 * time.Millisecond
)

// UnixTransport reaches the local detection process over a unix-domain
// socket. Connecting is bounded by an explicit timeout rather than left to
// the OS.
type UnixTransport struct {
	path           string
	connectTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewUnixTransport(path string, connectTimeout time.Duration) *UnixTransport {
	if connectTimeout <= 0 {
		connectTimeout = defaultUnixConnectTimeout
	}

	return &UnixTransport{path: path, connectTimeout: connectTimeout}
}

func (t *UnixTransport) Name() string {
	return "unix"
}

func (t *UnixTransport) Path() string {
	return t.path
}

func (t *UnixTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *UnixTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("unix", "path", t.path)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.path == "" {
		logger.Warn("connect failed: socket path is empty")

		return errors.New("unix socket path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: t.connectTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "unix", t.path)
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial unix: %w", err)
	}
	t.conn = conn
	logger.Info("connected")

	return nil
}

func (t *UnixTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("unix", "path", t.path)
	if t.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *UnixTransport) Read(p []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	return conn.Read(p)
}

func (t *UnixTransport) Write(ctx context.Context, p []byte) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (t *UnixTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errors.New("transport is not connected")
	}

	return t.conn, nil
}

// WaitForSocket polls for the socket file until it appears or the timeout
// elapses. The detection process creates the socket on startup, so this is
// the readiness check used before the first connect.
func WaitForSocket(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("socket %s did not appear within %s", path, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(socketPollInterval):
		}
	}
}
