package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"laneagent/internal/bus"
)

// fakeTransport simulates a byte-stream peer: Connect can be made to fail a
// number of times, Read blocks until bytes are pushed or the connection is
// dropped, and Write captures outbound frames.
type fakeTransport struct {
	mu          sync.Mutex
	connectErrs int
	attempts    int
	readCh      chan []byte
	closed      chan struct{}
	isClosed    bool
	writes      [][]byte
}

func newFakeTransport(connectErrs int) *fakeTransport {
	return &fakeTransport{
		connectErrs: connectErrs,
		readCh:      make(chan []byte, 16),
		closed:      make(chan struct{}),
		isClosed:    true,
	}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.connectErrs {
		return errors.New("connection refused")
	}
	f.closed = make(chan struct{})
	f.isClosed = false

	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isClosed {
		f.isClosed = true
		close(f.closed)
	}

	return nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()

	select {
	case data := <-f.readCh:
		return copy(p, data), nil
	case <-closed:
		return 0, io.EOF
	}
}

func (f *fakeTransport) Write(_ context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isClosed {
		return errors.New("transport closed")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))

	return nil
}

func (f *fakeTransport) push(data string) {
	f.readCh <- []byte(data)
}

// dropConnection simulates the peer closing its end.
func (f *fakeTransport) dropConnection() {
	_ = f.Close()
}

func (f *fakeTransport) connectAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

func (f *fakeTransport) writtenLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, 0, len(f.writes))
	for _, w := range f.writes {
		lines = append(lines, string(w))
	}

	return lines
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, tr *fakeTransport, opts Options) *Client {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "test"
	}
	b := bus.New(testLogger())
	t.Cleanup(b.Close)

	c := NewClient(testLogger(), b, tr, opts)
	c.reconnectDelay = 5 * time.Millisecond

	return c
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestClientRetriesUntilConnected(t *testing.T) {
	tr := newFakeTransport(3)
	c := newTestClient(t, tr, Options{})

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, 2*time.Second, c.Connected, "client never connected")
	if got := tr.connectAttempts(); got < 4 {
		t.Fatalf("expected at least 4 connect attempts, got %d", got)
	}
}

func TestClientReconnectsAfterPeerClose(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{})

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, 2*time.Second, c.Connected, "initial connect")
	tr.dropConnection()
	waitFor(t, 2*time.Second, func() bool {
		return c.Connected() && tr.connectAttempts() >= 2
	}, "reconnect after peer close")
}

func TestClientDispatchesRecordsInOrder(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{})

	var mu sync.Mutex
	var lines []string
	c.SetHandler(func(line []byte) {
		mu.Lock()
		lines = append(lines, string(line))
		mu.Unlock()
	})

	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, 2*time.Second, c.Connected, "connect")

	tr.push("{\"a\":1}\n{\"b\"")
	tr.push(":2}\n")

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	}, "two records dispatched")

	mu.Lock()
	defer mu.Unlock()
	if lines[0] != `{"a":1}` || lines[1] != `{"b":2}` {
		t.Fatalf("records out of order or corrupted: %v", lines)
	}
}

func TestClientSendWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{})

	if err := c.Send([]byte("hello")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(tr.writtenLines()) != 0 {
		t.Fatalf("expected no writes while disconnected")
	}
}

func TestClientSendAppendsTerminator(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{})

	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, 2*time.Second, c.Connected, "connect")

	if err := c.Send([]byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	lines := tr.writtenLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 write, got %d", len(lines))
	}
	if lines[0] != "{\"type\":\"heartbeat\"}\n" {
		t.Fatalf("unexpected wire bytes: %q", lines[0])
	}
}

func TestClientOnConnectRunsFirst(t *testing.T) {
	tr := newFakeTransport(0)
	var c *Client
	c = newTestClient(t, tr, Options{
		OnConnect: func(_ context.Context) error {
			return c.Send([]byte("register"))
		},
	})

	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, 2*time.Second, func() bool {
		return len(tr.writtenLines()) >= 1
	}, "post-connect record")

	if got := tr.writtenLines()[0]; got != "register\n" {
		t.Fatalf("expected registration first on the wire, got %q", got)
	}
}

func TestClientHeartbeatLoop(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{
		HeartbeatInterval: 15 * time.Millisecond,
		EncodeHeartbeat: func() ([]byte, error) {
			return []byte(`{"type":"heartbeat"}`), nil
		},
	})

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return len(tr.writtenLines()) >= 3
	}, "heartbeats on the wire")

	for i, line := range tr.writtenLines()[:3] {
		if line != "{\"type\":\"heartbeat\"}\n" {
			t.Fatalf("heartbeat %d malformed: %q", i, line)
		}
	}
}

func TestClientHeartbeatSkippedWhileDisconnected(t *testing.T) {
	tr := newFakeTransport(1000)
	c := newTestClient(t, tr, Options{
		HeartbeatInterval: 10 * time.Millisecond,
		EncodeHeartbeat: func() ([]byte, error) {
			return []byte(`{"type":"heartbeat"}`), nil
		},
	})

	c.Start(context.Background())
	defer c.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := len(tr.writtenLines()); got != 0 {
		t.Fatalf("expected no heartbeats while disconnected, got %d", got)
	}
}

func TestClientStopIsIdempotent(t *testing.T) {
	tr := newFakeTransport(0)
	c := newTestClient(t, tr, Options{})

	c.Start(context.Background())
	waitFor(t, 2*time.Second, c.Connected, "connect")

	c.Stop()
	c.Stop()

	if c.Connected() {
		t.Fatalf("expected disconnected state after Stop")
	}
}
