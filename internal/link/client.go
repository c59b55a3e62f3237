package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"laneagent/internal/bus"
	"laneagent/internal/events"
	"laneagent/internal/transport"
)

const (
	reconnectDelay = 2 * time.Second
	sendTimeout    = 5 * time.Second
	readChunkSize  = 4096
)

// ErrNotConnected is returned by Send while the link is down. Delivery is
// at-most-once; the caller decides whether the record is lost.
var ErrNotConnected = errors.New("link is not connected")

// Options parametrize a Client for one of the two link specializations.
type Options struct {
	// Name tags log records and bus events for this link.
	Name string
	// HeartbeatInterval enables the heartbeat loop when positive.
	HeartbeatInterval time.Duration
	// EncodeHeartbeat builds one heartbeat record, without terminator.
	EncodeHeartbeat func() ([]byte, error)
	// OnConnect runs immediately after a successful connect, before any
	// other outbound traffic. Fire-and-forget: a failure is logged, never
	// escalated.
	OnConnect func(ctx context.Context) error
}

// Client keeps one logical connection alive over an injected transport:
// it owns the connect/reconnect lifecycle, newline framing, the receive
// loop and the serialized send path.
type Client struct {
	logger *slog.Logger
	bus    bus.MessageBus
	tr     transport.Transport
	opts   Options

	state          atomic.Int32
	handler        atomic.Value // func([]byte)
	reconnectDelay time.Duration

	sendMu sync.Mutex

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewClient(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, opts Options) *Client {
	c := &Client{
		logger:         logger.With("link", opts.Name),
		bus:            b,
		tr:             tr,
		opts:           opts,
		reconnectDelay: reconnectDelay,
	}
	c.state.Store(int32(stateDisconnected))

	return c
}

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// SetHandler registers the single callback invoked once per framed inbound
// record. The callback runs on the receive loop and must not block
// indefinitely, as it delays subsequent receives.
func (c *Client) SetHandler(fn func(line []byte)) {
	c.handler.Store(fn)
}

// Start launches the connector loop and, when configured, the heartbeat
// loop. Idempotent; returns immediately without waiting for a connection.
func (c *Client) Start(ctx context.Context) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runConnector(runCtx)
	}()

	if c.opts.HeartbeatInterval > 0 && c.opts.EncodeHeartbeat != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.runHeartbeat(runCtx)
		}()
	}
}

// Stop signals both loops, force-closes the transport to unblock a pending
// read, and waits for the loops to exit. Idempotent and safe from any
// goroutine.
func (c *Client) Stop() {
	c.startMu.Lock()
	if !c.started {
		c.startMu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.cancel = nil
	c.startMu.Unlock()

	cancel()
	_ = c.tr.Close()
	c.wg.Wait()
	c.setState(stateDisconnected, nil)
}

// State reports the current connection state.
func (c *Client) State() events.ConnectionState {
	switch connState(c.state.Load()) {
	case stateConnected:
		return events.ConnectionStateConnected
	case stateConnecting:
		return events.ConnectionStateConnecting
	default:
		return events.ConnectionStateDisconnected
	}
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	return connState(c.state.Load()) == stateConnected
}

// Send appends the newline terminator and writes the record atomically with
// respect to other senders on this link. Registration, heartbeat and caller
// traffic all pass through here, so bytes never interleave on the wire.
func (c *Client) Send(payload []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	data := make([]byte, 0, len(payload)+1)
	data = append(data, payload...)
	data = append(data, '\n')

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ctx, cancelWrite := context.WithTimeout(context.Background(), sendTimeout)
	defer cancelWrite()
	if err := c.tr.Write(ctx, data); err != nil {
		c.logger.Warn("send failed", "len", len(data), "error", err)

		return fmt.Errorf("send: %w", err)
	}
	c.bus.Publish(events.TopicRawLineOut, events.RawLine{Link: c.opts.Name, Outbound: true, Text: string(payload)})

	return nil
}

func (c *Client) runConnector(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(stateConnecting, nil)
		if err := c.tr.Connect(ctx); err != nil {
			c.setState(stateDisconnected, err)
			c.logger.Warn("connect failed", "error", err)
			if !sleepWithContext(ctx, c.reconnectDelay) {
				return
			}
			continue
		}

		c.setState(stateConnected, nil)
		if c.opts.OnConnect != nil {
			if err := c.opts.OnConnect(ctx); err != nil {
				c.logger.Warn("post-connect hook failed", "error", err)
			}
		}

		err := c.runReader(ctx)
		_ = c.tr.Close()
		if ctx.Err() != nil {
			c.setState(stateDisconnected, nil)
			return
		}
		c.setState(stateDisconnected, err)
		c.logger.Warn("connection lost", "error", err)

		if !sleepWithContext(ctx, c.reconnectDelay) {
			return
		}
	}
}

func (c *Client) runReader(ctx context.Context) error {
	var frames lineBuffer
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.tr.Read(chunk)
		if n > 0 {
			frames.Write(chunk[:n])
			c.dispatch(&frames)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("peer closed connection")
			}

			return err
		}
	}
}

func (c *Client) dispatch(frames *lineBuffer) {
	for {
		line, ok := frames.Next()
		if !ok {
			return
		}
		c.bus.Publish(events.TopicRawLineIn, events.RawLine{Link: c.opts.Name, Text: string(line)})
		if fn, ok := c.handler.Load().(func([]byte)); ok && fn != nil {
			fn(line)
		}
	}
}

func (c *Client) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			payload, err := c.opts.EncodeHeartbeat()
			if err != nil {
				c.logger.Debug("encode heartbeat failed", "error", err)
				continue
			}
			if err := c.Send(payload); err != nil {
				c.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

func (c *Client) setState(s connState, cause error) {
	prev := connState(c.state.Swap(int32(s)))
	if prev == s && cause == nil {
		return
	}

	status := events.ConnStatus{
		Link:          c.opts.Name,
		State:         c.State(),
		TransportName: c.tr.Name(),
		Timestamp:     time.Now(),
	}
	if cause != nil {
		status.Err = cause.Error()
	}
	c.bus.Publish(events.TopicConnStatus, status)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
