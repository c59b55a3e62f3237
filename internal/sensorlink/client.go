package sensorlink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"laneagent/internal/bus"
	"laneagent/internal/events"
	"laneagent/internal/link"
	"laneagent/internal/transport"
)

// Client is the detection-process side of the agent. The protocol is
// deliberately asymmetric and preserved as-is: inbound traffic is one JSON
// record per line, outbound traffic is plain-text commands. Neither command
// is acknowledged.
type Client struct {
	logger  *slog.Logger
	bus     bus.MessageBus
	link    *link.Client
	handler atomic.Value // func(events.Detection)
}

func New(logger *slog.Logger, b bus.MessageBus, tr transport.Transport) *Client {
	c := &Client{
		logger: logger,
		bus:    b,
	}
	c.link = link.NewClient(logger, b, tr, link.Options{Name: "sensor"})
	c.link.SetHandler(c.handleLine)

	return c
}

func (c *Client) Start(ctx context.Context) {
	c.link.Start(ctx)
}

func (c *Client) Stop() {
	c.link.Stop()
}

func (c *Client) Connected() bool {
	return c.link.Connected()
}

// OnDetection registers the single handler invoked once per decoded
// inbound record. The handler runs on the receive loop; a slow handler
// delays subsequent detections.
func (c *Client) OnDetection(fn func(events.Detection)) {
	c.handler.Store(fn)
}

// SendLastBall asks the daemon to treat the next reading as the last ball.
func (c *Client) SendLastBall() error {
	return c.link.Send([]byte(lastBallCommand))
}

// SendPinSet pushes an explicit pin map to the daemon.
func (c *Client) SendPinSet(pins []int) error {
	return c.link.Send(formatPinSet(pins))
}

// detectionRecord tolerates both key spellings the daemon emits: socket
// clients see "event", queue consumers historically saw "type".
type detectionRecord struct {
	Event     string  `json:"event"`
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
	Pins      []int   `json:"pins"`
}

func (c *Client) handleLine(line []byte) {
	var rec detectionRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		c.logger.Warn("malformed sensor record dropped", "error", err, "raw", string(line))
		return
	}

	event := rec.Event
	if event == "" {
		event = rec.Type
	}
	if event == "" {
		c.logger.Warn("sensor record without event field dropped", "raw", string(line))
		return
	}

	det := events.Detection{
		Event:     event,
		Timestamp: rec.Timestamp,
		Pins:      rec.Pins,
	}
	c.bus.Publish(events.TopicDetection, det)
	if fn, ok := c.handler.Load().(func(events.Detection)); ok && fn != nil {
		fn(det)
	}
}
