package pinctl

import (
	"log/slog"
	"sync"
	"time"

	"laneagent/internal/actuator"
	"laneagent/internal/bus"
	"laneagent/internal/config"
	"laneagent/internal/events"
)

const (
	// NumPins is the number of scoring pins on a five-pin lane.
	NumPins = 5

	defaultBreakSettle = 100 * time.Millisecond
	defaultResetHold   = 350 * time.Millisecond
)

// Controller tracks the logical position of the five pins and drives the
// actuator array in response to detection events. Pin state is monotonic:
// a pin marked down stays down until an explicit reset.
type Controller struct {
	logger *slog.Logger
	bus    bus.MessageBus
	act    actuator.Actuator

	breakChannels [NumPins]int
	resetChannel  int
	breakSettle   time.Duration
	resetHold     time.Duration

	mu          sync.Mutex
	down        [NumPins]bool
	lastControl [NumPins]bool
}

func New(logger *slog.Logger, b bus.MessageBus, act actuator.Actuator, channels config.ChannelMap) *Controller {
	return &Controller{
		logger:        logger,
		bus:           b,
		act:           act,
		breakChannels: channels.BreakChannels(),
		resetChannel:  channels.ResetChannel(),
		breakSettle:   defaultBreakSettle,
		resetHold:     defaultResetHold,
	}
}

// ProcessEvent computes the control vector from the current pin state,
// pulses every channel whose pin still stands, and commits the new state.
// Pulses run sequentially so the actuator supply never sees more than one
// coil energized; the call blocks for settle × pulses. An actuator failure
// is logged and does not abort the remaining pulses nor the state commit.
func (c *Controller) ProcessEvent() [NumPins]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var control [NumPins]bool
	for i := range c.down {
		control[i] = !c.down[i]
	}

	for i, needed := range control {
		if !needed {
			continue
		}
		c.pulse(c.breakChannels[i], c.breakSettle)
	}

	for i, pulsed := range control {
		if pulsed {
			c.down[i] = true
		}
	}
	c.lastControl = control
	c.publishSnapshot()

	return control
}

// ManualReset returns every pin to standing and clears the held break
// history. It cycles the machine reset channel first and is callable at any
// time, independent of detection events.
func (c *Controller) ManualReset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("manual reset")
	c.pulse(c.resetChannel, c.resetHold)

	c.down = [NumPins]bool{}
	c.lastControl = [NumPins]bool{}
	c.publishSnapshot()
}

// ResetPins is an alias kept for callers that speak the server's command
// vocabulary.
func (c *Controller) ResetPins() {
	c.ManualReset()
}

// PinState returns a snapshot of the current pin positions (true = down).
// It never touches actuator I/O.
func (c *Controller) PinState() [NumPins]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.down
}

// DownPins lists the indexes of pins currently down, in pin order.
func (c *Controller) DownPins() []int {
	state := c.PinState()
	out := make([]int, 0, NumPins)
	for i, d := range state {
		if d {
			out = append(out, i)
		}
	}

	return out
}

func (c *Controller) pulse(channel int, hold time.Duration) {
	if err := c.act.Write(channel, actuator.On); err != nil {
		c.logger.Warn("actuator assert failed", "channel", channel, "error", err)
	}
	time.Sleep(hold)
	if err := c.act.Write(channel, actuator.Off); err != nil {
		c.logger.Warn("actuator de-assert failed", "channel", channel, "error", err)
	}
}

func (c *Controller) publishSnapshot() {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.TopicPinState, events.PinSnapshot{Down: c.down, Timestamp: time.Now()})
}
