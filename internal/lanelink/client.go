package lanelink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"laneagent/internal/bus"
	"laneagent/internal/link"
	"laneagent/internal/transport"
)

// MoveConfirmFunc is invoked when the server confirms or rejects a bowler
// move previously sent with SendBowlerMove.
type MoveConfirmFunc func(confirmed bool, message string)

// Recorder keeps a local copy of scoring payloads handed to the server.
// Recording happens whether or not the send succeeds: the wire is
// at-most-once, the local record is not.
type Recorder interface {
	RecordFrame(bowlerName string, frameNum int, frameJSON string, at time.Time)
	RecordGame(gameJSON string, at time.Time)
}

// Client is the scoring-server side of the agent. It registers on connect,
// heartbeats at the configured period, and exposes one outbound operation
// per business event. Every send is at-most-once and non-durable: a send
// while disconnected fails and the record is gone.
type Client struct {
	logger *slog.Logger
	laneID string
	link   *link.Client
	now    func() time.Time

	mu           sync.Mutex
	pendingMoves map[string]MoveConfirmFunc
	onResetPins  func()
	recorder     Recorder
}

func New(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, laneID string, heartbeat time.Duration) *Client {
	c := &Client{
		logger:       logger,
		laneID:       laneID,
		now:          time.Now,
		pendingMoves: make(map[string]MoveConfirmFunc),
	}
	c.link = link.NewClient(logger, b, tr, link.Options{
		Name:              "lane",
		HeartbeatInterval: heartbeat,
		EncodeHeartbeat:   c.encodeHeartbeat,
		OnConnect:         c.sendRegistration,
	})
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

// SetRecorder registers the local score recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// OnResetPins registers the hook invoked when the server issues a
// reset_pins lane command.
func (c *Client) OnResetPins(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResetPins = fn
}

// SendBowlerMove relocates one bowler to another lane. confirm, when
// non-nil, is called once the server answers with a move confirmation.
func (c *Client) SendBowlerMove(bowlerData map[string]any, toLane, moveID string, confirm MoveConfirmFunc) error {
	msg := bowlerMoveMessage{
		Type: "bowler_move",
		Data: bowlerMoveData{
			ToLane:     toLane,
			BowlerData: bowlerData,
			MoveID:     moveID,
		},
	}
	if err := c.sendJSON(msg); err != nil {
		return err
	}
	if confirm != nil {
		c.mu.Lock()
		c.pendingMoves[moveID] = confirm
		c.mu.Unlock()
	}

	return nil
}

// SendTeamMove relocates the whole team for the next game.
func (c *Client) SendTeamMove(toLane string, bowlers []map[string]any, gameNumber int) error {
	if bowlers == nil {
		bowlers = []map[string]any{}
	}
	if gameNumber <= 0 {
		gameNumber = 1
	}

	return c.sendJSON(teamMoveMessage{
		Type: "team_move",
		Data: teamMoveData{
			ToLane:     toLane,
			FromLane:   c.laneID,
			Bowlers:    bowlers,
			GameNumber: gameNumber,
		},
	})
}

// SendFrameData forwards one completed frame to the server and records it
// locally.
func (c *Client) SendFrameData(bowlerName string, frameNum int, frameData map[string]any) error {
	at := c.now()
	c.record(func(r Recorder) {
		r.RecordFrame(bowlerName, frameNum, mustJSON(frameData), at)
	})

	return c.sendJSON(frameDataMessage{
		Type: "frame_data",
		Data: frameDataData{
			LaneID:     c.laneID,
			BowlerName: bowlerName,
			FrameNum:   frameNum,
			FrameData:  frameData,
			Timestamp:  at.Unix(),
		},
	})
}

// SendGameComplete forwards the final game payload to the server and
// records it locally.
func (c *Client) SendGameComplete(gameData map[string]any) error {
	at := c.now()
	c.record(func(r Recorder) {
		r.RecordGame(mustJSON(gameData), at)
	})

	return c.sendJSON(gameCompleteMessage{
		Type: "game_complete",
		Data: gameCompleteData{
			LaneID:    c.laneID,
			GameData:  gameData,
			Timestamp: at.Unix(),
		},
	})
}

func (c *Client) record(fn func(Recorder)) {
	c.mu.Lock()
	r := c.recorder
	c.mu.Unlock()
	if r != nil {
		fn(r)
	}
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}

	return string(raw)
}

func (c *Client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return c.link.Send(payload)
}

func (c *Client) sendRegistration(context.Context) error {
	payload, err := json.Marshal(registrationMessage{
		Type:       "registration",
		LaneID:     c.laneID,
		Startup:    true,
		ClientIP:   transport.LocalIP(),
		ListenPort: 0,
		Timestamp:  c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	return c.link.Send(payload)
}

func (c *Client) encodeHeartbeat() ([]byte, error) {
	return json.Marshal(heartbeatMessage{
		Type:      "heartbeat",
		LaneID:    c.laneID,
		Timestamp: c.now().Unix(),
	})
}

func (c *Client) handleLine(line []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.logger.Warn("malformed server record dropped", "error", err, "raw", string(line))
		return
	}

	switch env.Type {
	case "heartbeat_response":
		c.logger.Debug("heartbeat acknowledged")
	case "registration_response":
		c.logger.Info("registration response", "status", env.Data["status"])
	case "bowler_move_confirmation":
		c.handleMoveConfirmation(env.Data)
	case "lane_command":
		c.handleLaneCommand(env.Data)
	default:
		c.logger.Debug("unhandled server message", "type", env.Type)
	}
}

func (c *Client) handleMoveConfirmation(data map[string]any) {
	moveID, _ := data["move_id"].(string)
	confirmed, _ := data["confirmed"].(bool)
	message, _ := data["message"].(string)

	c.mu.Lock()
	confirm, ok := c.pendingMoves[moveID]
	if ok {
		delete(c.pendingMoves, moveID)
	}
	c.mu.Unlock()

	c.logger.Info("move confirmation", "move_id", moveID, "confirmed", confirmed)
	if ok && confirm != nil {
		confirm(confirmed, message)
	}
}

func (c *Client) handleLaneCommand(data map[string]any) {
	cmdType, _ := data["type"].(string)
	switch cmdType {
	case "reset_pins":
		c.mu.Lock()
		fn := c.onResetPins
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	default:
		c.logger.Warn("unknown lane command", "type", cmdType)
	}
}
