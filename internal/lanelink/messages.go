package lanelink

// Outbound message vocabulary for the scoring server. Every record is one
// JSON object per line; the server discriminates on the type field.

type registrationMessage struct {
	Type       string `json:"type"`
	LaneID     string `json:"lane_id"`
	Startup    bool   `json:"startup"`
	ClientIP   string `json:"client_ip"`
	ListenPort int    `json:"listen_port"`
	Timestamp  int64  `json:"timestamp"`
}

type heartbeatMessage struct {
	Type      string `json:"type"`
	LaneID    string `json:"lane_id"`
	Timestamp int64  `json:"timestamp"`
}

type bowlerMoveMessage struct {
	Type string         `json:"type"`
	Data bowlerMoveData `json:"data"`
}

type bowlerMoveData struct {
	ToLane     string         `json:"to_lane"`
	BowlerData map[string]any `json:"bowler_data"`
	MoveID     string         `json:"move_id"`
}

type teamMoveMessage struct {
	Type string       `json:"type"`
	Data teamMoveData `json:"data"`
}

type teamMoveData struct {
	ToLane     string           `json:"to_lane"`
	FromLane   string           `json:"from_lane"`
	Bowlers    []map[string]any `json:"bowlers"`
	GameNumber int              `json:"game_number"`
}

type frameDataMessage struct {
	Type string        `json:"type"`
	Data frameDataData `json:"data"`
}

type frameDataData struct {
	LaneID     string         `json:"lane_id"`
	BowlerName string         `json:"bowler_name"`
	FrameNum   int            `json:"frame_num"`
	FrameData  map[string]any `json:"frame_data"`
	Timestamp  int64          `json:"timestamp"`
}

type gameCompleteMessage struct {
	Type string           `json:"type"`
	Data gameCompleteData `json:"data"`
}

type gameCompleteData struct {
	LaneID    string         `json:"lane_id"`
	GameData  map[string]any `json:"game_data"`
	Timestamp int64          `json:"timestamp"`
}

// inboundEnvelope is the minimal shape shared by every server record.
type inboundEnvelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}
