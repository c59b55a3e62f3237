package events

import "time"

// ConnectionState describes one link's lifecycle state. Transitions are
// driven solely by the link's connector loop.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnStatus is a bus event snapshot of one link's connection status.
type ConnStatus struct {
	Link          string
	State         ConnectionState
	Err           string
	TransportName string
	Timestamp     time.Time
}

// Detection is a decoded record received from the ball-detection process.
// Pins is only set for pin_set style records.
type Detection struct {
	Event     string
	Timestamp float64
	Pins      []int
}

// RawLine carries wire-line diagnostics for the debug binary.
type RawLine struct {
	Link     string
	Outbound bool
	Text     string
}

// PinSnapshot is published after every controller state change.
type PinSnapshot struct {
	Down      [5]bool
	Timestamp time.Time
}
