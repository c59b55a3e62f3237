package sensorlink

import "strconv"

const lastBallCommand = "LAST_BALL"

// formatPinSet renders the PIN_SET command: bracketed, comma-joined
// integers, no spaces. The daemon parses the bracket payload as JSON.
func formatPinSet(pins []int) []byte {
	out := make([]byte, 0, 16+len(pins)*3)
	out = append(out, "PIN_SET ["...)
	for i, pin := range pins {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, int64(pin), 10)
	}
	out = append(out, ']')

	return out
}
