package events

const (
	TopicConnStatus = "conn.status"
	TopicDetection  = "sensor.detection"
	TopicPinState   = "pin.state"
	TopicRawLineIn  = "raw.line.in"
	TopicRawLineOut = "raw.line.out"
)
