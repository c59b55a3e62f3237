package actuator

// Level is the requested output state of one actuator channel.
type Level int

const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == On {
		return "on"
	}

	return "off"
}

// Actuator is the hardware write boundary. Implementations may silently
// fail; callers log failures and carry on.
type Actuator interface {
	Write(channel int, level Level) error
}
