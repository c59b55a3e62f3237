package actuator

import "log/slog"

// Logging records writes instead of driving hardware. Bound in dry-run
// mode and by the debug binary.
type Logging struct {
	logger *slog.Logger
}

func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (a *Logging) Write(channel int, level Level) error {
	a.logger.Info("actuator write", "channel", channel, "level", level.String())

	return nil
}
