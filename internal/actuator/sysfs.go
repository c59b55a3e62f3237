package actuator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const defaultSysfsBase = "/sys/class/gpio"

// SysfsGPIO drives actuator channels through the kernel sysfs GPIO
// interface. Channels must be exported before the first write and
// unexported on shutdown.
type SysfsGPIO struct {
	base   string
	logger *slog.Logger
}

func NewSysfsGPIO(logger *slog.Logger) *SysfsGPIO {
	return &SysfsGPIO{base: defaultSysfsBase, logger: logger}
}

// NewSysfsGPIOAt uses an alternate sysfs root. Used by tests.
func NewSysfsGPIOAt(logger *slog.Logger, base string) *SysfsGPIO {
	return &SysfsGPIO{base: base, logger: logger}
}

func (g *SysfsGPIO) Export(channel int) error {
	if channel <= 0 {
		return fmt.Errorf("invalid gpio channel: %d", channel)
	}
	if err := os.WriteFile(filepath.Join(g.base, "export"), []byte(fmt.Sprintf("%d\n", channel)), 0o200); err != nil {
		return fmt.Errorf("export gpio %d: %w", channel, err)
	}

	return nil
}

func (g *SysfsGPIO) Unexport(channel int) error {
	if channel <= 0 {
		return fmt.Errorf("invalid gpio channel: %d", channel)
	}
	if err := os.WriteFile(filepath.Join(g.base, "unexport"), []byte(fmt.Sprintf("%d\n", channel)), 0o200); err != nil {
		return fmt.Errorf("unexport gpio %d: %w", channel, err)
	}

	return nil
}

func (g *SysfsGPIO) Write(channel int, level Level) error {
	if channel <= 0 {
		return fmt.Errorf("invalid gpio channel: %d", channel)
	}

	value := []byte("0\n")
	if level == On {
		value = []byte("1\n")
	}
	path := filepath.Join(g.base, fmt.Sprintf("gpio%d", channel), "value")
	if err := os.WriteFile(path, value, 0o200); err != nil {
		return fmt.Errorf("write gpio %d: %w", channel, err)
	}
	g.logger.Debug("gpio write", "channel", channel, "level", level.String())

	return nil
}
