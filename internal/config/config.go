package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SensorConnector identifies which transport reaches the detection process.
type SensorConnector string

const (
	SensorConnectorUnix   SensorConnector = "unix"
	SensorConnectorSerial SensorConnector = "serial"

	DefaultServerPort        = 50005
	DefaultHeartbeatSeconds  = 30
	DefaultSensorSocketPath  = "/tmp/ball_sensor.sock"
	DefaultSensorWaitSeconds = 10
	DefaultSerialBaud        = 115200
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ServerConfig contains the scoring-server connection parameters.
type ServerConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	HeartbeatSeconds int    `json:"heartbeat_seconds"`
}

// SensorConfig contains the detection-process connection parameters.
type SensorConfig struct {
	Connector   SensorConnector `json:"connector"`
	SocketPath  string          `json:"socket_path"`
	WaitSeconds int             `json:"wait_seconds"`
	SerialPort  string          `json:"serial_port"`
	SerialBaud  int             `json:"serial_baud"`
}

// ChannelMap assigns actuator channels per lane. Eight channels are
// declared; GP1..GP5 drive the five pin breaks, GP6 drives the machine
// reset cycle, GP7 and GP8 belong to the detection daemon's sensors.
type ChannelMap struct {
	GP1 int `json:"GP1"`
	GP2 int `json:"GP2"`
	GP3 int `json:"GP3"`
	GP4 int `json:"GP4"`
	GP5 int `json:"GP5"`
	GP6 int `json:"GP6"`
	GP7 int `json:"GP7"`
	GP8 int `json:"GP8"`
}

// BreakChannels returns the five pin-break channels in pin order
// (lTwo, lThree, cFive, rThree, rTwo).
func (m ChannelMap) BreakChannels() [5]int {
	return [5]int{m.GP1, m.GP2, m.GP3, m.GP4, m.GP5}
}

// ResetChannel returns the channel driving the machine reset cycle.
func (m ChannelMap) ResetChannel() int {
	return m.GP6
}

// AppConfig is the root persisted agent configuration.
type AppConfig struct {
	LaneID       string        `json:"lane_id"`
	Server       ServerConfig  `json:"server"`
	Sensor       SensorConfig  `json:"sensor"`
	Channels     ChannelMap    `json:"channels"`
	Logging      LoggingConfig `json:"logging"`
	DatabasePath string        `json:"database_path"`
	LogFilePath  string        `json:"log_file_path"`
}

func Default() AppConfig {
	return AppConfig{
		LaneID: "lane_01",
		Server: ServerConfig{
			Host:             "",
			Port:             DefaultServerPort,
			HeartbeatSeconds: DefaultHeartbeatSeconds,
		},
		Sensor: SensorConfig{
			Connector:   SensorConnectorUnix,
			SocketPath:  DefaultSensorSocketPath,
			WaitSeconds: DefaultSensorWaitSeconds,
			SerialBaud:  DefaultSerialBaud,
		},
		Channels: ChannelMap{
			GP1: 17, GP2: 27, GP3: 22, GP4: 23,
			GP5: 24, GP6: 25, GP7: 5, GP8: 6,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		DatabasePath: "laneagent.db",
		LogFilePath:  "laneagent.log",
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is supplied by the operator via flag or default.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if strings.TrimSpace(c.LaneID) == "" {
		c.LaneID = "lane_01"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.HeartbeatSeconds <= 0 {
		c.Server.HeartbeatSeconds = DefaultHeartbeatSeconds
	}
	if c.Sensor.Connector == "" {
		c.Sensor.Connector = SensorConnectorUnix
	}
	if strings.TrimSpace(c.Sensor.SocketPath) == "" {
		c.Sensor.SocketPath = DefaultSensorSocketPath
	}
	if c.Sensor.WaitSeconds <= 0 {
		c.Sensor.WaitSeconds = DefaultSensorWaitSeconds
	}
	if c.Sensor.SerialBaud <= 0 {
		c.Sensor.SerialBaud = DefaultSerialBaud
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		c.DatabasePath = "laneagent.db"
	}
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.LaneID) == "" {
		return errors.New("lane id is required")
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return errors.New("server host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.HeartbeatSeconds <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %d", c.Server.HeartbeatSeconds)
	}
	switch c.Sensor.Connector {
	case SensorConnectorUnix:
		if strings.TrimSpace(c.Sensor.SocketPath) == "" {
			return errors.New("sensor socket path is required")
		}
	case SensorConnectorSerial:
		if strings.TrimSpace(c.Sensor.SerialPort) == "" {
			return errors.New("sensor serial port is required")
		}
		if c.Sensor.SerialBaud <= 0 {
			return errors.New("sensor serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown sensor connector: %s", c.Sensor.Connector)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
