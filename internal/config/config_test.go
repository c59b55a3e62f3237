package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}

	if cfg.LaneID != "lane_01" {
		t.Fatalf("default lane id: %q", cfg.LaneID)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Fatalf("default server port: %d", cfg.Server.Port)
	}
	if cfg.Sensor.Connector != SensorConnectorUnix {
		t.Fatalf("default sensor connector: %q", cfg.Sensor.Connector)
	}
	if cfg.Sensor.SocketPath != DefaultSensorSocketPath {
		t.Fatalf("default socket path: %q", cfg.Sensor.SocketPath)
	}
	if got := cfg.Channels.BreakChannels(); got != [5]int{17, 27, 22, 23, 24} {
		t.Fatalf("default break channels: %v", got)
	}
	if cfg.Channels.ResetChannel() != 25 {
		t.Fatalf("default reset channel: %d", cfg.Channels.ResetChannel())
	}
}

func TestLoadFillsMissingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	raw := `{"lane_id":"lane_12","server":{"host":"10.0.0.4"}}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LaneID != "lane_12" {
		t.Fatalf("lane id not kept: %q", cfg.LaneID)
	}
	if cfg.Server.Host != "10.0.0.4" {
		t.Fatalf("host not kept: %q", cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Fatalf("port not defaulted: %d", cfg.Server.Port)
	}
	if cfg.Server.HeartbeatSeconds != DefaultHeartbeatSeconds {
		t.Fatalf("heartbeat not defaulted: %d", cfg.Server.HeartbeatSeconds)
	}
	if cfg.Sensor.SerialBaud != DefaultSerialBaud {
		t.Fatalf("serial baud not defaulted: %d", cfg.Sensor.SerialBaud)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "laneagent.json")

	cfg := Default()
	cfg.LaneID = "lane_05"
	cfg.Server.Host = "scoring.local"
	cfg.Sensor.Connector = SensorConnectorSerial
	cfg.Sensor.SerialPort = "/dev/ttyUSB0"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.LaneID != cfg.LaneID || loaded.Server.Host != cfg.Server.Host {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.Sensor.Connector != SensorConnectorSerial || loaded.Sensor.SerialPort != "/dev/ttyUSB0" {
		t.Fatalf("sensor config mismatch: %+v", loaded.Sensor)
	}
}

func TestSaveRefusesInvalidConfig(t *testing.T) {
	cfg := Default() // no server host set
	path := filepath.Join(t.TempDir(), "laneagent.json")

	if err := Save(path, cfg); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config must not be written")
	}
}

func TestValidate(t *testing.T) {
	base := Default()
	base.Server.Host = "scoring.local"

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty lane id", func(c *AppConfig) { c.LaneID = " " }},
		{"empty host", func(c *AppConfig) { c.Server.Host = "" }},
		{"port too high", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"zero heartbeat", func(c *AppConfig) { c.Server.HeartbeatSeconds = 0 }},
		{"unix without socket", func(c *AppConfig) { c.Sensor.SocketPath = "" }},
		{"serial without port", func(c *AppConfig) {
			c.Sensor.Connector = SensorConnectorSerial
			c.Sensor.SerialPort = ""
		}},
		{"unknown connector", func(c *AppConfig) { c.Sensor.Connector = "pigeon" }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
