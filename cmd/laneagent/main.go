package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"laneagent/internal/actuator"
	"laneagent/internal/bus"
	"laneagent/internal/config"
	"laneagent/internal/events"
	"laneagent/internal/lanelink"
	"laneagent/internal/logging"
	"laneagent/internal/pinctl"
	"laneagent/internal/scorestore"
	"laneagent/internal/sensorlink"
	"laneagent/internal/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run laneagent", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "laneagent.json", "path to agent config file")
	lane := flag.String("lane", "", "override lane id")
	host := flag.String("host", "", "override scoring server host")
	dryRun := flag.Bool("dry-run", false, "log actuator writes instead of driving GPIO")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*lane) != "" {
		cfg.LaneID = strings.TrimSpace(*lane)
	}
	if strings.TrimSpace(*host) != "" {
		cfg.Server.Host = strings.TrimSpace(*host)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, cfg.LogFilePath); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("agent")
	logger.Info("starting laneagent", "lane", cfg.LaneID, "server", cfg.Server.Host)

	db, err := scorestore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open scorestore: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close scorestore", "error", closeErr)
		}
	}()

	frameRepo := scorestore.NewFrameRepo(db)
	gameRepo := scorestore.NewGameRepo(db)
	writer := scorestore.NewWriterQueue(logMgr.Logger("scorestore"), 128)
	writer.Start(ctx)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	act, cleanup, err := buildActuator(logMgr, cfg, *dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	controller := pinctl.New(logMgr.Logger("pinctl"), b, act, cfg.Channels)

	sensorTr, err := buildSensorTransport(ctx, logMgr.Logger("agent"), cfg.Sensor)
	if err != nil {
		return err
	}
	sensor := sensorlink.New(logMgr.Logger("sensorlink"), b, sensorTr)
	sensor.OnDetection(func(det events.Detection) {
		switch det.Event {
		case "ball_detected":
			logger.Info("ball detected")
			control := controller.ProcessEvent()
			logger.Debug("control vector applied", "control", fmt.Sprintf("%v", control))
			if err := sensor.SendPinSet(controller.DownPins()); err != nil {
				logger.Warn("pin set command failed", "error", err)
			}
		default:
			logger.Debug("sensor event ignored", "event", det.Event)
		}
	})

	laneTr := transport.NewTCPTransport(cfg.Server.Host, cfg.Server.Port)
	laneClient := lanelink.New(logMgr.Logger("lanelink"), b, laneTr, cfg.LaneID,
		time.Duration(cfg.Server.HeartbeatSeconds)*time.Second)
	laneClient.SetRecorder(scorestore.NewRecorder(logMgr.Logger("scorestore"), cfg.LaneID, frameRepo, gameRepo, writer))
	laneClient.OnResetPins(func() {
		logger.Info("reset pins requested by server")
		controller.ResetPins()
	})

	sensor.Start(ctx)
	laneClient.Start(ctx)

	logger.Info("laneagent running")
	<-ctx.Done()
	logger.Info("shutting down")

	sensor.Stop()
	laneClient.Stop()

	return nil
}

func buildActuator(logMgr *logging.Manager, cfg config.AppConfig, dryRun bool) (actuator.Actuator, func(), error) {
	if dryRun {
		return actuator.NewLogging(logMgr.Logger("actuator")), func() {}, nil
	}

	gpio := actuator.NewSysfsGPIO(logMgr.Logger("actuator"))
	logger := logMgr.Logger("actuator")

	channels := cfg.Channels.BreakChannels()
	owned := append(channels[:], cfg.Channels.ResetChannel())
	for _, ch := range owned {
		if err := gpio.Export(ch); err != nil {
			// Already-exported channels fail here on every boot after the
			// first; real faults surface on the first write.
			logger.Debug("gpio export", "channel", ch, "error", err)
		}
	}

	cleanup := func() {
		for _, ch := range owned {
			if err := gpio.Unexport(ch); err != nil {
				logger.Debug("gpio unexport", "channel", ch, "error", err)
			}
		}
	}

	return gpio, cleanup, nil
}

func buildSensorTransport(ctx context.Context, logger *slog.Logger, cfg config.SensorConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.SensorConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	case config.SensorConnectorUnix:
		wait := time.Duration(cfg.WaitSeconds) * time.Second
		logger.Info("waiting for sensor socket", "path", cfg.SocketPath, "timeout", wait)
		if err := transport.WaitForSocket(ctx, cfg.SocketPath, wait); err != nil {
			// The connector loop retries anyway; a missing socket at boot is
			// not fatal.
			logger.Warn("sensor socket not ready", "error", err)
		}
		return transport.NewUnixTransport(cfg.SocketPath, 5*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown sensor connector: %s", cfg.Connector)
	}
}
