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
	"laneagent/internal/sensorlink"
	"laneagent/internal/transport"
)

// debug runs the full agent wiring with a logging actuator and prints every
// bus event, so a lane install can be inspected without touching hardware.
func main() {
	if err := run(); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "laneagent.json", "path to agent config file")
	host := flag.String("host", "", "override scoring server host")
	listenFor := flag.Duration("listen-for", 0, "exit after this duration, e.g. 30s")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*host) != "" {
		cfg.Server.Host = strings.TrimSpace(*host)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logMgr := logging.NewManager()
	cfg.Logging.Level = "debug"
	cfg.Logging.LogToFile = false
	if err := logMgr.Configure(cfg.Logging, ""); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger := logMgr.Logger("debug")
	logger.Info("starting lane debug", "lane", cfg.LaneID, "server", cfg.Server.Host)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	act := actuator.NewLogging(logMgr.Logger("actuator"))
	controller := pinctl.New(logMgr.Logger("pinctl"), b, act, cfg.Channels)

	sensorTr := transport.NewUnixTransport(cfg.Sensor.SocketPath, 5*time.Second)
	sensor := sensorlink.New(logMgr.Logger("sensorlink"), b, sensorTr)
	sensor.OnDetection(func(det events.Detection) {
		if det.Event == "ball_detected" {
			controller.ProcessEvent()
		}
	})

	laneTr := transport.NewTCPTransport(cfg.Server.Host, cfg.Server.Port)
	laneClient := lanelink.New(logMgr.Logger("lanelink"), b, laneTr, cfg.LaneID,
		time.Duration(cfg.Server.HeartbeatSeconds)*time.Second)
	laneClient.OnResetPins(controller.ResetPins)

	watch(ctx, b, logger)

	sensor.Start(ctx)
	laneClient.Start(ctx)
	defer func() {
		sensor.Stop()
		laneClient.Stop()
	}()

	if *listenFor > 0 {
		logger.Info("listen mode", "duration", *listenFor)
		select {
		case <-ctx.Done():
		case <-time.After(*listenFor):
		}
		return nil
	}

	logger.Info("listening until interrupt")
	<-ctx.Done()

	return nil
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	connSub := b.Subscribe(events.TopicConnStatus)
	detSub := b.Subscribe(events.TopicDetection)
	pinSub := b.Subscribe(events.TopicPinState)
	rawInSub := b.Subscribe(events.TopicRawLineIn)
	rawOutSub := b.Subscribe(events.TopicRawLineOut)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(connSub, events.TopicConnStatus)
				b.Unsubscribe(detSub, events.TopicDetection)
				b.Unsubscribe(pinSub, events.TopicPinState)
				b.Unsubscribe(rawInSub, events.TopicRawLineIn)
				b.Unsubscribe(rawOutSub, events.TopicRawLineOut)
				return
			case raw := <-connSub:
				if status, ok := raw.(events.ConnStatus); ok {
					logger.Info("conn", "link", status.Link, "state", status.State, "transport", status.TransportName, "error", status.Err)
				}
			case raw := <-detSub:
				if det, ok := raw.(events.Detection); ok {
					logger.Info("detection", "event", det.Event, "timestamp", det.Timestamp)
				}
			case raw := <-pinSub:
				if snap, ok := raw.(events.PinSnapshot); ok {
					logger.Info("pin-state", "down", fmt.Sprintf("%v", snap.Down))
				}
			case raw := <-rawOutSub:
				if line, ok := raw.(events.RawLine); ok {
					logger.Info("raw-out", "link", line.Link, "text", line.Text)
				}
			case raw := <-rawInSub:
				if line, ok := raw.(events.RawLine); ok {
					logger.Info("raw-in", "link", line.Link, "text", line.Text)
				}
			}
		}
	}()
}
