// gestured detects YES nods and NO shakes from head pose streams.
// Producers send samples over HTTP or websocket, or it polls a Reachy Mini daemon directly.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-headgesture/internal/config"
	hglog "github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/pkg/daemon"
)

var version = "dev"

func main() {
	cfg := parseFlags()

	hglog.Init(cfg.Logging.Level)

	app, err := daemon.New(cfg, version)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = app.Run(ctx)
	app.Shutdown("signal")
	if err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the config file and environment, then applies explicitly set flags.
func parseFlags() config.Config {
	def := config.DefaultConfig()

	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", def.Server.Addr, "HTTP listen address")
	threshold := flag.Float64("threshold", def.Detector.Threshold, "Motion threshold in radians")
	policy := flag.String("policy", def.Detector.Policy, "Post-match policy: keep_sliding or reset_on_match")
	robotIP := flag.String("robot-ip", "", "Poll a Reachy Mini daemon at this IP (overrides ROBOT_IP env var)")
	robotHz := flag.Int("robot-hz", def.Robot.Hz, "Robot poll rate")
	swapAxes := flag.Bool("swap-axes", def.Robot.SwapAxes, "Feed robot pitch as yaw so a physical nod reads as YES")
	mqttBroker := flag.String("mqtt-broker", "", "Publish gestures to this MQTT broker (overrides MQTT_BROKER env var)")
	logLevel := flag.String("log-level", def.Logging.Level, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			o.Addr = addr
		case "threshold":
			o.Threshold = threshold
		case "policy":
			o.Policy = policy
		case "robot-ip":
			o.RobotIP = robotIP
		case "robot-hz":
			o.RobotHz = robotHz
		case "swap-axes":
			o.RobotSwapAxes = swapAxes
		case "mqtt-broker":
			o.MQTTBroker = mqttBroker
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		log.Printf("❌ Invalid configuration: %v", err)
		flag.Usage()
		os.Exit(2)
	}
	return cfg
}
