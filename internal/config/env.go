package config

import (
	"os"
)

// Environment variables read by ApplyEnv.
const (
	EnvRobotIP     = "ROBOT_IP"
	EnvMQTTBroker  = "MQTT_BROKER"
	EnvSentryDSN   = "SENTRY_DSN"
	EnvLogLevel    = "LOG_LEVEL"
	EnvEnvironment = "GO_ENV"
)

// RobotIP returns the robot IP from ROBOT_IP env var.
// Falls back to the provided default if not set.
func RobotIP(defaultIP string) string {
	if ip := os.Getenv(EnvRobotIP); ip != "" {
		return ip
	}
	return defaultIP
}

// ApplyEnv overlays environment variables on cfg. Setting ROBOT_IP or
// MQTT_BROKER also enables that integration.
func ApplyEnv(cfg *Config) {
	if ip := os.Getenv(EnvRobotIP); ip != "" {
		cfg.Robot.IP = ip
		cfg.Robot.Enabled = true
	}
	if broker := os.Getenv(EnvMQTTBroker); broker != "" {
		cfg.MQTT.Broker = broker
		cfg.MQTT.Enabled = true
	}
	if dsn := os.Getenv(EnvSentryDSN); dsn != "" {
		cfg.Sentry.DSN = dsn
	}
	if env := os.Getenv(EnvEnvironment); env != "" {
		cfg.Sentry.Environment = env
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
}
