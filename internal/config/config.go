// Package config loads the gestured configuration: defaults, an optional YAML
// file, environment variables, then command-line flags, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/publish"
	"github.com/teslashibe/go-headgesture/pkg/robot"
	"github.com/teslashibe/go-headgesture/pkg/server"
)

// Config is the top-level YAML configuration for gestured.
type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Server   ServerConfig   `yaml:"server"`
	Streams  StreamsConfig  `yaml:"streams"`
	Robot    RobotConfig    `yaml:"robot"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Sentry   SentryConfig   `yaml:"sentry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DetectorConfig holds the gesture detector constants.
type DetectorConfig struct {
	Threshold   float64       `yaml:"threshold"`    // radians between consecutive samples
	HistorySize int           `yaml:"history_size"` // motions per window
	Weights     WeightsConfig `yaml:"weights"`
	Policy      string        `yaml:"policy"` // "keep_sliding" or "reset_on_match"
}

type WeightsConfig struct {
	Up    int `yaml:"up"`
	Down  int `yaml:"down"`
	Left  int `yaml:"left"`
	Right int `yaml:"right"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	AllowOrigins string `yaml:"allow_origins,omitempty"`
	MaxBatch     int    `yaml:"max_batch"`
	AccessLog    bool   `yaml:"access_log"`
}

type StreamsConfig struct {
	IdleTimeoutSec   int `yaml:"idle_timeout_sec"`   // 0 disables expiry
	SweepIntervalSec int `yaml:"sweep_interval_sec"` // how often idle streams are closed
}

type RobotConfig struct {
	Enabled  bool   `yaml:"enabled"`
	IP       string `yaml:"ip"`
	Hz       int    `yaml:"hz"`
	StreamID string `yaml:"stream_id"`
	SwapAxes bool   `yaml:"swap_axes"` // feed pitch as yaw so a physical nod reads as YES
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	QueueSize   int    `yaml:"queue_size"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn,omitempty"`
	Environment string `yaml:"environment"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	g := gesture.DefaultConfig()
	return Config{
		Detector: DetectorConfig{
			Threshold:   g.Threshold,
			HistorySize: g.HistorySize,
			Weights: WeightsConfig{
				Up:    g.Weights.Up,
				Down:  g.Weights.Down,
				Left:  g.Weights.Left,
				Right: g.Weights.Right,
			},
			Policy: g.Policy.String(),
		},
		Server: ServerConfig{
			Addr:     ":8080",
			MaxBatch: server.DefaultMaxBatch,
		},
		Streams: StreamsConfig{
			IdleTimeoutSec:   300,
			SweepIntervalSec: 30,
		},
		Robot: RobotConfig{
			Enabled:  false,
			Hz:       robot.ControlLoopHz,
			StreamID: "robot",
			SwapAxes: true,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "gestured",
			TopicPrefix: publish.DefaultTopicPrefix,
			QueueSize:   publish.DefaultQueueSize,
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Load returns defaults, overlaid with the file at path (if any) and the environment.
// Flags are applied by the caller; call Validate last.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	Addr      *string
	Threshold *float64
	Policy    *string

	RobotIP       *string
	RobotHz       *int
	RobotSwapAxes *bool

	MQTTBroker *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Addr != nil {
		cfg.Server.Addr = *o.Addr
	}
	if o.Threshold != nil {
		cfg.Detector.Threshold = *o.Threshold
	}
	if o.Policy != nil {
		cfg.Detector.Policy = *o.Policy
	}

	if o.RobotIP != nil {
		cfg.Robot.IP = *o.RobotIP
		cfg.Robot.Enabled = *o.RobotIP != ""
	}
	if o.RobotHz != nil {
		cfg.Robot.Hz = *o.RobotHz
	}
	if o.RobotSwapAxes != nil {
		cfg.Robot.SwapAxes = *o.RobotSwapAxes
	}

	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
		cfg.MQTT.Enabled = *o.MQTTBroker != ""
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + env + flags are applied.
func (c *Config) Validate() error {
	if _, err := c.ToGestureConfig(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.MaxBatch < 0 {
		return errors.New("server.max_batch must be >= 0")
	}

	if c.Streams.IdleTimeoutSec < 0 {
		return errors.New("streams.idle_timeout_sec must be >= 0")
	}
	if c.Streams.IdleTimeoutSec > 0 && c.Streams.SweepIntervalSec <= 0 {
		return errors.New("streams.sweep_interval_sec must be > 0 when idle expiry is enabled")
	}

	if c.Robot.Enabled {
		if c.Robot.IP == "" {
			return errors.New("robot.enabled is true but robot.ip is empty (set ROBOT_IP)")
		}
		if c.Robot.Hz <= 0 || c.Robot.Hz > 200 {
			return errors.New("robot.hz must be between 1 and 200")
		}
		if c.Robot.StreamID == "" {
			return errors.New("robot.stream_id must not be empty")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.TopicPrefix == "" {
			return errors.New("mqtt.topic_prefix must not be empty")
		}
		if c.MQTT.QueueSize < 0 {
			return errors.New("mqtt.queue_size must be >= 0")
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToGestureConfig converts the detector section to a validated gesture.Config.
func (c *Config) ToGestureConfig() (gesture.Config, error) {
	policy, err := gesture.ParsePolicy(c.Detector.Policy)
	if err != nil {
		return gesture.Config{}, err
	}
	cfg := gesture.Config{
		Threshold:   c.Detector.Threshold,
		HistorySize: c.Detector.HistorySize,
		Weights: gesture.Weights{
			Up:    c.Detector.Weights.Up,
			Down:  c.Detector.Weights.Down,
			Left:  c.Detector.Weights.Left,
			Right: c.Detector.Weights.Right,
		},
		Policy: policy,
	}
	if err := cfg.Validate(); err != nil {
		return gesture.Config{}, err
	}
	return cfg, nil
}

// IdleTimeout returns the stream idle expiry.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Streams.IdleTimeoutSec) * time.Second
}

// SweepInterval returns how often idle streams are swept.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Streams.SweepIntervalSec) * time.Second
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
