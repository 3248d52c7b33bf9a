// Package daemon wires the gesture registry to its transports: the HTTP and
// websocket server, the robot pose poller and the MQTT publisher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-headgesture/internal/config"
	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/internal/report"
	"github.com/teslashibe/go-headgesture/pkg/publish"
	"github.com/teslashibe/go-headgesture/pkg/robot"
	"github.com/teslashibe/go-headgesture/pkg/server"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// App is the gestured application.
type App struct {
	cfg     config.Config
	version string
	logger  *slog.Logger

	registry *session.Registry
	server   *server.Server

	// Optional integrations
	publisher publish.Publisher
	forwarder *publish.Forwarder
	poller    *robot.Poller

	shutdownOnce sync.Once
}

// Option customizes an App.
type Option func(*App)

// WithPublisher uses p instead of connecting to the configured broker.
func WithPublisher(p publish.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// New creates a new application with the given configuration.
func New(cfg config.Config, version string, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{
		cfg:     cfg,
		version: version,
		logger:  log.Component("daemon"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init initializes all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	if err := report.Init(a.cfg.Sentry.DSN, a.cfg.Sentry.Environment, a.version); err != nil {
		a.logger.Warn("error reporting disabled", "error", err)
	}

	gcfg, err := a.cfg.ToGestureConfig()
	if err != nil {
		return fmt.Errorf("detector config: %w", err)
	}
	a.registry, err = session.NewRegistry(gcfg, session.Options{IdleTimeout: a.cfg.IdleTimeout()})
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	a.server = server.New(a.registry, server.Options{
		Addr:         a.cfg.Server.Addr,
		AllowOrigins: a.cfg.Server.AllowOrigins,
		MaxBatch:     a.cfg.Server.MaxBatch,
		AccessLog:    a.cfg.Server.AccessLog,
	})

	if a.publisher == nil && a.cfg.MQTT.Enabled {
		pub, err := publish.NewMQTTPublisher(publish.MQTTOptions{
			Broker:      a.cfg.MQTT.Broker,
			ClientID:    a.cfg.MQTT.ClientID,
			TopicPrefix: a.cfg.MQTT.TopicPrefix,
			Username:    a.cfg.MQTT.Username,
			Password:    a.cfg.MQTT.Password,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		a.publisher = pub
	}
	if a.publisher != nil {
		a.forwarder = publish.NewForwarder(a.publisher, a.cfg.MQTT.QueueSize)
		a.registry.Subscribe(a.forwarder.Observe)
	}

	if a.cfg.Robot.Enabled {
		client := robot.NewClient(a.cfg.Robot.IP)
		a.poller = robot.NewPoller(client, a.registry, robot.PollerOptions{
			StreamID: a.cfg.Robot.StreamID,
			Hz:       a.cfg.Robot.Hz,
			SwapAxes: a.cfg.Robot.SwapAxes,
		})
	}

	a.logger.Info("initialized",
		"version", a.version,
		"threshold", gcfg.Threshold,
		"history_size", gcfg.HistorySize,
		"policy", gcfg.Policy.String(),
		"mqtt", a.publisher != nil,
		"robot", a.poller != nil,
		"sentry", report.Enabled())
	return nil
}

// Registry returns the stream registry. Valid after Init.
func (a *App) Registry() *session.Registry {
	return a.registry
}

// Server returns the HTTP server. Valid after Init.
func (a *App) Server() *server.Server {
	return a.server
}

// Run starts all background tasks and serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.registry == nil {
		return errors.New("daemon: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer report.Recover(map[string]string{"task": name})
			fn(ctx)
		}()
	}

	if a.cfg.Streams.IdleTimeoutSec > 0 {
		start("sweeper", func(ctx context.Context) {
			a.registry.RunSweeper(ctx, a.cfg.SweepInterval())
		})
	}
	if a.forwarder != nil {
		start("publish", a.forwarder.Run)
		if err := a.publisher.PublishSystem(publish.SystemEvent{
			Timestamp: time.Now(),
			Event:     publish.EventStartup,
			Retained:  true,
		}); err != nil {
			a.logger.Warn("publish startup", "error", err)
		}
	}
	if a.poller != nil {
		start("robot", func(ctx context.Context) { a.poller.Run(ctx) })
	}

	a.logger.Info("gestured running", "addr", a.cfg.Server.Addr)
	err := a.server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Shutdown publishes the shutdown notice and releases resources. Safe to call twice.
func (a *App) Shutdown(reason string) {
	a.shutdownOnce.Do(func() {
		if a.publisher != nil {
			if err := a.publisher.PublishSystem(publish.SystemEvent{
				Timestamp: time.Now(),
				Event:     publish.EventShutdown,
				Reason:    reason,
				Retained:  true,
			}); err != nil {
				a.logger.Warn("publish shutdown", "error", err)
			}
			a.publisher.Close()
		}
		if a.poller != nil {
			st := a.poller.Stats()
			a.logger.Info("robot poller totals", "ticks", st.Ticks, "samples", st.Samples, "errors", st.Errors)
		}
		if a.forwarder != nil {
			published, dropped, failed := a.forwarder.Stats()
			a.logger.Info("publish totals", "published", published, "dropped", dropped, "failed", failed)
		}
		report.Flush(report.FlushTimeout)
		a.logger.Info("goodbye", "reason", reason)
	})
}
