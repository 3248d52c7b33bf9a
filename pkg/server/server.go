// Package server exposes the gesture registry over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/internal/report"
	"github.com/teslashibe/go-headgesture/pkg/hub"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

const (
	// DefaultMaxBatch caps samples accepted in one HTTP request.
	DefaultMaxBatch = 1024

	shutdownTimeout = 5 * time.Second
)

// Options configures the server.
type Options struct {
	Addr         string // listen address, e.g. ":8080"
	AllowOrigins string // CORS origins; empty allows all
	MaxBatch     int    // samples per POST; 0 means DefaultMaxBatch
	AccessLog    bool   // enable the fiber request logger
}

// Server is the gesture HTTP/websocket server.
type Server struct {
	app      *fiber.App
	registry *session.Registry
	opts     Options
	logger   *slog.Logger
	started  time.Time

	// Dashboard fan-out (thread-safe)
	stateHub    *hub.Hub
	unsubscribe func()
}

// New creates a server for registry. Every registry update is broadcast to
// dashboards once the server runs.
func New(registry *session.Registry, opts Options) *Server {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}

	s := &Server{
		registry: registry,
		opts:     opts,
		logger:   log.Component("server"),
		started:  time.Now(),
		stateHub: hub.New("state"),
	}
	s.stateHub.SetGreeting(s.snapshot)

	app := fiber.New(fiber.Config{
		AppName:               "gestured",
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			err := fmt.Errorf("panic: %v", e)
			s.logger.Error("handler panic", "path", c.Path(), "error", err)
			report.CaptureError(err, map[string]string{"path": c.Path()})
		},
	}))

	corsCfg := cors.Config{}
	if opts.AllowOrigins != "" {
		corsCfg.AllowOrigins = opts.AllowOrigins
	}
	app.Use(cors.New(corsCfg))

	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/config", s.handleConfig)
	api.Get("/streams", s.handleListStreams)
	api.Get("/streams/:id", s.handleGetStream)
	api.Post("/streams/:id/samples", s.handlePostSamples)
	api.Post("/streams/:id/reset", s.handleResetStream)
	api.Delete("/streams/:id", s.handleDeleteStream)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/pose/:id?", s.poseHandler())
	app.Get("/ws/state", fiberws.New(s.handleStateWS))

	s.app = app
	s.unsubscribe = registry.Subscribe(s.broadcastUpdate)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the dashboard hub.
func (s *Server) Hub() *hub.Hub {
	return s.stateHub
}

// Run starts the hub and listens on Options.Addr until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.stateHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		s.unsubscribe()
		return err
	case <-ctx.Done():
	}

	s.unsubscribe()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// broadcastUpdate forwards a registry update to dashboards.
func (s *Server) broadcastUpdate(u session.Update) {
	msgs, err := protocol.NewUpdateMessages(u)
	if err != nil {
		s.logger.Warn("encode update", "stream", u.StreamID, "error", err)
		return
	}
	for _, msg := range msgs {
		if err := s.stateHub.BroadcastMessage(msg); err != nil {
			s.logger.Warn("broadcast update", "stream", u.StreamID, "error", err)
		}
	}
}

// snapshot is the greeting for new dashboards: one state message per stream.
func (s *Server) snapshot() []*protocol.Message {
	infos := s.registry.List()
	msgs := make([]*protocol.Message, 0, len(infos))
	for _, info := range infos {
		msg, err := protocol.NewStateMessage(info.ID, info.State, false)
		if err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// handleStateWS serves a dashboard connection.
func (s *Server) handleStateWS(c *fiberws.Conn) {
	hub.NewClient(s.stateHub, c).Run()
}
