package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-headgesture/pkg/protocol"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// StreamView is the API representation of a stream.
type StreamView struct {
	ID        string             `json:"id"`
	Source    string             `json:"source,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	LastSeen  time.Time          `json:"last_seen"`
	Samples   uint64             `json:"samples"`
	Events    uint64             `json:"events"`
	State     protocol.StateData `json:"state"`
}

func newStreamView(info session.Info) StreamView {
	return StreamView{
		ID:        info.ID,
		Source:    info.Source,
		CreatedAt: info.CreatedAt,
		LastSeen:  info.LastSeen,
		Samples:   info.Samples,
		Events:    info.Events,
		State:     protocol.NewStateData(info.ID, info.State, false),
	}
}

// SamplesRequest is the body of POST /api/streams/:id/samples: either a single
// pose or a batch under "samples".
type SamplesRequest struct {
	protocol.PoseData
	Samples []protocol.PoseData `json:"samples,omitempty"`
}

// SamplesResponse reports the state after the last sample and any gestures
// recognized along the way.
type SamplesResponse struct {
	StreamID  string                 `json:"stream_id"`
	Processed int                    `json:"processed"`
	State     protocol.StateData     `json:"state"`
	Gestures  []protocol.GestureData `json:"gestures"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ok",
		"streams":    s.registry.Len(),
		"dashboards": s.stateHub.ClientCount(),
		"uptime_s":   int64(time.Since(s.started).Seconds()),
	})
}

// handleConfig returns the active detector configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.registry.Config())
}

// handleListStreams returns all streams in creation order
func (s *Server) handleListStreams(c *fiber.Ctx) error {
	infos := s.registry.List()
	views := make([]StreamView, 0, len(infos))
	for _, info := range infos {
		views = append(views, newStreamView(info))
	}
	return c.JSON(fiber.Map{
		"streams": views,
		"count":   len(views),
	})
}

// handleGetStream returns one stream
func (s *Server) handleGetStream(c *fiber.Ctx) error {
	info, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(newStreamView(info))
}

// handlePostSamples feeds one or more samples to a stream, creating it if needed
func (s *Server) handlePostSamples(c *fiber.Ctx) error {
	id := c.Params("id")

	var req SamplesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	samples := req.Samples
	if len(samples) == 0 {
		if req.Yaw == nil && req.Pitch == nil && req.Orientation == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no samples in request"})
		}
		samples = []protocol.PoseData{req.PoseData}
	}
	if len(samples) > s.opts.MaxBatch {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "too many samples in one request",
			"max":   s.opts.MaxBatch,
		})
	}

	if _, err := s.registry.Open(id, "http"); err != nil {
		return errorResponse(c, err)
	}

	resp := SamplesResponse{StreamID: id, Gestures: []protocol.GestureData{}}
	for _, pose := range samples {
		u, err := s.registry.Process(id, pose.Sample())
		if err != nil {
			return errorResponse(c, err)
		}
		resp.Processed++
		resp.State = protocol.NewStateData(id, u.State, false)
		if u.Event != nil {
			resp.Gestures = append(resp.Gestures, protocol.NewGestureData(*u.Event))
		}
	}
	return c.JSON(resp)
}

// handleResetStream clears a stream's detector
func (s *Server) handleResetStream(c *fiber.Ctx) error {
	u, err := s.registry.Reset(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(protocol.NewStateData(u.StreamID, u.State, true))
}

// handleDeleteStream closes a stream
func (s *Server) handleDeleteStream(c *fiber.Ctx) error {
	if err := s.registry.Close(c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// errorResponse maps registry errors to HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrStreamNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, session.ErrStreamClosed):
		status = fiber.StatusGone
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
