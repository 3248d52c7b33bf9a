package server

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-headgesture/internal/report"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// poseHandler returns the pose producer endpoint.
func (s *Server) poseHandler() fiber.Handler {
	return websocket.New(s.handlePose)
}

// handlePose handles a pose producer connection. The stream ID comes from
// the path or is generated; it is announced in the first state reply.
func (s *Server) handlePose(c *websocket.Conn) {
	stream, err := s.registry.Open(c.Params("id"), "websocket")
	if err != nil {
		s.logger.Warn("open stream", "error", err)
		return
	}
	streamID := stream.ID()
	defer report.Recover(map[string]string{"handler": "ws_pose", "stream": streamID})

	s.logger.Info("pose producer connected", "stream", streamID)
	defer s.logger.Info("pose producer disconnected", "stream", streamID)

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		replies, keep := s.handlePoseMessage(streamID, data)
		for _, reply := range replies {
			out, err := reply.Bytes()
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
		if !keep {
			return
		}
	}
}

// handlePoseMessage processes one producer message and returns the replies.
// keep is false when the connection should be dropped.
func (s *Server) handlePoseMessage(streamID string, data []byte) (replies []*protocol.Message, keep bool) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return errorReply(err.Error()), true
	}

	switch msg.Type {
	case protocol.TypePose:
		pose, err := msg.GetPoseData()
		if err != nil {
			return errorReply("invalid pose: " + err.Error()), true
		}
		u, err := s.registry.Process(streamID, pose.Sample())
		if err != nil {
			return s.registryErrorReply(streamID, err)
		}
		msgs, err := protocol.NewUpdateMessages(u)
		if err != nil {
			return errorReply(err.Error()), true
		}
		return msgs, true

	case protocol.TypeReset:
		u, err := s.registry.Reset(streamID)
		if err != nil {
			return s.registryErrorReply(streamID, err)
		}
		state, err := protocol.NewStateMessage(u.StreamID, u.State, true)
		if err != nil {
			return errorReply(err.Error()), true
		}
		return []*protocol.Message{state}, true

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return errorReply("invalid ping: " + err.Error()), true
		}
		pingTS := ping.Timestamp
		if pingTS == 0 {
			pingTS = msg.Timestamp
		}
		pong, err := protocol.NewPongMessage(ping.ID, pingTS, time.Now().UnixMilli())
		if err != nil {
			return errorReply(err.Error()), true
		}
		return []*protocol.Message{pong}, true

	default:
		return errorReply("unsupported message type: " + string(msg.Type)), true
	}
}

// registryErrorReply reports a registry failure. A stream closed while a
// sample was in flight ends the producer connection.
func (s *Server) registryErrorReply(streamID string, err error) ([]*protocol.Message, bool) {
	if errors.Is(err, session.ErrStreamClosed) {
		s.logger.Info("stream gone, closing producer", "stream", streamID)
		return errorReply(err.Error()), false
	}
	return errorReply(err.Error()), true
}

func errorReply(text string) []*protocol.Message {
	msg, err := protocol.NewErrorMessage(text)
	if err != nil {
		return nil
	}
	return []*protocol.Message{msg}
}
