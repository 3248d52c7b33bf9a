// Package posestream is a websocket client for pose producers.
package posestream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 5 * time.Second
)

// Client sends samples to a gesture server's /ws/pose endpoint.
// Writes are serialized; reads must come from a single goroutine.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to url, e.g. "ws://localhost:8080/ws/pose/head".
func Dial(ctx context.Context, url string) (*Client, error) {
	d := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// SendSample sends one yaw/pitch sample.
func (c *Client) SendSample(s gesture.Sample) error {
	msg, err := protocol.NewPoseMessage(s.Yaw, s.Pitch)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendOrientation sends an [x, y, z, w] quaternion sample.
func (c *Client) SendOrientation(q [4]float64) error {
	msg, err := protocol.NewOrientationMessage(q)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendReset asks the server to reset the stream's detector.
func (c *Client) SendReset() error {
	msg, err := protocol.NewResetMessage()
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendPing sends a latency probe; the server answers with a pong.
func (c *Client) SendPing(id string) error {
	msg, err := protocol.NewPingMessage(id)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Send writes any protocol message.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next server message. Non-text frames are skipped.
func (c *Client) ReadMessage() (*protocol.Message, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return protocol.ParseMessage(data)
	}
}

// SetReadDeadline bounds the next ReadMessage.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
