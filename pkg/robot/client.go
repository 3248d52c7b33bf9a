package robot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-headgesture/internal/httpc"
	"github.com/teslashibe/go-headgesture/pkg/orientation"
)

// DefaultTimeout bounds one daemon request; the poller runs many per second.
const DefaultTimeout = 2 * time.Second

// Client reads state from the robot's HTTP API.
type Client struct {
	BaseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at robotIP.
func NewClient(robotIP string) *Client {
	return NewClientURL(fmt.Sprintf("http://%s:%d", robotIP, DaemonPort))
}

// NewClientURL creates a client for a daemon base URL.
func NewClientURL(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    httpc.NewClient(DefaultTimeout),
	}
}

// State returns the daemon's full state.
func (c *Client) State(ctx context.Context) (*FullState, error) {
	var state FullState
	if err := httpc.GetJSON(ctx, c.http, c.BaseURL+"/api/state/full", &state); err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	return &state, nil
}

// HeadPose returns the current head orientation.
func (c *Client) HeadPose(ctx context.Context) (orientation.Pose, error) {
	state, err := c.State(ctx)
	if err != nil {
		return orientation.Pose{}, err
	}
	if state.HeadPose == nil {
		return orientation.Pose{}, ErrNoHeadPose
	}
	return state.HeadPose.Pose()
}

// DaemonStatus returns the robot daemon status.
func (c *Client) DaemonStatus(ctx context.Context) (string, error) {
	var status struct {
		State string `json:"state"`
	}
	if err := httpc.GetJSON(ctx, c.http, c.BaseURL+"/api/daemon/status", &status); err != nil {
		return "", fmt.Errorf("daemon status request failed: %w", err)
	}
	return status.State, nil
}
