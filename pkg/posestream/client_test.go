package posestream

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/orientation"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
	"github.com/teslashibe/go-headgesture/pkg/server"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

func startServer(t *testing.T) (*session.Registry, string) {
	t.Helper()
	reg, err := session.NewRegistry(gesture.DefaultConfig(), session.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	srv := server.New(reg, server.Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return reg, "ws://" + ln.Addr().String() + "/ws/pose/"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c
}

func TestClient_NodThenReset(t *testing.T) {
	reg, base := startServer(t)
	c := dial(t, base+"sim")

	var last *protocol.Message
	for _, yaw := range []float64{0, 1, 0, 1, 0} {
		if err := c.SendSample(gesture.Sample{Yaw: yaw}); err != nil {
			t.Fatalf("SendSample: %v", err)
		}
		msg, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if msg.Type != protocol.TypeState {
			t.Fatalf("expected state, got %s", msg.Type)
		}
		last = msg
	}

	st, _ := last.GetStateData()
	if st.Gesture != "YES" || st.StreamID != "sim" {
		t.Errorf("state = %+v", st)
	}
	gmsg, err := c.ReadMessage()
	if err != nil || gmsg.Type != protocol.TypeGesture {
		t.Fatalf("expected gesture message, got %+v (%v)", gmsg, err)
	}

	if err := c.SendReset(); err != nil {
		t.Fatalf("SendReset: %v", err)
	}
	msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	st, _ = msg.GetStateData()
	if !st.Reset || st.Gesture != "" {
		t.Errorf("state after reset = %+v", st)
	}

	info, err := reg.Get("sim")
	if err != nil || info.Samples != 5 || info.Source != "websocket" {
		t.Errorf("info = %+v err = %v", info, err)
	}
}

func TestClient_OrientationAndPing(t *testing.T) {
	_, base := startServer(t)
	c := dial(t, base+"quat")

	q := orientation.ToQuaternion(orientation.Pose{Yaw: 0.3})
	if err := c.SendOrientation(q); err != nil {
		t.Fatalf("SendOrientation: %v", err)
	}
	msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	st, _ := msg.GetStateData()
	if st.LastSample == nil || st.LastSample.Yaw < 0.299 || st.LastSample.Yaw > 0.301 {
		t.Errorf("last sample = %+v", st.LastSample)
	}

	if err := c.SendPing("p1"); err != nil {
		t.Fatalf("SendPing: %v", err)
	}
	msg, err = c.ReadMessage()
	if err != nil || msg.Type != protocol.TypePong {
		t.Fatalf("expected pong, got %+v (%v)", msg, err)
	}
	pong, _ := msg.GetPongData()
	if pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestDial_Error(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws/pose")
	if err == nil || !strings.Contains(err.Error(), "dial") {
		t.Errorf("expected dial error, got %v", err)
	}
}
