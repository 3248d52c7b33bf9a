package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// nodBatch is a vertical oscillation: DOWN, UP, DOWN, UP.
const nodBatch = `{"samples":[
	{"yaw":0,"pitch":0},
	{"yaw":1,"pitch":0},
	{"yaw":0,"pitch":0},
	{"yaw":1,"pitch":0},
	{"yaw":0,"pitch":0}
]}`

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	reg, err := session.NewRegistry(gesture.DefaultConfig(), session.Options{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return New(reg, opts)
}

func doRequest(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := doRequest(t, s, http.MethodGet, "/api/health", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var health struct {
		Status  string `json:"status"`
		Streams int    `json:"streams"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Streams != 0 {
		t.Errorf("health = %+v", health)
	}
}

func TestConfigEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	_, body := doRequest(t, s, http.MethodGet, "/api/config", "")

	var cfg gesture.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if cfg != gesture.DefaultConfig() {
		t.Errorf("config = %+v", cfg)
	}
	if !strings.Contains(string(body), `"policy":"keep_sliding"`) {
		t.Errorf("policy should be encoded by name: %s", body)
	}
}

func TestPostSamples_BatchRecognizesNod(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := doRequest(t, s, http.MethodPost, "/api/streams/head/samples", nodBatch)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}

	var resp SamplesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Processed != 5 {
		t.Errorf("Processed = %d, want 5", resp.Processed)
	}
	if resp.State.Gesture != "YES" || resp.State.Direction != "VERTICAL" {
		t.Errorf("state = %+v", resp.State)
	}
	if len(resp.Gestures) != 1 || resp.Gestures[0].Label != "YEAH" || resp.Gestures[0].StreamID != "head" {
		t.Errorf("gestures = %+v", resp.Gestures)
	}
}

func TestPostSamples_Single(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := doRequest(t, s, http.MethodPost, "/api/streams/cam/samples", `{"yaw":0.1,"pitch":0.2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}

	var resp SamplesResponse
	json.Unmarshal(body, &resp)
	if resp.Processed != 1 || resp.State.LastSample == nil || resp.State.LastSample.Pitch != 0.2 {
		t.Errorf("resp = %+v", resp)
	}

	info, err := s.registry.Get("cam")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Source != "http" || info.Samples != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestPostSamples_Rejects(t *testing.T) {
	s := newTestServer(t, Options{MaxBatch: 2})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty object", `{}`, http.StatusBadRequest},
		{"bad json", `{"yaw":`, http.StatusBadRequest},
		{"too many", `{"samples":[{"yaw":0},{"yaw":1},{"yaw":2}]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, s, http.MethodPost, "/api/streams/x/samples", tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d (%s)", status, tt.want, body)
			}
		})
	}
	if s.registry.Len() != 0 {
		t.Errorf("rejected requests should not open streams, got %d", s.registry.Len())
	}
}

func TestStreamLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})
	doRequest(t, s, http.MethodPost, "/api/streams/a/samples", nodBatch)
	doRequest(t, s, http.MethodPost, "/api/streams/b/samples", `{"yaw":0,"pitch":0}`)

	_, body := doRequest(t, s, http.MethodGet, "/api/streams", "")
	var list struct {
		Streams []StreamView `json:"streams"`
		Count   int          `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 2 || list.Streams[0].ID != "a" || list.Streams[1].ID != "b" {
		t.Fatalf("list = %+v", list)
	}
	if list.Streams[0].Events != 1 {
		t.Errorf("stream a events = %d, want 1", list.Streams[0].Events)
	}

	status, body := doRequest(t, s, http.MethodPost, "/api/streams/a/reset", "")
	if status != http.StatusOK {
		t.Fatalf("reset status = %d", status)
	}
	var st protocol.StateData
	json.Unmarshal(body, &st)
	if !st.Reset || st.Direction != "NONE" || st.Gesture != "" || len(st.History) != 0 {
		t.Errorf("state after reset = %+v", st)
	}

	if status, _ := doRequest(t, s, http.MethodDelete, "/api/streams/a", ""); status != http.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
	if status, _ := doRequest(t, s, http.MethodGet, "/api/streams/a", ""); status != http.StatusNotFound {
		t.Errorf("get after delete status = %d", status)
	}
	if status, _ := doRequest(t, s, http.MethodPost, "/api/streams/a/reset", ""); status != http.StatusNotFound {
		t.Errorf("reset after delete status = %d", status)
	}
	if status, _ := doRequest(t, s, http.MethodDelete, "/api/streams/a", ""); status != http.StatusNotFound {
		t.Errorf("second delete status = %d", status)
	}
}

func TestWebSocketRoutesRequireUpgrade(t *testing.T) {
	s := newTestServer(t, Options{})
	for _, path := range []string{"/ws/state", "/ws/pose/head"} {
		if status, _ := doRequest(t, s, http.MethodGet, path, ""); status != http.StatusUpgradeRequired {
			t.Errorf("GET %s status = %d, want 426", path, status)
		}
	}
}

func poseFrame(t *testing.T, yaw, pitch float64) []byte {
	t.Helper()
	msg, err := protocol.NewPoseMessage(yaw, pitch)
	if err != nil {
		t.Fatalf("NewPoseMessage: %v", err)
	}
	data, _ := msg.Bytes()
	return data
}

func TestHandlePoseMessage(t *testing.T) {
	s := newTestServer(t, Options{})
	s.registry.Open("head", "websocket")

	t.Run("malformed", func(t *testing.T) {
		replies, keep := s.handlePoseMessage("head", []byte(`{"type":`))
		if !keep || len(replies) != 1 || replies[0].Type != protocol.TypeError {
			t.Errorf("replies = %+v keep = %v", replies, keep)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		replies, keep := s.handlePoseMessage("head", []byte(`{"type":"state"}`))
		if !keep || len(replies) != 1 || replies[0].Type != protocol.TypeError {
			t.Errorf("replies = %+v keep = %v", replies, keep)
		}
	})

	t.Run("ping", func(t *testing.T) {
		ping, _ := protocol.NewPingMessage("p1")
		data, _ := ping.Bytes()
		replies, _ := s.handlePoseMessage("head", data)
		if len(replies) != 1 || replies[0].Type != protocol.TypePong {
			t.Fatalf("replies = %+v", replies)
		}
		pong, _ := replies[0].GetPongData()
		if pong.ID != "p1" || pong.LatencyMs < 0 {
			t.Errorf("pong = %+v", pong)
		}
	})

	t.Run("shake", func(t *testing.T) {
		var last []*protocol.Message
		for _, pitch := range []float64{0, 1, 0, 1, 0} {
			replies, keep := s.handlePoseMessage("head", poseFrame(t, 0, pitch))
			if !keep || len(replies) == 0 || replies[0].Type != protocol.TypeState {
				t.Fatalf("replies = %+v", replies)
			}
			last = replies
		}
		if len(last) != 2 || last[1].Type != protocol.TypeGesture {
			t.Fatalf("final replies should carry a gesture, got %+v", last)
		}
		g, _ := last[1].GetGestureData()
		if g.Gesture != "NO" || g.Label != "NOPE!" {
			t.Errorf("gesture = %+v", g)
		}
	})

	t.Run("reset", func(t *testing.T) {
		replies, keep := s.handlePoseMessage("head", []byte(`{"type":"reset"}`))
		if !keep || len(replies) != 1 {
			t.Fatalf("replies = %+v", replies)
		}
		st, _ := replies[0].GetStateData()
		if !st.Reset || st.Gesture != "" {
			t.Errorf("state = %+v", st)
		}
	})
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, "ws://" + ln.Addr().String()
}

func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatalf("parse %q: %v", data, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocket_IngestBroadcastsToDashboard(t *testing.T) {
	s, base := startServer(t)

	dash, _, err := websocket.DefaultDialer.Dial(base+"/ws/state", nil)
	if err != nil {
		t.Fatalf("dial dashboard: %v", err)
	}
	defer dash.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Hub().ClientCount() != 1 {
		t.Fatalf("dashboard not registered")
	}

	producer, _, err := websocket.DefaultDialer.Dial(base+"/ws/pose/head", nil)
	if err != nil {
		t.Fatalf("dial producer: %v", err)
	}
	defer producer.Close()

	for i, yaw := range []float64{0, 1, 0, 1, 0} {
		if err := producer.WriteMessage(websocket.TextMessage, poseFrame(t, yaw, 0)); err != nil {
			t.Fatalf("write sample %d: %v", i, err)
		}
		readUntil(t, producer, protocol.TypeState)
	}

	g, err := readUntil(t, dash, protocol.TypeGesture).GetGestureData()
	if err != nil {
		t.Fatalf("GetGestureData: %v", err)
	}
	if g.StreamID != "head" || g.Gesture != "YES" {
		t.Errorf("dashboard gesture = %+v", g)
	}

	// Malformed input is answered, not fatal.
	producer.WriteMessage(websocket.TextMessage, []byte("garbage"))
	readUntil(t, producer, protocol.TypeError)
	producer.WriteMessage(websocket.TextMessage, poseFrame(t, 0, 0))
	readUntil(t, producer, protocol.TypeState)
}

func TestWebSocket_GeneratedStreamID(t *testing.T) {
	s, base := startServer(t)

	producer, _, err := websocket.DefaultDialer.Dial(base+"/ws/pose", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer producer.Close()

	producer.WriteMessage(websocket.TextMessage, poseFrame(t, 0, 0))
	st, _ := readUntil(t, producer, protocol.TypeState).GetStateData()
	if st.StreamID == "" {
		t.Fatal("expected a generated stream id")
	}
	if _, err := s.registry.Get(st.StreamID); err != nil {
		t.Errorf("stream %s not registered: %v", st.StreamID, err)
	}
}

func TestDashboardGreeting(t *testing.T) {
	s, base := startServer(t)
	for i := 0; i < 2; i++ {
		s.registry.Process(fmt.Sprintf("s%d", i), gesture.Sample{})
	}

	dash, _, err := websocket.DefaultDialer.Dial(base+"/ws/state", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer dash.Close()

	first, _ := readUntil(t, dash, protocol.TypeState).GetStateData()
	second, _ := readUntil(t, dash, protocol.TypeState).GetStateData()
	if first.StreamID != "s0" || second.StreamID != "s1" {
		t.Errorf("greeting order: %s, %s", first.StreamID, second.StreamID)
	}
}
