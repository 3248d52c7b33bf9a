package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-headgesture/pkg/protocol"
)

// mockConn records writes and blocks reads until closed.
type mockConn struct {
	mu     sync.Mutex
	frames [][]byte
	kinds  []int
	closed chan struct{}
	once   sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{closed: make(chan struct{})}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	<-m.closed
	return 0, nil, errors.New("closed")
}

func (m *mockConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-m.closed:
		return errors.New("closed")
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	m.frames = append(m.frames, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) SetReadLimit(int64) {}
func (m *mockConn) SetReadDeadline(time.Time) error { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}
func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) textFrames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for i, f := range m.frames {
		if m.kinds[i] == websocket.TextMessage {
			out = append(out, string(f))
		}
	}
	return out
}

func (m *mockConn) sawClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.kinds {
		if k == websocket.CloseMessage {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	waitFor(t, "hub running", h.IsRunning)
	t.Cleanup(cancel)
	return h, cancel
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h, _ := startHub(t)

	a, b := newMockConn(), newMockConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	h.Broadcast([]byte(`{"type":"state"}`))

	for name, c := range map[string]*mockConn{"a": a, "b": b} {
		waitFor(t, "frame on "+name, func() bool { return len(c.textFrames()) == 1 })
		if got := c.textFrames()[0]; got != `{"type":"state"}` {
			t.Errorf("client %s got %q", name, got)
		}
	}
}

func TestHub_GreetingSentFirst(t *testing.T) {
	h, _ := startHub(t)
	h.SetGreeting(func() []*protocol.Message {
		msg, _ := protocol.NewErrorMessage("hello")
		return []*protocol.Message{msg}
	})

	c := newMockConn()
	go NewClient(h, c).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]string{"type": "state"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	waitFor(t, "two frames", func() bool { return len(c.textFrames()) == 2 })

	frames := c.textFrames()
	first, err := protocol.ParseMessage([]byte(frames[0]))
	if err != nil || first.Type != protocol.TypeError {
		t.Errorf("first frame should be the greeting, got %q", frames[0])
	}
	if frames[1] != `{"type":"state"}` {
		t.Errorf("second frame: got %q", frames[1])
	}
}

func TestHub_BroadcastMessage(t *testing.T) {
	h, _ := startHub(t)
	c := newMockConn()
	go NewClient(h, c).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	msg, _ := protocol.NewPingMessage("p1")
	if err := h.BroadcastMessage(msg); err != nil {
		t.Fatalf("BroadcastMessage: %v", err)
	}
	waitFor(t, "frame", func() bool { return len(c.textFrames()) == 1 })

	parsed, err := protocol.ParseMessage([]byte(c.textFrames()[0]))
	if err != nil || parsed.Type != protocol.TypePing {
		t.Errorf("unexpected frame %q (err=%v)", c.textFrames()[0], err)
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test")
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, _ := startHub(t)
	c := newMockConn()
	go NewClient(h, c).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	c.Close()
	waitFor(t, "client removed", func() bool { return h.ClientCount() == 0 })
}

func TestHub_SlowClientDropped(t *testing.T) {
	h, _ := startHub(t)

	// A client whose writer never runs fills its queue and is evicted.
	slow := &Client{hub: h, conn: newMockConn(), send: make(chan []byte, 1)}
	h.register <- slow
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	h.Broadcast([]byte("1"))
	h.Broadcast([]byte("2"))
	waitFor(t, "slow client dropped", func() bool { return h.ClientCount() == 0 })
}

func TestHub_CancelClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := newMockConn()
	go NewClient(h, c).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "hub stopped", func() bool { return !h.IsRunning() })
	waitFor(t, "close frame", c.sawClose)
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount after stop: %d", h.ClientCount())
	}
}

func TestHub_Name(t *testing.T) {
	if got := New("state").Name(); got != "state" {
		t.Errorf("Name: got %q", got)
	}
}
