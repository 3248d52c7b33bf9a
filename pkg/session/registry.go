// Package session hosts one gesture detector per independent pose stream.
//
// A detector is single-caller by contract; the registry serializes calls per
// stream, reports changes to observers and turns fresh matches into events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/pkg/gesture"
)

var (
	// ErrStreamNotFound is returned for an unknown stream ID.
	ErrStreamNotFound = errors.New("session: stream not found")

	// ErrStreamClosed is returned when a stream was closed while in use.
	ErrStreamClosed = errors.New("session: stream closed")
)

// Options tunes a Registry.
type Options struct {
	// IdleTimeout closes streams that received no sample for this long.
	// Zero disables expiry.
	IdleTimeout time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Event is a recognized gesture on one stream.
type Event struct {
	ID       string          `json:"id"`
	StreamID string          `json:"stream_id"`
	Gesture  gesture.Gesture `json:"gesture"`
	Axis     gesture.Axis    `json:"axis"`
	Matches  uint64          `json:"matches"`
	At       time.Time       `json:"at"`
}

// Update is delivered to observers after every processed sample or reset.
type Update struct {
	StreamID string
	State    gesture.State

	// Event is set when this update completed a new oscillation.
	Event *Event

	// Reset is true for explicit resets requested by a client.
	Reset bool
}

// Info describes a stream for listings.
type Info struct {
	ID        string        `json:"id"`
	Source    string        `json:"source,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	LastSeen  time.Time     `json:"last_seen"`
	Samples   uint64        `json:"samples"`
	Events    uint64        `json:"events"`
	State     gesture.State `json:"state"`
}

// Registry owns the detectors. It is safe for concurrent use.
type Registry struct {
	cfg    gesture.Config
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	streams *orderedmap.OrderedMap[string, *Stream]

	obsMu     sync.RWMutex
	observers map[int]func(Update)
	nextObs   int
}

// NewRegistry creates a registry whose streams use cfg.
func NewRegistry(cfg gesture.Config, opts Options) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		cfg:       cfg,
		opts:      opts,
		logger:    log.Component("session"),
		streams:   orderedmap.NewOrderedMap[string, *Stream](),
		observers: make(map[int]func(Update)),
	}, nil
}

// Config returns the detector configuration used for new streams.
func (r *Registry) Config() gesture.Config {
	return r.cfg
}

// Open returns the stream with the given ID, creating it if needed.
// An empty id gets a random UUID.
func (r *Registry) Open(id, source string) (*Stream, error) {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.RLock()
	s, ok := r.streams.Get(id)
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams.Get(id); ok {
		return s, nil
	}

	det, err := gesture.New(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("new detector: %w", err)
	}
	now := r.opts.Now()
	s = &Stream{
		id:        id,
		source:    source,
		createdAt: now,
		lastSeen:  now,
		detector:  det,
	}
	r.streams.Set(id, s)
	r.logger.Info("stream opened", "stream", id, "source", source, "streams", r.streams.Len())
	return s, nil
}

// Process feeds a sample to the stream's detector, opening the stream if needed.
func (r *Registry) Process(id string, sample gesture.Sample) (Update, error) {
	s, err := r.Open(id, "")
	if err != nil {
		return Update{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Update{}, ErrStreamClosed
	}
	prev := s.detector.State().Matches
	st := s.detector.Process(sample)
	now := r.opts.Now()
	s.lastSeen = now
	s.samples++

	u := Update{StreamID: s.id, State: st}
	if st.Matches > prev {
		s.events++
		u.Event = &Event{
			ID:       uuid.New().String(),
			StreamID: s.id,
			Gesture:  st.Gesture,
			Axis:     axisOf(st),
			Matches:  st.Matches,
			At:       now,
		}
	}
	s.mu.Unlock()

	if u.Event != nil {
		r.logger.Info("gesture recognized", "stream", s.id, "gesture", u.Event.Gesture, "matches", u.Event.Matches)
	}
	r.notify(u)
	return u, nil
}

// axisOf returns the axis a match happened on. Under reset_on_match the
// detector has already unlocked, so derive it from the gesture.
func axisOf(st gesture.State) gesture.Axis {
	switch st.Gesture {
	case gesture.GestureYes:
		return gesture.AxisVertical
	case gesture.GestureNo:
		return gesture.AxisHorizontal
	default:
		return st.Direction
	}
}

// Reset clears a stream's detector.
func (r *Registry) Reset(id string) (Update, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Update{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Update{}, ErrStreamClosed
	}
	s.detector.Reset()
	u := Update{StreamID: s.id, State: s.detector.State(), Reset: true}
	s.mu.Unlock()

	r.logger.Debug("stream reset", "stream", id)
	r.notify(u)
	return u, nil
}

// Close removes a stream.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.streams.Get(id)
	if ok {
		r.streams.Delete(id)
	}
	n := r.streams.Len()
	r.mu.Unlock()

	if !ok {
		return ErrStreamNotFound
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	r.logger.Info("stream closed", "stream", id, "streams", n)
	return nil
}

// Get returns a stream's info.
func (r *Registry) Get(id string) (Info, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return s.Info(), nil
}

// List returns all streams in the order they were opened.
func (r *Registry) List() []Info {
	r.mu.RLock()
	streams := make([]*Stream, 0, r.streams.Len())
	for el := r.streams.Front(); el != nil; el = el.Next() {
		streams = append(streams, el.Value)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(streams))
	for _, s := range streams {
		out = append(out, s.Info())
	}
	return out
}

// Len returns the number of open streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams.Len()
}

// Subscribe registers fn for every Update. Observers run synchronously on the
// caller's goroutine and must not block. The returned func unsubscribes.
func (r *Registry) Subscribe(fn func(Update)) func() {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

func (r *Registry) notify(u Update) {
	r.obsMu.RLock()
	fns := make([]func(Update), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.obsMu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Sweep closes streams idle for longer than IdleTimeout and returns their IDs.
func (r *Registry) Sweep(now time.Time) []string {
	if r.opts.IdleTimeout <= 0 {
		return nil
	}

	var idle []string
	for _, info := range r.List() {
		if now.Sub(info.LastSeen) > r.opts.IdleTimeout {
			idle = append(idle, info.ID)
		}
	}
	for _, id := range idle {
		if err := r.Close(id); err == nil {
			r.logger.Info("stream expired", "stream", id, "idle_timeout", r.opts.IdleTimeout)
		}
	}
	return idle
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 || r.opts.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.opts.Now())
		}
	}
}

func (r *Registry) lookup(id string) (*Stream, error) {
	r.mu.RLock()
	s, ok := r.streams.Get(id)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrStreamNotFound
	}
	return s, nil
}
