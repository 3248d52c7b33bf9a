package session

import (
	"sync"
	"time"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
)

// Stream is one pose source and its detector.
type Stream struct {
	id        string
	source    string
	createdAt time.Time

	mu       sync.Mutex
	detector *gesture.Detector
	lastSeen time.Time
	samples  uint64
	events   uint64
	closed   bool
}

// ID returns the stream ID.
func (s *Stream) ID() string {
	return s.id
}

// Info returns a snapshot of the stream.
func (s *Stream) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		Source:    s.source,
		CreatedAt: s.createdAt,
		LastSeen:  s.lastSeen,
		Samples:   s.samples,
		Events:    s.events,
		State:     s.detector.State(),
	}
}
