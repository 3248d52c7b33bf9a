package publish

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-headgesture/internal/log"
	"github.com/teslashibe/go-headgesture/internal/report"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// DefaultQueueSize is the number of gestures buffered while the broker is slow.
const DefaultQueueSize = 256

// Forwarder moves gestures from registry observers to a Publisher without
// blocking detector callers. Gestures beyond the queue are dropped.
type Forwarder struct {
	pub    Publisher
	queue  chan session.Event
	logger *slog.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	lastErrorTime time.Time // only touched by the Run goroutine
}

// NewForwarder creates a forwarder with a queue of size entries.
func NewForwarder(pub Publisher, size int) *Forwarder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Forwarder{
		pub:    pub,
		queue:  make(chan session.Event, size),
		logger: log.Component("publish"),
	}
}

// Observe is a session.Registry observer. It queues the update's gesture, if any.
func (f *Forwarder) Observe(u session.Update) {
	if u.Event == nil {
		return
	}
	select {
	case f.queue <- *u.Event:
	default:
		if f.dropped.Add(1) == 1 {
			f.logger.Warn("publish queue full, dropping gestures", "capacity", cap(f.queue))
		}
	}
}

// Run publishes queued gestures until ctx is canceled, then drains what is left.
func (f *Forwarder) Run(ctx context.Context) {
	defer report.Recover(map[string]string{"component": "publish"})

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-f.queue:
					f.publish(ev)
				default:
					return
				}
			}
		case ev := <-f.queue:
			f.publish(ev)
		}
	}
}

func (f *Forwarder) publish(ev session.Event) {
	if err := f.pub.Publish(ev); err != nil {
		n := f.failed.Add(1)
		if f.lastErrorTime.IsZero() || time.Since(f.lastErrorTime) > 5*time.Second {
			f.logger.Warn("publish gesture failed", "stream", ev.StreamID, "error", err, "failures", n)
			report.CaptureError(err, map[string]string{"component": "publish", "stream": ev.StreamID})
			f.lastErrorTime = time.Now()
		}
		return
	}
	f.published.Add(1)
}

// Stats returns published, dropped and failed counts.
func (f *Forwarder) Stats() (published, dropped, failed uint64) {
	return f.published.Load(), f.dropped.Load(), f.failed.Load()
}
