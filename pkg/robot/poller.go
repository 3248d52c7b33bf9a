package robot

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-headgesture/internal/log"
)

// errorLogInterval limits repeated error logs
const errorLogInterval = 5 * time.Second

// heartbeatTicks is how often (in ticks) the poller logs its counters
const heartbeatTicks = 300

// PollerOptions configures a Poller.
type PollerOptions struct {
	StreamID string
	Hz       int  // 0 means ControlLoopHz
	SwapAxes bool // feed pitch as yaw so a physical nod reads as vertical
}

// Stats are the poller counters.
type Stats struct {
	Ticks   uint64 `json:"ticks"`
	Samples uint64 `json:"samples"`
	Errors  uint64 `json:"errors"`
}

// Poller reads the head pose at a fixed rate and forwards samples.
// Transient errors are counted and logged, never fatal.
type Poller struct {
	source PoseSource
	sink   SampleSink
	opts   PollerOptions
	logger *slog.Logger

	ticks   atomic.Uint64
	samples atomic.Uint64
	errors  atomic.Uint64

	lastErrorTime time.Time // only touched by the Run goroutine
}

// NewPoller creates a poller from source into sink.
func NewPoller(source PoseSource, sink SampleSink, opts PollerOptions) *Poller {
	if opts.Hz <= 0 {
		opts.Hz = ControlLoopHz
	}
	if opts.StreamID == "" {
		opts.StreamID = "robot"
	}
	return &Poller{
		source: source,
		sink:   sink,
		opts:   opts,
		logger: log.Component("robot").With("stream", opts.StreamID),
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(p.opts.Hz))
	defer ticker.Stop()

	p.logger.Info("pose poller started", "hz", p.opts.Hz, "swap_axes", p.opts.SwapAxes)

	for {
		select {
		case <-ctx.Done():
			st := p.Stats()
			p.logger.Info("pose poller stopped", "ticks", st.Ticks, "samples", st.Samples, "errors", st.Errors)
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick executes one poll: read the pose and hand it to the sink.
func (p *Poller) tick(ctx context.Context) {
	n := p.ticks.Add(1)

	pose, err := p.source.HeadPose(ctx)
	if err == nil {
		_, err = p.sink.Process(p.opts.StreamID, pose.Sample(p.opts.SwapAxes))
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		total := p.errors.Add(1)
		// Log errors (but don't spam - max once per errorLogInterval)
		if p.lastErrorTime.IsZero() || time.Since(p.lastErrorTime) > errorLogInterval {
			p.logger.Warn("pose poll failed", "error", err, "errors", total)
			p.lastErrorTime = time.Now()
		}
		return
	}
	p.samples.Add(1)

	if n%heartbeatTicks == 0 {
		p.logger.Debug("pose poller heartbeat",
			"ticks", n, "samples", p.samples.Load(), "errors", p.errors.Load(),
			"yaw", pose.Yaw, "pitch", pose.Pitch)
	}
}

// Stats returns the poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:   p.ticks.Load(),
		Samples: p.samples.Load(),
		Errors:  p.errors.Load(),
	}
}
