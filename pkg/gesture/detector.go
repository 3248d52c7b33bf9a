package gesture

import "math"

// Detector is the nod/shake state machine.
//
// It is not safe for concurrent use: drive it from a single loop, or serialize
// calls externally with one Detector per independent pose stream.
type Detector struct {
	cfg Config

	last    Sample
	hasLast bool

	direction Axis
	history   []Motion // newest first, len <= cfg.HistorySize
	gesture   Gesture
	matches   uint64
}

// New creates a detector with the given configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:     cfg,
		history: make([]Motion, 0, cfg.HistorySize),
	}, nil
}

// NewDefault creates a detector with DefaultConfig.
func NewDefault() *Detector {
	d, _ := New(DefaultConfig())
	return d
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Process feeds one orientation sample and returns the updated state.
//
// The first sample after construction or Reset only establishes the baseline.
// Samples with a non-finite angle produce no motion and do not replace the baseline.
func (d *Detector) Process(s Sample) State {
	if !s.finite() {
		d.evaluateHistory(false)
		return d.State()
	}

	if !d.hasLast {
		d.last, d.hasLast = s, true
		return d.State()
	}

	pushed := false
	if m, ok := d.classify(s); ok {
		pushed = d.recordMotion(m)
	}
	d.evaluateHistory(pushed)

	// Stored even when recordMotion just reset the detector.
	d.last, d.hasLast = s, true
	return d.State()
}

// classify turns the delta to the baseline into a motion event.
// Yaw is checked first and binds to the vertical (nod) axis; pitch is only
// considered when yaw stayed within the threshold.
func (d *Detector) classify(s Sample) (Motion, bool) {
	dYaw := s.Yaw - d.last.Yaw
	if math.Abs(dYaw) > d.cfg.Threshold {
		if dYaw > 0 {
			return MotionDown, true
		}
		return MotionUp, true
	}

	dPitch := s.Pitch - d.last.Pitch
	if math.Abs(dPitch) > d.cfg.Threshold {
		if dPitch > 0 {
			return MotionRight, true
		}
		return MotionLeft, true
	}
	return 0, false
}

// recordMotion locks the axis on the first event and pushes m to the front of
// the history. An event on the other axis resets the detector and is dropped.
// It reports whether m was pushed.
func (d *Detector) recordMotion(m Motion) bool {
	axis := axisOf(m)
	switch {
	case d.direction == AxisNone:
		d.direction = axis
	case d.direction != axis:
		d.Reset()
		return false
	}

	n := len(d.history)
	if n < d.cfg.HistorySize {
		d.history = append(d.history, 0)
		n++
	}
	copy(d.history[1:n], d.history[:n-1])
	d.history[0] = m
	return true
}

// evaluateHistory declares a gesture when a full window cancels out.
// fresh is true when the window changed during this call.
func (d *Detector) evaluateHistory(fresh bool) {
	if len(d.history) != d.cfg.HistorySize {
		return
	}

	sum := 0
	for _, m := range d.history {
		sum += d.cfg.Weights.of(m)
	}
	if sum != 0 {
		return
	}

	d.gesture = gestureFor(d.direction)
	if fresh {
		d.matches++
	}

	if d.cfg.Policy == PolicyResetOnMatch {
		d.history = d.history[:0]
		d.direction = AxisNone
	}
}

// Reset clears the history, unlocks the axis, drops the baseline and clears
// the recognized gesture.
func (d *Detector) Reset() {
	d.history = d.history[:0]
	d.direction = AxisNone
	d.last, d.hasLast = Sample{}, false
	d.gesture = GestureNone
	d.matches = 0
}

// State returns a snapshot of the detector.
func (d *Detector) State() State {
	history := make([]Motion, len(d.history))
	copy(history, d.history)
	return State{
		LastSample:    d.last,
		HasLastSample: d.hasLast,
		Direction:     d.direction,
		History:       history,
		Gesture:       d.gesture,
		Matches:       d.matches,
	}
}

func axisOf(m Motion) Axis {
	switch m {
	case MotionUp, MotionDown:
		return AxisVertical
	case MotionLeft, MotionRight:
		return AxisHorizontal
	default:
		return AxisNone
	}
}
