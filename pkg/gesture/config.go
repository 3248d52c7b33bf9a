package gesture

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for the detector configuration.
const (
	DefaultThreshold   = 0.5 // radians between consecutive samples
	DefaultHistorySize = 4
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("gesture: invalid config")

// Policy controls what happens to the history after a match.
type Policy int

const (
	// PolicyKeepSliding leaves the history in place after a match, so every later
	// window that cancels out reports the gesture again.
	PolicyKeepSliding Policy = iota

	// PolicyResetOnMatch consumes the history and unlocks the axis after a match.
	// The recognized gesture keeps being reported until the next match or Reset.
	PolicyResetOnMatch
)

// String returns the policy name used in config files.
func (p Policy) String() string {
	switch p {
	case PolicyResetOnMatch:
		return "reset_on_match"
	default:
		return "keep_sliding"
	}
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "keep_sliding":
		return PolicyKeepSliding, nil
	case "reset_on_match":
		return PolicyResetOnMatch, nil
	default:
		return PolicyKeepSliding, fmt.Errorf("%w: unknown policy %q (must be keep_sliding or reset_on_match)", ErrInvalidConfig, s)
	}
}

// MarshalText encodes the policy by name.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Weights is the motion weight table. The zero-sum cancellation depends on it.
type Weights struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Left  int `json:"left"`
	Right int `json:"right"`
}

// DefaultWeights returns the standard table: UP=-1, DOWN=1, LEFT=2, RIGHT=-2.
func DefaultWeights() Weights {
	return Weights{
		Up:    int(MotionUp),
		Down:  int(MotionDown),
		Left:  int(MotionLeft),
		Right: int(MotionRight),
	}
}

// of returns the weight of m.
func (w Weights) of(m Motion) int {
	switch m {
	case MotionUp:
		return w.Up
	case MotionDown:
		return w.Down
	case MotionLeft:
		return w.Left
	case MotionRight:
		return w.Right
	default:
		return 0
	}
}

// Config holds the detector constants. It is copied at construction.
type Config struct {
	Threshold   float64 `json:"threshold"`
	HistorySize int     `json:"history_size"`
	Weights     Weights `json:"weights"`
	Policy      Policy  `json:"policy"`
}

// DefaultConfig returns the standard detector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		HistorySize: DefaultHistorySize,
		Weights:     DefaultWeights(),
		Policy:      PolicyKeepSliding,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be a positive finite number, got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.HistorySize < 2 {
		return fmt.Errorf("%w: history size must be >= 2, got %d", ErrInvalidConfig, c.HistorySize)
	}

	w := c.Weights
	if w.Up == 0 || w.Down == 0 || w.Left == 0 || w.Right == 0 {
		return fmt.Errorf("%w: motion weights must be non-zero", ErrInvalidConfig)
	}
	if w.Up+w.Down != 0 {
		return fmt.Errorf("%w: up (%d) and down (%d) weights must cancel", ErrInvalidConfig, w.Up, w.Down)
	}
	if w.Left+w.Right != 0 {
		return fmt.Errorf("%w: left (%d) and right (%d) weights must cancel", ErrInvalidConfig, w.Left, w.Right)
	}
	if abs(w.Up) == abs(w.Left) {
		return fmt.Errorf("%w: vertical and horizontal weights must differ in magnitude", ErrInvalidConfig)
	}
	if c.Policy != PolicyKeepSliding && c.Policy != PolicyResetOnMatch {
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidConfig, c.Policy)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
