// Package posture classifies a single frame's landmark set into a discrete
// leg posture using two knee-angle thresholds that form a hysteresis band.
package posture

import (
	"fmt"

	"github.com/banshee-data/stepup.report/internal/pose"
)

// State is the discrete posture of one frame.
type State string

const (
	// StateUp means both legs are extended past the upper threshold.
	StateUp State = "UP"
	// StateDown means at least one leg is bent past the lower threshold.
	StateDown State = "DOWN"
	// StateTransition is anything inside the dead-zone between thresholds.
	StateTransition State = "TRANSITION"
	// StateUnknown is reported when no usable landmark set exists.
	StateUnknown State = "UNKNOWN"
)

// Description returns the short human readable hint shown next to the
// posture label.
func (s State) Description() string {
	switch s {
	case StateUp:
		return "Top of rep"
	case StateDown:
		return "Step engaged"
	case StateTransition:
		return "Mid-movement"
	default:
		return "Waiting..."
	}
}

// Default threshold values in degrees.
const (
	DefaultUpThreshold   = 160.0
	DefaultDownThreshold = 130.0
)

// DefaultMinLandmarks is the full pose population; shorter sets are
// treated as no body.
const DefaultMinLandmarks = pose.NumLandmarks

// DefaultRequiredIndices are the landmarks both knee angles are built from.
var DefaultRequiredIndices = []int{
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
	pose.LeftAnkle, pose.RightAnkle,
}

// Thresholds holds the two knee-angle cut-offs. Down must be strictly
// below Up; the gap between them is the dead-zone reported as TRANSITION.
type Thresholds struct {
	Up   float64
	Down float64
}

// DefaultThresholds returns the 160°/130° band.
func DefaultThresholds() Thresholds {
	return Thresholds{Up: DefaultUpThreshold, Down: DefaultDownThreshold}
}

// Validate checks the thresholds are inside (0, 180] and ordered.
func (t Thresholds) Validate() error {
	if t.Up <= 0 || t.Up > 180 {
		return fmt.Errorf("up threshold must be in (0, 180], got %f", t.Up)
	}
	if t.Down <= 0 || t.Down > 180 {
		return fmt.Errorf("down threshold must be in (0, 180], got %f", t.Down)
	}
	if t.Down >= t.Up {
		return fmt.Errorf("down threshold %f must be below up threshold %f", t.Down, t.Up)
	}
	return nil
}

// State maps a pair of knee angles onto a posture. The smaller of the two
// angles decides: both legs must be straight for UP, one bent leg is
// enough for DOWN.
func (t Thresholds) State(left, right float64) State {
	m := min(left, right)
	switch {
	case m > t.Up:
		return StateUp
	case m < t.Down:
		return StateDown
	default:
		return StateTransition
	}
}
