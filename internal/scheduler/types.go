package scheduler

import (
	"context"
	"time"

	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/pose"
	"github.com/banshee-data/stepup.report/internal/posture"
	"github.com/banshee-data/stepup.report/internal/repcount"
)

// Frame identifies the video frame currently presented by the source.
type Frame struct {
	Index     int           `json:"index"`
	Timestamp time.Duration `json:"timestamp_ns"`
}

// Detector is the ready handle of the pose capability. A nil or empty
// result means no body was detected, which is a normal input.
type Detector interface {
	Detect(ctx context.Context, f Frame) (pose.LandmarkSet, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, f Frame) (pose.LandmarkSet, error)

// Detect calls f.
func (fn DetectorFunc) Detect(ctx context.Context, f Frame) (pose.LandmarkSet, error) {
	return fn(ctx, f)
}

// Gate is the capability gate the scheduler waits on.
type Gate = capability.Gate[Detector]

// VideoSource is the playback surface the scheduler polls on every tick.
type VideoSource interface {
	// CurrentFrame returns the frame at the current playback position.
	// Consecutive calls return the same timestamp until a new frame is
	// presented.
	CurrentFrame() Frame
	Paused() bool
	Ended() bool
}

// Phase is the coarse session phase shown to the user.
type Phase string

const (
	PhaseIdle    Phase = "idle"    // no video loaded
	PhaseReady   Phase = "ready"   // video loaded, not playing yet
	PhaseRunning Phase = "running" // analysing frames
	PhaseDone    Phase = "done"    // video ended
)

// NoLabel is the posture label before the first processed frame.
const NoLabel = "–"

// Snapshot is the read-only observable state handed to sinks.
type Snapshot struct {
	SessionID   string         `json:"session_id"`
	Phase       Phase          `json:"phase"`
	RepCount    int            `json:"rep_count"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	KneeAngle   *float64       `json:"knee_angle,omitempty"`
	LeftAngle   *float64       `json:"left_angle,omitempty"`
	RightAngle  *float64       `json:"right_angle,omitempty"`
	Counter     repcount.State `json:"counter"`

	Capability capability.Status `json:"capability"`
	Message    string            `json:"message,omitempty"`

	LastFrame *Frame `json:"last_frame,omitempty"`
}

// Posture returns the label as a posture state; the initial label maps
// to UNKNOWN.
func (s Snapshot) Posture() posture.State {
	if s.Label == NoLabel {
		return posture.StateUnknown
	}
	return posture.State(s.Label)
}

// sameState reports whether two snapshots would render identically,
// ignoring which frame produced them.
func (s Snapshot) sameState(o Snapshot) bool {
	return s.SessionID == o.SessionID &&
		s.Phase == o.Phase &&
		s.RepCount == o.RepCount &&
		s.Label == o.Label &&
		s.Counter == o.Counter &&
		s.Capability == o.Capability &&
		s.Message == o.Message &&
		equalPtr(s.KneeAngle, o.KneeAngle)
}

func equalPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FrameLandmarks is emitted for every processed tick so overlays can draw
// the current skeleton. Landmarks is nil when no body was detected.
type FrameLandmarks struct {
	SessionID string           `json:"session_id"`
	Frame     Frame            `json:"frame"`
	Landmarks pose.LandmarkSet `json:"landmarks"`
}

// Sink receives the scheduler's output. Implementations must not block:
// they are called with the scheduler lock held.
type Sink interface {
	PublishLandmarks(FrameLandmarks)
	PublishSnapshot(Snapshot)
	SessionComplete(Snapshot)
}

type nopSink struct{}

func (nopSink) PublishLandmarks(FrameLandmarks) {}
func (nopSink) PublishSnapshot(Snapshot)        {}
func (nopSink) SessionComplete(Snapshot)        {}

// TickOutcome describes what a single tick did.
type TickOutcome string

const (
	OutcomeProcessed TickOutcome = "processed" // new frame classified
	OutcomeDuplicate TickOutcome = "duplicate" // same timestamp as last tick
	OutcomeGated     TickOutcome = "gated"     // capability still loading
	OutcomeFailed    TickOutcome = "failed"    // capability failed to load
	OutcomeNoSource  TickOutcome = "no-source" // nothing loaded
	OutcomeHalted    TickOutcome = "halted"    // paused, reset or not started
	OutcomePaused    TickOutcome = "paused"    // source reports paused
	OutcomeEnded     TickOutcome = "ended"     // source reports ended
)

// Reschedule reports whether the loop should issue another tick.
func (o TickOutcome) Reschedule() bool {
	switch o {
	case OutcomeProcessed, OutcomeDuplicate, OutcomeGated:
		return true
	default:
		return false
	}
}
