// Package scheduler drives the geometry → posture → repetition pipeline at
// the cadence of newly presented video frames. It runs each distinct frame
// through the pipeline at most once, never blocks the video source and owns
// all per-session bookkeeping.
package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/posture"
	"github.com/banshee-data/stepup.report/internal/repcount"
	"github.com/banshee-data/stepup.report/internal/timeutil"
)

// DefaultTickInterval approximates one display refresh at 60Hz.
const DefaultTickInterval = 16 * time.Millisecond

// noTimestamp is the last-seen sentinel; real timestamps are never negative.
const noTimestamp = time.Duration(-1)

var logf = monitoring.Prefixed("scheduler")

// Options configures a Scheduler. Gate is required; everything else has a
// default.
type Options struct {
	Gate         *Gate
	Source       VideoSource
	Sink         Sink
	Classifier   *posture.Classifier
	Clock        timeutil.Clock
	TickInterval time.Duration
	// NewSessionID defaults to uuid.NewString.
	NewSessionID func() string
}

// Scheduler owns the counter and the last processed timestamp. Tick, the
// playback notifications and Reset are serialised by one mutex.
type Scheduler struct {
	mu sync.Mutex

	gate       *Gate
	source     VideoSource
	sink       Sink
	classifier *posture.Classifier
	clock      timeutil.Clock
	interval   time.Duration
	newID      func() string

	counter   *repcount.Counter
	sessionID string
	phase     Phase
	lastTS    time.Duration
	lastFrame *Frame
	halted    bool
	completed bool

	label       posture.State
	hasLabel    bool
	left, right float64
	measured    bool

	published    Snapshot
	hasPublished bool

	wake chan struct{}
}

// New returns a Scheduler. It starts halted; call Play once the video
// starts playing.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		gate:       opts.Gate,
		source:     opts.Source,
		sink:       opts.Sink,
		classifier: opts.Classifier,
		clock:      opts.Clock,
		interval:   opts.TickInterval,
		newID:      opts.NewSessionID,
		counter:    repcount.New(),
		wake:       make(chan struct{}, 1),
	}
	if s.gate == nil {
		s.gate = capability.NewGate[Detector]()
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.classifier == nil {
		s.classifier = posture.NewClassifier()
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.interval <= 0 {
		s.interval = DefaultTickInterval
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.resetLocked()
	return s
}

// Tick runs one iteration of the scheduling loop and reports whether the
// loop should keep rescheduling. A tick processes at most one frame and
// never processes the same timestamp twice in a row.
func (s *Scheduler) Tick(ctx context.Context) TickOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return OutcomeNoSource
	}
	if s.halted {
		return OutcomeHalted
	}
	gs := s.gate.Current()
	switch gs.Status {
	case capability.StatusLoading:
		return OutcomeGated
	case capability.StatusError:
		return OutcomeFailed
	}

	if s.source.Ended() {
		s.halted = true
		s.completeLocked()
		return OutcomeEnded
	}
	if s.source.Paused() {
		s.halted = true
		return OutcomePaused
	}

	frame := s.source.CurrentFrame()
	if frame.Timestamp == s.lastTS {
		return OutcomeDuplicate
	}
	s.lastTS = frame.Timestamp
	s.lastFrame = &frame
	s.phase = PhaseRunning

	set, err := gs.Handle.Detect(ctx, frame)
	if err != nil {
		logf("detect failed at frame %d (%v): %v", frame.Index, frame.Timestamp, err)
		set = nil
	}
	s.sink.PublishLandmarks(FrameLandmarks{SessionID: s.sessionID, Frame: frame, Landmarks: set})

	res := s.classifier.Classify(set)
	s.label, s.hasLabel = res.State, true
	if res.Measured {
		s.left, s.right, s.measured = res.Left, res.Right, true
	}
	if s.counter.Advance(res.State) {
		logf("session %s: rep %d at %v", s.sessionID, s.counter.Count(), frame.Timestamp)
	}

	s.publishLocked(false)
	return OutcomeProcessed
}

// Run drives Tick from a ticker until ctx ends. When a tick stops
// rescheduling the loop idles until Play is called.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	active := true
	for {
		if !active {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				active = true
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C():
			if !s.Tick(ctx).Reschedule() {
				active = false
			}
		}
	}
}

// Play is the video play notification: it resumes ticking.
func (s *Scheduler) Play() {
	s.mu.Lock()
	if s.source != nil {
		s.halted = false
		s.phase = PhaseRunning
		s.publishLocked(false)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pause is the video pause notification: outstanding ticks are cancelled.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
}

// Ended is the video ended notification: ticking stops and completion is
// signalled unless it already was for this session.
func (s *Scheduler) Ended() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return
	}
	s.halted = true
	s.completeLocked()
}

// Reset reinitialises the counter and the scheduling bookkeeping and
// starts a new session. Idempotent apart from the session ID.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.publishLocked(true)
}

// Load replaces the video source and resets the session.
func (s *Scheduler) Load(src VideoSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.resetLocked()
	s.publishLocked(true)
}

// Refresh publishes the snapshot if anything visible changed, for
// example the capability status.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(false)
}

// Snapshot returns the current observable state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Counter returns the counter state.
func (s *Scheduler) Counter() repcount.State {
	return s.counter.State()
}

func (s *Scheduler) resetLocked() {
	s.counter.Reset()
	s.sessionID = s.newID()
	s.lastTS = noTimestamp
	s.lastFrame = nil
	s.halted = true
	s.completed = false
	s.hasLabel = false
	s.measured = false
	s.left, s.right = 0, 0
	if s.source != nil {
		s.phase = PhaseReady
	} else {
		s.phase = PhaseIdle
	}
}

// completeLocked moves to the done phase and signals completion once per
// session.
func (s *Scheduler) completeLocked() {
	s.phase = PhaseDone
	if s.completed {
		s.publishLocked(false)
		return
	}
	s.completed = true
	snap := s.snapshotLocked()
	logf("session %s done: %d step-up(s)", s.sessionID, snap.RepCount)
	s.publishLocked(false)
	s.sink.SessionComplete(snap)
}

func (s *Scheduler) publishLocked(force bool) {
	snap := s.snapshotLocked()
	if !force && s.hasPublished && snap.sameState(s.published) {
		return
	}
	s.published, s.hasPublished = snap, true
	s.sink.PublishSnapshot(snap)
}

func (s *Scheduler) snapshotLocked() Snapshot {
	gs := s.gate.Current()
	cs := s.counter.State()
	snap := Snapshot{
		SessionID:  s.sessionID,
		Phase:      s.phase,
		RepCount:   cs.RepCount,
		Label:      NoLabel,
		Counter:    cs,
		Capability: gs.Status,
		Message:    gs.Message,
	}
	snap.Description = posture.StateUnknown.Description()
	if s.hasLabel {
		snap.Label = string(s.label)
		snap.Description = s.label.Description()
	}
	if s.measured {
		avg := round1((s.left + s.right) / 2)
		left, right := round1(s.left), round1(s.right)
		snap.KneeAngle, snap.LeftAngle, snap.RightAngle = &avg, &left, &right
	}
	if s.lastFrame != nil {
		f := *s.lastFrame
		snap.LastFrame = &f
	}
	return snap
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
