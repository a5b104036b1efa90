package sink

import (
	"fmt"
	"sync"

	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/scheduler"
)

// CompletionMessage is the summary shown when a video ends.
func CompletionMessage(reps int) string {
	plural := "s"
	if reps == 1 {
		plural = ""
	}
	return fmt.Sprintf("Done - %d step-up%s detected", reps, plural)
}

// LogSink writes label changes, rep changes and completion to the
// monitoring logger. Landmark frames are not logged.
type LogSink struct {
	mu    sync.Mutex
	logf  func(format string, args ...interface{})
	label string
	reps  int
}

// NewLogSink returns a LogSink writing through monitoring.Logf.
func NewLogSink() *LogSink {
	return &LogSink{logf: monitoring.Prefixed("session"), reps: -1}
}

func (l *LogSink) PublishLandmarks(scheduler.FrameLandmarks) {}

func (l *LogSink) PublishSnapshot(s scheduler.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.Label == l.label && s.RepCount == l.reps {
		return
	}
	l.label, l.reps = s.Label, s.RepCount
	if s.KneeAngle != nil {
		l.logf("%s: %s (%s) reps=%d knee=%.1f°", s.SessionID, s.Label, s.Description, s.RepCount, *s.KneeAngle)
		return
	}
	l.logf("%s: %s (%s) reps=%d", s.SessionID, s.Label, s.Description, s.RepCount)
}

func (l *LogSink) SessionComplete(s scheduler.Snapshot) {
	l.logf("%s: %s", s.SessionID, CompletionMessage(s.RepCount))
}

// Multi forwards every call to each sink in order.
type Multi []scheduler.Sink

func (m Multi) PublishLandmarks(fl scheduler.FrameLandmarks) {
	for _, s := range m {
		s.PublishLandmarks(fl)
	}
}

func (m Multi) PublishSnapshot(snap scheduler.Snapshot) {
	for _, s := range m {
		s.PublishSnapshot(snap)
	}
}

func (m Multi) SessionComplete(snap scheduler.Snapshot) {
	for _, s := range m {
		s.SessionComplete(snap)
	}
}

// CompletionFunc is a sink that only observes session completion.
type CompletionFunc func(scheduler.Snapshot)

func (f CompletionFunc) PublishLandmarks(scheduler.FrameLandmarks) {}
func (f CompletionFunc) PublishSnapshot(scheduler.Snapshot)        {}
func (f CompletionFunc) SessionComplete(s scheduler.Snapshot)      { f(s) }
