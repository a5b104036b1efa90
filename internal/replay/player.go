package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/pose"
	"github.com/banshee-data/stepup.report/internal/scheduler"
	"github.com/banshee-data/stepup.report/internal/timeutil"
)

// Player is a simulated video element over a recording. Its playback
// position advances with the clock while playing, and CurrentFrame
// reports the latest recorded frame at or before that position, so a
// scheduler polling faster than the recording's frame rate sees repeated
// timestamps just like a real decoder.
type Player struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	rec     *Recording
	playing bool
	// base is the position when playback last started or stopped.
	base      time.Duration
	startedAt time.Time
}

// NewPlayer returns a paused player positioned at the start of rec.
func NewPlayer(rec *Recording, clock timeutil.Clock) *Player {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Player{clock: clock, rec: rec}
}

// Recording returns the recording being played.
func (p *Player) Recording() *Recording {
	return p.rec
}

// Play starts or resumes playback. Playing an ended recording restarts it.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endedLocked() {
		// an ended player may still be flagged playing; restart the clock
		p.base = 0
		p.startedAt = p.clock.Now()
		p.playing = true
		return
	}
	if !p.playing {
		p.playing = true
		p.startedAt = p.clock.Now()
	}
}

// Pause freezes the playback position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.positionLocked()
	p.playing = false
}

// Rewind pauses and seeks to the start.
func (p *Player) Rewind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.base = 0
}

// Seek moves the playback position, keeping the play state.
func (p *Player) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	p.base = pos
	p.startedAt = p.clock.Now()
}

// Position returns the current playback position, clamped to the
// recording duration.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	pos := p.base
	if p.playing {
		pos += p.clock.Since(p.startedAt)
	}
	if d := p.rec.Duration(); pos > d {
		pos = d
	}
	return pos
}

// CurrentFrame implements scheduler.VideoSource.
func (p *Player) CurrentFrame() scheduler.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	frames := p.rec.Frames
	if len(frames) == 0 {
		return scheduler.Frame{}
	}
	pos := p.positionLocked()
	// first frame strictly after pos, minus one
	i := sort.Search(len(frames), func(i int) bool { return frames[i].Timestamp > pos }) - 1
	if i < 0 {
		i = 0
	}
	return scheduler.Frame{Index: frames[i].Index, Timestamp: frames[i].Timestamp}
}

// Paused implements scheduler.VideoSource. An ended player is also paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing || p.endedLocked()
}

// Ended implements scheduler.VideoSource.
func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endedLocked()
}

func (p *Player) endedLocked() bool {
	return len(p.rec.Frames) == 0 || p.positionLocked() >= p.rec.Duration()
}

// Detector returns the landmarks recorded for each frame. It is the
// stand-in for a pose model running on the presented frame.
type Detector struct {
	mu     sync.RWMutex
	frames map[int]pose.LandmarkSet
}

// NewDetector indexes rec by frame index.
func NewDetector(rec *Recording) *Detector {
	d := &Detector{}
	d.Use(rec)
	return d
}

// Use switches the detector to the landmarks of rec, for when a new video
// is loaded.
func (d *Detector) Use(rec *Recording) {
	frames := make(map[int]pose.LandmarkSet, len(rec.Frames))
	for _, f := range rec.Frames {
		frames[f.Index] = f.Landmarks
	}
	d.mu.Lock()
	d.frames = frames
	d.mu.Unlock()
}

// Detect implements scheduler.Detector. Frames outside the recording
// detect no body.
func (d *Detector) Detect(ctx context.Context, f scheduler.Frame) (pose.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frames[f.Index], nil
}

// Loader returns a capability loader that opens the recording at path and
// serves its landmarks as the pose capability.
func Loader(path string) capability.LoaderFunc[scheduler.Detector] {
	return func(ctx context.Context, progress func(string)) (scheduler.Detector, error) {
		progress("Loading landmark recording…")
		rec, err := Open(ctx, path)
		if err != nil {
			return nil, err
		}
		progress(fmt.Sprintf("Indexing %d frames…", len(rec.Frames)))
		return NewDetector(rec), nil
	}
}
