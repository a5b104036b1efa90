// Package report analyses a whole recording offline and charts its knee
// angle trace: left, right and mean angle over time, the hysteresis band
// and the frames where a rep was counted.
package report

import (
	"time"

	"github.com/banshee-data/stepup.report/internal/posture"
	"github.com/banshee-data/stepup.report/internal/repcount"
	"github.com/banshee-data/stepup.report/internal/replay"
)

// Point is one analysed frame.
type Point struct {
	Index     int
	Timestamp time.Duration
	State     posture.State
	Left      float64
	Right     float64
	Measured  bool
	// Rep is the rep number completed on this frame, 0 when none was.
	Rep int
}

// Mean returns the displayed knee angle.
func (p Point) Mean() float64 {
	return (p.Left + p.Right) / 2
}

// Trace is the analysis of one recording.
type Trace struct {
	Source     string
	Thresholds posture.Thresholds
	Points     []Point
	// Skipped counts frames that repeat the previous frame's timestamp.
	Skipped int
	Reps    int
}

// Analyze classifies every distinct frame of rec once and runs the rep
// counter over the result. Like the live scheduler it ignores a frame
// whose timestamp equals the one before it, so offline and live counts
// agree on recordings with repeated timestamps.
func Analyze(rec *replay.Recording, c *posture.Classifier) *Trace {
	if c == nil {
		c = posture.NewClassifier()
	}
	t := &Trace{
		Source:     rec.Source,
		Thresholds: c.Thresholds,
		Points:     make([]Point, 0, len(rec.Frames)),
	}
	counter := repcount.New()
	for i, f := range rec.Frames {
		if i > 0 && f.Timestamp == rec.Frames[i-1].Timestamp {
			t.Skipped++
			continue
		}
		res := c.Classify(f.Landmarks)
		pt := Point{
			Index:     f.Index,
			Timestamp: f.Timestamp,
			State:     res.State,
			Left:      res.Left,
			Right:     res.Right,
			Measured:  res.Measured,
		}
		if counter.Advance(res.State) {
			pt.Rep = counter.Count()
		}
		t.Points = append(t.Points, pt)
	}
	t.Reps = counter.Count()
	return t
}

// Tally counts analysed frames per posture state.
func (t *Trace) Tally() map[posture.State]int {
	out := make(map[posture.State]int, 4)
	for _, p := range t.Points {
		out[p.State]++
	}
	return out
}

// RepPoints returns the frames on which a rep was counted.
func (t *Trace) RepPoints() []Point {
	var out []Point
	for _, p := range t.Points {
		if p.Rep > 0 {
			out = append(out, p)
		}
	}
	return out
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}
