// Package replay plays back recorded pose landmark tracks. A recording
// stands in for both external collaborators of the pipeline: the Player is
// the video source and the Detector returns the landmarks the model
// produced for each frame.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/stepup.report/internal/pose"
)

// ErrEmptyRecording is returned when a recording has no frames.
var ErrEmptyRecording = errors.New("recording has no frames")

// defaultFrameInterval is assumed for single-frame recordings.
const defaultFrameInterval = 33 * time.Millisecond

// RecordedFrame is one frame of a recording. Landmarks is nil when the
// model detected no body.
type RecordedFrame struct {
	Index     int
	Timestamp time.Duration
	Landmarks pose.LandmarkSet
}

// Recording is an ordered landmark track.
type Recording struct {
	ID     string
	Source string
	Frames []RecordedFrame
}

// Duration is the playback length: the last timestamp plus one frame.
func (r *Recording) Duration() time.Duration {
	if len(r.Frames) == 0 {
		return 0
	}
	return r.Frames[len(r.Frames)-1].Timestamp + r.FrameInterval()
}

// FrameInterval estimates the frame spacing from the last two frames.
func (r *Recording) FrameInterval() time.Duration {
	n := len(r.Frames)
	if n < 2 {
		return defaultFrameInterval
	}
	if d := r.Frames[n-1].Timestamp - r.Frames[n-2].Timestamp; d > 0 {
		return d
	}
	return defaultFrameInterval
}

// normalise sorts frames by timestamp and renumbers them.
func (r *Recording) normalise() {
	sort.SliceStable(r.Frames, func(i, j int) bool {
		return r.Frames[i].Timestamp < r.Frames[j].Timestamp
	})
	for i := range r.Frames {
		r.Frames[i].Index = i
	}
}

// jsonFrame is the on-disk form of one JSONL line.
type jsonFrame struct {
	TimestampMs float64         `json:"t_ms"`
	Landmarks   []pose.Landmark `json:"landmarks"`
}

// ReadJSONL parses a recording with one frame object per line. Blank lines
// are skipped. Frames are ordered by timestamp.
func ReadJSONL(r io.Reader) (*Recording, error) {
	rec := &Recording{}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scan.Scan() {
		line++
		text := strings.TrimSpace(scan.Text())
		if text == "" {
			continue
		}
		var jf jsonFrame
		if err := json.Unmarshal([]byte(text), &jf); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse frame: %w", line, err)
		}
		if jf.TimestampMs < 0 {
			return nil, fmt.Errorf("line %d: negative timestamp %f", line, jf.TimestampMs)
		}
		rec.Frames = append(rec.Frames, RecordedFrame{
			Timestamp: time.Duration(jf.TimestampMs * float64(time.Millisecond)),
			Landmarks: landmarkSet(jf.Landmarks),
		})
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	if len(rec.Frames) == 0 {
		return nil, ErrEmptyRecording
	}
	rec.normalise()
	return rec, nil
}

// WriteJSONL writes rec in the format read by ReadJSONL.
func WriteJSONL(w io.Writer, rec *Recording) error {
	enc := json.NewEncoder(w)
	for _, f := range rec.Frames {
		jf := jsonFrame{
			TimestampMs: float64(f.Timestamp) / float64(time.Millisecond),
			Landmarks:   f.Landmarks,
		}
		if err := enc.Encode(jf); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", f.Index, err)
		}
	}
	return nil
}

func landmarkSet(l []pose.Landmark) pose.LandmarkSet {
	if len(l) == 0 {
		return nil
	}
	return pose.LandmarkSet(l)
}

// Open reads a recording from a .jsonl/.ndjson file or from the latest
// recording in a SQLite store (.db/.sqlite). A store path may select a
// recording with a "#<id>" suffix.
func Open(ctx context.Context, path string) (*Recording, error) {
	file, id, _ := strings.Cut(path, "#")
	switch strings.ToLower(filepath.Ext(file)) {
	case ".jsonl", ".ndjson":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open recording: %w", err)
		}
		defer f.Close()
		rec, err := ReadJSONL(f)
		if err != nil {
			return nil, err
		}
		rec.Source = filepath.Base(file)
		return rec, nil

	case ".db", ".sqlite", ".sqlite3":
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("failed to open recording store: %w", err)
		}
		store, err := OpenStore(file)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadRecording(ctx, id)

	default:
		return nil, fmt.Errorf("unsupported recording format %q", filepath.Ext(file))
	}
}
