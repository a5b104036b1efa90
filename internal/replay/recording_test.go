package replay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/pose"
	"github.com/banshee-data/stepup.report/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// legRecording builds a recording with one frame per knee angle, spaced
// 33ms apart. A negative angle records a frame with no body.
func legRecording(angles ...float64) *Recording {
	rec := &Recording{Source: "synthetic"}
	for i, a := range angles {
		f := RecordedFrame{Index: i, Timestamp: time.Duration(i) * 33 * time.Millisecond}
		if a >= 0 {
			f.Landmarks = testutil.LegSet(a, a)
		}
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func TestReadJSONL(t *testing.T) {
	input := `{"t_ms": 66, "landmarks": [{"x": 0.1, "y": 0.2, "z": 0.3, "visibility": 0.9}]}

{"t_ms": 0, "landmarks": []}
{"t_ms": 33.5, "landmarks": [{"x": 0.5, "y": 0.5, "z": 0}]}
`
	rec, err := ReadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rec.Frames, 3)

	assert.Equal(t, time.Duration(0), rec.Frames[0].Timestamp)
	assert.Nil(t, rec.Frames[0].Landmarks, "empty landmarks mean no body")
	assert.Equal(t, 33500*time.Microsecond, rec.Frames[1].Timestamp)
	assert.Equal(t, 66*time.Millisecond, rec.Frames[2].Timestamp)

	for i, f := range rec.Frames {
		assert.Equal(t, i, f.Index)
	}

	lm := rec.Frames[2].Landmarks[0]
	assert.InDelta(t, 0.1, lm.X, 1e-9)
	require.NotNil(t, lm.Visibility)
	assert.InDelta(t, 0.9, *lm.Visibility, 1e-9)
	assert.Nil(t, rec.Frames[1].Landmarks[0].Visibility)
}

func TestReadJSONLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "empty", input: "", want: ErrEmptyRecording},
		{name: "blank lines only", input: "\n\n  \n", want: ErrEmptyRecording},
		{name: "malformed", input: `{"t_ms": `},
		{name: "negative timestamp", input: `{"t_ms": -1, "landmarks": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSONL(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	rec := legRecording(170, -1, 100)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, rec))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, got.Frames, 3)
	assert.Nil(t, got.Frames[1].Landmarks)
	assert.Equal(t, rec.Frames[2].Timestamp, got.Frames[2].Timestamp)

	l, r := pose.KneeAngles(got.Frames[2].Landmarks)
	assert.InDelta(t, 100, l, 1e-4)
	assert.InDelta(t, 100, r, 1e-4)
}

func TestRecordingDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), (&Recording{}).Duration())
	assert.Equal(t, defaultFrameInterval, legRecording(170).Duration())
	assert.Equal(t, 4*33*time.Millisecond, legRecording(170, 170, 170, 170).Duration())
}

func TestOpenJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteJSONL(f, legRecording(170, 100)))
	require.NoError(t, f.Close())

	rec, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "session.jsonl", rec.Source)
	assert.Len(t, rec.Frames, 2)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(context.Background(), filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)

	_, err = Open(context.Background(), filepath.Join(dir, "missing.db"))
	assert.Error(t, err)

	_, err = Open(context.Background(), filepath.Join(dir, "clip.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
	assert.False(t, errors.Is(err, ErrEmptyRecording))
}
