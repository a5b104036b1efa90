package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recordings.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStoreMigrations(t *testing.T) {
	s, _ := newTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestStoreSaveLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := legRecording(170, -1, 100, 170)
	id, err := s.SaveRecording(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.ID)

	got, err := s.LoadRecording(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", got.Source)
	require.Len(t, got.Frames, 4)
	assert.Nil(t, got.Frames[1].Landmarks)
	assert.Len(t, got.Frames[2].Landmarks, 33)
	for i := range rec.Frames {
		assert.Equal(t, rec.Frames[i].Timestamp, got.Frames[i].Timestamp)
	}
	assert.Equal(t, rec.Duration(), got.Duration())
}

func TestStoreLoadLatest(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRecording(ctx, &Recording{ID: "first", Frames: legRecording(170).Frames})
	require.NoError(t, err)
	_, err = s.SaveRecording(ctx, &Recording{ID: "second", Frames: legRecording(170, 100).Frames})
	require.NoError(t, err)

	got, err := s.LoadRecording(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "second", got.ID)
}

func TestStoreSaveRenumbersFrames(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// frames built by hand carry no indices and arrive out of order
	rec := &Recording{Source: "manual", Frames: []RecordedFrame{
		{Timestamp: 50 * time.Millisecond},
		{Timestamp: 0, Landmarks: legRecording(170).Frames[0].Landmarks},
	}}
	id, err := s.SaveRecording(ctx, rec)
	require.NoError(t, err)

	got, err := s.LoadRecording(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Frames, 2)
	assert.Equal(t, 0, got.Frames[0].Index)
	assert.Equal(t, time.Duration(0), got.Frames[0].Timestamp)
	assert.Len(t, got.Frames[0].Landmarks, 33)
	assert.Equal(t, 1, got.Frames[1].Index)
	assert.Equal(t, 50*time.Millisecond, got.Frames[1].Timestamp)
}

func TestStoreErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRecording(ctx, &Recording{})
	assert.ErrorIs(t, err, ErrEmptyRecording)

	_, err = s.LoadRecording(ctx, "")
	assert.ErrorIs(t, err, ErrRecordingNotFound)

	_, err = s.LoadRecording(ctx, "nope")
	assert.ErrorIs(t, err, ErrRecordingNotFound)

	assert.ErrorIs(t, s.DeleteRecording(ctx, "nope"), ErrRecordingNotFound)

	_, err = s.SaveRecording(ctx, &Recording{ID: "dup", Frames: legRecording(170).Frames})
	require.NoError(t, err)
	_, err = s.SaveRecording(ctx, &Recording{ID: "dup", Frames: legRecording(170).Frames})
	assert.Error(t, err, "duplicate IDs are rejected")
}

func TestStoreListDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListRecordings(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.SaveRecording(ctx, &Recording{ID: "a", Source: "a.jsonl", Frames: legRecording(170, 100).Frames})
	require.NoError(t, err)
	_, err = s.SaveRecording(ctx, &Recording{ID: "b", Source: "b.jsonl", Frames: legRecording(170).Frames})
	require.NoError(t, err)

	list, err = s.ListRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, 2, list[1].FrameCount)
	assert.Equal(t, 66*time.Millisecond, list[1].Duration)
	assert.False(t, list[1].CreatedAt.IsZero())

	require.NoError(t, s.DeleteRecording(ctx, "a"))
	list, err = s.ListRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	var frames int
	require.NoError(t, s.QueryRow(`SELECT COUNT(*) FROM recording_frames WHERE recording_id = 'a'`).Scan(&frames))
	assert.Zero(t, frames, "frames cascade with their recording")
}

func TestOpenStorePath(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRecording(ctx, &Recording{ID: "only", Frames: legRecording(170, 100).Frames})
	require.NoError(t, err)

	rec, err := Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "only", rec.ID)

	rec, err = Open(ctx, path+"#only")
	require.NoError(t, err)
	assert.Len(t, rec.Frames, 2)

	_, err = Open(ctx, path+"#other")
	assert.ErrorIs(t, err, ErrRecordingNotFound)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, want, parseTimestamp("2026-03-01 12:30:00"))
	assert.Equal(t, want, parseTimestamp([]byte("2026-03-01T12:30:00Z")))
	assert.Equal(t, want, parseTimestamp(want))
	assert.True(t, parseTimestamp(int64(5)).IsZero())
	assert.True(t, parseTimestamp("garbage").IsZero())
}
