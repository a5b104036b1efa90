package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stepup.report/internal/api"
	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/httputil"
	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/replay"
	"github.com/banshee-data/stepup.report/internal/scheduler"
	"github.com/banshee-data/stepup.report/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// writeRecording writes a JSONL recording holding each knee angle for
// hold frames, 20ms apart.
func writeRecording(t *testing.T, hold int, angles ...float64) string {
	t.Helper()
	rec := &replay.Recording{}
	for _, a := range angles {
		for i := 0; i < hold; i++ {
			rec.Frames = append(rec.Frames, replay.RecordedFrame{
				Index:     len(rec.Frames),
				Timestamp: time.Duration(len(rec.Frames)) * 20 * time.Millisecond,
				Landmarks: testutil.LegSet(a, a),
			})
		}
	}
	path := filepath.Join(t.TempDir(), "session.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, replay.WriteJSONL(f, rec))
	require.NoError(t, f.Close())
	return path
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestUsage(t *testing.T) {
	_, stderr, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "Usage: stepup")

	_, stderr, err = runCmd(t, "jump")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "Unknown command: jump")

	stdout, _, err := runCmd(t, "help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Commands:")
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "stepup "))
}

func TestRequiredArguments(t *testing.T) {
	for _, args := range [][]string{
		{"run"},
		{"import", "--db", filepath.Join(t.TempDir(), "x.db")},
		{"count"},
	} {
		_, stderr, err := runCmd(t, args...)
		assert.ErrorIs(t, err, errUsage, "%v", args)
		assert.Contains(t, stderr, "Error:", "%v", args)
	}
}

func TestCount(t *testing.T) {
	path := writeRecording(t, 3, 170, 145, 100, 170, 100, 170)

	stdout, _, err := runCmd(t, "count", "-v", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "rep 1 at")
	assert.Contains(t, stdout, "rep 2 at")
	assert.Contains(t, stdout, "18 frames: 9 UP, 6 DOWN, 3 TRANSITION, 0 UNKNOWN")
	assert.Contains(t, stdout, "Done - 2 step-ups detected")
}

func TestCountWithConfig(t *testing.T) {
	path := writeRecording(t, 1, 170, 125, 170)
	cfgPath := filepath.Join(t.TempDir(), "tight.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"down_threshold": 120}`), 0644))

	stdout, _, err := runCmd(t, "count", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Done - 1 step-up detected")

	// 125° is no longer deep enough to arm the counter
	stdout, _, err = runCmd(t, "count", "--config", cfgPath, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Done - 0 step-ups detected")
}

func TestCountCharts(t *testing.T) {
	path := writeRecording(t, 2, 170, 100, 170)
	dir := t.TempDir()
	png := filepath.Join(dir, "knee.png")
	html := filepath.Join(dir, "knee.html")

	stdout, _, err := runCmd(t, "count", "--plot", png, "--html", html, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+png)
	assert.Contains(t, stdout, "wrote "+html)
	assert.Contains(t, stdout, "Done - 1 step-up detected")

	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	page, err := os.ReadFile(html)
	require.NoError(t, err)
	assert.Contains(t, string(page), "rep 1")
}

func TestCountSkipsRepeatedTimestamps(t *testing.T) {
	// 145° then 100° share one timestamp; only the first is processed
	// live, so the counter is never armed.
	input := `{"t_ms": 0, "landmarks": %s}
{"t_ms": 20, "landmarks": %s}
{"t_ms": 20, "landmarks": %s}
{"t_ms": 40, "landmarks": %s}
`
	encode := func(deg float64) string {
		b, err := json.Marshal(testutil.LegSet(deg, deg))
		require.NoError(t, err)
		return string(b)
	}
	path := filepath.Join(t.TempDir(), "dup.jsonl")
	require.NoError(t, os.WriteFile(path,
		[]byte(fmt.Sprintf(input, encode(170), encode(145), encode(100), encode(170))), 0644))

	stdout, _, err := runCmd(t, "count", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 frames: 2 UP, 0 DOWN, 1 TRANSITION, 0 UNKNOWN (1 repeated timestamps skipped)")
	assert.Contains(t, stdout, "Done - 0 step-ups detected")
}

func TestInspectDelete(t *testing.T) {
	path := writeRecording(t, 1, 170, 100, 170)
	db := filepath.Join(t.TempDir(), "recordings.db")

	store, err := replay.OpenStore(db)
	require.NoError(t, err)
	rec, err := replay.Open(context.Background(), path)
	require.NoError(t, err)
	rec.ID = "keep"
	_, err = store.SaveRecording(context.Background(), rec)
	require.NoError(t, err)
	rec.ID = "drop"
	_, err = store.SaveRecording(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	stdout, _, err := runCmd(t, "inspect", "--db", db, "--delete", "drop")
	require.NoError(t, err)
	assert.Contains(t, stdout, "deleted drop")
	assert.Contains(t, stdout, "1 recording(s)")
	assert.Contains(t, stdout, "keep")

	_, _, err = runCmd(t, "inspect", "--db", db, "--delete", "drop")
	assert.ErrorIs(t, err, replay.ErrRecordingNotFound)
}

func TestImportInspect(t *testing.T) {
	path := writeRecording(t, 2, 170, 100, 170)
	db := filepath.Join(t.TempDir(), "recordings.db")

	stdout, _, err := runCmd(t, "import", "--db", db, path, path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stdout, "imported "))

	stdout, _, err = runCmd(t, "inspect", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "schema v1, 2 recording(s)")
	assert.Contains(t, stdout, "session.jsonl")

	// a store path plays the latest import
	stdout, _, err = runCmd(t, "count", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Done - 1 step-up detected")
}

func TestImportMissingFile(t *testing.T) {
	_, _, err := runCmd(t, "import", "--db", filepath.Join(t.TempDir(), "r.db"), "nope.jsonl")
	assert.Error(t, err)
}

type stubSession struct {
	snap  scheduler.Snapshot
	reset int
}

func (s *stubSession) Snapshot() scheduler.Snapshot { return s.snap }
func (s *stubSession) Reset()                       { s.reset++ }
func (s *stubSession) Play()                        {}
func (s *stubSession) Pause()                       {}

func TestRemote(t *testing.T) {
	angle := 165.0
	sess := &stubSession{snap: scheduler.Snapshot{
		SessionID:   "abc",
		Phase:       scheduler.PhaseRunning,
		RepCount:    7,
		Label:       "UP",
		Description: "Top of rep",
		KneeAngle:   &angle,
		Capability:  capability.StatusReady,
	}}
	srv := httptest.NewServer(api.NewServer(sess, nil, nil).ServeMux())
	defer srv.Close()

	stdout, _, err := runCmd(t, "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "session:  abc (running)")
	assert.Contains(t, stdout, "reps:     7")
	assert.Contains(t, stdout, "knee:     165.0°")

	_, _, err = runCmd(t, "reset", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.reset)
}

func TestRemoteError(t *testing.T) {
	doer := (&httputil.MockDoer{}).AddResponse(http.StatusServiceUnavailable, `{"error":"pose capability is still loading"}`)
	remoteDoer = doer
	defer func() { remoteDoer = nil }()

	_, _, err := runCmd(t, "play")
	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "pose capability is still loading", se.Message)
	require.Len(t, doer.Requests, 1)
	assert.Equal(t, "http://localhost:8080/api/play", doer.Requests[0].URL.String())
}

func TestRemoteSeek(t *testing.T) {
	doer := (&httputil.MockDoer{}).AddResponse(http.StatusOK, `{"session_id":"abc","phase":"running"}`)
	remoteDoer = doer
	defer func() { remoteDoer = nil }()

	stdout, _, err := runCmd(t, "seek", "--position", "1500ms")
	require.NoError(t, err)
	assert.Contains(t, stdout, "session:  abc (running)")
	require.Len(t, doer.Requests, 1)
	assert.Equal(t, http.MethodPost, doer.Requests[0].Method)
	assert.Equal(t, "http://localhost:8080/api/seek?position=1.5s", doer.Requests[0].URL.String())
}

func TestServeExitOnDone(t *testing.T) {
	// each posture is held for 100ms so scheduling jitter cannot hide one
	path := writeRecording(t, 5, 170, 100, 170, 100, 170)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addrc := make(chan string, 1)
	var stdout bytes.Buffer
	err := serve(ctx, runOptions{
		recording:     path,
		landmarks:     path,
		listen:        "127.0.0.1:0",
		autoplay:      true,
		exitOnDone:    true,
		onServerReady: func(addr string) { addrc <- addr },
	}, &stdout)
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "session should finish before the deadline")
	assert.Equal(t, "Done - 2 step-ups detected\n", stdout.String())

	select {
	case addr := <-addrc:
		assert.NotEmpty(t, addr)
	default:
		t.Error("server was not started")
	}
}

func TestServeCapabilityFailure(t *testing.T) {
	path := writeRecording(t, 1, 170)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	err := serve(ctx, runOptions{
		recording:  path,
		landmarks:  filepath.Join(t.TempDir(), "missing.jsonl"),
		exitOnDone: true,
	}, &stdout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pose capability failed")
}

func TestLoadVideo(t *testing.T) {
	first := writeRecording(t, 1, 170)
	second := writeRecording(t, 2, 170, 100)

	ctx := context.Background()
	rec, err := replay.Open(ctx, first)
	require.NoError(t, err)
	det := replay.NewDetector(rec)

	pending := capability.NewGate[scheduler.Detector]()
	sched := scheduler.New(scheduler.Options{Gate: pending})
	_, err = loadVideo(ctx, second, pending, sched, nil)
	assert.Error(t, err, "loading needs a ready capability")

	gate := capability.ReadyGate[scheduler.Detector](det)
	sched = scheduler.New(scheduler.Options{Gate: gate})
	before := sched.Snapshot().SessionID

	player, err := loadVideo(ctx, second, gate, sched, nil)
	require.NoError(t, err)
	assert.Len(t, player.Recording().Frames, 4)
	assert.Equal(t, scheduler.PhaseReady, sched.Snapshot().Phase)
	assert.NotEqual(t, before, sched.Snapshot().SessionID)

	set, err := det.Detect(ctx, scheduler.Frame{Index: 3})
	require.NoError(t, err)
	assert.Len(t, set, 33, "detector follows the loaded recording")
	assert.Equal(t, scheduler.OutcomeHalted, sched.Tick(ctx), "a freshly loaded video waits for play")

	_, err = loadVideo(ctx, filepath.Join(t.TempDir(), "missing.jsonl"), gate, sched, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
