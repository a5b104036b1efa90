// Package api serves the step-up session over HTTP: status, reset,
// playback control and recording selection.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/httputil"
	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/replay"
	"github.com/banshee-data/stepup.report/internal/scheduler"
	"github.com/banshee-data/stepup.report/internal/security"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Session is the scheduler surface the API drives.
type Session interface {
	Snapshot() scheduler.Snapshot
	Reset()
	Play()
	Pause()
}

// Playback is the video the session watches. It is optional; without it
// the playback routes only notify the session.
type Playback interface {
	Play()
	Pause()
	Rewind()
	Seek(pos time.Duration)
}

// VideoLoader opens the recording at an already validated path, loads it
// into the session and returns its playback.
type VideoLoader func(ctx context.Context, path string) (Playback, error)

// Server exposes a Session over HTTP.
type Server struct {
	session Session
	store   *replay.Store

	mu       sync.Mutex
	playback Playback

	recordingsDir string
	load          VideoLoader
}

// NewServer returns a Server. playback and store may be nil.
func NewServer(session Session, playback Playback, store *replay.Store) *Server {
	return &Server{session: session, playback: playback, store: store}
}

// EnableLoading mounts POST /api/load for recordings under dir.
func (s *Server) EnableLoading(dir string, load VideoLoader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordingsDir, s.load = dir, load
}

func (s *Server) currentPlayback() Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback
}

// ServeMux returns a mux with the API routes mounted.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/reset", s.reset)
	mux.HandleFunc("/api/play", s.play)
	mux.HandleFunc("/api/pause", s.pause)
	mux.HandleFunc("/api/seek", s.seek)
	mux.HandleFunc("/api/load", s.loadVideo)
	mux.HandleFunc("/api/recordings", s.listRecordings)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

// reset stops the video, seeks it to the start and clears the session.
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if p := s.currentPlayback(); p != nil {
		p.Rewind()
	}
	s.session.Reset()
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	snap := s.session.Snapshot()
	switch snap.Capability {
	case capability.StatusLoading:
		httputil.ServiceUnavailable(w, "pose capability is still loading")
		return
	case capability.StatusError:
		httputil.ServiceUnavailable(w, snap.Message)
		return
	}
	if snap.Phase == scheduler.PhaseIdle {
		httputil.BadRequest(w, "no video loaded")
		return
	}
	if p := s.currentPlayback(); p != nil {
		p.Play()
	}
	s.session.Play()
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	if p := s.currentPlayback(); p != nil {
		p.Pause()
	}
	s.session.Pause()
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

// seek moves the video to the form field "position", a duration such as
// "1.5s". The session keeps its count; frames are picked up from the new
// position on the next tick.
func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	p := s.currentPlayback()
	if p == nil {
		httputil.BadRequest(w, "no video loaded")
		return
	}
	pos, err := time.ParseDuration(strings.TrimSpace(r.FormValue("position")))
	if err != nil || pos < 0 {
		httputil.BadRequest(w, "invalid position")
		return
	}
	p.Seek(pos)
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

// loadVideo replaces the video with a recording from the recordings
// directory. The previous video is paused and the session starts over.
func (s *Server) loadVideo(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.mu.Lock()
	dir, load := s.recordingsDir, s.load
	s.mu.Unlock()
	if load == nil {
		httputil.NotFound(w, "loading recordings is disabled")
		return
	}

	name := strings.TrimSpace(r.FormValue("recording"))
	if name == "" {
		httputil.BadRequest(w, "missing recording")
		return
	}
	file, id, hasID := strings.Cut(name, "#")
	path, err := security.ResolveWithin(dir, file)
	if err != nil {
		httputil.BadRequest(w, "invalid recording path")
		return
	}
	if hasID {
		path += "#" + id
	}

	p, err := load(r.Context(), path)
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, replay.ErrRecordingNotFound):
		httputil.NotFound(w, "recording not found")
		return
	case err != nil:
		monitoring.Logf("failed to load recording %s: %v", path, err)
		httputil.BadRequest(w, "failed to load recording")
		return
	}

	s.mu.Lock()
	old := s.playback
	s.playback = p
	s.mu.Unlock()
	if old != nil {
		old.Pause()
	}
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

// recordingJSON is the API form of replay.RecordingInfo.
type recordingJSON struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	FrameCount int       `json:"frame_count"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) listRecordings(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no recording store configured")
		return
	}
	infos, err := s.store.ListRecordings(r.Context())
	if err != nil {
		monitoring.Logf("failed to list recordings: %v", err)
		httputil.InternalServerError(w, "failed to list recordings")
		return
	}
	out := make([]recordingJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, recordingJSON{
			ID:         info.ID,
			Source:     info.Source,
			FrameCount: info.FrameCount,
			DurationMs: info.Duration.Milliseconds(),
			CreatedAt:  info.CreatedAt,
		})
	}
	httputil.WriteJSONOK(w, out)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE routes streaming through the middleware.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
