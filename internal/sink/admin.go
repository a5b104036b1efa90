package sink

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stepup.report/internal/httputil"
	"github.com/banshee-data/stepup.report/internal/scheduler"
)

// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux
// served at /debug/. tsweb restricts them to localhost and Tailscale
// peers. status supplies the live snapshot; when nil the latest
// published snapshot is served.
func (b *Broadcaster) AttachAdminRoutes(mux *http.ServeMux, status func() scheduler.Snapshot) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("stepup-status", "current step-up session snapshot (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if status != nil {
			httputil.WriteJSONOK(w, status())
			return
		}
		snap, ok := b.Latest()
		if !ok {
			httputil.NotFound(w, "no snapshot published yet")
			return
		}
		httputil.WriteJSONOK(w, snap)
	})

	// Server-Sent Events stream of snapshots, landmark overlays and
	// completion.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := b.Subscribe()
		defer b.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		if snap, ok := b.Latest(); ok {
			if err := writeEvent(w, Event{Type: EventSnapshot, Snapshot: &snap}); err != nil {
				return
			}
		}
		flusher.Flush()

		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
