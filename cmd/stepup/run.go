package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/stepup.report/internal/api"
	"github.com/banshee-data/stepup.report/internal/capability"
	"github.com/banshee-data/stepup.report/internal/config"
	"github.com/banshee-data/stepup.report/internal/monitoring"
	"github.com/banshee-data/stepup.report/internal/replay"
	"github.com/banshee-data/stepup.report/internal/scheduler"
	"github.com/banshee-data/stepup.report/internal/sink"
	"github.com/banshee-data/stepup.report/internal/timeutil"
)

// runOptions are the parsed flags of the run command.
type runOptions struct {
	configPath    string
	recording     string
	landmarks     string
	storePath     string
	recordingsDir string
	listen        string
	autoplay      bool
	exitOnDone    bool
	clock         timeutil.Clock
	onServerReady func(addr string)
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func handleRun(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("run", stderr)
	opts := runOptions{}
	fs.StringVar(&opts.configPath, "config", "", "Tuning config JSON (defaults built in)")
	fs.StringVar(&opts.recording, "recording", "", "Recording to play (.jsonl, or .db[#id]) (required)")
	fs.StringVar(&opts.landmarks, "landmarks", "", "Landmark source for the pose capability (defaults to --recording)")
	fs.StringVar(&opts.storePath, "store", "", "SQLite recording store listed at /api/recordings")
	fs.StringVar(&opts.recordingsDir, "recordings-dir", "", "Directory POST /api/load may load recordings from (empty disables)")
	fs.StringVar(&opts.listen, "listen", ":8080", "HTTP listen address (empty disables the server)")
	fs.BoolVar(&opts.autoplay, "autoplay", false, "Start playback as soon as the pose capability is ready")
	fs.BoolVar(&opts.exitOnDone, "exit-on-done", false, "Exit when the recording ends")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.recording == "" {
		fmt.Fprintln(stderr, "Error: --recording is required")
		fs.Usage()
		return errUsage
	}
	if opts.landmarks == "" {
		opts.landmarks = opts.recording
	}
	return serve(ctx, opts, stdout)
}

// serve plays the recording through the pipeline until ctx ends or, with
// exitOnDone, until the session completes.
func serve(ctx context.Context, opts runOptions, stdout io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.clock == nil {
		opts.clock = timeutil.RealClock{}
	}

	rec, err := replay.Open(ctx, opts.recording)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	player := replay.NewPlayer(rec, opts.clock)

	var store *replay.Store
	if opts.storePath != "" {
		store, err = replay.OpenStore(opts.storePath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gate := capability.NewGate[scheduler.Detector]()
	broadcaster := sink.NewBroadcaster()
	defer broadcaster.Close()

	done := make(chan scheduler.Snapshot, 1)
	onDone := sink.CompletionFunc(func(s scheduler.Snapshot) {
		select {
		case done <- s:
		default:
		}
	})

	sched := scheduler.New(scheduler.Options{
		Gate:         gate,
		Sink:         sink.Multi{broadcaster, sink.NewLogSink(), onDone},
		Classifier:   cfg.Classifier(),
		Clock:        opts.clock,
		TickInterval: cfg.GetTickInterval(),
	})
	sched.Load(player)
	monitoring.Logf("loaded %s: %d frames, %v", rec.Source, len(rec.Frames), rec.Duration())

	if err := gate.Load(ctx, cfg.GetCapabilityTimeout(), replay.Loader(opts.landmarks)); err != nil {
		return err
	}

	var wg sync.WaitGroup

	var final scheduler.Snapshot
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case final = <-done:
			if opts.exitOnDone {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	// surface the capability outcome and optionally start playback
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gate.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		sched.Refresh()
		if err != nil {
			monitoring.Logf("pose capability unavailable: %v", err)
			if opts.exitOnDone {
				cancel()
			}
			return
		}
		if opts.autoplay {
			player.Play()
			sched.Play()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("scheduler stopped: %v", err)
		}
	}()

	if opts.listen != "" {
		srv := api.NewServer(sched, player, store)
		if opts.recordingsDir != "" {
			srv.EnableLoading(opts.recordingsDir, func(ctx context.Context, path string) (api.Playback, error) {
				p, err := loadVideo(ctx, path, gate, sched, opts.clock)
				if err != nil {
					return nil, err
				}
				return p, nil
			})
		}
		mux := srv.ServeMux()
		broadcaster.AttachAdminRoutes(mux, sched.Snapshot)

		server := &http.Server{
			Addr:    opts.listen,
			Handler: api.LoggingMiddleware(mux),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listenAndServe(ctx, server, opts.onServerReady); err != nil {
				monitoring.Logf("HTTP server error: %v", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	snap := sched.Snapshot()
	if final.SessionID != "" {
		snap = final
	}
	if st := gate.Current(); st.Status == capability.StatusError {
		return fmt.Errorf("pose capability failed: %w", st.Err)
	}
	if snap.Phase == scheduler.PhaseDone {
		fmt.Fprintln(stdout, sink.CompletionMessage(snap.RepCount))
	} else {
		fmt.Fprintf(stdout, "Stopped - %d step-ups counted\n", snap.RepCount)
	}
	return nil
}

// loadVideo opens a recording, points the detector at its landmarks and
// loads it into the session, which resets it.
func loadVideo(ctx context.Context, path string, gate *scheduler.Gate, sched *scheduler.Scheduler, clock timeutil.Clock) (*replay.Player, error) {
	rec, err := replay.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	st := gate.Current()
	if !st.Ready() {
		return nil, fmt.Errorf("pose capability is %s", st.Status)
	}
	// Load halts the session, so no tick sees the new landmarks against
	// the old player's frames.
	player := replay.NewPlayer(rec, clock)
	sched.Load(player)
	if det, ok := st.Handle.(*replay.Detector); ok {
		det.Use(rec)
	}
	monitoring.Logf("loaded %s: %d frames, %v", rec.Source, len(rec.Frames), rec.Duration())
	return player, nil
}

// listenAndServe serves until ctx ends, then shuts down gracefully.
func listenAndServe(ctx context.Context, server *http.Server, onReady func(addr string)) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	if onReady != nil {
		onReady(ln.Addr().String())
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
