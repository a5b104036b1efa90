package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/stepup.report/internal/posture"
	"github.com/banshee-data/stepup.report/internal/replay"
	"github.com/banshee-data/stepup.report/internal/report"
	"github.com/banshee-data/stepup.report/internal/sink"
)

// handleImport stores JSONL recordings in a SQLite store.
func handleImport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("import", stderr)
	dbPath := fs.String("db", "recordings.db", "SQLite recording store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: at least one .jsonl recording is required")
		fs.Usage()
		return errUsage
	}

	store, err := replay.OpenStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, path := range fs.Args() {
		rec, err := replay.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		rec.ID = ""
		id, err := store.SaveRecording(ctx, rec)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(stdout, "imported %s: %d frames, %v as %s\n", path, len(rec.Frames), rec.Duration(), id)
	}
	return nil
}

// handleInspect lists the recordings in a store, optionally deleting one
// first.
func handleInspect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("inspect", stderr)
	dbPath := fs.String("db", "recordings.db", "SQLite recording store")
	deleteID := fs.String("delete", "", "Delete the recording with this ID before listing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := replay.OpenStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *deleteID != "" {
		if err := store.DeleteRecording(ctx, *deleteID); err != nil {
			return fmt.Errorf("%s: %w", *deleteID, err)
		}
		fmt.Fprintf(stdout, "deleted %s\n", *deleteID)
	}

	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	infos, err := store.ListRecordings(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: schema v%d", *dbPath, version)
	if dirty {
		fmt.Fprint(stdout, " (dirty)")
	}
	fmt.Fprintf(stdout, ", %d recording(s)\n", len(infos))
	if len(infos) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tFRAMES\tDURATION\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\n",
			info.ID, info.Source, info.FrameCount,
			info.Duration.Round(time.Millisecond), info.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// handleCount analyses a recording without real-time playback and can
// chart the knee angle trace.
func handleCount(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("count", stderr)
	configPath := fs.String("config", "", "Tuning config JSON (defaults built in)")
	verbose := fs.Bool("v", false, "Print each counted rep")
	plotPath := fs.String("plot", "", "Write the knee angle chart to this image (.png, .svg, .pdf)")
	htmlPath := fs.String("html", "", "Write an interactive knee angle chart to this HTML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: exactly one recording is required")
		fs.Usage()
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rec, err := replay.Open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	tr := report.Analyze(rec, cfg.Classifier())
	if *verbose {
		for _, p := range tr.RepPoints() {
			fmt.Fprintf(stdout, "rep %d at %v (knee %.1f°)\n", p.Rep, p.Timestamp, p.Mean())
		}
	}

	tally := tr.Tally()
	fmt.Fprintf(stdout, "%d frames: %d %s, %d %s, %d %s, %d %s", len(tr.Points),
		tally[posture.StateUp], posture.StateUp,
		tally[posture.StateDown], posture.StateDown,
		tally[posture.StateTransition], posture.StateTransition,
		tally[posture.StateUnknown], posture.StateUnknown)
	if tr.Skipped > 0 {
		fmt.Fprintf(stdout, " (%d repeated timestamps skipped)", tr.Skipped)
	}
	fmt.Fprintln(stdout)

	if *plotPath != "" {
		if err := tr.SavePlot(*plotPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *plotPath)
	}
	if *htmlPath != "" {
		if err := writeHTML(*htmlPath, tr); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *htmlPath)
	}

	fmt.Fprintln(stdout, sink.CompletionMessage(tr.Reps))
	return nil
}

func writeHTML(path string, tr *report.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := tr.RenderHTML(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return f.Close()
}
