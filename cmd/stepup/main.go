package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/stepup.report/internal/version"
)

// errUsage is returned for bad invocations; the usage text has already
// been printed.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			log.Printf("stepup: %v", err)
		}
		os.Exit(1)
	}
}

// run dispatches a subcommand.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errUsage
	}

	command, rest := args[0], args[1:]
	switch command {
	case "run":
		return handleRun(ctx, rest, stdout, stderr)
	case "count":
		return handleCount(ctx, rest, stdout, stderr)
	case "import":
		return handleImport(ctx, rest, stdout, stderr)
	case "inspect":
		return handleInspect(ctx, rest, stdout, stderr)
	case "status", "reset", "play", "pause", "seek":
		return handleRemote(ctx, command, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `stepup - step-up repetition counter over pose landmark recordings

Usage: stepup <command> [options]

Commands:
  run        Play a recording through the counter and serve the live session
  count      Count step-ups in a recording offline, optionally charting knee angles
  import     Import JSONL landmark recordings into a SQLite store
  inspect    List (or --delete) recordings in a SQLite store
  status     Show the status of a running session
  reset      Reset a running session
  play       Start or resume playback of a running session
  pause      Pause playback of a running session
  seek       Move playback of a running session to --position
  version    Show version information
  help       Show this help message

Recordings are .jsonl files with one {"t_ms", "landmarks"} object per
line, or SQLite stores (.db) with an optional "#<recording id>" suffix.

Examples:
  stepup import --db recordings.db session.jsonl
  stepup count --plot knee.png --html knee.html session.jsonl
  stepup run --recording recordings.db --autoplay --exit-on-done
  stepup reset --addr http://localhost:8080`)
}

// newFlagSet returns a FlagSet that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
