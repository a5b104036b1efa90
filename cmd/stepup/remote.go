package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/banshee-data/stepup.report/internal/httputil"
	"github.com/banshee-data/stepup.report/internal/scheduler"
)

// remoteDoer is replaced in tests.
var remoteDoer httputil.Doer

// handleRemote drives a running session over its HTTP API.
func handleRemote(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet(command, stderr)
	addr := fs.String("addr", "http://localhost:8080", "Base URL of a running stepup server")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	var position *time.Duration
	if command == "seek" {
		position = fs.Duration("position", 0, "Playback position to seek to")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := httputil.NewClient(*addr, remoteDoer)
	var snap scheduler.Snapshot
	var err error
	if command == "status" {
		err = client.GetJSON(ctx, "/api/status", &snap)
	} else {
		path := "/api/" + command
		if position != nil {
			path += "?position=" + url.QueryEscape(position.String())
		}
		err = client.PostJSON(ctx, path, &snap)
	}
	if err != nil {
		return err
	}
	printSnapshot(stdout, snap)
	return nil
}

func printSnapshot(w io.Writer, s scheduler.Snapshot) {
	fmt.Fprintf(w, "session:  %s (%s)\n", s.SessionID, s.Phase)
	fmt.Fprintf(w, "reps:     %d\n", s.RepCount)
	fmt.Fprintf(w, "posture:  %s - %s\n", s.Label, s.Description)
	if s.KneeAngle != nil {
		fmt.Fprintf(w, "knee:     %.1f°\n", *s.KneeAngle)
	}
	fmt.Fprintf(w, "capability: %s", s.Capability)
	if s.Message != "" {
		fmt.Fprintf(w, " (%s)", s.Message)
	}
	fmt.Fprintln(w)
}
