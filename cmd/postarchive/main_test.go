package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/postarchive/internal/store"
)

func TestSetupLogging_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "post_archive.log")
	closeLog, err := setupLogging("warn", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slog.Info("hidden")
	slog.Warn("visible", "meeting_id", "m-1")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("expected info to be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"visible"`) || !strings.Contains(out, `"meeting_id":"m-1"`) {
		t.Errorf("expected json warn record, got %s", out)
	}
}

func TestSetupLogging_BadFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, err := setupLogging("info", filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

func TestRootCmd_RequiresMeetingID(t *testing.T) {
	code := 0
	cmd := newRootCmd(&code)
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --meeting-id")
	}
}

func TestRootCmd_RejectsPositionalArgs(t *testing.T) {
	code := 0
	cmd := newRootCmd(&code)
	cmd.SetArgs([]string{"--meeting-id", "abc-1", "extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}

type stubLister struct {
	runs []store.Run
	err  error
	got  string
}

func (s *stubLister) RunsForMeeting(_ context.Context, meetingID string) ([]store.Run, error) {
	s.got = meetingID
	return s.runs, s.err
}

func TestListRuns(t *testing.T) {
	db := &stubLister{runs: []store.Run{
		{Outcome: "failed", State: "tracks_attached", TrackCount: 2, Error: "ingest: boom", CreatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		{Outcome: "completed", State: "done", TrackCount: 3, MediaPackageID: "mp-1", CreatedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
	}}

	var buf bytes.Buffer
	if err := listRuns(context.Background(), &buf, db, "m-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.got != "m-1" {
		t.Errorf("expected lookup for m-1, got %q", db.got)
	}
	out := buf.String()
	for _, want := range []string{"Runs for m-1", "2024-03-02 10:00:00", `error="ingest: boom"`, "mp=mp-1", "tracks=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "2024-03-02") > strings.Index(out, "2024-03-01") {
		t.Errorf("expected store order to be kept:\n%s", out)
	}
}

func TestListRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := listRuns(context.Background(), &buf, &stubLister{}, "m-2"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No runs recorded for m-2") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestListRuns_Error(t *testing.T) {
	var buf bytes.Buffer
	if err := listRuns(context.Background(), &buf, &stubLister{err: errors.New("down")}, "m-3"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestRunsCmd_RequiresDatabase(t *testing.T) {
	t.Setenv("POSTARCHIVE_CONFIG", "")
	t.Setenv("DATABASE_URL", "")

	code := 0
	cmd := newRootCmd(&code)
	cmd.SetArgs([]string{"runs", "--meeting-id", "m-1"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}
