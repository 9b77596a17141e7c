//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_RecordAndListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	meetingID := "integration-" + uuid.New().String()[:8]

	first, err := s.RecordRun(ctx, Run{MeetingID: meetingID, Outcome: "failed", State: "container_created", Error: "boom"})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	second, err := s.RecordRun(ctx, Run{
		MeetingID:      meetingID,
		MediaPackageID: "mp-1",
		Workflow:       "bbb-upload",
		Outcome:        "completed",
		State:          "done",
		TrackCount:     3,
	})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if first == uuid.Nil || first == second {
		t.Fatalf("expected distinct run ids, got %s and %s", first, second)
	}

	runs, err := s.RunsForMeeting(ctx, meetingID)
	if err != nil {
		t.Fatalf("RunsForMeeting failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[0].TrackCount != 3 || runs[0].Workflow != "bbb-upload" {
		t.Errorf("expected newest run first, got %+v", runs[0])
	}
	if runs[1].Error != "boom" {
		t.Errorf("expected error text to be stored, got %q", runs[1].Error)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Errorf("expected migrate to be repeatable: %v", err)
	}
}
