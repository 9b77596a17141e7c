package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run is one row of the ingest ledger.
type Run struct {
	ID             uuid.UUID
	MeetingID      string
	MediaPackageID string
	Workflow       string
	Outcome        string
	State          string
	TrackCount     int
	Error          string
	CreatedAt      time.Time
}

// RecordRun inserts a finished run and returns its id.
func (s *Store) RecordRun(ctx context.Context, r Run) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_runs (id, meeting_id, media_package_id, workflow, outcome, state, track_count, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		id, r.MeetingID, r.MediaPackageID, r.Workflow, r.Outcome, r.State, r.TrackCount, r.Error,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert ingest run: %w", err)
	}
	return id, nil
}

// RunsForMeeting returns the recorded runs of a meeting, newest first.
func (s *Store) RunsForMeeting(ctx context.Context, meetingID string) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, meeting_id, media_package_id, workflow, outcome, state, track_count, error, created_at
		FROM ingest_runs
		WHERE meeting_id = $1
		ORDER BY created_at DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		err := row.Scan(&r.ID, &r.MeetingID, &r.MediaPackageID, &r.Workflow, &r.Outcome, &r.State, &r.TrackCount, &r.Error, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ingest runs: %w", err)
	}
	return runs, nil
}
