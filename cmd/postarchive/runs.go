package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/postarchive/internal/config"
	"github.com/MikeSquared-Agency/postarchive/internal/store"
)

type runLister interface {
	RunsForMeeting(ctx context.Context, meetingID string) ([]store.Run, error)
}

func newRunsCmd() *cobra.Command {
	var meetingID string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded ingest runs of a meeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			db, err := store.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return listRuns(cmd.Context(), cmd.OutOrStdout(), db, meetingID)
		},
	}
	cmd.Flags().StringVarP(&meetingID, "meeting-id", "m", "", "meeting id to list runs for")
	_ = cmd.MarkFlagRequired("meeting-id")
	return cmd
}

func listRuns(ctx context.Context, w io.Writer, db runLister, meetingID string) error {
	runs, err := db.RunsForMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s\n", meetingID)
		return nil
	}

	fmt.Fprintf(w, "Runs for %s:\n\n", meetingID)
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %-9s %-20s tracks=%d", r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.Outcome, r.State, r.TrackCount)
		if r.MediaPackageID != "" {
			fmt.Fprintf(w, " mp=%s", r.MediaPackageID)
		}
		if r.Error != "" {
			fmt.Fprintf(w, " error=%q", r.Error)
		}
		fmt.Fprintln(w)
	}
	return nil
}
