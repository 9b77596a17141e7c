package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/postarchive/internal/archive"
	"github.com/MikeSquared-Agency/postarchive/internal/config"
	"github.com/MikeSquared-Agency/postarchive/internal/notify"
	"github.com/MikeSquared-Agency/postarchive/internal/opencast"
	"github.com/MikeSquared-Agency/postarchive/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code := 0
	if err := newRootCmd(&code).ExecuteContext(ctx); err != nil {
		return 1
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	var meetingID string
	cmd := &cobra.Command{
		Use:          "postarchive",
		Short:        "Ingest an archived BigBlueButton recording into Opencast",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closeLog()

			*code = ingestMeeting(cmd.Context(), cfg, meetingID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&meetingID, "meeting-id", "m", "", "meeting id to archive")
	_ = cmd.MarkFlagRequired("meeting-id")
	cmd.AddCommand(newRunsCmd())
	return cmd
}

func ingestMeeting(ctx context.Context, cfg config.Config, meetingID string) int {
	slog.Info("postarchive starting", "meeting_id", meetingID, "opencast", cfg.OpencastServer, "workflow", cfg.Workflow)

	oc := opencast.NewClient(cfg.OpencastServer, cfg.OpencastUser, cfg.OpencastPassword, cfg.RequestTimeout, cfg.IngestTimeout)
	opts := []archive.Option{}

	// Outcome notifications and the run ledger are optional.
	if cfg.NatsURL != "" {
		nc, err := notify.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS unavailable, outcomes will not be published", "error", err)
		} else {
			defer nc.Close()
			opts = append(opts, archive.WithPublisher(nc))
		}
	}
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err == nil {
			err = db.Migrate(ctx)
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			slog.Warn("database unavailable, run will not be recorded", "error", err)
		} else {
			defer db.Close()
			opts = append(opts, archive.WithLedger(db))
		}
	}

	err := archive.NewRunner(cfg, meetingID, oc, slog.Default(), opts...).Run(ctx)
	return archive.ExitCode(err)
}

func setupLogging(level, file string) (func(), error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var (
		out     io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}
