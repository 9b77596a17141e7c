// Package archive processes one archived BigBlueButton recording end to
// end: parse the event log, assemble tracks, build the catalogs and hand
// everything to the ingest orchestrator.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/postarchive/internal/acl"
	"github.com/MikeSquared-Agency/postarchive/internal/config"
	"github.com/MikeSquared-Agency/postarchive/internal/dublincore"
	"github.com/MikeSquared-Agency/postarchive/internal/eventlog"
	"github.com/MikeSquared-Agency/postarchive/internal/ingest"
	"github.com/MikeSquared-Agency/postarchive/internal/media"
	"github.com/MikeSquared-Agency/postarchive/internal/notify"
	"github.com/MikeSquared-Agency/postarchive/internal/store"
	"github.com/MikeSquared-Agency/postarchive/internal/timeline"
	"github.com/MikeSquared-Agency/postarchive/internal/tracks"
)

// ErrRecordingNotStarted is returned when ingest requires the record button
// and it was never pressed.
var ErrRecordingNotStarted = errors.New("recording was never started")

const cleanupTimeout = 2 * time.Minute

// Remote is the Opencast API used by a run.
type Remote interface {
	ingest.Remote
	dublincore.ExistenceChecker
}

type Publisher interface {
	Publish(ctx context.Context, ev notify.Event) error
}

type Ledger interface {
	RecordRun(ctx context.Context, r store.Run) (uuid.UUID, error)
}

// RawDeleter removes the raw recording of a meeting.
type RawDeleter func(ctx context.Context, meetingID string) error

type Runner struct {
	cfg        config.Config
	meetingID  string
	remote     Remote
	normalizer media.Normalizer
	publisher  Publisher
	ledger     Ledger
	deleteRaw  RawDeleter
	logger     *slog.Logger
}

type Option func(*Runner)

func WithNormalizer(n media.Normalizer) Option { return func(r *Runner) { r.normalizer = n } }
func WithPublisher(p Publisher) Option { return func(r *Runner) { r.publisher = p } }
func WithLedger(l Ledger) Option { return func(r *Runner) { r.ledger = l } }
func WithRawDeleter(d RawDeleter) Option { return func(r *Runner) { r.deleteRaw = d } }

func NewRunner(cfg config.Config, meetingID string, remote Remote, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		meetingID: meetingID,
		remote:    remote,
		logger:    logger.With("meeting_id", meetingID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.normalizer == nil {
		ff := media.NewFFmpeg(r.tmpDir(), cfg.ReuseConvertedVideos, r.logger)
		ff.FFmpegPath = cfg.FFmpegPath
		ff.FFprobePath = cfg.FFprobePath
		ff.ConvertPath = cfg.ConvertPath
		r.normalizer = ff
	}
	if r.deleteRaw == nil {
		r.deleteRaw = CommandDeleter(cfg.DeleteRawCommand)
	}
	return r
}

// CommandDeleter runs cmd with the meeting id appended.
func CommandDeleter(cmd []string) RawDeleter {
	return func(ctx context.Context, meetingID string) error {
		if len(cmd) == 0 {
			return nil
		}
		args := append(append([]string{}, cmd[1:]...), meetingID)
		_, err := media.Exec(ctx, cmd[0], args...)
		return err
	}
}

func (r *Runner) archiveDir() string {
	return filepath.Join(r.cfg.RawArchiveDir, r.meetingID)
}

func (r *Runner) tmpDir() string {
	return filepath.Join(r.archiveDir(), "upload_tmp")
}

// Run processes the recording. Cleanup and reporting happen on every
// path; the returned error classifies the outcome (see ExitCode).
func (r *Runner) Run(ctx context.Context) error {
	var res ingest.Result
	err := r.run(ctx, &res)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	r.cleanup(cctx, err)
	r.report(cctx, res, err)

	switch {
	case err == nil:
		r.logger.Info("recording ingested", "media_package_id", res.MediaPackageID, "workflow", res.Workflow, "tracks", res.Tracks)
	case Skipped(err):
		r.logger.Info("nothing to ingest", "reason", err)
	default:
		r.logger.Error("ingest failed", "state", res.State.String(), "error", err)
	}
	return err
}

func (r *Runner) run(ctx context.Context, res *ingest.Result) error {
	if err := os.MkdirAll(r.tmpDir(), 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	layout := eventlog.LayoutFor(r.archiveDir(), r.meetingID)
	log, err := eventlog.ParseFile(filepath.Join(r.archiveDir(), "events.xml"), r.meetingID, layout)
	if err != nil {
		return fmt.Errorf("parse event log: %w", err)
	}
	r.logger.Info("event log parsed",
		"events", len(log.Events), "webcams", len(log.Webcams), "audio", len(log.Audio),
		"deskshares", len(log.Deskshares), "slides", len(log.Slides), "recordings", log.Recording.Len())

	recording := log.Recording
	if recording.Len() == 0 {
		if r.cfg.OnlyIngestIfRecordButtonPressed {
			return ErrRecordingNotStarted
		}
		recording = timeline.Intervals{Starts: []int64{log.Bounds.Start}, Stops: []int64{log.Bounds.End}}
	}

	assembled, err := tracks.NewAssembler(r.normalizer, r.logger).Assemble(ctx, tracks.Sources{
		Bounds:     log.Bounds,
		Webcams:    log.Webcams,
		Audio:      log.Audio,
		Deskshares: log.Deskshares,
		Slides:     log.Slides,
	})
	if err != nil {
		return err
	}

	pkg, err := r.buildPackage(ctx, log, layout, recording, assembled)
	if err != nil {
		return err
	}

	*res, err = ingest.NewOrchestrator(r.remote, r.cfg.Workflow, r.logger).Run(ctx, pkg)
	return err
}

func (r *Runner) buildPackage(ctx context.Context, log *eventlog.Log, layout eventlog.Layout, recording timeline.Intervals, assembled []tracks.Track) (ingest.Package, error) {
	bag := log.Metadata
	start, _ := recording.First()
	end, _ := recording.Last()

	opts := dublincore.EventOptions{
		RecordingStart:         start,
		RecordingEnd:           end,
		PassIdentifierAsSource: r.cfg.PassIdentifierAsDCSource,
	}
	if r.cfg.UseSharedNotesForDescription {
		notesPath := filepath.Join(layout.NotesDir, "notes.html")
		opts.Notes = func() string {
			text, err := dublincore.NotesText(notesPath)
			if err != nil {
				r.logger.Warn("shared notes unreadable", "path", notesPath, "error", err)
			}
			return text
		}
	}

	catalog := dublincore.Resolve(bag, dublincore.EventFields(bag, opts))
	id := dublincore.NewIdentifierValidator(r.remote, r.logger).ApplyIdentifier(ctx, catalog)
	dc, err := catalog.XML()
	if err != nil {
		return ingest.Package{}, err
	}

	marks, err := timeline.MarshalCuttingMarks(recording.CuttingMarks(log.Bounds))
	if err != nil {
		return ingest.Package{}, err
	}

	pkg := ingest.Package{
		Tracks:         assembled,
		DublinCore:     dc,
		CuttingMarks:   marks,
		EventRules:     acl.Parse(bag, acl.EventDefinition, r.cfg.EventReadRoles, r.cfg.EventWriteRoles),
		MediaPackageID: id,
	}

	if seriesID := bag.Get(dublincore.KeyIsPartOf); seriesID != "" && r.cfg.CreateSeriesIfMissing {
		seriesDC, err := dublincore.Resolve(bag, dublincore.SeriesFields(bag)).XML()
		if err != nil {
			return ingest.Package{}, err
		}
		pkg.Series = &ingest.Series{
			ID:         seriesID,
			DublinCore: seriesDC,
			Rules:      acl.Parse(bag, acl.SeriesDefinition, r.cfg.SeriesReadRoles, r.cfg.SeriesWriteRoles),
		}
	}
	return pkg, nil
}

// cleanup removes the temp directory and the raw recording. A failed run
// keeps the raw files unless configured otherwise, and keeps converted
// videos when they are meant to be reused.
func (r *Runner) cleanup(ctx context.Context, runErr error) {
	failed := runErr != nil && !Skipped(runErr)

	if !(failed && r.cfg.ReuseConvertedVideos) {
		if err := os.RemoveAll(r.tmpDir()); err != nil {
			r.logger.Warn("failed to remove temp dir", "path", r.tmpDir(), "error", err)
		}
	}

	if failed && !r.cfg.DeleteRawOnFailure {
		r.logger.Info("keeping raw recording after failure")
		return
	}
	if err := r.deleteRaw(ctx, r.meetingID); err != nil {
		r.logger.Warn("failed to delete raw recording", "error", err)
	}
}

func (r *Runner) report(ctx context.Context, res ingest.Result, runErr error) {
	outcome := notify.Completed
	switch {
	case Skipped(runErr):
		outcome = notify.Skipped
	case runErr != nil:
		outcome = notify.Failed
	}
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}

	if r.publisher != nil {
		err := r.publisher.Publish(ctx, notify.Event{
			MeetingID:      r.meetingID,
			MediaPackageID: res.MediaPackageID,
			Workflow:       res.Workflow,
			Outcome:        outcome,
			State:          res.State.String(),
			TrackCount:     res.Tracks,
			Error:          errText,
		})
		if err != nil {
			r.logger.Warn("failed to publish outcome", "error", err)
		}
	}

	if r.ledger != nil {
		_, err := r.ledger.RecordRun(ctx, store.Run{
			MeetingID:      r.meetingID,
			MediaPackageID: res.MediaPackageID,
			Workflow:       res.Workflow,
			Outcome:        string(outcome),
			State:          res.State.String(),
			TrackCount:     res.Tracks,
			Error:          errText,
		})
		if err != nil {
			r.logger.Warn("failed to record run", "error", err)
		}
	}
}

// Skipped reports whether err is a deliberate no-op outcome.
func Skipped(err error) bool {
	return errors.Is(err, tracks.ErrNoTracks) || errors.Is(err, ErrRecordingNotStarted)
}

// ExitCode maps a run result to the process exit status.
func ExitCode(err error) int {
	if err == nil || Skipped(err) {
		return 0
	}
	return 1
}
