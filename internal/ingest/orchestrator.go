// Package ingest drives a media package through the Opencast ingest
// endpoints, one strictly sequential step at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/beevik/etree"

	"github.com/MikeSquared-Agency/postarchive/internal/acl"
	"github.com/MikeSquared-Agency/postarchive/internal/tracks"
)

const (
	CuttingMarksFlavor = "json/times"
	XACMLFlavor        = "security/xacml+episode"
)

// State is a step of the ingest. States only move forward.
type State int

const (
	Init State = iota
	SeriesEnsured
	ContainerCreated
	TracksAttached
	MetadataAttached
	PolicyAttached
	ProcessingTriggered
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case SeriesEnsured:
		return "series_ensured"
	case ContainerCreated:
		return "container_created"
	case TracksAttached:
		return "tracks_attached"
	case MetadataAttached:
		return "metadata_attached"
	case PolicyAttached:
		return "policy_attached"
	case ProcessingTriggered:
		return "processing_triggered"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Remote is the subset of the Opencast API the orchestrator needs.
// Every ingest call returns the updated media package XML.
type Remote interface {
	ListSeries(ctx context.Context) ([]string, error)
	CreateSeries(ctx context.Context, dublinCore, acl string) error
	SeriesACL(ctx context.Context, seriesID string) (string, error)
	UpdateSeriesACL(ctx context.Context, seriesID, acl string) error

	CreateMediaPackage(ctx context.Context) (string, error)
	CreateMediaPackageWithID(ctx context.Context, id string) (string, error)
	AddPartialTrack(ctx context.Context, mediaPackage, flavor string, startMs int64, path string) (string, error)
	AddDCCatalog(ctx context.Context, mediaPackage, dublinCore string) (string, error)
	AddCatalog(ctx context.Context, mediaPackage, flavor, filename string, data []byte) (string, error)
	AddAttachment(ctx context.Context, mediaPackage, flavor, filename string, data []byte) (string, error)
	Ingest(ctx context.Context, mediaPackage, workflow string) (string, error)
}

// Series describes the series the event belongs to.
type Series struct {
	ID         string
	DublinCore string
	Rules      []acl.Rule
}

// Package is everything that goes into one ingest.
type Package struct {
	Tracks       []tracks.Track
	DublinCore   string
	CuttingMarks []byte
	EventRules   []acl.Rule

	// MediaPackageID is a validated identifier; empty lets the server
	// generate one.
	MediaPackageID string

	// Series is nil when no series handling is wanted.
	Series *Series
}

// Result reports how far an ingest got.
type Result struct {
	State          State
	MediaPackageID string
	Workflow       string
	Tracks         int
}

type Orchestrator struct {
	remote   Remote
	workflow string
	logger   *slog.Logger
}

func NewOrchestrator(remote Remote, workflow string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{remote: remote, workflow: workflow, logger: logger}
}

// Run executes the ingest. Any remote failure after the series step is
// fatal and returned together with the state reached so far.
func (o *Orchestrator) Run(ctx context.Context, pkg Package) (Result, error) {
	res := Result{State: Init, Workflow: o.workflow}
	if len(pkg.Tracks) == 0 {
		return res, tracks.ErrNoTracks
	}
	if pkg.DublinCore == "" {
		return res, errors.New("ingest: missing dublin core catalog")
	}

	if pkg.Series != nil && pkg.Series.ID != "" {
		if err := o.ensureSeries(ctx, *pkg.Series); err != nil {
			o.logger.Warn("series update failed, continuing without it", "series_id", pkg.Series.ID, "error", err)
		} else {
			res.State = SeriesEnsured
		}
	}

	var (
		mp  string
		err error
	)
	if pkg.MediaPackageID != "" {
		mp, err = o.remote.CreateMediaPackageWithID(ctx, pkg.MediaPackageID)
	} else {
		mp, err = o.remote.CreateMediaPackage(ctx)
	}
	if err != nil {
		return res, fmt.Errorf("create media package: %w", err)
	}
	res.State = ContainerCreated
	res.MediaPackageID = mediaPackageID(mp)
	o.trace(res.State, mp)

	ordered := slices.Clone(pkg.Tracks)
	slices.SortStableFunc(ordered, func(a, b tracks.Track) int {
		switch {
		case a.StartOffset < b.StartOffset:
			return -1
		case a.StartOffset > b.StartOffset:
			return 1
		}
		return 0
	})
	for _, t := range ordered {
		mp, err = o.remote.AddPartialTrack(ctx, mp, string(t.Flavor), t.StartOffset, t.Path)
		if err != nil {
			return res, fmt.Errorf("add track %s: %w", t.Path, err)
		}
		res.Tracks++
		o.logger.Info("track attached", "flavor", t.Flavor, "start_ms", t.StartOffset, "path", t.Path)
	}
	res.State = TracksAttached
	o.trace(res.State, mp)

	if mp, err = o.remote.AddDCCatalog(ctx, mp, pkg.DublinCore); err != nil {
		return res, fmt.Errorf("add dublin core: %w", err)
	}
	if mp, err = o.remote.AddCatalog(ctx, mp, CuttingMarksFlavor, "cutting_marks.json", pkg.CuttingMarks); err != nil {
		return res, fmt.Errorf("add cutting marks: %w", err)
	}
	res.State = MetadataAttached
	o.trace(res.State, mp)

	if len(pkg.EventRules) > 0 {
		policy, err := acl.XACML(pkg.EventRules)
		if err != nil {
			return res, err
		}
		if mp, err = o.remote.AddAttachment(ctx, mp, XACMLFlavor, "xacml_episode.xml", []byte(policy)); err != nil {
			return res, fmt.Errorf("add episode acl: %w", err)
		}
		res.State = PolicyAttached
		o.trace(res.State, mp)
	}

	if _, err := o.remote.Ingest(ctx, mp, o.workflow); err != nil {
		return res, fmt.Errorf("start workflow %s: %w", o.workflow, err)
	}
	res.State = ProcessingTriggered
	o.logger.Info("workflow started", "workflow", o.workflow, "media_package_id", res.MediaPackageID)

	res.State = Done
	return res, nil
}

func (o *Orchestrator) ensureSeries(ctx context.Context, s Series) error {
	ids, err := o.remote.ListSeries(ctx)
	if err != nil {
		return fmt.Errorf("list series: %w", err)
	}

	if !slices.Contains(ids, s.ID) {
		doc, err := acl.SeriesACL(s.Rules)
		if err != nil {
			return err
		}
		if err := o.remote.CreateSeries(ctx, s.DublinCore, doc); err != nil {
			return fmt.Errorf("create series: %w", err)
		}
		o.logger.Info("series created", "series_id", s.ID)
		return nil
	}

	existing, err := o.remote.SeriesACL(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("get series acl: %w", err)
	}
	missing, err := acl.MissingRules(existing, s.Rules)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		o.logger.Debug("series acl already up to date", "series_id", s.ID)
		return nil
	}
	merged, err := acl.Merge(existing, missing)
	if err != nil {
		return err
	}
	if err := o.remote.UpdateSeriesACL(ctx, s.ID, merged); err != nil {
		return fmt.Errorf("update series acl: %w", err)
	}
	o.logger.Info("series acl updated", "series_id", s.ID, "added", len(missing))
	return nil
}

func (o *Orchestrator) trace(s State, mediaPackage string) {
	o.logger.Debug("media package updated", "state", s.String(), "media_package", mediaPackage)
}

// mediaPackageID reads the id attribute of the media package root.
func mediaPackageID(mediaPackage string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(mediaPackage); err != nil {
		return ""
	}
	if root := doc.Root(); root != nil {
		return root.SelectAttrValue("id", "")
	}
	return ""
}
