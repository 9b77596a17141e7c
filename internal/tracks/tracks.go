package tracks

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/MikeSquared-Agency/postarchive/internal/media"
	"github.com/MikeSquared-Agency/postarchive/internal/timeline"
)

// ErrNoTracks is returned when no source survives assembly.
var ErrNoTracks = errors.New("no tracks to ingest")

// Flavor is the role of a track in the media package.
type Flavor string

const (
	PresenterSource    Flavor = "presenter/source"
	PresentationSource Flavor = "presentation/source"
)

// Track is one media file positioned on the session timeline.
type Track struct {
	Flavor      Flavor
	StartOffset int64 // ms relative to the session start
	Path        string
}

// Sources is everything the event log announced.
type Sources struct {
	Bounds     timeline.Bounds
	Webcams    []timeline.TimedFile
	Audio      []timeline.TimedFile
	Deskshares []timeline.TimedFile
	Slides     []timeline.TimedFile
}

// Assembler turns announced sources into an ordered track list.
type Assembler struct {
	normalizer media.Normalizer
	logger     *slog.Logger
}

func NewAssembler(n media.Normalizer, logger *slog.Logger) *Assembler {
	return &Assembler{normalizer: n, logger: logger}
}

// Assemble normalizes the sources and returns tracks sorted by start
// offset. Missing or corrupt files are dropped; ErrNoTracks is returned
// when nothing is left.
func (a *Assembler) Assemble(ctx context.Context, src Sources) ([]Track, error) {
	slides := a.rasterizeSlides(ctx, src.Slides)
	a.normalizeVideos(ctx, src.Deskshares)
	a.normalizeVideos(ctx, src.Webcams)

	var out []Track

	// The ingest side handles a single presenter track, so only the first
	// available camera is sent.
	for _, f := range src.Webcams {
		if !dirExists(f.Directory) {
			continue
		}
		out = append(out, Track{
			Flavor:      PresenterSource,
			StartOffset: a.offset(src.Bounds, f),
			Path:        filepath.Join(f.Directory, f.Filename),
		})
		break
	}

	out = a.collect(ctx, out, PresentationSource, src.Bounds, src.Audio)
	out = a.collect(ctx, out, PresentationSource, src.Bounds, src.Deskshares)
	out = a.collect(ctx, out, PresentationSource, src.Bounds, slides)

	if len(out) == 0 {
		return nil, ErrNoTracks
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartOffset < out[j].StartOffset
	})
	return out, nil
}

func (a *Assembler) rasterizeSlides(ctx context.Context, slides []timeline.TimedFile) []timeline.TimedFile {
	out := make([]timeline.TimedFile, 0, len(slides))
	for _, s := range slides {
		src := filepath.Join(s.Directory, s.Filename)
		clip, err := a.normalizer.RasterizeSlide(ctx, src)
		if err != nil {
			a.logger.Warn("slide conversion failed, skipping", "path", src, "error", err)
			continue
		}
		s.Directory, s.Filename = filepath.Split(clip)
		s.Directory = filepath.Clean(s.Directory)
		out = append(out, s)
	}
	return out
}

func (a *Assembler) normalizeVideos(ctx context.Context, files []timeline.TimedFile) {
	for i := range files {
		src := filepath.Join(files[i].Directory, files[i].Filename)
		if !fileExists(src) {
			continue
		}
		p, err := a.normalizer.NormalizeDimensions(ctx, src)
		if err != nil {
			a.logger.Warn("video normalization failed, keeping original", "path", src, "error", err)
			continue
		}
		dir, name := filepath.Split(p)
		files[i].Directory, files[i].Filename = filepath.Clean(dir), name
	}
}

func (a *Assembler) collect(ctx context.Context, out []Track, flavor Flavor, b timeline.Bounds, files []timeline.TimedFile) []Track {
	for _, f := range files {
		p := filepath.Join(f.Directory, f.Filename)
		if !fileExists(p) {
			a.logger.Debug("source file missing", "path", p)
			continue
		}
		if _, err := a.normalizer.Probe(ctx, p); err != nil {
			a.logger.Info("file is ffmpeg-invalid and won't be ingested", "path", p, "error", err)
			continue
		}
		out = append(out, Track{Flavor: flavor, StartOffset: a.offset(b, f), Path: p})
	}
	return out
}

func (a *Assembler) offset(b timeline.Bounds, f timeline.TimedFile) int64 {
	off := b.Relative(f.Timestamp)
	if off < 0 {
		a.logger.Warn("track starts before session, clamping to 0", "file", f.Filename, "offset_ms", off)
		off = 0
	}
	return off
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
