package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Normalizer makes source files usable as timed tracks.
type Normalizer interface {
	// RasterizeSlide encodes a slide image as a 30fps video clip and
	// returns the clip's path.
	RasterizeSlide(ctx context.Context, imagePath string) (string, error)
	// NormalizeDimensions crops a video to even width and height and
	// returns the path to use. Already-even videos are returned as is.
	NormalizeDimensions(ctx context.Context, videoPath string) (string, error)
	// Probe inspects a media file and fails if it has no playable stream.
	Probe(ctx context.Context, path string) (*Info, error)
}

// Info is what Probe learns about a file.
type Info struct {
	Format   string
	Width    int
	Height   int
	Duration float64
	HasVideo bool
	HasAudio bool
}

// Even reports whether the video dimensions are divisible by two.
func (i *Info) Even() bool {
	return i.Width%2 == 0 && i.Height%2 == 0
}

// RunFunc executes an external tool and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec runs a command, folding stderr into the returned error.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - binaries come from configuration, args are built here
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := stderr.String()
		if len(msg) > 4096 {
			msg = msg[:4096] + "..."
		}
		return out, fmt.Errorf("%s: %w (stderr: %s)", filepath.Base(name), err, msg)
	}
	return out, nil
}

// FFmpeg implements Normalizer with ImageMagick, ffmpeg and ffprobe.
// Outputs are written below WorkDir, mirroring the absolute source path,
// and each output path is written at most once.
type FFmpeg struct {
	WorkDir     string
	FFmpegPath  string
	FFprobePath string
	ConvertPath string
	// ReuseConverted skips re-cropping videos whose output already exists.
	// Slide clips are always reused.
	ReuseConverted bool

	Run    RunFunc
	Logger *slog.Logger
}

// NewFFmpeg returns a normalizer writing below workDir.
func NewFFmpeg(workDir string, reuse bool, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		WorkDir:        workDir,
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		ConvertPath:    "convert",
		ReuseConverted: reuse,
		Run:            Exec,
		Logger:         logger,
	}
}

var evenCrop = []string{"-vf", "crop=trunc(iw/2)*2:trunc(ih/2)*2"}

func (f *FFmpeg) RasterizeSlide(ctx context.Context, imagePath string) (string, error) {
	out := f.outputPath(imagePath, ".mp4")
	if exists(out) {
		return out, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	// ffmpeg renders SVG unreliably, so go through PNG first.
	png := f.outputPath(imagePath, ".png")
	if _, err := f.Run(ctx, f.ConvertPath, imagePath, png); err != nil {
		return "", fmt.Errorf("rasterize %s: %w", imagePath, err)
	}

	args := []string{"-loglevel", "quiet", "-nostdin", "-nostats", "-y", "-r", "30", "-i", png}
	args = append(args, evenCrop...)
	args = append(args, out)
	if _, err := f.Run(ctx, f.FFmpegPath, args...); err != nil {
		return "", fmt.Errorf("encode %s: %w", png, err)
	}
	return out, nil
}

func (f *FFmpeg) NormalizeDimensions(ctx context.Context, videoPath string) (string, error) {
	info, err := f.Probe(ctx, videoPath)
	if err != nil {
		return "", err
	}
	if info.Even() {
		f.Logger.Debug("video dimensions are even", "path", videoPath)
		return videoPath, nil
	}

	out := f.outputPath(videoPath, "")
	if f.ReuseConverted && exists(out) {
		f.Logger.Info("converted video already exists, not converting", "path", out)
		return out, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	f.Logger.Info("cropping video to even dimensions", "path", videoPath, "width", info.Width, "height", info.Height)
	args := []string{"-loglevel", "error", "-nostdin", "-y", "-i", videoPath, "-r", "30"}
	args = append(args, evenCrop...)
	args = append(args, out)
	if _, err := f.Run(ctx, f.FFmpegPath, args...); err != nil {
		return "", fmt.Errorf("crop %s: %w", videoPath, err)
	}
	return out, nil
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*Info, error) {
	out, err := f.Run(ctx, f.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var data probeData
	jsonErr := json.Unmarshal(out, &data)
	if jsonErr != nil {
		if err != nil {
			return nil, fmt.Errorf("ffprobe %s: %w", path, err)
		}
		return nil, fmt.Errorf("ffprobe %s: json decode: %w", path, jsonErr)
	}

	info := &Info{Format: strings.TrimSpace(data.Format.FormatName)}
	for _, s := range data.Streams {
		if s.CodecName == "" {
			continue
		}
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width, info.Height = s.Width, s.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}
	if d, perr := strconv.ParseFloat(data.Format.Duration, 64); perr == nil {
		info.Duration = d
	}

	if info.Format == "" || (!info.HasVideo && !info.HasAudio) {
		if err != nil {
			return nil, fmt.Errorf("ffprobe %s: %w", path, err)
		}
		return nil, fmt.Errorf("ffprobe %s: no playable streams", path)
	}
	if err != nil {
		// ffprobe exits non-zero on some partial files while still
		// describing them.
		f.Logger.Warn("ffprobe non-zero exit but output accepted", "path", path, "error", err)
	}
	return info, nil
}

func (f *FFmpeg) outputPath(src, ext string) string {
	p := filepath.Join(f.WorkDir, src)
	if ext != "" {
		p = strings.TrimSuffix(p, filepath.Ext(p)) + ext
	}
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type probeData struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}
