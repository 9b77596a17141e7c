package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	name string
	args []string
}

// fakeTools answers ffprobe with the given JSON and makes ffmpeg/convert
// create their output file (the last argument).
type fakeTools struct {
	probe map[string]string
	calls []call
}

func (f *fakeTools) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	switch name {
	case "ffprobe":
		path := args[len(args)-1]
		out, ok := f.probe[path]
		if !ok {
			return nil, errors.New("exit status 1")
		}
		return []byte(out), nil
	default:
		dst := args[len(args)-1]
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(dst, []byte("x"), 0o644)
	}
}

func (f *fakeTools) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func newTestFFmpeg(t *testing.T, tools *fakeTools, reuse bool) *FFmpeg {
	t.Helper()
	f := NewFFmpeg(t.TempDir(), reuse, discardLogger())
	f.Run = tools.run
	return f
}

const oddVideo = `{"streams":[{"codec_type":"video","codec_name":"vp8","width":641,"height":480}],"format":{"format_name":"matroska,webm","duration":"12.5"}}`
const evenVideo = `{"streams":[{"codec_type":"video","codec_name":"vp8","width":640,"height":480}],"format":{"format_name":"matroska,webm","duration":"12.5"}}`

func TestProbe_Valid(t *testing.T) {
	tools := &fakeTools{probe: map[string]string{"/in/a.webm": oddVideo}}
	f := newTestFFmpeg(t, tools, false)

	info, err := f.Probe(context.Background(), "/in/a.webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 641 || info.Height != 480 {
		t.Errorf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if info.Even() {
		t.Error("expected odd dimensions")
	}
	if info.Duration != 12.5 {
		t.Errorf("expected duration 12.5, got %f", info.Duration)
	}
}

func TestProbe_NoStreams(t *testing.T) {
	tools := &fakeTools{probe: map[string]string{"/in/bad.webm": `{"streams":[],"format":{"format_name":"webm"}}`}}
	f := newTestFFmpeg(t, tools, false)

	if _, err := f.Probe(context.Background(), "/in/bad.webm"); err == nil {
		t.Fatal("expected error for file without streams")
	}
}

func TestProbe_ToolFailure(t *testing.T) {
	f := newTestFFmpeg(t, &fakeTools{}, false)
	if _, err := f.Probe(context.Background(), "/in/missing.webm"); err == nil {
		t.Fatal("expected error when ffprobe fails")
	}
}

func TestNormalizeDimensions_EvenIsUntouched(t *testing.T) {
	tools := &fakeTools{probe: map[string]string{"/in/a.webm": evenVideo}}
	f := newTestFFmpeg(t, tools, false)

	got, err := f.NormalizeDimensions(context.Background(), "/in/a.webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/in/a.webm" {
		t.Errorf("expected original path, got %q", got)
	}
	if tools.count("ffmpeg") != 0 {
		t.Error("expected no ffmpeg invocation")
	}
}

func TestNormalizeDimensions_OddIsCropped(t *testing.T) {
	tools := &fakeTools{probe: map[string]string{"/in/a.webm": oddVideo}}
	f := newTestFFmpeg(t, tools, true)

	got, err := f.NormalizeDimensions(context.Background(), "/in/a.webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(f.WorkDir, "in", "a.webm")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if !strings.Contains(strings.Join(tools.calls[1].args, " "), "crop=trunc(iw/2)*2:trunc(ih/2)*2") {
		t.Errorf("expected crop filter, got %v", tools.calls[1].args)
	}

	// Second run reuses the cached output.
	if _, err := f.NormalizeDimensions(context.Background(), "/in/a.webm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools.count("ffmpeg") != 1 {
		t.Errorf("expected one ffmpeg run with reuse enabled, got %d", tools.count("ffmpeg"))
	}
}

func TestNormalizeDimensions_NoReuseReencodes(t *testing.T) {
	tools := &fakeTools{probe: map[string]string{"/in/a.webm": oddVideo}}
	f := newTestFFmpeg(t, tools, false)

	for i := 0; i < 2; i++ {
		if _, err := f.NormalizeDimensions(context.Background(), "/in/a.webm"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if tools.count("ffmpeg") != 2 {
		t.Errorf("expected two ffmpeg runs, got %d", tools.count("ffmpeg"))
	}
}

func TestRasterizeSlide_CachedByOutputPath(t *testing.T) {
	tools := &fakeTools{}
	f := newTestFFmpeg(t, tools, false)

	src := "/raw/presentation/deck/svgs/slide3.svg"
	got, err := f.RasterizeSlide(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(f.WorkDir, "raw", "presentation", "deck", "svgs", "slide3.mp4")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if tools.count("convert") != 1 || tools.count("ffmpeg") != 1 {
		t.Fatalf("expected convert and ffmpeg once, got %+v", tools.calls)
	}
	args := strings.Join(tools.calls[1].args, " ")
	if !strings.Contains(args, "-r 30") {
		t.Errorf("expected 30fps encode, got %q", args)
	}

	if _, err := f.RasterizeSlide(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools.count("ffmpeg") != 1 {
		t.Errorf("expected cached clip to be reused, got %d ffmpeg runs", tools.count("ffmpeg"))
	}
}
