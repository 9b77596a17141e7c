package eventlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/MikeSquared-Agency/postarchive/internal/metadata"
	"github.com/MikeSquared-Agency/postarchive/internal/timeline"
)

var (
	// ErrNoEventLog is returned when the events file does not exist.
	ErrNoEventLog = errors.New("no event log")
	// ErrNoEvents is returned for a well-formed log without a single event.
	ErrNoEvents = errors.New("event log contains no events")
)

// RecordStatusEvent toggles active recording on and off.
const RecordStatusEvent = "RecordStatusEvent"

// Kind is the media kind an event announces.
type Kind int

const (
	KindWebcam Kind = iota
	KindAudio
	KindDeskshare
	KindSlide
)

func (k Kind) String() string {
	switch k {
	case KindWebcam:
		return "webcam"
	case KindAudio:
		return "audio"
	case KindDeskshare:
		return "deskshare"
	case KindSlide:
		return "slide"
	default:
		return "unknown"
	}
}

// Mapping routes one event name to a media kind and the directory its
// files are stored in.
type Mapping struct {
	Event     string
	Kind      Kind
	Directory string
}

// Layout is the on-disk structure of a raw meeting archive.
type Layout struct {
	VideoDir        string
	AudioDir        string
	DeskshareDir    string
	PresentationDir string
	NotesDir        string
}

// LayoutFor returns the BigBlueButton raw archive layout for a meeting.
func LayoutFor(archiveDir, meetingID string) Layout {
	return Layout{
		VideoDir:        filepath.Join(archiveDir, "video", meetingID),
		AudioDir:        filepath.Join(archiveDir, "audio"),
		DeskshareDir:    filepath.Join(archiveDir, "deskshare"),
		PresentationDir: filepath.Join(archiveDir, "presentation"),
		NotesDir:        filepath.Join(archiveDir, "notes"),
	}
}

// Mappings lists the events the parser extracts files from. Slide
// mappings carry the presentation root; the per-deck directory is derived
// from each event.
func (l Layout) Mappings() []Mapping {
	return []Mapping{
		{Event: "StartWebRTCDesktopShareEvent", Kind: KindDeskshare, Directory: l.DeskshareDir},
		{Event: "StartWebRTCShareEvent", Kind: KindWebcam, Directory: l.VideoDir},
		{Event: "StartRecordingEvent", Kind: KindAudio, Directory: l.AudioDir},
		{Event: "SharePresentationEvent", Kind: KindSlide, Directory: l.PresentationDir},
		{Event: "GotoSlideEvent", Kind: KindSlide, Directory: l.PresentationDir},
	}
}

// RawEvent is one entry of the event log. Attributes holds the text of
// the event's child elements keyed by element name.
type RawEvent struct {
	Name         string
	Timestamp    int64
	TimestampUTC int64
	Attributes   map[string]string
}

// Log is the typed content of an event log.
type Log struct {
	MeetingID string
	Bounds    timeline.Bounds
	Events    []RawEvent
	Metadata  metadata.Bag

	Webcams    []timeline.TimedFile
	Audio      []timeline.TimedFile
	Deskshares []timeline.TimedFile
	Slides     []timeline.TimedFile

	// Toggles holds the recording status changes in log order. Recording
	// is derived from them and is closed at the session end.
	Toggles   []Toggle
	Recording timeline.Intervals
}

// Toggle is a single recording status change.
type Toggle struct {
	At int64
	On bool
}

// ParseFile opens and parses an events file.
func ParseFile(path, meetingID string, layout Layout) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoEventLog, path)
		}
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	return Parse(f, meetingID, layout)
}

// Parse reads an event log. meetingID is used when the log carries no
// <meeting id="..."> element.
func Parse(r io.Reader, meetingID string, layout Layout) (*Log, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	log := &Log{MeetingID: meetingID, Metadata: metadata.Bag{}}

	if m := doc.FindElement("//meeting"); m != nil {
		if id := m.SelectAttrValue("id", ""); id != "" {
			log.MeetingID = id
		}
	}
	if md := doc.FindElement("//metadata"); md != nil {
		raw := make(map[string]string, len(md.Attr))
		for _, a := range md.Attr {
			raw[a.Key] = a.Value
		}
		log.Metadata = metadata.NewBag(raw)
	}

	for _, el := range doc.FindElements("//event") {
		evt, err := parseEvent(el)
		if err != nil {
			return nil, err
		}
		log.Events = append(log.Events, evt)
	}
	if len(log.Events) == 0 {
		return nil, ErrNoEvents
	}

	realStart, err := CreationTime(log.MeetingID)
	if err != nil {
		return nil, err
	}
	first, last := log.Events[0].Timestamp, log.Events[len(log.Events)-1].Timestamp
	log.Bounds, err = timeline.NewBounds(realStart, first, last)
	if err != nil {
		return nil, fmt.Errorf("session bounds: %w", err)
	}

	routes := make(map[string]Mapping)
	for _, m := range layout.Mappings() {
		routes[m.Event] = m
	}

	for _, evt := range log.Events {
		if evt.Name == RecordStatusEvent {
			if _, ok := evt.Attributes["timestampUTC"]; !ok {
				continue
			}
			t := Toggle{At: evt.TimestampUTC, On: evt.Attributes["status"] == "true"}
			log.Toggles = append(log.Toggles, t)
			log.Recording.Toggle(t.At, t.On)
			continue
		}

		m, ok := routes[evt.Name]
		if !ok {
			continue
		}
		tf, ok := timedFile(evt, m)
		if !ok {
			continue
		}
		switch m.Kind {
		case KindWebcam:
			log.Webcams = append(log.Webcams, tf)
		case KindAudio:
			log.Audio = append(log.Audio, tf)
		case KindDeskshare:
			log.Deskshares = append(log.Deskshares, tf)
		case KindSlide:
			log.Slides = append(log.Slides, tf)
		}
	}
	log.Recording.Close(log.Bounds.End)

	return log, nil
}

// CreationTime extracts the epoch-millisecond creation time BigBlueButton
// appends to meeting ids ("<hash>-<millis>").
func CreationTime(meetingID string) (int64, error) {
	i := strings.LastIndex(meetingID, "-")
	if i < 0 || i == len(meetingID)-1 {
		return 0, fmt.Errorf("meeting id %q has no creation time suffix", meetingID)
	}
	ms, err := strconv.ParseInt(meetingID[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("meeting id %q: invalid creation time: %w", meetingID, err)
	}
	return ms, nil
}

func parseEvent(el *etree.Element) (RawEvent, error) {
	evt := RawEvent{
		Name:       el.SelectAttrValue("eventname", ""),
		Attributes: make(map[string]string),
	}

	ts := el.SelectAttrValue("timestamp", "")
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return RawEvent{}, fmt.Errorf("event %q: invalid timestamp %q", evt.Name, ts)
	}
	evt.Timestamp = n

	for _, c := range el.ChildElements() {
		evt.Attributes[c.Tag] = strings.TrimSpace(c.Text())
	}
	if v, ok := evt.Attributes["timestampUTC"]; ok {
		utc, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return RawEvent{}, fmt.Errorf("event %q: invalid timestampUTC %q", evt.Name, v)
		}
		evt.TimestampUTC = utc
	}
	return evt, nil
}

func timedFile(evt RawEvent, m Mapping) (timeline.TimedFile, bool) {
	if _, ok := evt.Attributes["timestampUTC"]; !ok {
		return timeline.TimedFile{}, false
	}

	if m.Kind == KindSlide {
		slide := 1
		if s, ok := evt.Attributes["slide"]; ok {
			if n, err := strconv.Atoi(s); err == nil {
				slide = n + 1
			}
		}
		name := evt.Attributes["presentationName"]
		return timeline.TimedFile{
			Filename:  fmt.Sprintf("slide%d.svg", slide),
			Directory: filepath.Join(m.Directory, name, "svgs"),
			Timestamp: evt.TimestampUTC,
			Group:     name,
		}, true
	}

	filename := evt.Attributes["filename"]
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	if filename == "" {
		return timeline.TimedFile{}, false
	}
	return timeline.TimedFile{
		Filename:  filename,
		Directory: m.Directory,
		Timestamp: evt.TimestampUTC,
	}, true
}
