package timeline

import (
	"encoding/json"
	"fmt"
)

// Bounds anchors a session on the absolute clock. Start and End are epoch
// milliseconds.
type Bounds struct {
	Start int64
	End   int64
}

// NewBounds derives session bounds from the first and last device
// timestamps of the event log and the creation time embedded in the
// meeting id. The duration of the log is preserved.
func NewBounds(realStart, firstEvent, lastEvent int64) (Bounds, error) {
	if lastEvent < firstEvent {
		return Bounds{}, fmt.Errorf("last event %d precedes first event %d", lastEvent, firstEvent)
	}
	return Bounds{Start: realStart, End: realStart + (lastEvent - firstEvent)}, nil
}

// Relative converts an absolute timestamp into a session offset.
func (b Bounds) Relative(t int64) int64 {
	return t - b.Start
}

// Duration returns End - Start in milliseconds.
func (b Bounds) Duration() int64 {
	return b.End - b.Start
}

// TimedFile is a media artifact announced by an event.
type TimedFile struct {
	Filename  string
	Directory string
	Timestamp int64  // absolute, epoch ms
	Group     string // presentation name for slides, empty otherwise
}

// CuttingMark is one recorded segment in session-relative milliseconds.
type CuttingMark struct {
	Begin    int64 `json:"begin"`
	Duration int64 `json:"duration"`
}

// Intervals pairs recording starts with stops. Both slices hold absolute
// timestamps and always have equal length once Close has been called.
type Intervals struct {
	Starts []int64
	Stops  []int64
}

func (iv *Intervals) open() bool {
	return len(iv.Starts) > len(iv.Stops)
}

// Toggle records a recording status change. A start while a recording is
// already open and a stop without an open recording are ignored.
func (iv *Intervals) Toggle(at int64, on bool) {
	switch {
	case on && !iv.open():
		iv.Starts = append(iv.Starts, at)
	case !on && iv.open():
		if at < iv.Starts[len(iv.Starts)-1] {
			at = iv.Starts[len(iv.Starts)-1]
		}
		iv.Stops = append(iv.Stops, at)
	}
}

// Close terminates a recording still open at end of log.
func (iv *Intervals) Close(end int64) {
	if !iv.open() {
		return
	}
	if end < iv.Starts[len(iv.Starts)-1] {
		end = iv.Starts[len(iv.Starts)-1]
	}
	iv.Stops = append(iv.Stops, end)
}

// Len is the number of complete intervals.
func (iv *Intervals) Len() int {
	return len(iv.Stops)
}

// First returns the first start, or false when nothing was recorded.
func (iv *Intervals) First() (int64, bool) {
	if len(iv.Starts) == 0 {
		return 0, false
	}
	return iv.Starts[0], true
}

// Last returns the last stop, or false when nothing was recorded.
func (iv *Intervals) Last() (int64, bool) {
	if len(iv.Stops) == 0 {
		return 0, false
	}
	return iv.Stops[len(iv.Stops)-1], true
}

// CuttingMarks converts the intervals into session-relative segments.
func (iv *Intervals) CuttingMarks(b Bounds) []CuttingMark {
	marks := make([]CuttingMark, 0, iv.Len())
	for i := 0; i < iv.Len(); i++ {
		marks = append(marks, CuttingMark{
			Begin:    b.Relative(iv.Starts[i]),
			Duration: iv.Stops[i] - iv.Starts[i],
		})
	}
	return marks
}

// MarshalCuttingMarks renders the cutting marks document attached to the
// media package.
func MarshalCuttingMarks(marks []CuttingMark) ([]byte, error) {
	if marks == nil {
		marks = []CuttingMark{}
	}
	data, err := json.MarshalIndent(marks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cutting marks: %w", err)
	}
	return data, nil
}
