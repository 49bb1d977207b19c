package broadcast

import (
	"math"
	"strings"
	"time"
)

// Segment is one formatted run of text within a [Record].
//
// Format is an opaque tag understood by the rendering client (the browser UI
// or the tail command), e.g. "y" for highlighted text or "" for plain.
type Segment struct {
	Text   string `json:"data"`
	Format string `json:"format"`
}

// Record is a single log line as published by the host application.
//
// Records are immutable after creation. The same value is shared by the
// history buffer and every subscriber queue it is copied into, so the
// Segments slice must never be modified once published.
type Record struct {
	// Timestamp is milliseconds since the Unix epoch, with a fractional part.
	Timestamp float64 `json:"timestamp"`

	// Level is the severity; lower values are more severe.
	Level int `json:"loglevel"`

	// Segments is the ordered rich-text content of the line.
	Segments []Segment `json:"message"`
}

// Entry is a [Record] paired with the sequence number the [Broadcaster]
// assigned when it was published. Sequence numbers start at 1 and increase
// by one per publish.
type Entry struct {
	Seq uint64
	Record
}

// NewRecord builds a [Record] from a wall-clock time. The segments are copied.
func NewRecord(t time.Time, level int, segments ...Segment) Record {
	return Record{
		Timestamp: float64(t.UnixMicro()) / 1000,
		Level:     level,
		Segments:  append([]Segment(nil), segments...),
	}
}

// Time converts the record timestamp back to a [time.Time].
func (r Record) Time() time.Time {
	return time.UnixMicro(int64(math.Round(r.Timestamp * 1000)))
}

// Text returns the concatenated text of all segments, without formatting.
func (r Record) Text() string {
	if len(r.Segments) == 1 {
		return r.Segments[0].Text
	}
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Formats returns the distinct non-empty format tags used by the record,
// in order of first appearance.
func (r Record) Formats() []string {
	var out []string
	for _, s := range r.Segments {
		if s.Format == "" {
			continue
		}
		dup := false
		for _, f := range out {
			if f == s.Format {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s.Format)
		}
	}
	return out
}
