package tailgate

import (
	"time"

	"github.com/jpalmerr/tailgate/internal/broadcast"
)

// Log levels. Lower is more severe; any int is accepted.
const (
	LevelCritical      = 0
	LevelError         = 100
	LevelWarning       = 200
	LevelInfo          = 500
	LevelRequestFailed = 600
	LevelRequest       = 800
	LevelDebug         = 900
)

// Format tags understood by the bundled UI and the tail command.
const (
	FormatNone    = ""
	FormatError   = "r"
	FormatWarning = "y"
	FormatSuccess = "g"
)

// LogRecord is one timestamped, leveled log message made of formatted
// segments. Its JSON form is what stream clients receive:
//
//	{"timestamp": 1700000000000, "loglevel": 500, "message": [{"data": "...", "format": ""}]}
type LogRecord = broadcast.Record

// Segment is a piece of message text with a format tag.
type Segment = broadcast.Segment

// Entry is a [LogRecord] with the sequence number it was published under.
type Entry = broadcast.Entry

// Stats reports buffer and subscriber counters.
type Stats = broadcast.Stats

// NewRecord builds a [LogRecord] stamped with t.
func NewRecord(t time.Time, level int, segments ...Segment) LogRecord {
	return broadcast.NewRecord(t, level, segments...)
}
