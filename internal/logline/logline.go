// Package logline provides the data structure produced by a Detector on
// every newly observed log line.
// Adapted from driver/log/logline in the teacher repo, itself adapted from
// https://github.com/google/mtail/tree/main/internal.
package logline

import "time"

// LogLine is a single detected line, stripped of its terminal CR/LF, together
// with the source it came from and the time it was observed.
type LogLine struct {
	SourceName string    // name of the SourceSpec this line was read from
	Line       string    // line text, CR/LF already stripped
	Timestamp  time.Time // UTC instant the line was detected
}

// New creates a LogLine, stamping it with the current UTC time.
func New(sourceName, line string) *LogLine {
	return &LogLine{
		SourceName: sourceName,
		Line:       line,
		Timestamp:  time.Now().UTC(),
	}
}
