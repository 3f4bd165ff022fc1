package tail

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Channel capacities of the pipeline. The raw channel absorbs bursts from
// many concurrent stream tasks; the filtered channel only needs to cover
// the sink's write latency.
const (
	RawChannelCapacity      = 10000
	FilteredChannelCapacity = 1024
)

// StreamOptions configures how one container's log stream is opened.
type StreamOptions struct {
	// Follow keeps the stream open for new lines instead of returning
	// after the backlog.
	Follow bool

	// TailLines limits the backlog to the last N lines. Nil means the
	// server default.
	TailLines *int64

	// SinceSeconds limits the backlog to the given age. Nil means no
	// age limit. Takes precedence over TailLines when both are set.
	SinceSeconds *int64

	// Timestamps asks the server to prefix each line with an RFC3339
	// timestamp, which the task then splits off into LogEntry.Timestamp.
	Timestamps bool
}

// secondsPerUnit maps a duration unit suffix to its length in seconds.
var secondsPerUnit = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
}

// ParseSinceSeconds parses a duration of the form "<digits><unit>" with
// unit one of s, m, h, d, and returns its length in seconds.
//
//	"5s" -> 5, "2m" -> 120, "3h" -> 10800, "1d" -> 86400
func ParseSinceSeconds(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("duration cannot be empty")
	}

	idx := 0
	for idx < len(s) && unicode.IsDigit(rune(s[idx])) {
		idx++
	}

	digits, unit := s[:idx], s[idx:]
	if digits == "" {
		return 0, fmt.Errorf("invalid duration %q: missing number", s)
	}
	if unit == "" {
		return 0, fmt.Errorf("invalid duration %q: missing time unit (s, m, h, d)", s)
	}

	multiplier, ok := secondsPerUnit[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unsupported time unit %q (use s, m, h, d)", s, unit)
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	return value * multiplier, nil
}
