package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kubewake/kubewake/internal/tail"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatRaw  = "raw"
)

// Sink consumes filtered log entries.
type Sink interface {
	Accept(entry tail.LogEntry) error
}

// NewSink creates a sink writing the given format to w.
func NewSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case FormatText:
		return &textSink{w: w}, nil
	case FormatJSON:
		return &jsonSink{enc: json.NewEncoder(w)}, nil
	case FormatRaw:
		return &rawSink{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (supported: %s, %s, %s)",
			format, FormatText, FormatJSON, FormatRaw)
	}
}

// textSink renders one prefixed line per entry. Synthetic system entries
// are marked so they stand out from container output.
type textSink struct {
	w io.Writer
}

func (s *textSink) Accept(entry tail.LogEntry) error {
	var err error
	if entry.IsSystem() {
		_, err = fmt.Fprintf(s.w, "*** [%s/%s] %s\n", entry.Namespace, entry.PodName, entry.Message)
	} else if entry.Timestamp != nil {
		_, err = fmt.Fprintf(s.w, "%s %s/%s/%s %s\n",
			entry.Timestamp.Format(time.RFC3339), entry.Namespace, entry.PodName, entry.ContainerName, entry.Message)
	} else {
		_, err = fmt.Fprintf(s.w, "%s/%s/%s %s\n",
			entry.Namespace, entry.PodName, entry.ContainerName, entry.Message)
	}
	return err
}

// jsonEntry is the wire shape of one entry in JSON output.
type jsonEntry struct {
	Namespace string     `json:"namespace"`
	Pod       string     `json:"pod"`
	Container string     `json:"container"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// jsonSink writes one JSON object per line.
type jsonSink struct {
	enc *json.Encoder
}

func (s *jsonSink) Accept(entry tail.LogEntry) error {
	return s.enc.Encode(jsonEntry{
		Namespace: entry.Namespace,
		Pod:       entry.PodName,
		Container: entry.ContainerName,
		Message:   entry.Message,
		Timestamp: entry.Timestamp,
	})
}

// rawSink writes bare messages, skipping synthetic entries entirely.
type rawSink struct {
	w io.Writer
}

func (s *rawSink) Accept(entry tail.LogEntry) error {
	if entry.IsSystem() {
		return nil
	}
	_, err := fmt.Fprintln(s.w, entry.Message)
	return err
}

// MultiSink fans each entry out to every sink, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Accept(entry tail.LogEntry) error {
	for _, s := range m {
		if err := s.Accept(entry); err != nil {
			return err
		}
	}
	return nil
}
