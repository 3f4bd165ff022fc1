package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewake/kubewake/internal/tail"
)

func testEntry(message string) tail.LogEntry {
	return tail.LogEntry{Namespace: "default", PodName: "web-0", ContainerName: "app", Message: message}
}

func TestNewSinkUnsupportedFormat(t *testing.T) {
	_, err := NewSink("yaml", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(FormatText, &buf)
	require.NoError(t, err)

	require.NoError(t, sink.Accept(testEntry("hello")))
	assert.Equal(t, "default/web-0/app hello\n", buf.String())
}

func TestTextSinkWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(FormatText, &buf)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := testEntry("hello")
	entry.Timestamp = &ts

	require.NoError(t, sink.Accept(entry))
	assert.Equal(t, "2024-01-02T03:04:05Z default/web-0/app hello\n", buf.String())
}

func TestTextSinkMarksSystemEntries(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(FormatText, &buf)
	require.NoError(t, err)

	require.NoError(t, sink.Accept(tail.SystemEntry("default", "web-0", "new pod discovered: default/web-0")))
	assert.Equal(t, "*** [default/web-0] new pod discovered: default/web-0\n", buf.String())
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(FormatJSON, &buf)
	require.NoError(t, err)

	require.NoError(t, sink.Accept(testEntry("hello")))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "default", decoded["namespace"])
	assert.Equal(t, "web-0", decoded["pod"])
	assert.Equal(t, "app", decoded["container"])
	assert.Equal(t, "hello", decoded["message"])
	assert.NotContains(t, decoded, "timestamp")
}

func TestRawSink(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewSink(FormatRaw, &buf)
	require.NoError(t, err)

	require.NoError(t, sink.Accept(testEntry("just the message")))
	require.NoError(t, sink.Accept(tail.SystemEntry("default", "web-0", "ignored")))
	assert.Equal(t, "just the message\n", buf.String())
}

type failingSink struct{}

func (failingSink) Accept(tail.LogEntry) error { return errors.New("sink failed") }

func TestMultiSink(t *testing.T) {
	var a, b bytes.Buffer
	first, err := NewSink(FormatRaw, &a)
	require.NoError(t, err)
	second, err := NewSink(FormatRaw, &b)
	require.NoError(t, err)

	multi := MultiSink{first, second}
	require.NoError(t, multi.Accept(testEntry("fan out")))
	assert.Equal(t, "fan out\n", a.String())
	assert.Equal(t, "fan out\n", b.String())

	assert.Error(t, MultiSink{failingSink{}, first}.Accept(testEntry("stops")))
}
