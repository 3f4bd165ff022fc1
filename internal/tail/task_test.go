package tail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource plays back one OpenStream result per call.
type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	script []func() (io.ReadCloser, error)
}

func (s *scriptedSource) OpenStream(_ context.Context, _, _, _ string, _ StreamOptions) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := s.script[len(s.script)-1]
	if s.calls < len(s.script) {
		step = s.script[s.calls]
	}
	s.calls++
	return step()
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func streamOf(lines ...string) func() (io.ReadCloser, error) {
	content := strings.Join(lines, "\n")
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func failWith(msg string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return nil, errors.New(msg)
	}
}

func newTestTask(source LogSource, opts StreamOptions, out chan LogEntry) *StreamTask {
	logger := slog.New(slog.DiscardHandler)
	task := NewStreamTask(source, "default", "web-0", "app", opts, out, logger, nil)
	task.delayFn = func(int) time.Duration { return 0 }
	return task
}

func collectEntries(out chan LogEntry) []LogEntry {
	close(out)
	var entries []LogEntry
	for e := range out {
		entries = append(entries, e)
	}
	return entries
}

func TestStreamTaskForwardsTrimmedLines(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		streamOf("  hello  ", "", "   ", "world"),
	}}
	out := make(chan LogEntry, 16)

	err := newTestTask(source, StreamOptions{}, out).Run(context.Background())
	require.NoError(t, err)

	entries := collectEntries(out)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, "world", entries[1].Message)
	assert.Equal(t, "default", entries[0].Namespace)
	assert.Equal(t, "web-0", entries[0].PodName)
	assert.Equal(t, "app", entries[0].ContainerName)
	assert.Nil(t, entries[0].Timestamp)
}

func TestStreamTaskParsesTimestamps(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		streamOf(
			"2024-01-02T03:04:05.123456789Z payload line",
			"not-a-timestamp payload line",
		),
	}}
	out := make(chan LogEntry, 16)

	err := newTestTask(source, StreamOptions{Timestamps: true}, out).Run(context.Background())
	require.NoError(t, err)

	entries := collectEntries(out)
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].Timestamp)
	assert.Equal(t, "payload line", entries[0].Message)
	assert.Equal(t, 2024, entries[0].Timestamp.Year())

	// Unparseable first token: the raw line survives with no timestamp.
	assert.Nil(t, entries[1].Timestamp)
	assert.Equal(t, "not-a-timestamp payload line", entries[1].Message)
}

func TestStreamTaskFatalErrorStopsImmediately(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		failWith("pods is forbidden: cannot get resource"),
	}}
	out := make(chan LogEntry, 16)

	err := newTestTask(source, StreamOptions{}, out).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, source.callCount())
}

func TestStreamTaskRetryBudget(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		failWith("connection refused"),
	}}
	out := make(chan LogEntry, 16)

	err := newTestTask(source, StreamOptions{}, out).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")

	// Initial attempt plus three retries.
	assert.Equal(t, 4, source.callCount())

	// Each retry announced itself with a synthetic entry.
	entries := collectEntries(out)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.IsSystem())
		assert.Contains(t, e.Message, "retrying")
	}
}

func TestStreamTaskRetryThenSuccess(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		failWith("connection reset by peer"),
		streamOf("back online"),
	}}
	out := make(chan LogEntry, 16)

	err := newTestTask(source, StreamOptions{}, out).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount())

	entries := collectEntries(out)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsSystem())
	assert.Equal(t, "back online", entries[1].Message)
}

func TestStreamTaskSystemEntriesAreBestEffort(t *testing.T) {
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		failWith("connection refused"),
	}}
	// Zero-capacity channel with no reader: the synthetic retry entries
	// must be dropped instead of blocking the task.
	out := make(chan LogEntry)

	done := make(chan error, 1)
	go func() {
		done <- newTestTask(source, StreamOptions{}, out).Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("task blocked on a system entry send")
	}
}

func TestStreamTaskCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	source := &scriptedSource{script: []func() (io.ReadCloser, error){
		func() (io.ReadCloser, error) { return pr, nil },
	}}
	out := make(chan LogEntry, 16)

	done := make(chan error, 1)
	go func() {
		done <- newTestTask(source, StreamOptions{Follow: true}, out).Run(ctx)
	}()

	_, err := pw.Write([]byte("line one\n"))
	require.NoError(t, err)

	select {
	case entry := <-out:
		assert.Equal(t, "line one", entry.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no entry received")
	}

	cancel()
	_ = pw.CloseWithError(context.Canceled)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not exit on cancellation")
	}
}
