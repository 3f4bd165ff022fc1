package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubewake/kubewake/internal/instrumentation"
	"github.com/kubewake/kubewake/internal/logging"
)

// maxLineSize bounds a single log line so one pathological producer cannot
// fail the scanner.
const maxLineSize = 1024 * 1024

// LogSource opens a log stream for one container. The production
// implementation wraps client-go; tests substitute their own.
type LogSource interface {
	OpenStream(ctx context.Context, namespace, pod, container string, opts StreamOptions) (io.ReadCloser, error)
}

// clientLogSource opens streams through a typed clientset.
type clientLogSource struct {
	clientset kubernetes.Interface
}

// NewLogSource returns a LogSource backed by the given clientset.
func NewLogSource(clientset kubernetes.Interface) LogSource {
	return &clientLogSource{clientset: clientset}
}

func (s *clientLogSource) OpenStream(ctx context.Context, namespace, pod, container string, opts StreamOptions) (io.ReadCloser, error) {
	logOpts := &corev1.PodLogOptions{
		Container:  container,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	// SinceSeconds takes precedence over TailLines when both are set.
	if opts.SinceSeconds != nil {
		logOpts.SinceSeconds = opts.SinceSeconds
	} else if opts.TailLines != nil {
		logOpts.TailLines = opts.TailLines
	}

	req := s.clientset.CoreV1().Pods(namespace).GetLogs(pod, logOpts)
	return req.Stream(ctx)
}

// StreamTask reads one container's log stream, parses lines into entries
// and pushes them downstream, reopening the stream on transient failures.
type StreamTask struct {
	source    LogSource
	namespace string
	pod       string
	container string
	opts      StreamOptions
	out       chan<- LogEntry
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	// delayFn is retryDelay in production; tests shorten it.
	delayFn func(attempt int) time.Duration
}

// NewStreamTask creates a stream task for one (namespace, pod, container).
func NewStreamTask(source LogSource, namespace, pod, container string, opts StreamOptions, out chan<- LogEntry, logger *slog.Logger, metrics *instrumentation.Metrics) *StreamTask {
	return &StreamTask{
		source:    source,
		namespace: namespace,
		pod:       pod,
		container: container,
		opts:      opts,
		out:       out,
		logger: logging.WithComponent(logger, "stream").With(
			logging.Namespace(namespace),
			logging.Pod(pod),
			logging.Container(container)),
		metrics: metrics,
		delayFn: retryDelay,
	}
}

// Run streams until the stream ends, the context is cancelled, a fatal
// error occurs, or the retry budget is exhausted.
func (t *StreamTask) Run(ctx context.Context) error {
	retries := 0
	for {
		err := t.streamOnce(ctx)
		if err == nil {
			t.logger.Debug("log stream ended")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if !isRetryable(err) {
			t.logger.Error("log stream failed", logging.Err(err))
			return fmt.Errorf("log stream for %s/%s/%s: %w", t.namespace, t.pod, t.container, err)
		}

		if retries >= maxRetries {
			t.logger.Error("log stream gave up", slog.Int("retries", retries), logging.Err(err))
			return fmt.Errorf("log stream for %s/%s/%s failed after %d retries: %w",
				t.namespace, t.pod, t.container, retries, err)
		}

		t.metrics.RecordStreamRetry(ctx)
		t.sendSystem(ctx, fmt.Sprintf("log stream for %s/%s/%s interrupted, retrying (%d/%d): %v",
			t.namespace, t.pod, t.container, retries+1, maxRetries, err))
		t.logger.Warn("log stream interrupted, retrying",
			slog.Int("attempt", retries+1), logging.Err(err))

		delay := t.delayFn(retries)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		retries++
	}
}

// streamOnce opens the stream and forwards entries until it ends. A nil
// return means the stream finished cleanly or the context was cancelled.
func (t *StreamTask) streamOnce(ctx context.Context) error {
	stream, err := t.source.OpenStream(ctx, t.namespace, t.pod, t.container, t.opts)
	if err != nil {
		return fmt.Errorf("failed to open log stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case t.out <- t.parseLine(line):
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("log stream read failed: %w", err)
	}
	return nil
}

// parseLine builds an entry from a raw line. With timestamps enabled the
// first space-delimited token is parsed as RFC3339; if that fails the
// whole line stays the message and the timestamp is nil.
func (t *StreamTask) parseLine(line string) LogEntry {
	entry := LogEntry{
		Namespace:     t.namespace,
		PodName:       t.pod,
		ContainerName: t.container,
		Message:       line,
	}

	if t.opts.Timestamps {
		if idx := strings.IndexByte(line, ' '); idx > 0 {
			if ts, err := time.Parse(time.RFC3339Nano, line[:idx]); err == nil {
				entry.Timestamp = &ts
				entry.Message = line[idx+1:]
			}
		}
	}

	return entry
}

// sendSystem pushes a synthetic entry without blocking: when the pipeline
// is saturated the entry is dropped rather than stalling the stream.
func (t *StreamTask) sendSystem(ctx context.Context, message string) {
	select {
	case t.out <- SystemEntry(t.namespace, t.pod, message):
	default:
		t.metrics.RecordSystemEntryDropped(ctx)
	}
}
