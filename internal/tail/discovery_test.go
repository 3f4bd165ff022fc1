package tail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewake/kubewake/internal/k8s"
)

// blockingReader blocks until the stream context is cancelled, emulating a
// follow stream with no new output.
type blockingReader struct {
	ctx context.Context
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, io.EOF
}

func (r *blockingReader) Close() error { return nil }

// recordingSource records which containers were opened.
type recordingSource struct {
	mu     sync.Mutex
	opened []string
	block  bool
}

func (s *recordingSource) OpenStream(ctx context.Context, namespace, pod, container string, _ StreamOptions) (io.ReadCloser, error) {
	s.mu.Lock()
	s.opened = append(s.opened, namespace+"/"+pod+"/"+container)
	s.mu.Unlock()

	if s.block {
		return &blockingReader{ctx: ctx}, nil
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *recordingSource) openedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := append([]string(nil), s.opened...)
	sort.Strings(keys)
	return keys
}

// scriptedLister plays back one pod set (or error) per selection pass,
// repeating the last step once exhausted.
type scriptedLister struct {
	mu    sync.Mutex
	calls int
	steps []func() ([]k8s.PodInfo, error)
}

func (l *scriptedLister) SelectPods(context.Context) ([]k8s.PodInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	step := l.steps[len(l.steps)-1]
	if l.calls < len(l.steps) {
		step = l.steps[l.calls]
	}
	l.calls++
	return step()
}

func staticPods(pods ...k8s.PodInfo) func() ([]k8s.PodInfo, error) {
	return func() ([]k8s.PodInfo, error) { return pods, nil }
}

func newTestDiscovery(lister PodLister, source LogSource, out chan LogEntry, mutate func(*DiscoveryConfig)) *Discovery {
	cfg := DiscoveryConfig{
		Lister:   lister,
		Source:   source,
		Out:      out,
		Logger:   slog.New(slog.DiscardHandler),
		Interval: 10 * time.Millisecond,
		Stream:   StreamOptions{Follow: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDiscovery(cfg)
}

func runDiscovery(t *testing.T, d *Discovery) (cancel func()) {
	t.Helper()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	return func() {
		stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("discovery did not stop")
		}
	}
}

func TestDiscoveryStartsOneTaskPerContainer(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(
			k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app", "sidecar"}},
			k8s.PodInfo{Namespace: "prod", Name: "db-0", Containers: []string{"postgres"}},
		),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, func(cfg *DiscoveryConfig) {
		cfg.AllContainers = true
	})
	stop := runDiscovery(t, d)

	require.Eventually(t, func() bool {
		return d.ActiveTasks() == 3
	}, 5*time.Second, 10*time.Millisecond)

	stop()

	// Shutdown waited for every task; nothing is left tracked.
	assert.Equal(t, 0, d.ActiveTasks())
	assert.Equal(t, []string{"default/web-0/app", "default/web-0/sidecar", "prod/db-0/postgres"}, source.openedKeys())
}

func TestDiscoveryAnnouncesNewPods(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app"}}),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, nil)
	stop := runDiscovery(t, d)
	defer stop()

	select {
	case entry := <-out:
		assert.True(t, entry.IsSystem())
		assert.Contains(t, entry.Message, "default/web-0")
	case <-time.After(5 * time.Second):
		t.Fatal("no discovery announcement")
	}
}

func TestDiscoveryDoesNotDuplicateKnownPods(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app"}}),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, nil)
	stop := runDiscovery(t, d)

	// Let several ticks pass over the same pod.
	require.Eventually(t, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.calls >= 4
	}, 5*time.Second, 10*time.Millisecond)

	stop()

	assert.Equal(t, []string{"default/web-0/app"}, source.openedKeys())
}

func TestDiscoveryDefaultContainerMode(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"istio-proxy", "app"}}),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	// No container pattern and no --all-containers: the heuristic picks
	// a single container per pod.
	d := newTestDiscovery(lister, source, out, nil)
	stop := runDiscovery(t, d)

	require.Eventually(t, func() bool {
		return d.ActiveTasks() == 1
	}, 5*time.Second, 10*time.Millisecond)

	stop()

	assert.Equal(t, []string{"default/web-0/app"}, source.openedKeys())
}

func TestDiscoveryContainerPattern(t *testing.T) {
	matcher, err := k8s.NewNameMatcher("app|postgres")
	require.NoError(t, err)

	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app", "sidecar", "postgres"}}),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, func(cfg *DiscoveryConfig) {
		cfg.Containers = matcher
	})
	stop := runDiscovery(t, d)

	require.Eventually(t, func() bool {
		return d.ActiveTasks() == 2
	}, 5*time.Second, 10*time.Millisecond)

	stop()

	assert.Equal(t, []string{"default/web-0/app", "default/web-0/postgres"}, source.openedKeys())
}

func TestDiscoveryReapsFinishedTasks(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app"}}),
	}}
	// Streams end immediately (one-shot tail).
	source := &recordingSource{block: false}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, func(cfg *DiscoveryConfig) {
		cfg.Stream = StreamOptions{}
	})
	stop := runDiscovery(t, d)
	defer stop()

	require.Eventually(t, func() bool {
		return d.ActiveTasks() == 0 && len(source.openedKeys()) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDiscoverySelectionFailureRetriesNextTick(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]k8s.PodInfo, error){
		func() ([]k8s.PodInfo, error) { return nil, errors.New("connection refused") },
		staticPods(k8s.PodInfo{Namespace: "default", Name: "web-0", Containers: []string{"app"}}),
	}}
	source := &recordingSource{block: true}
	out := make(chan LogEntry, 64)

	d := newTestDiscovery(lister, source, out, nil)
	stop := runDiscovery(t, d)

	require.Eventually(t, func() bool {
		return d.ActiveTasks() == 1
	}, 5*time.Second, 10*time.Millisecond)

	stop()
}
