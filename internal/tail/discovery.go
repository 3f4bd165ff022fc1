package tail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kubewake/kubewake/internal/instrumentation"
	"github.com/kubewake/kubewake/internal/k8s"
	"github.com/kubewake/kubewake/internal/logging"
)

// DefaultPollInterval is how often the discovery loop re-runs pod selection.
const DefaultPollInterval = 5 * time.Second

// PodLister returns the pods currently matching the operator's selection.
type PodLister interface {
	SelectPods(ctx context.Context) ([]k8s.PodInfo, error)
}

// PodListerFunc adapts a function to the PodLister interface.
type PodListerFunc func(ctx context.Context) ([]k8s.PodInfo, error)

func (f PodListerFunc) SelectPods(ctx context.Context) ([]k8s.PodInfo, error) {
	return f(ctx)
}

// DiscoveryConfig wires a discovery loop.
type DiscoveryConfig struct {
	Lister  PodLister
	Source  LogSource
	Out     chan<- LogEntry
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// Stream configures every spawned stream task.
	Stream StreamOptions

	// AllContainers streams every container of each pod.
	AllContainers bool

	// Containers filters container names. When it matches everything and
	// AllContainers is unset, the default-container heuristic picks one
	// container per pod.
	Containers *k8s.NameMatcher

	// Interval overrides DefaultPollInterval, mainly for tests.
	Interval time.Duration
}

// taskHandle tracks one running stream task.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done is closed
}

// Discovery polls pod selection on a ticker, spawns one stream task per
// newly discovered container, and reaps tasks that have finished.
type Discovery struct {
	cfg    DiscoveryConfig
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}    // "ns/pod" keys already seen
	tasks map[string]*taskHandle // "ns/pod/container" -> running task
}

// NewDiscovery creates a discovery loop from the given config.
func NewDiscovery(cfg DiscoveryConfig) *Discovery {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Discovery{
		cfg:    cfg,
		logger: logging.WithComponent(cfg.Logger, "discovery"),
		known:  make(map[string]struct{}),
		tasks:  make(map[string]*taskHandle),
	}
}

// Run polls until the context is cancelled. Before returning it cancels
// all spawned stream tasks and waits for them to exit.
func (d *Discovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.pass(ctx, true)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()
		case <-ticker.C:
			d.pass(ctx, false)
		}
	}
}

// ActiveTasks returns the number of currently tracked stream tasks.
func (d *Discovery) ActiveTasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// pass runs one selection round: start tasks for unseen pods, then reap
// finished ones. Selection failures are logged and retried next tick.
func (d *Discovery) pass(ctx context.Context, initial bool) {
	start := time.Now()

	pods, err := d.cfg.Lister.SelectPods(ctx)
	if err != nil {
		d.logger.Warn("pod selection failed, retrying next tick", logging.Err(err))
		d.cfg.Metrics.RecordDiscoveryPass(ctx, instrumentation.StatusError, time.Since(start))
		return
	}

	for _, pod := range pods {
		d.mu.Lock()
		_, seen := d.known[pod.Key()]
		if !seen {
			d.known[pod.Key()] = struct{}{}
		}
		d.mu.Unlock()
		if seen {
			continue
		}

		d.logger.Info("new pod discovered", logging.Namespace(pod.Namespace), logging.Pod(pod.Name))
		d.sendSystem(ctx, pod, fmt.Sprintf("new pod discovered: %s", pod.Key()))

		// During the initial pass the heuristic sees the full selection;
		// pods discovered later are scored on their own.
		peers := []k8s.PodInfo{pod}
		if initial {
			peers = pods
		}

		for _, container := range d.containersFor(pod, peers) {
			d.startTask(ctx, pod, container)
		}
	}

	d.reap()
	d.cfg.Metrics.RecordDiscoveryPass(ctx, instrumentation.StatusSuccess, time.Since(start))
	d.logger.Debug("discovery pass complete",
		slog.Int("pods", len(pods)),
		logging.Status(logging.StatusSuccess),
		logging.Duration(time.Since(start)))
}

// containersFor picks which of the pod's containers to stream.
func (d *Discovery) containersFor(pod k8s.PodInfo, peers []k8s.PodInfo) []string {
	if d.cfg.AllContainers {
		return pod.Containers
	}

	if d.cfg.Containers.MatchAll() {
		if name := DefaultContainer(pod, peers); name != "" {
			return []string{name}
		}
		return nil
	}

	var matched []string
	for _, c := range pod.Containers {
		if d.cfg.Containers.Match(c) {
			matched = append(matched, c)
		}
	}
	return matched
}

// startTask spawns a stream task for the container unless one is already
// tracked for the same key.
func (d *Discovery) startTask(ctx context.Context, pod k8s.PodInfo, container string) {
	key := pod.Key() + "/" + container

	d.mu.Lock()
	if _, exists := d.tasks[key]; exists {
		d.mu.Unlock()
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	handle := &taskHandle{cancel: cancel, done: make(chan struct{})}
	d.tasks[key] = handle
	d.mu.Unlock()

	task := NewStreamTask(d.cfg.Source, pod.Namespace, pod.Name, container, d.cfg.Stream, d.cfg.Out, d.cfg.Logger, d.cfg.Metrics)

	d.cfg.Metrics.IncrementActiveStreamTasks(ctx)
	go func() {
		defer cancel()
		handle.err = task.Run(taskCtx)
		close(handle.done)
		d.cfg.Metrics.DecrementActiveStreamTasks(context.WithoutCancel(ctx))
	}()
}

// reap removes tasks that have finished. The pod key stays in the known
// set, so a finished task is only replaced when its pod reappears under a
// new name.
func (d *Discovery) reap() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, handle := range d.tasks {
		select {
		case <-handle.done:
			if handle.err != nil {
				d.logger.Warn("stream task ended", slog.String("task", key), logging.Err(handle.err))
			} else {
				d.logger.Debug("stream task ended", slog.String("task", key))
			}
			delete(d.tasks, key)
		default:
		}
	}
}

// shutdown cancels every task and waits for all of them to exit.
func (d *Discovery) shutdown() {
	d.mu.Lock()
	handles := make([]*taskHandle, 0, len(d.tasks))
	for _, handle := range d.tasks {
		handle.cancel()
		handles = append(handles, handle)
	}
	d.tasks = make(map[string]*taskHandle)
	d.mu.Unlock()

	for _, handle := range handles {
		<-handle.done
	}
	d.logger.Info("discovery stopped")
}

// sendSystem pushes a synthetic entry without blocking the loop.
func (d *Discovery) sendSystem(ctx context.Context, pod k8s.PodInfo, message string) {
	select {
	case d.cfg.Out <- SystemEntry(pod.Namespace, pod.Name, message):
	default:
		d.cfg.Metrics.RecordSystemEntryDropped(ctx)
	}
}
