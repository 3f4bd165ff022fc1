package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kubewake/kubewake/internal/filter"
	"github.com/kubewake/kubewake/internal/instrumentation"
	"github.com/kubewake/kubewake/internal/k8s"
	"github.com/kubewake/kubewake/internal/logging"
	"github.com/kubewake/kubewake/internal/output"
	"github.com/kubewake/kubewake/internal/tail"
)

// tailOptions collects every flag of the tail command.
type tailOptions struct {
	namespace     string
	allNamespaces bool
	container     string
	allContainers bool
	resource      string

	follow     bool
	tailLines  int64
	since      string
	timestamps bool

	include    string
	exclude    string
	bufferSize int

	format     string
	outputFile string

	kubeconfig  string
	kubeContext string
	inCluster   bool
	qpsLimit    float32
	burstLimit  int

	metricsAddr string
	logLevel    string
}

// newTailCmd creates the Cobra command running the discovery, streaming
// and filter pipeline.
func newTailCmd() *cobra.Command {
	opts := &tailOptions{}

	cmd := &cobra.Command{
		Use:   "tail [pod-regex]",
		Short: "Tail logs from every pod matching the selection",
		Long: `Tail logs from every pod matching the selection and print them as one
merged stream. The pod set is re-discovered every few seconds, so pods
created after startup are picked up automatically; interrupted streams
are reopened with backoff.

The optional positional argument is a regular expression matched against
pod names. With --resource the workload's own label selector decides the
pod set instead and the pattern is ignored.

Examples:
  kubewake tail web- -n prod -f
  kubewake tail -r deploy/checkout -f --include ERROR
  kubewake tail -A --all-containers --since 15m -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			podPattern := ""
			if len(args) == 1 {
				podPattern = args[0]
			}

			loadEnvIfEmpty(&opts.logLevel, "LOG_LEVEL")
			loadEnvIfEmpty(&opts.metricsAddr, "METRICS_ADDR")

			return runTail(cmd.Context(), podPattern, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "", "Namespace to tail (default: the kubeconfig context's namespace)")
	cmd.Flags().BoolVarP(&opts.allNamespaces, "all-namespaces", "A", false, "Tail pods across every namespace")
	cmd.Flags().StringVarP(&opts.container, "container", "c", "", "Container name or regex; a plain name matches exactly")
	cmd.Flags().BoolVar(&opts.allContainers, "all-containers", false, "Stream every container of each pod")
	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "Tail the pods of a workload, e.g. deploy/web or job/backup")

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep streams open and follow new log lines")
	cmd.Flags().Int64Var(&opts.tailLines, "tail", -1, "Number of recent lines to fetch per container (-1: server default)")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only fetch logs newer than this age, e.g. 5s, 2m, 3h, 1d")
	cmd.Flags().BoolVarP(&opts.timestamps, "timestamps", "t", false, "Parse per-line timestamps into the output")

	cmd.Flags().StringVarP(&opts.include, "include", "i", "", "Only print lines matching this regex")
	cmd.Flags().StringVarP(&opts.exclude, "exclude", "e", "", "Drop lines matching this regex")
	cmd.Flags().IntVar(&opts.bufferSize, "buffer-size", 1000, "Entries kept for retroactive filtering (0: disabled)")

	cmd.Flags().StringVarP(&opts.format, "output", "o", output.FormatText, "Output format: text, json, or raw")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "Also write entries to this file")

	cmd.Flags().StringVar(&opts.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (default: KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&opts.kubeContext, "kube-context", "", "Kubeconfig context to use (default: current context)")
	cmd.Flags().BoolVar(&opts.inCluster, "in-cluster", false, "Use in-cluster authentication (service account token) instead of kubeconfig")
	cmd.Flags().Float32Var(&opts.qpsLimit, "qps-limit", k8s.DefaultQPSLimit, "QPS limit for Kubernetes API calls")
	cmd.Flags().IntVar(&opts.burstLimit, "burst-limit", k8s.DefaultBurstLimit, "Burst limit for Kubernetes API calls")

	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Listen address for the Prometheus endpoint (empty: disabled, can also be set via METRICS_ADDR)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (can also be set via LOG_LEVEL)")

	return cmd
}

// runTail wires and runs the pipeline until a signal or a fatal error.
func runTail(parent context.Context, podPattern string, opts *tailOptions) error {
	logger := logging.New(os.Stderr, opts.logLevel)

	// Validate the whole flag surface before touching the cluster.
	podRe, err := compilePodPattern(podPattern)
	if err != nil {
		return err
	}

	containers, err := k8s.NewNameMatcher(opts.container)
	if err != nil {
		return err
	}

	manager, err := filter.NewManager(opts.include, opts.exclude, opts.bufferSize)
	if err != nil {
		return err
	}

	stream := tail.StreamOptions{
		Follow:     opts.follow,
		Timestamps: opts.timestamps,
	}
	if opts.since != "" {
		seconds, err := tail.ParseSinceSeconds(opts.since)
		if err != nil {
			return err
		}
		stream.SinceSeconds = &seconds
	}
	if opts.tailLines >= 0 {
		lines := opts.tailLines
		stream.TailLines = &lines
	}

	sink, closeSinks, err := buildSink(opts)
	if err != nil {
		return err
	}
	defer closeSinks()

	client, err := k8s.NewClient(&k8s.ClientConfig{
		KubeconfigPath: opts.kubeconfig,
		Context:        opts.kubeContext,
		InCluster:      opts.inCluster,
		QPSLimit:       opts.qpsLimit,
		BurstLimit:     opts.burstLimit,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	namespace := opts.namespace
	if namespace == "" {
		namespace = client.DefaultNamespace()
	}

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	if opts.metricsAddr != "" {
		instrumentationConfig.Enabled = true
		instrumentationConfig.MetricsAddr = opts.metricsAddr
	}
	provider, err := instrumentation.NewProvider(ctx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := provider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(shutdownErr))
		}
	}()
	manager.SetMetrics(provider.Metrics())

	selection := k8s.Selection{
		Namespace:     namespace,
		AllNamespaces: opts.allNamespaces,
		PodPattern:    podRe,
	}
	// --all-containers bypasses the container pattern entirely.
	if !opts.allContainers {
		selection.Containers = containers
	}

	if opts.resource != "" {
		ref, err := k8s.ParseResourceRef(opts.resource)
		if err != nil {
			return err
		}
		selector, err := k8s.ResolveSelector(ctx, client.Clientset(), namespace, ref)
		if err != nil {
			return err
		}
		selection.Selector = selector
		selection.PodPattern = nil
		logger.Info("resolved resource selector", logging.Resource(ref.String()))
	}

	raw := make(chan tail.LogEntry, tail.RawChannelCapacity)
	filtered := make(chan tail.LogEntry, tail.FilteredChannelCapacity)

	discovery := tail.NewDiscovery(tail.DiscoveryConfig{
		Lister: tail.PodListerFunc(func(ctx context.Context) ([]k8s.PodInfo, error) {
			return k8s.SelectPods(ctx, client.Clientset(), selection)
		}),
		Source:        tail.NewLogSource(client.Clientset()),
		Out:           raw,
		Logger:        logger,
		Metrics:       provider.Metrics(),
		Stream:        stream,
		AllContainers: opts.allContainers,
		Containers:    containers,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return discovery.Run(gctx)
	})

	g.Go(func() error {
		return manager.Run(gctx, raw, filtered)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case entry := <-filtered:
				if err := sink.Accept(entry); err != nil {
					return fmt.Errorf("output sink failed: %w", err)
				}
			}
		}
	})

	if provider.Enabled() && instrumentationConfig.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, instrumentationConfig, provider, logger)
		})
	}

	logger.Info("pipeline started",
		logging.Namespace(namespace),
		slog.Bool("all_namespaces", opts.allNamespaces),
		slog.Bool("follow", opts.follow))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("pipeline stopped")
	return nil
}

// compilePodPattern compiles the positional pod pattern; empty matches all.
func compilePodPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pod pattern %q: %w", pattern, err)
	}
	return re, nil
}

// buildSink creates the stdout sink and, when requested, a tee to a file.
func buildSink(opts *tailOptions) (output.Sink, func(), error) {
	stdout, err := output.NewSink(opts.format, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	if opts.outputFile == "" {
		return stdout, func() {}, nil
	}

	f, err := os.OpenFile(opts.outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}

	fileSink, err := output.NewSink(opts.format, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	return output.MultiSink{stdout, fileSink}, func() { _ = f.Close() }, nil
}

// serveMetrics runs the Prometheus scrape endpoint until the context ends.
func serveMetrics(ctx context.Context, config instrumentation.Config, provider *instrumentation.Provider, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(config.PrometheusEndpoint, provider.Handler())

	server := &http.Server{
		Addr:              config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", config.MetricsAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
}

// loadEnvIfEmpty fills a string option from an environment variable when
// the flag left it empty.
func loadEnvIfEmpty(target *string, envName string) {
	if *target == "" {
		if value := os.Getenv(envName); value != "" {
			*target = value
		}
	}
}
