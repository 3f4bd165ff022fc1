package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kubewake/kubewake/internal/k8s"
	"github.com/kubewake/kubewake/internal/logging"
)

// containersOptions collects the flags of the containers command.
type containersOptions struct {
	namespace     string
	allNamespaces bool
	container     string
	resource      string

	kubeconfig  string
	kubeContext string
	inCluster   bool
	logLevel    string
}

// newContainersCmd creates the Cobra command listing the pod/container
// pairs the same selection would tail.
func newContainersCmd() *cobra.Command {
	opts := &containersOptions{}

	cmd := &cobra.Command{
		Use:   "containers [pod-regex]",
		Short: "List the containers a tail with the same selection would stream",
		Long: `List every namespace/pod/container triple matching the selection, without
streaming anything. Useful for checking what a tail invocation would pick
up before running it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			podPattern := ""
			if len(args) == 1 {
				podPattern = args[0]
			}

			loadEnvIfEmpty(&opts.logLevel, "LOG_LEVEL")

			return runContainers(cmd.Context(), podPattern, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.namespace, "namespace", "n", "", "Namespace to list (default: the kubeconfig context's namespace)")
	cmd.Flags().BoolVarP(&opts.allNamespaces, "all-namespaces", "A", false, "List pods across every namespace")
	cmd.Flags().StringVarP(&opts.container, "container", "c", "", "Container name or regex; a plain name matches exactly")
	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "List the pods of a workload, e.g. deploy/web")
	cmd.Flags().StringVar(&opts.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (default: KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&opts.kubeContext, "kube-context", "", "Kubeconfig context to use (default: current context)")
	cmd.Flags().BoolVar(&opts.inCluster, "in-cluster", false, "Use in-cluster authentication (service account token) instead of kubeconfig")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (can also be set via LOG_LEVEL)")

	return cmd
}

func runContainers(ctx context.Context, podPattern string, opts *containersOptions) error {
	logger := logging.New(os.Stderr, opts.logLevel)

	podRe, err := compilePodPattern(podPattern)
	if err != nil {
		return err
	}

	containers, err := k8s.NewNameMatcher(opts.container)
	if err != nil {
		return err
	}

	client, err := k8s.NewClient(&k8s.ClientConfig{
		KubeconfigPath: opts.kubeconfig,
		Context:        opts.kubeContext,
		InCluster:      opts.inCluster,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	namespace := opts.namespace
	if namespace == "" {
		namespace = client.DefaultNamespace()
	}

	selection := k8s.Selection{
		Namespace:     namespace,
		AllNamespaces: opts.allNamespaces,
		PodPattern:    podRe,
		Containers:    containers,
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
	}

	pods, err := k8s.SelectPods(ctx, client.Clientset(), selection)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAMESPACE\tPOD\tCONTAINER")
	for _, pod := range pods {
		for _, container := range pod.Containers {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", pod.Namespace, pod.Name, container)
		}
	}
	return w.Flush()
}
