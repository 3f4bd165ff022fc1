package k8s

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubewake/kubewake/internal/logging"
)

// ClientConfig holds configuration for the Kubernetes client.
type ClientConfig struct {
	// Kubeconfig settings
	KubeconfigPath string
	Context        string

	// InCluster selects service account authentication instead of kubeconfig.
	InCluster bool

	// Performance settings
	QPSLimit   float32
	BurstLimit int

	// Logging
	Logger *slog.Logger
}

// Client provides access to a single Kubernetes cluster.
type Client struct {
	clientset kubernetes.Interface
	namespace string
	logger    *slog.Logger
}

// NewClient creates a Kubernetes client with the given configuration.
//
// The rest config deliberately carries no client-wide timeout: follow-mode
// log streams stay open until the caller cancels them.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("client configuration is required")
	}

	// Set defaults
	if config.QPSLimit == 0 {
		config.QPSLimit = DefaultQPSLimit
	}
	if config.BurstLimit == 0 {
		config.BurstLimit = DefaultBurstLimit
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		restConfig *rest.Config
		namespace  string
		err        error
	)

	if config.InCluster {
		if err := validateInClusterEnvironment(); err != nil {
			return nil, fmt.Errorf("in-cluster authentication not available: %w", err)
		}

		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build in-cluster config: %w", err)
		}

		namespace = readInClusterNamespace()
		logger.Info("using in-cluster authentication", logging.Namespace(namespace))
	} else {
		restConfig, namespace, err = loadKubeconfig(config.KubeconfigPath, config.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
		}

		logger.Info("using kubeconfig authentication",
			slog.String("context", config.Context),
			logging.Host(restConfig.Host))
	}

	restConfig.QPS = config.QPSLimit
	restConfig.Burst = config.BurstLimit

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{
		clientset: clientset,
		namespace: namespace,
		logger:    logger,
	}, nil
}

// NewClientForTesting wraps an existing clientset, typically a fake.
func NewClientForTesting(clientset kubernetes.Interface, namespace string) *Client {
	return &Client{
		clientset: clientset,
		namespace: namespace,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// Clientset returns the underlying typed clientset.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// DefaultNamespace returns the namespace the client was configured with,
// falling back to "default".
func (c *Client) DefaultNamespace() string {
	if c.namespace == "" {
		return DefaultNamespace
	}
	return c.namespace
}

// validateInClusterEnvironment checks if the required in-cluster authentication files are present.
func validateInClusterEnvironment() error {
	if _, err := os.Stat(DefaultTokenPath); os.IsNotExist(err) {
		return fmt.Errorf("service account token not found at %s", DefaultTokenPath)
	}

	if _, err := os.Stat(DefaultCACertPath); os.IsNotExist(err) {
		return fmt.Errorf("service account CA certificate not found at %s", DefaultCACertPath)
	}

	return nil
}

// readInClusterNamespace returns the pod's own namespace, or "default" when
// the namespace file is missing.
func readInClusterNamespace() string {
	data, err := os.ReadFile(DefaultNamespacePath)
	if err != nil {
		return DefaultNamespace
	}
	ns := strings.TrimSpace(string(data))
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// loadKubeconfig builds a rest config from the kubeconfig at the explicit
// path, the KUBECONFIG environment variable, or the default loading rules,
// in that order. It also returns the context's default namespace.
func loadKubeconfig(explicitPath, contextName string) (*rest.Config, string, error) {
	if explicitPath == "" {
		if kconf := os.Getenv("KUBECONFIG"); kconf != "" {
			if strings.HasPrefix(kconf, "~/") {
				uhd, _ := os.UserHomeDir()
				kconf = filepath.Join(uhd, kconf[2:])
			}
			explicitPath = kconf
		}
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if explicitPath != "" {
		loadingRules.ExplicitPath = explicitPath
	}

	overrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		overrides.CurrentContext = contextName
	}

	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, "", err
	}

	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		namespace = DefaultNamespace
	}

	return restConfig, namespace, nil
}
