package k8s

// Service account paths - default Kubernetes in-cluster locations
const (
	DefaultServiceAccountPath = "/var/run/secrets/kubernetes.io/serviceaccount"
	DefaultTokenPath          = DefaultServiceAccountPath + "/token"
	DefaultCACertPath         = DefaultServiceAccountPath + "/ca.crt"
	DefaultNamespacePath      = DefaultServiceAccountPath + "/namespace"
)

// Default performance settings
const (
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
)

// DefaultContainerAnnotation marks a pod's preferred container; kubectl and
// most dashboards honor it when no container is named explicitly.
const DefaultContainerAnnotation = "kubectl.kubernetes.io/default-container"

// DefaultNamespace is used when neither the kubeconfig context nor the
// caller names a namespace.
const DefaultNamespace = "default"
