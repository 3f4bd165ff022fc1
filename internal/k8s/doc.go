// Package k8s provides cluster access for the log-tailing pipeline: client
// construction from kubeconfig or in-cluster credentials, resolution of
// "kind/name" resource queries to pod selectors, and pod/container
// selection.
package k8s
