package k8s

import "fmt"

// InvalidQueryError reports a resource query that is not of the form "kind/name".
type InvalidQueryError struct {
	Query string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid resource query %q: expected format kind/name", e.Query)
}

// UnsupportedKindError reports a resource kind this tool cannot resolve.
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported resource kind %q (supported: pod, deployment, replicaset, statefulset, daemonset, job)", e.Kind)
}

// NotFoundError reports a named resource missing from a namespace, with a
// hint the operator can act on directly.
type NotFoundError struct {
	Kind      Kind
	Name      string
	Namespace string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in namespace %q (try: kubectl get %ss -n %s)",
		e.Kind, e.Name, e.Namespace, e.Kind, e.Namespace)
}

// NoSelectorError reports a workload that exists but carries no label
// selector to match pods against. Jobs may legitimately omit one.
type NoSelectorError struct {
	Kind Kind
	Name string
}

func (e *NoSelectorError) Error() string {
	return fmt.Sprintf("%s %q has no label selector", e.Kind, e.Name)
}
