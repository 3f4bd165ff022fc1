package k8s

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PodInfo is the pipeline's view of one pod: the containers worth streaming
// and the annotations the default-container heuristic reads.
type PodInfo struct {
	Namespace   string
	Name        string
	Containers  []string
	Annotations map[string]string
}

// Key returns the "namespace/name" identity used by the discovery loop.
func (p PodInfo) Key() string {
	return p.Namespace + "/" + p.Name
}

// regexMetachars are the characters that make a pattern a real regex. A
// pattern without any of them is a plain name and is compared for exact
// equality, so that -c app does not also match app-sidecar.
const regexMetachars = `^$.|?*+()[]{}\`

// NameMatcher matches container names against a user-supplied pattern,
// treating plain names as exact matches and everything else as a regex.
type NameMatcher struct {
	raw   string
	plain bool
	re    *regexp.Regexp
}

// NewNameMatcher compiles a container name pattern. An empty pattern or the
// explicit ".*" matches everything.
func NewNameMatcher(pattern string) (*NameMatcher, error) {
	m := &NameMatcher{raw: pattern}

	if pattern == "" || pattern == ".*" {
		return m, nil
	}

	if !strings.ContainsAny(pattern, regexMetachars) {
		m.plain = true
		return m, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid container pattern %q: %w", pattern, err)
	}
	m.re = re
	return m, nil
}

// Match reports whether the container name matches the pattern.
func (m *NameMatcher) Match(name string) bool {
	if m == nil || m.MatchAll() {
		return true
	}
	if m.plain {
		return name == m.raw
	}
	return m.re.MatchString(name)
}

// MatchAll reports whether the matcher accepts every container name.
func (m *NameMatcher) MatchAll() bool {
	return m == nil || (m.raw == "" || m.raw == ".*")
}

// Selection describes which pods and containers to pick.
type Selection struct {
	// Namespace to list in; ignored when AllNamespaces is set.
	Namespace string

	// AllNamespaces enumerates every namespace in the cluster.
	AllNamespaces bool

	// PodPattern filters pod names client-side. Nil matches every pod.
	// Not applied when Selector is set: the API-side selector of a
	// resource query is authoritative.
	PodPattern *regexp.Regexp

	// Containers filters container names. Nil matches every container.
	Containers *NameMatcher

	// Selector holds the resolved label pairs of a resource query.
	Selector []LabelPair
}

// SelectPods lists the pods matching the selection and enumerates their
// containers. Pods with no matching container are dropped.
func SelectPods(ctx context.Context, clientset kubernetes.Interface, sel Selection) ([]PodInfo, error) {
	namespaces := []string{sel.Namespace}
	if sel.AllNamespaces {
		var err error
		namespaces, err = listNamespaces(ctx, clientset)
		if err != nil {
			return nil, err
		}
	}

	listOpts := metav1.ListOptions{}
	if sel.Selector != nil {
		listOpts = ListOptionsFor(sel.Selector)
	}

	var infos []PodInfo
	for _, ns := range namespaces {
		pods, err := clientset.CoreV1().Pods(ns).List(ctx, listOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to list pods in namespace %q: %w", ns, err)
		}

		for i := range pods.Items {
			pod := &pods.Items[i]

			if sel.Selector == nil && sel.PodPattern != nil && !sel.PodPattern.MatchString(pod.Name) {
				continue
			}

			var matching []string
			for _, name := range containerNames(pod) {
				if sel.Containers.Match(name) {
					matching = append(matching, name)
				}
			}
			if len(matching) == 0 {
				continue
			}

			infos = append(infos, PodInfo{
				Namespace:   pod.Namespace,
				Name:        pod.Name,
				Containers:  matching,
				Annotations: pod.Annotations,
			})
		}
	}

	return infos, nil
}

// containerNames enumerates a pod's containers from its status: every
// container status followed by every init container status, regardless of
// state, so crash-looping and terminated containers stay streamable. Only
// a pod with no statuses at all (not yet scheduled) falls back to the spec.
func containerNames(pod *corev1.Pod) []string {
	var names []string
	for _, cs := range pod.Status.ContainerStatuses {
		names = append(names, cs.Name)
	}
	for _, cs := range pod.Status.InitContainerStatuses {
		names = append(names, cs.Name)
	}
	if len(names) > 0 {
		return names
	}

	for _, c := range pod.Spec.Containers {
		names = append(names, c.Name)
	}
	return names
}

// listNamespaces returns the names of every namespace in the cluster.
func listNamespaces(ctx context.Context, clientset kubernetes.Interface) ([]string, error) {
	list, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}
