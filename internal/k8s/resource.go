package k8s

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Kind is a workload kind this tool can resolve pods for.
type Kind string

// Supported resource kinds.
const (
	KindPod         Kind = "pod"
	KindDeployment  Kind = "deployment"
	KindReplicaSet  Kind = "replicaset"
	KindStatefulSet Kind = "statefulset"
	KindDaemonSet   Kind = "daemonset"
	KindJob         Kind = "job"
)

// FieldSelectorKey is the pseudo label key marking a field selector pair.
// Pods have no label selector of their own, so a pod reference resolves to
// a metadata.name field selector instead.
const FieldSelectorKey = "metadata.name"

// kindAliases maps accepted kind spellings, including the common kubectl
// abbreviations, to their canonical Kind.
var kindAliases = map[string]Kind{
	"pod":         KindPod,
	"deployment":  KindDeployment,
	"deploy":      KindDeployment,
	"replicaset":  KindReplicaSet,
	"rs":          KindReplicaSet,
	"statefulset": KindStatefulSet,
	"sts":         KindStatefulSet,
	"daemonset":   KindDaemonSet,
	"ds":          KindDaemonSet,
	"job":         KindJob,
}

// ResourceRef names a workload by kind and name, parsed from a "kind/name"
// query string.
type ResourceRef struct {
	Kind Kind
	Name string
}

func (r ResourceRef) String() string {
	return string(r.Kind) + "/" + r.Name
}

// LabelPair is one key=value pair of a resolved selector. Pairs are kept
// ordered so that the rendered selector string is deterministic.
type LabelPair struct {
	Key   string
	Value string
}

// ParseResourceRef parses a "kind/name" query. The kind is case-insensitive
// and accepts kubectl abbreviations (deploy, rs, sts, ds).
func ParseResourceRef(query string) (ResourceRef, error) {
	parts := strings.Split(query, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ResourceRef{}, &InvalidQueryError{Query: query}
	}

	kind, ok := kindAliases[strings.ToLower(parts[0])]
	if !ok {
		return ResourceRef{}, &UnsupportedKindError{Kind: parts[0]}
	}

	return ResourceRef{Kind: kind, Name: parts[1]}, nil
}

// ResolveSelector resolves a workload reference to the ordered label pairs
// selecting its pods. A pod reference resolves to the metadata.name field
// selector pseudo-pair after confirming the pod exists.
func ResolveSelector(ctx context.Context, clientset kubernetes.Interface, namespace string, ref ResourceRef) ([]LabelPair, error) {
	switch ref.Kind {
	case KindPod:
		_, err := clientset.CoreV1().Pods(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil, &NotFoundError{Kind: ref.Kind, Name: ref.Name, Namespace: namespace}
			}
			return nil, fmt.Errorf("failed to get pod %q: %w", ref.Name, err)
		}
		return []LabelPair{{Key: FieldSelectorKey, Value: ref.Name}}, nil

	case KindDeployment:
		obj, err := clientset.AppsV1().Deployments(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return nil, wrapGetError(err, ref, namespace)
		}
		return selectorPairs(obj.Spec.Selector, ref)

	case KindReplicaSet:
		obj, err := clientset.AppsV1().ReplicaSets(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return nil, wrapGetError(err, ref, namespace)
		}
		return selectorPairs(obj.Spec.Selector, ref)

	case KindStatefulSet:
		obj, err := clientset.AppsV1().StatefulSets(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return nil, wrapGetError(err, ref, namespace)
		}
		return selectorPairs(obj.Spec.Selector, ref)

	case KindDaemonSet:
		obj, err := clientset.AppsV1().DaemonSets(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return nil, wrapGetError(err, ref, namespace)
		}
		return selectorPairs(obj.Spec.Selector, ref)

	case KindJob:
		obj, err := clientset.BatchV1().Jobs(namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			return nil, wrapGetError(err, ref, namespace)
		}
		// A Job's selector is optional and normally populated by the
		// controller; a missing one is a distinct condition from a
		// missing Job.
		return selectorPairs(obj.Spec.Selector, ref)

	default:
		return nil, &UnsupportedKindError{Kind: string(ref.Kind)}
	}
}

// ListOptionsFor renders resolved label pairs into list options, choosing a
// field selector when the pairs carry the metadata.name pseudo key.
func ListOptionsFor(pairs []LabelPair) metav1.ListOptions {
	if len(pairs) == 1 && pairs[0].Key == FieldSelectorKey {
		return metav1.ListOptions{FieldSelector: FieldSelectorKey + "=" + pairs[0].Value}
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return metav1.ListOptions{LabelSelector: strings.Join(parts, ",")}
}

func wrapGetError(err error, ref ResourceRef, namespace string) error {
	if apierrors.IsNotFound(err) {
		return &NotFoundError{Kind: ref.Kind, Name: ref.Name, Namespace: namespace}
	}
	return fmt.Errorf("failed to get %s %q: %w", ref.Kind, ref.Name, err)
}

// selectorPairs converts a workload's label selector to ordered pairs,
// sorted by key for deterministic rendering.
func selectorPairs(selector *metav1.LabelSelector, ref ResourceRef) ([]LabelPair, error) {
	if selector == nil || len(selector.MatchLabels) == 0 {
		return nil, &NoSelectorError{Kind: ref.Kind, Name: ref.Name}
	}

	keys := make([]string, 0, len(selector.MatchLabels))
	for k := range selector.MatchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]LabelPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, LabelPair{Key: k, Value: selector.MatchLabels[k]})
	}
	return pairs, nil
}
