package tail

import (
	"slices"
	"strings"

	"github.com/kubewake/kubewake/internal/k8s"
)

// containerPriority scores well-known container names. An exact
// case-insensitive match earns the base score plus 20, a substring match
// the base score alone. Only scores above priorityThreshold are accepted.
var containerPriority = []struct {
	name  string
	score int
}{
	{"app", 100},
	{"main", 95},
	{"application", 90},
	{"server", 85},
	{"service", 80},
	{"web", 75},
	{"api", 70},
	{"backend", 65},
	{"frontend", 60},
	{"nginx", 50},
	{"apache", 50},
	{"httpd", 50},
}

const priorityThreshold = 50

// DefaultContainer picks the container to stream when the operator named
// none. Rules, in order: the kubectl default-container annotation, the
// static priority table, the container name most common across the given
// pods (needs at least two pods carrying it), and finally the pod's first
// container.
//
// The peers slice is whatever set of pods the caller is currently working
// from; the frequency rule only sees those.
func DefaultContainer(pod k8s.PodInfo, peers []k8s.PodInfo) string {
	if len(pod.Containers) == 0 {
		return ""
	}

	if name := pod.Annotations[k8s.DefaultContainerAnnotation]; name != "" && slices.Contains(pod.Containers, name) {
		return name
	}

	if name, score := bestScoredContainer(pod.Containers); score > priorityThreshold {
		return name
	}

	if len(peers) > 1 {
		if name := mostCommonContainer(peers); name != "" && slices.Contains(pod.Containers, name) {
			return name
		}
	}

	return pod.Containers[0]
}

// bestScoredContainer returns the highest-scoring container name and its
// score. Ties keep the earlier container, preserving pod spec order.
func bestScoredContainer(containers []string) (string, int) {
	bestName, bestScore := "", 0
	for _, container := range containers {
		lower := strings.ToLower(container)
		for _, p := range containerPriority {
			score := 0
			if lower == p.name {
				score = p.score + 20
			} else if strings.Contains(lower, p.name) {
				score = p.score
			}
			if score > bestScore {
				bestName, bestScore = container, score
			}
		}
	}
	return bestName, bestScore
}

// mostCommonContainer returns the container name present in the largest
// number of distinct pods, or "" when no name appears in at least two.
// Ties resolve to the lexicographically smallest name so the result does
// not depend on map iteration order.
func mostCommonContainer(pods []k8s.PodInfo) string {
	counts := make(map[string]int)
	for _, pod := range pods {
		seen := make(map[string]struct{}, len(pod.Containers))
		for _, c := range pod.Containers {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			counts[c]++
		}
	}

	bestName, bestCount := "", 1
	for name, count := range counts {
		if count > bestCount || (count == bestCount && bestName != "" && name < bestName) {
			bestName, bestCount = name, count
		}
	}
	return bestName
}
