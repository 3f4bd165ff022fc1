package tail

import "time"

// SystemContainer is the reserved container name carried by synthetic
// entries the pipeline injects (pod discovered, stream retrying). Real
// containers named "system" would be indistinguishable; the name is treated
// as reserved.
const SystemContainer = "system"

// LogEntry is one line of log output flowing through the pipeline.
// Timestamp is nil when the line carried no parseable timestamp.
type LogEntry struct {
	Namespace     string
	PodName       string
	ContainerName string
	Message       string
	Timestamp     *time.Time
}

// IsSystem reports whether the entry is synthetic pipeline output rather
// than container output.
func (e LogEntry) IsSystem() bool {
	return e.ContainerName == SystemContainer
}

// SystemEntry builds a synthetic entry attributed to the pod it concerns.
func SystemEntry(namespace, pod, message string) LogEntry {
	now := time.Now()
	return LogEntry{
		Namespace:     namespace,
		PodName:       pod,
		ContainerName: SystemContainer,
		Message:       message,
		Timestamp:     &now,
	}
}
