package filter

import (
	"sync"

	"github.com/kubewake/kubewake/internal/tail"
)

// history is a fixed-capacity ring of recent entries. Capacity 0 disables
// it entirely; add and snapshot become no-ops.
type history struct {
	mu       sync.Mutex
	capacity int
	entries  []tail.LogEntry
	start    int
	count    int
}

func newHistory(capacity int) *history {
	h := &history{capacity: capacity}
	if capacity > 0 {
		h.entries = make([]tail.LogEntry, capacity)
	}
	return h
}

// add records an entry, evicting the oldest when full.
func (h *history) add(entry tail.LogEntry) {
	if h.capacity == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < h.capacity {
		h.entries[(h.start+h.count)%h.capacity] = entry
		h.count++
		return
	}

	h.entries[h.start] = entry
	h.start = (h.start + 1) % h.capacity
}

// snapshot returns the buffered entries, oldest first.
func (h *history) snapshot() []tail.LogEntry {
	if h.capacity == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]tail.LogEntry, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(h.start+i)%h.capacity])
	}
	return out
}
