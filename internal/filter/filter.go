package filter

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/kubewake/kubewake/internal/instrumentation"
	"github.com/kubewake/kubewake/internal/tail"
)

// RegexError reports an include/exclude pattern that failed to compile.
// The manager keeps its previous state when an update carries one.
type RegexError struct {
	Pattern string
	Err     error
}

func (e *RegexError) Error() string {
	return fmt.Sprintf("invalid filter pattern %q: %v", e.Pattern, e.Err)
}

func (e *RegexError) Unwrap() error { return e.Err }

// patterns is the include/exclude pair. It is replaced as a unit so every
// filter decision sees one consistent snapshot.
type patterns struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// Manager holds the dynamic include/exclude patterns and the recent-entry
// history used for retroactive re-filtering.
type Manager struct {
	mu      sync.RWMutex
	current patterns

	history *history
	metrics *instrumentation.Metrics
}

// NewManager creates a manager with the given initial patterns (empty
// strings mean no filtering) and a history buffer of the given capacity
// (0 disables retroactive filtering).
func NewManager(include, exclude string, capacity int) (*Manager, error) {
	m := &Manager{history: newHistory(capacity)}

	if err := m.UpdateInclude(include); err != nil {
		return nil, err
	}
	if err := m.UpdateExclude(exclude); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMetrics attaches optional pipeline metrics. Safe to skip entirely.
func (m *Manager) SetMetrics(metrics *instrumentation.Metrics) {
	m.metrics = metrics
}

// UpdateInclude replaces the include pattern. An empty pattern clears it;
// a pattern that fails to compile leaves the previous state untouched.
func (m *Manager) UpdateInclude(pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = patterns{include: re, exclude: m.current.exclude}
	m.mu.Unlock()
	return nil
}

// UpdateExclude replaces the exclude pattern, with the same semantics as
// UpdateInclude.
func (m *Manager) UpdateExclude(pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = patterns{include: m.current.include, exclude: re}
	m.mu.Unlock()
	return nil
}

// Patterns returns the source text of the current pattern pair, empty
// strings meaning unset.
func (m *Manager) Patterns() (include, exclude string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current.include != nil {
		include = m.current.include.String()
	}
	if m.current.exclude != nil {
		exclude = m.current.exclude.String()
	}
	return include, exclude
}

// ShouldInclude decides whether an entry passes the current pattern pair:
// it must match the include pattern (when set) and not match the exclude
// pattern (when set). The decision sees one atomic snapshot of the pair.
func (m *Manager) ShouldInclude(entry tail.LogEntry) bool {
	m.mu.RLock()
	snapshot := m.current
	m.mu.RUnlock()

	if snapshot.include != nil && !snapshot.include.MatchString(entry.Message) {
		return false
	}
	if snapshot.exclude != nil && snapshot.exclude.MatchString(entry.Message) {
		return false
	}
	return true
}

// FilteredHistory re-applies the current patterns to the buffered history
// and returns the survivors, oldest first. This is the explicit
// retroactive operation; the forward stream is never re-filtered.
func (m *Manager) FilteredHistory() []tail.LogEntry {
	var filtered []tail.LogEntry
	for _, entry := range m.history.snapshot() {
		if m.ShouldInclude(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Run is the pipeline's filter stage: it records every entry in the
// history buffer, forwards the ones that pass, and exits when the input
// closes or the context is cancelled.
func (m *Manager) Run(ctx context.Context, in <-chan tail.LogEntry, out chan<- tail.LogEntry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-in:
			if !ok {
				return nil
			}

			m.history.add(entry)

			if !m.ShouldInclude(entry) {
				m.metrics.RecordLogEntry(ctx, instrumentation.EntryFiltered)
				continue
			}
			m.metrics.RecordLogEntry(ctx, instrumentation.EntryPassed)

			select {
			case out <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// compilePattern compiles a pattern, mapping "" to nil (no filtering).
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &RegexError{Pattern: pattern, Err: err}
	}
	return re, nil
}
