// Package filter implements the pipeline's dynamic filter stage: an
// include/exclude regex pair that can be swapped at runtime, applied to
// the forward stream, plus a bounded history of recent entries that can be
// re-filtered retroactively on demand.
package filter
