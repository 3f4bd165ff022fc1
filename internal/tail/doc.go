// Package tail implements the log-tailing pipeline core: a polling
// discovery loop that tracks the selected pod set, one stream task per
// discovered container with retry on transient failures, and the
// default-container heuristic used when the operator names no container.
//
// Entries flow from stream tasks into a shared bounded channel; synthetic
// "system" entries (pod discovered, stream retrying) share the same type
// and are sent best-effort so they can never stall a stream.
package tail
