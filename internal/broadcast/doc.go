// Package broadcast provides the log history buffer and its fan-out to
// concurrently connected subscribers.
//
// This package is internal to tailgate. It owns the only shared mutable state
// of the frontend: a bounded history of [Record] values and the set of
// registered subscriber queues. Both are guarded by a single mutex so that
// publishing, subscribing, and unsubscribing appear atomic relative to each
// other.
//
// The main components are:
//
//   - [Broadcaster]: bounded history plus subscriber set with Publish,
//     Subscribe, and Unsubscribe
//   - [Queue]: unbounded per-subscriber FIFO with a blocking, context-aware Pop
//   - [Record]: immutable rich-text log line
//
// Users of the tailgate library should not need to interact with this
// package directly. The record types are re-exported by the root package.
package broadcast
