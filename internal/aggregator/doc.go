// Package aggregator consumes raw partial/final recognition events and
// produces a deduplicated, ordered, memory-bounded event sequence. It
// implements per-segment state tracking with LRU eviction, idempotent
// finalization, and reconnect snapshots.
package aggregator
