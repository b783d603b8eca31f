// Package feed is the follower event aggregation engine.
//
// known.go tracks which followers have already been announced and reports the
// newly appeared ones on each reconcile.
//
// queue.go holds the two FIFO event queues (real and test). Every entry carries
// an explicit enqueue time; eviction pops from the front only, while the front
// entry is older than the TTL (30s by default).
//
// inject.go manufactures synthetic "test_<millis>_<uuid>" followers for
// previewing the widget.
//
// combine.go merges test queue, real queue and the raw poll result into one
// list with no duplicate userIdHash.
//
// aggregator.go owns one instance of each of the above. Aggregator.Snapshot is
// the per-poll entry point: fetch (best effort), reconcile+enqueue under a
// single ingest lock, evict, combine.
package feed
