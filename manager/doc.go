// Package manager keeps a bounded hot set of open shard stores. Shards are
// admitted through a weighted semaphore, pinned by reference-counted
// handles, and evicted least-recently-used when idle. Callers that find
// every slot busy wait in a bounded queue; beyond the queue depth admission
// fails fast so overload surfaces as an error instead of unbounded blocking.
package manager
