// Package cedar implements the embeddable key-value engine behind eKV. It provides
// a complete implementation of the db.KVDB interface.
//
// Key Components:
//
//   - cedarImpl: The central database structure. The primary store is an xsync.MapOf,
//     every mutation additionally updates a bounded read cache, a write log, the set of
//     obfuscated keys and the ttl schedule. These secondary structures are guarded by a
//     single mutex, so a Put is atomic with respect to all of them.
//
//   - Codec: Values can be stored obfuscated (xor with a repeating key, then base32)
//     and run-length reduced. The flags are kept per entry, Get always returns the
//     original bytes.
//
//   - TTL collector: Deadlines are kept in a util.MapHeap with one deadline per key.
//     Re-putting a key replaces its deadline, so a renewed ttl is never cut short by
//     the old one. A goroutine removes due keys every GCInterval, Get and Exists
//     additionally delete expired keys they encounter (lazy expiry).
//
//   - Write-behind persistence: Every mutation marks the state dirty and wakes the
//     persister goroutine, which waits PersistDebounce and then writes a full snapshot
//     (store, encrypted key set and write log) to the configured snapshot.BlobStore.
//     Failed writes are retried with a linear backoff. Close writes a final snapshot
//     if there are unsaved changes. Load never fails on a missing or corrupt blob, the
//     engine starts empty instead.
//
//   - Metrics: Operation counters and latency histograms are kept in a private
//     VictoriaMetrics set (see WritePrometheus), the 1-minute throughput and
//     latency percentiles come from go-metrics.
//
// The write log is diagnostic. It keeps the last LogCapacity mutations and is persisted
// with the snapshot, but it is never replayed.
package cedar
