// Package db provides a standardized interface for embeddable key-value engines.
// It defines the KVDB interface, the stored Entry type, the per-call Options and
// the shared error and statistics types.
//
// Key Components:
//
//   - KVDB Interface: The core interface that all engine implementations must satisfy.
//     It provides methods for basic operations (Put, Get, Exists, Delete),
//     obfuscation helpers (PutEncrypted, GetDecrypted), raw access (Lookup, Range,
//     Restore), snapshot operations (ExportAll, ImportAll, Persist, Load) and
//     monitoring (Stats, GetInfo).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Error: A code + message error type. Not-found is never an error, it is
//     reported through boolean return values.
//
// Note on Expiry:
//   - An entry with a non-zero ExpiresAt is expired once the current time reaches it.
//   - Get() and Exists() must never report an expired entry. Implementations delete such
//     entries lazily when they are read and additionally collect them in the background.
//   - Range() and everything built on it (queries, export) may still see expired entries
//     that have not been collected yet.
//
// Related Packages:
//
// The engines/cedar package (github.com/ValentinKolb/eKV/lib/db/engines/cedar) provides the
// in-memory implementation of the KVDB interface with a read cache, a write log, a background
// expiry collector and write-behind snapshot persistence.
//
// The testing package (github.com/ValentinKolb/eKV/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the KVDB interface.
package db
