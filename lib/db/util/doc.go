// Package util provides helper components for engine implementations
// that satisfy the db.KVDB interface.
//
// The package contains:
//   - statistics: a rolling LatencyWindow, descriptive Stats and a SizeHistogram for value sizes
//   - mapheap: a key-addressable priority queue used to schedule expiry deadlines
//
// None of the types know about a concrete engine, they are plain building blocks.
package util
