// Package query implements read-only scans over the key space of a database:
// prefix and regular expression matching, inclusive key ranges and a ranking of keys
// by stored value size. Advanced dispatches by a string tag and keeps a history of
// the executed queries.
//
// Results are always sorted by key (KeysBySize: by size first), independent of
// the enumeration order of the underlying store.
package query
