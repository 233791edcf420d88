// Package batch applies an ordered list of PUT, GET, DELETE and EXISTS operations to a
// db.KVDB and collects one result per operation.
//
// The first failing operation (empty key, unknown operation, rejected put) stops the
// batch. By default the operations applied before it are kept. With WithRollback the
// executor records the raw entry of every key before its first mutation and writes
// these entries back (or deletes keys that did not exist) when the batch fails.
package batch
