// Package snapshot moves the full state of an engine in and out of the process.
//
// Two independent paths exist:
//
//   - Persistence: a Blob (all raw entries, the set of obfuscated keys and the write log tail)
//     is encoded by a Serializer and written as one named blob to a BlobStore.
//     Three serializers are available: json, gob and a compact binary format with a magic
//     header and a version byte. MemoryBlobStore keeps blobs in memory, FileBlobStore
//     writes one file per blob into a directory with an atomic rename.
//
//   - Export / Import: the logical values of all keys are written in a human-readable format
//     (structured = JSON array, delimited = quoted CSV with header, plain = "key = value" lines)
//     and parsed back into ImportRecords. Parse either succeeds for the whole input or fails
//     without returning partial results.
//
// The package does not know about engines. Engines build the Blob and ExportRecords themselves
// and apply ImportRecords through their own write path.
package snapshot
