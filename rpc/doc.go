// Package rpc exposes an embedded eKV engine over HTTP and provides the
// matching client. It only calls the public operations of the engine.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures shared by server, client and CLI, and the
//     logger factory with level handling.
//
//   - server: The HTTP admin API (key-value routes, queries, batches, export and
//     import, statistics, write log and Prometheus metrics).
//
//   - client: An HTTP client for the admin API with round-robin load balancing
//     over several endpoints and retries.
package rpc
