// Package cmd implements the command-line interface of eKV. It provides a
// hierarchical command structure for running the HTTP admin server and for
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (set, get, query, batch, export, ...)
//   - serve: Command for starting and configuring the eKV server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set via an environment variable EKV_<FLAG> (e.g. EKV_CACHE_CAPACITY=500),
// .env and .env.local files in the working directory are loaded on startup.
//
// See ekv -help for a list of all commands.
package cmd
