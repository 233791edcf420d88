// Package common provides the configuration structures and the logging setup
// shared by the eKV server, client and command line interface.
//
// Key Components:
//
//   - EngineConfig: Parameters of an embedded engine (cache, write log, codec key,
//     ttl collector, persistence). ToDBOptions converts it to cedar.DBOptions and
//     opens the data directory as a snapshot.FileBlobStore.
//
//   - ServerConfig: EngineConfig plus the HTTP endpoint, batch and query behaviour
//     and the log level.
//
//   - ClientConfig: Endpoints, timeout and retry count of the HTTP client.
//
//   - Logger: Custom implementation of dragonboat's logger.ILogger with a uniform
//     "LEVEL | name | message" format. InitLoggers installs it and sets the level of
//     every eKV logger.
package common
