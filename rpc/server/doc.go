// Package server exposes a db.KVDB over an HTTP admin API.
//
// Routes:
//
//	GET    /kv/{key}          raw value (?decrypted=true reads via GetDecrypted), 404 if missing
//	HEAD   /kv/{key}          200 if the key exists, 404 otherwise
//	PUT    /kv/{key}          store the body (?ttl=<seconds>&encrypted=true&compressed=true)
//	DELETE /kv/{key}          {"existed": bool}
//	GET    /query             ?kind=prefix|regex|range|size&pattern=...
//	GET    /query/history     executed queries
//	POST   /batch             JSON array of batch.Operation, 409 if the batch failed
//	GET    /export            ?format=structured|delimited|plain
//	POST   /import            ?format=..., body in that format
//	POST   /persist           write a snapshot now
//	POST   /clear             remove all keys
//	GET    /stats             db.Statistics
//	GET    /info              db.DatabaseInfo
//	GET    /log               write log records
//	GET    /metrics           Prometheus text format (database, http and process metrics)
//
// Errors are returned as {"error": "..."} with a status derived from the db.RetCode:
// invalid arguments and parse errors map to 400, unsupported operations to 501 and
// persistence failures to 503.
//
// Every request is counted and timed per route in a VictoriaMetrics set, and logged
// at debug level.
package server
