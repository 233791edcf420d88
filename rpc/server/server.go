package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ValentinKolb/eKV/lib/batch"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/query"
	"github.com/ValentinKolb/eKV/lib/snapshot"
	"github.com/ValentinKolb/eKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

const (
	maxBodyBytes    = 64 << 20 // Upper bound for PUT, batch and import bodies
	shutdownTimeout = 10 * time.Second
)

// PrometheusWriter is implemented by databases that expose their own metrics
type PrometheusWriter interface {
	WritePrometheus(w io.Writer)
}

// Server exposes a database over an HTTP admin API
//
// Usage:
//
//	database := cedar.NewCedarDB(opts)
//	s := server.NewServer(config, database)
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
type Server struct {
	config   common.ServerConfig
	database db.KVDB
	queries  *query.Engine
	batches  *batch.Executor
	metrics  *metrics.Set // http request metrics
	handler  http.Handler
}

// NewServer creates a server for database. The server does not take ownership of the
// database until Serve is called.
func NewServer(config common.ServerConfig, database db.KVDB) *Server {
	var batchOpts []batch.Option
	if config.BatchRollback {
		batchOpts = append(batchOpts, batch.WithRollback())
	}

	s := &Server{
		config:   config,
		database: database,
		queries:  query.New(database, query.WithHistoryLimit(config.HistoryLimit)),
		batches:  batch.New(database, batchOpts...),
		metrics:  metrics.NewSet(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.instrument(h))
	}

	// key-value operations
	handle("GET /kv/{key}", s.handleGet)
	handle("HEAD /kv/{key}", s.handleExists)
	handle("PUT /kv/{key}", s.handlePut)
	handle("DELETE /kv/{key}", s.handleDelete)

	// queries and batches
	handle("GET /query", s.handleQuery)
	handle("GET /query/history", s.handleQueryHistory)
	handle("POST /batch", s.handleBatch)

	// snapshots
	handle("GET /export", s.handleExport)
	handle("POST /import", s.handleImport)
	handle("POST /persist", s.handlePersist)
	handle("POST /clear", s.handleClear)

	// monitoring
	handle("GET /stats", s.handleStats)
	handle("GET /info", s.handleInfo)
	handle("GET /log", s.handleLog)
	handle("GET /metrics", s.handleMetrics)

	return mux
}

// Serve listens on the configured endpoint until SIGINT or SIGTERM is received.
// On shutdown the database is closed, which writes the final snapshot.
func (s *Server) Serve() error {
	httpServer := &http.Server{
		Addr:              s.config.Endpoint,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("starting HTTP server on %s", s.config.Endpoint)
		errCh <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		Logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		serveErr = httpServer.Shutdown(shutdownCtx)
		cancel()
	}

	if err := s.database.Close(); err != nil {
		Logger.Errorf("failed to close database: %v", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

// --------------------------------------------------------------------------
// Key-Value Handlers
// --------------------------------------------------------------------------

// handleGet returns the raw value, ?decrypted=true reads via GetDecrypted
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var (
		value []byte
		found bool
	)
	if boolParam(r, "decrypted") {
		value, found = s.database.GetDecrypted(key)
	} else {
		value, found = s.database.Get(key)
	}

	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("key %q not found", key))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(value)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	if s.database.Exists(r.PathValue("key")) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

// handlePut stores the request body. Options: ?ttl=<seconds>&encrypted=true&compressed=true
// An empty body stores the empty value, a body is never absent.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var opts db.Options
	if ttl := r.URL.Query().Get("ttl"); ttl != "" {
		secs, err := strconv.ParseInt(ttl, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ttl %q", ttl))
			return
		}
		if opts.TTL, err = db.TTLFromSeconds(secs); err != nil {
			writeDBError(w, err)
			return
		}
	}
	opts.Encrypted = boolParam(r, "encrypted")
	opts.Compressed = boolParam(r, "compressed")

	value, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	latency, err := s.database.Put(r.PathValue("key"), value, opts)
	if err != nil {
		writeDBError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latency": latency})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	existed := s.database.Delete(r.PathValue("key"))
	writeJSON(w, http.StatusOK, map[string]any{"existed": existed})
}

// --------------------------------------------------------------------------
// Query and Batch Handlers
// --------------------------------------------------------------------------

// handleQuery runs ?kind=prefix|regex|range|size&pattern=...
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing query parameter kind"))
		return
	}

	results, err := s.queries.Advanced(query.Kind(kind), r.URL.Query().Get("pattern"))
	if err != nil {
		writeDBError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queries.History())
}

// handleBatch applies a JSON array of operations. A failed batch is answered with 409.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var ops []batch.Operation
	if err := json.Unmarshal(body, &ops); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid batch: %w", err))
		return
	}

	resp := s.batches.Execute(ops)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

// --------------------------------------------------------------------------
// Snapshot Handlers
// --------------------------------------------------------------------------

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "structured"
	}

	data, err := s.database.ExportAll(format)
	if err != nil {
		writeDBError(w, err)
		return
	}

	// ExportAll accepted the format, so it parses
	parsed, _ := snapshot.ParseFormat(format)
	switch parsed {
	case snapshot.FormatStructured:
		w.Header().Set("Content-Type", "application/json")
	case snapshot.FormatDelimited:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "structured"
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.database.ImportAll(body, format)
	if err != nil {
		writeDBError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if err := s.database.Persist(r.Context()); err != nil {
		writeDBError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.database.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Monitoring Handlers
// --------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.database.Stats())
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.database.GetInfo())
}

func (s *Server) handleLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.database.Log())
}

// handleMetrics writes database, http and process metrics in Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if pw, ok := s.database.(PrometheusWriter); ok {
		pw.WritePrometheus(w)
	}
	s.metrics.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Errorf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDBError maps the return code of a db.Error to an HTTP status
func writeDBError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var dbErr *db.Error
	if errors.As(err, &dbErr) {
		switch dbErr.Code {
		case db.RetCInvalidArgument, db.RetCImportParse:
			status = http.StatusBadRequest
		case db.RetCUnsupportedOperation:
			status = http.StatusNotImplemented
		case db.RetCPersistence:
			status = http.StatusServiceUnavailable
		}
	}
	writeError(w, status, err)
}
