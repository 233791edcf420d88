package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/eKV/lib/cache"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
	"github.com/ValentinKolb/eKV/lib/snapshot"
)

// --------------------------------------------------------------------------
// Engine configuration struct
// --------------------------------------------------------------------------

// EngineConfig holds all parameters of an embedded engine
type EngineConfig struct {
	// Cache
	CacheCapacity int
	CachePolicy   string

	// Write log and statistics
	LogCapacity   int
	LatencyWindow int

	// Codec
	CodecKey string

	// TTL collector
	GCInterval time.Duration

	// Persistence (empty DataDir = in-memory snapshots only)
	DataDir         string
	BlobName        string
	Serializer      string
	PersistDebounce time.Duration
	PersistRetries  int
}

// ToDBOptions converts the EngineConfig to cedar options
func (c *EngineConfig) ToDBOptions() (*cedar.DBOptions, error) {
	opts := cedar.DefaultOptions()

	policy, err := cache.ParsePolicy(c.CachePolicy)
	if err != nil {
		return nil, err
	}
	opts.CachePolicy = policy

	s, err := snapshot.ParseSerializer(c.Serializer)
	if err != nil {
		return nil, err
	}
	opts.Serializer = s

	if c.DataDir != "" {
		store, err := snapshot.NewFileBlobStore(c.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data dir: %w", err)
		}
		opts.BlobStore = store
	}

	if c.CacheCapacity > 0 {
		opts.CacheCapacity = c.CacheCapacity
	}
	if c.LogCapacity > 0 {
		opts.LogCapacity = c.LogCapacity
	}
	if c.LatencyWindow > 0 {
		opts.LatencyWindow = c.LatencyWindow
	}
	if c.CodecKey != "" {
		opts.CodecKey = c.CodecKey
	}
	if c.GCInterval > 0 {
		opts.GCInterval = c.GCInterval
	}
	if c.BlobName != "" {
		opts.BlobName = c.BlobName
	}
	if c.PersistDebounce > 0 {
		opts.PersistDebounce = c.PersistDebounce
	}
	if c.PersistRetries > 0 {
		opts.PersistRetries = c.PersistRetries
	}

	return opts, nil
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the HTTP server
type ServerConfig struct {
	Engine EngineConfig

	// HTTP api settings
	Endpoint string

	// Batch and query behaviour
	BatchRollback bool
	HistoryLimit  int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDefault := func(value, def string) string {
		if value == "" || value == "0" || value == "0s" {
			return def
		}
		return value
	}

	// HTTP settings
	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)
	addField("Batch Rollback", strconv.FormatBool(c.BatchRollback))
	addField("Query History Limit", orDefault(strconv.Itoa(c.HistoryLimit), "unbounded"))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Engine
	addSection("Engine")
	addField("Cache", fmt.Sprintf("%s, %s entries",
		orDefault(c.Engine.CachePolicy, string(cache.PolicyFIFO)),
		orDefault(strconv.Itoa(c.Engine.CacheCapacity), "default")))
	addField("Write Log Capacity", orDefault(strconv.Itoa(c.Engine.LogCapacity), "default"))
	addField("Latency Window", orDefault(strconv.Itoa(c.Engine.LatencyWindow), "default"))
	addField("GC Interval", orDefault(c.Engine.GCInterval.String(), "default"))
	if c.Engine.CodecKey != "" {
		addField("Codec Key", "(custom)")
	} else {
		addField("Codec Key", "(default)")
	}

	// Persistence
	addSection("Persistence")
	addField("Data Directory", orDefault(c.Engine.DataDir, "(in-memory)"))
	addField("Blob Name", orDefault(c.Engine.BlobName, "default"))
	addField("Serializer", orDefault(c.Engine.Serializer, "binary"))
	addField("Debounce", orDefault(c.Engine.PersistDebounce.String(), "default"))
	addField("Retries", orDefault(strconv.Itoa(c.Engine.PersistRetries), "default"))

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
