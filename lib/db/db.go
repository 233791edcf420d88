package db

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ValentinKolb/eKV/lib/db/util"
	"github.com/ValentinKolb/eKV/lib/writelog"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplCedar Implementation = "cedar"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeaturePut      Feature = 1 << iota // Support for Put operations
	FeatureGet                          // Support for Get operations
	FeatureDelete                       // Support for Delete operations
	FeatureExists                       // Support for Exists operations
	FeatureTTL                          // Support for expiring entries
	FeatureEncrypt                      // Support for obfuscated values
	FeatureCompress                     // Support for run-length reduced values
	FeatureCache                        // Support for a read cache
	FeaturePersist                      // Support for Persist and Load
	FeatureExport                       // Support for ExportAll and ImportAll
)

func (f Feature) String() string {
	switch f {
	case FeaturePut:
		return "Put"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureExists:
		return "Exists"
	case FeatureTTL:
		return "TTL"
	case FeatureEncrypt:
		return "Encrypt"
	case FeatureCompress:
		return "Compress"
	case FeatureCache:
		return "Cache"
	case FeaturePersist:
		return "Persist"
	case FeatureExport:
		return "Export"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Entry and Options
// --------------------------------------------------------------------------

// Options configure a single Put.
// The zero value stores the value as is and without expiry.
type Options struct {
	TTL        time.Duration `json:"ttl,omitempty"`        // 0 = never expires
	Encrypted  bool          `json:"encrypted,omitempty"`  // obfuscate the stored payload
	Compressed bool          `json:"compressed,omitempty"` // run-length reduce the stored payload
}

// MaxTTLSeconds is the largest ttl in seconds that fits a time.Duration
const MaxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

// TTLFromSeconds converts a ttl given in whole seconds, as used by import formats and the API.
// Values above MaxTTLSeconds are rejected with RetCInvalidArgument instead of overflowing.
func TTLFromSeconds(secs int64) (time.Duration, error) {
	if secs > MaxTTLSeconds || secs < -MaxTTLSeconds {
		return 0, NewError(RetCInvalidArgument, fmt.Sprintf("ttl %d exceeds %d seconds", secs, MaxTTLSeconds))
	}
	return time.Duration(secs) * time.Second, nil
}

// Entry is one stored record.
// Value holds the stored (possibly transformed) payload, not the logical value.
type Entry struct {
	Value      []byte    `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"` // zero = no expiry
	Encrypted  bool      `json:"encrypted"`
	Compressed bool      `json:"compressed"`
}

// Expired returns whether the entry is expired at the given time
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// RemainingTTL returns the whole seconds left until expiry (never negative).
// The boolean is false if the entry does not expire.
func (e Entry) RemainingTTL(now time.Time) (int64, bool) {
	if e.ExpiresAt.IsZero() {
		return 0, false
	}
	return max(0, int64(e.ExpiresAt.Sub(now)/time.Second)), true
}

// Clone returns a deep copy of the entry
func (e Entry) Clone() Entry {
	c := e
	if e.Value != nil {
		c.Value = make([]byte, len(e.Value))
		copy(c.Value, e.Value)
	}
	return c
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// ImportResult reports how many parsed records were found and how many were stored
type ImportResult struct {
	Attempted int `json:"attempted"`
	Applied   int `json:"applied"`
}

// Statistics is the monitoring surface of a database
type Statistics struct {
	TotalOps    uint64 `json:"total_ops"`
	PutOps      uint64 `json:"put_ops"`
	GetOps      uint64 `json:"get_ops"`
	DeleteOps   uint64 `json:"delete_ops"`
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`

	Latencies      []util.LatencySample `json:"latencies"`       // last N latencies, oldest first
	AvgLatency     time.Duration        `json:"avg_latency"`     // mean over Latencies
	LatencyStats   util.Stats           `json:"latency_stats"`   // distribution over Latencies (in µs)
	Throughput     float64              `json:"throughput"`      // ops/sec across the Latencies window
	ThroughputRate float64              `json:"throughput_rate"` // 1-minute moving rate (ops/sec)

	CacheSize     int `json:"cache_size"`
	CacheCapacity int `json:"cache_capacity"`
	EncryptedKeys int `json:"encrypted_keys"`
	Keys          int `json:"keys"`
	StorageBytes  int `json:"storage_bytes"` // estimated size of all keys and stored values
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the interface of an embeddable key-value engine.
// Keys are non-empty strings, values are opaque bytes that can be stored with an expiry
// and optional reversible transforms. Implementations advertise what they support with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or fully replaces the entry for key.
	// It returns an Error with code RetCInvalidArgument if the key is empty or the value is nil.
	// The returned duration is the observed latency of the operation.
	Put(key string, value []byte, opts Options) (latency time.Duration, err error)

	// PutEncrypted is Put with Options.Encrypted forced to true.
	PutEncrypted(key string, value []byte, ttl time.Duration) (latency time.Duration, err error)

	// Delete removes the key. The return value reports whether the key existed.
	Delete(key string) (existed bool)

	// Clear removes all keys. The write log is kept.
	Clear()

	// Restore writes a raw entry without running the codec and without logging.
	// It is used to undo mutations.
	Restore(key string, entry Entry)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns the logical value for key. Expired keys are deleted and reported as not found.
	Get(key string) (value []byte, found bool)

	// GetDecrypted reads the stored entry directly (no cache, no expiry check)
	// and only reverses the obfuscation layer.
	GetDecrypted(key string) (value []byte, found bool)

	// Exists reports whether key is present and not expired. Expired keys are deleted.
	Exists(key string) bool

	// Lookup returns a copy of the raw entry without any side effect.
	Lookup(key string) (entry Entry, found bool)

	// Range calls fn for every stored entry (including expired but not yet collected ones)
	// until fn returns false. The entries passed to fn must not be modified.
	Range(fn func(key string, entry Entry) bool)

	// Len returns the number of stored entries.
	Len() int

	// EncryptedKeys returns the keys currently stored with obfuscation.
	EncryptedKeys() []string

	// Log returns a copy of the write log, oldest first.
	Log() []writelog.Record

	// --------------------------------------------------------------------------
	// Snapshot Operations
	// --------------------------------------------------------------------------

	// ExportAll serializes all logical values in the given format (structured, delimited, plain).
	ExportAll(format string) ([]byte, error)

	// ImportAll parses data and stores every complete record via Put.
	// A parse error fails the whole call without any effect.
	ImportAll(data []byte, format string) (ImportResult, error)

	// Persist writes the full state to the configured blob store.
	Persist(ctx context.Context) error

	// Load replaces the state with the content of the configured blob store.
	// A missing or corrupt blob results in an empty database.
	Load(ctx context.Context) error

	// --------------------------------------------------------------------------
	// Statistics and Feature Support
	// --------------------------------------------------------------------------

	// Stats returns the current statistics.
	Stats() Statistics

	// GetInfo returns information about the database.
	GetInfo() DatabaseInfo

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// Close stops background work and flushes pending persistence.
	Close() (err error)
}
