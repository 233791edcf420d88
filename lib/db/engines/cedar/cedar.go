package cedar

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/eKV/lib/cache"
	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar/internal"
	"github.com/ValentinKolb/eKV/lib/db/util"
	"github.com/ValentinKolb/eKV/lib/snapshot"
	"github.com/ValentinKolb/eKV/lib/writelog"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultGCInterval      = 100 * time.Millisecond // Default interval between ttl collector runs
	defaultBlobName        = "ekv.snapshot"         // Default name of the snapshot blob
	defaultPersistDebounce = 50 * time.Millisecond  // Default delay between a mutation and its snapshot write
	defaultPersistRetries  = 3                      // Default number of snapshot write attempts
	defaultLatencyWindow   = 100                    // Default number of latency samples kept
	persistBackoff         = 100 * time.Millisecond // Backoff step between snapshot write attempts
)

// --------------------------------------------------------------------------
// Core Cedar database structure
// --------------------------------------------------------------------------

// cedarImpl implements db.KVDB with a concurrent map, a read cache, a bounded write log
// and a write-behind snapshot.
//
// Thread-safety: all mutations and every access to cache, write log, encrypted key set and ttl
// schedule are serialized by mutex. The primary map can be ranged without the mutex.
type cedarImpl struct {
	mutex     sync.Mutex
	data      *xsync.MapOf[string, db.Entry] // primary store
	cache     *cache.Cache
	log       *writelog.Log
	encrypted map[string]struct{}      // keys with Entry.Encrypted
	schedule  *util.MapHeap[string]    // ttl deadlines (unix nanos)
	codec     *codec.Pipeline
	clock     func() time.Time
	metrics   *internal.Metrics
	sizes     *util.SizeHistogram // stored value sizes, sampled on put

	// ttl collector
	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     chan struct{}

	// write-behind persistence
	blobs           snapshot.BlobStore
	blobName        string
	serializer      snapshot.Serializer
	persistDebounce time.Duration
	persistRetries  int
	persistSignal   chan struct{}
	persistStop     chan struct{}
	persistDone     chan struct{}
	persistMu       sync.Mutex // one snapshot build and write at a time
	dirty           atomic.Bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// DBOptions configures the cedarImpl behavior during initialization
type DBOptions struct {
	CacheCapacity   int                 // Read cache capacity (0 = cache.DefaultCapacity)
	CachePolicy     cache.Policy        // Eviction policy ("" = FIFO)
	LogCapacity     int                 // Write log capacity (0 = writelog.DefaultCapacity)
	LatencyWindow   int                 // Number of latency samples kept for statistics
	CodecKey        string              // Obfuscation key ("" = codec.DefaultKey)
	GCInterval      time.Duration       // Time between ttl collector runs
	Clock           func() time.Time    // Time source for timestamps and expiry (nil = time.Now)
	BlobStore       snapshot.BlobStore  // Persistence medium (nil = persistence disabled)
	BlobName        string              // Name of the snapshot blob
	Serializer      snapshot.Serializer // Blob encoding (nil = binary)
	PersistDebounce time.Duration       // Delay before a scheduled snapshot write
	PersistRetries  int                 // Attempts per scheduled snapshot write
}

// DefaultOptions returns the default cedarImpl options.
// Snapshots are kept in memory, use a snapshot.FileBlobStore for durability.
func DefaultOptions() *DBOptions {
	return &DBOptions{
		CacheCapacity:   cache.DefaultCapacity,
		CachePolicy:     cache.PolicyFIFO,
		LogCapacity:     writelog.DefaultCapacity,
		LatencyWindow:   defaultLatencyWindow,
		CodecKey:        codec.DefaultKey,
		GCInterval:      defaultGCInterval,
		Clock:           time.Now,
		BlobStore:       snapshot.NewMemoryBlobStore(),
		BlobName:        defaultBlobName,
		Serializer:      snapshot.NewBinarySerializer(),
		PersistDebounce: defaultPersistDebounce,
		PersistRetries:  defaultPersistRetries,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewCedarDB creates a new CedarDB instance with the specified options (optional).
// The database starts empty, call Load to restore the last snapshot.
func NewCedarDB(opts *DBOptions) db.KVDB {
	return newCedar(opts)
}

func newCedar(opts *DBOptions) *cedarImpl {
	if opts == nil {
		opts = DefaultOptions()
	}

	// fill unset options with defaults
	o := *opts
	if o.LatencyWindow <= 0 {
		o.LatencyWindow = defaultLatencyWindow
	}
	if o.GCInterval <= 0 {
		o.GCInterval = defaultGCInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.BlobName == "" {
		o.BlobName = defaultBlobName
	}
	if o.Serializer == nil {
		o.Serializer = snapshot.NewBinarySerializer()
	}
	if o.PersistDebounce < 0 {
		o.PersistDebounce = 0
	}
	if o.PersistRetries <= 0 {
		o.PersistRetries = defaultPersistRetries
	}

	c := &cedarImpl{
		data:            xsync.NewMapOf[string, db.Entry](),
		cache:           cache.New(o.CacheCapacity, o.CachePolicy),
		log:             writelog.New(o.LogCapacity),
		encrypted:       make(map[string]struct{}),
		schedule:        util.NewMapHeap[string](),
		codec:           codec.New(o.CodecKey),
		clock:           o.Clock,
		metrics:         internal.NewMetrics(o.LatencyWindow),
		sizes:           util.NewSizeHistogram(),
		gcInterval:      o.GCInterval,
		gcStop:          make(chan struct{}),
		gcDone:          make(chan struct{}),
		blobs:           o.BlobStore,
		blobName:        o.BlobName,
		serializer:      o.Serializer,
		persistDebounce: o.PersistDebounce,
		persistRetries:  o.PersistRetries,
		persistSignal:   make(chan struct{}, 1),
		persistStop:     make(chan struct{}),
		persistDone:     make(chan struct{}),
	}

	c.registerGauges()

	// start background work
	go c.garbageCollector()
	if c.blobs != nil {
		go c.persister()
	} else {
		close(c.persistDone)
	}

	return c
}

// registerGauges exposes the state sizes as prometheus gauges
func (c *cedarImpl) registerGauges() {
	c.metrics.Gauge(`ekv_keys`, func() float64 { return float64(c.data.Size()) })
	c.metrics.Gauge(`ekv_cache_size`, func() float64 {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return float64(c.cache.Len())
	})
	c.metrics.Gauge(`ekv_encrypted_keys`, func() float64 {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return float64(len(c.encrypted))
	})
	c.metrics.Gauge(`ekv_scheduled_expiries`, func() float64 {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return float64(c.schedule.Len())
	})
	c.metrics.Gauge(`ekv_write_log_records`, func() float64 {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return float64(c.log.Len())
	})
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Put encodes value and stores it under key, replacing any previous entry.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Put(key string, value []byte, opts db.Options) (time.Duration, error) {
	start := time.Now()

	if key == "" {
		return 0, db.NewError(db.RetCInvalidArgument, "key must not be empty")
	}
	if value == nil {
		return 0, db.NewError(db.RetCInvalidArgument, "value must not be nil")
	}
	if opts.TTL < 0 {
		return 0, db.NewError(db.RetCInvalidArgument, "ttl must not be negative")
	}

	stored := c.codec.Encode(value, opts.Encrypted, opts.Compressed)

	c.mutex.Lock()
	now := c.clock()
	entry := db.Entry{
		Value:      stored,
		CreatedAt:  now,
		UpdatedAt:  now,
		Encrypted:  opts.Encrypted,
		Compressed: opts.Compressed,
	}
	if opts.TTL > 0 {
		entry.ExpiresAt = now.Add(opts.TTL)
	}
	if old, loaded := c.data.Load(key); loaded {
		entry.CreatedAt = old.CreatedAt
	}

	c.storeLocked(key, entry)
	c.cache.Insert(key, entry)
	c.log.Append(writelog.Record{
		Timestamp: now,
		Op:        writelog.OpPut,
		Key:       key,
		Value:     bytes.Clone(value),
		Options: writelog.Options{
			TTL:        opts.TTL,
			Encrypted:  opts.Encrypted,
			Compressed: opts.Compressed,
		},
	})
	c.mutex.Unlock()

	c.sizes.AddSample(len(stored))
	c.schedulePersist()

	latency := time.Since(start)
	c.metrics.Observe(internal.OpPut, start, latency)
	return latency, nil
}

// PutEncrypted is Put with obfuscation forced on
func (c *cedarImpl) PutEncrypted(key string, value []byte, ttl time.Duration) (time.Duration, error) {
	return c.Put(key, value, db.Options{TTL: ttl, Encrypted: true})
}

// Delete removes key and reports whether it existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Delete(key string) bool {
	start := time.Now()

	c.mutex.Lock()
	existed := c.deleteLocked(key)
	c.mutex.Unlock()

	if existed {
		c.schedulePersist()
	}

	c.metrics.Observe(internal.OpDelete, start, time.Since(start))
	return existed
}

// Clear removes all keys. The write log is kept.
func (c *cedarImpl) Clear() {
	c.mutex.Lock()
	c.data.Clear()
	c.cache.Clear()
	clear(c.encrypted)
	c.schedule.Clear()
	c.mutex.Unlock()

	c.schedulePersist()
}

// Restore writes a raw entry without encoding and without a log record
func (c *cedarImpl) Restore(key string, entry db.Entry) {
	if key == "" {
		return
	}
	entry = entry.Clone()

	c.mutex.Lock()
	c.storeLocked(key, entry)
	c.cache.Invalidate(key)
	c.mutex.Unlock()

	c.schedulePersist()
}

// storeLocked writes entry to the store and keeps the encrypted key set and the ttl schedule in sync.
// The caller must hold the mutex.
func (c *cedarImpl) storeLocked(key string, entry db.Entry) {
	c.data.Store(key, entry)

	if entry.Encrypted {
		c.encrypted[key] = struct{}{}
	} else {
		delete(c.encrypted, key)
	}

	// rescheduling replaces the old deadline, so a renewed ttl is never cut short
	if entry.ExpiresAt.IsZero() {
		c.schedule.RemoveByKey(key)
	} else {
		c.schedule.AddItem(key, entry.ExpiresAt.UnixNano())
	}
}

// deleteLocked removes key from all structures and logs the deletion if the key existed.
// The caller must hold the mutex.
func (c *cedarImpl) deleteLocked(key string) bool {
	_, existed := c.data.LoadAndDelete(key)
	c.cache.Invalidate(key)
	delete(c.encrypted, key)
	c.schedule.RemoveByKey(key)

	if existed {
		c.log.Append(writelog.Record{
			Timestamp: c.clock(),
			Op:        writelog.OpDelete,
			Key:       key,
		})
	}
	return existed
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get returns the decoded value for key.
// Expired keys are deleted and reported as missing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Get(key string) ([]byte, bool) {
	start := time.Now()
	defer func() { c.metrics.Observe(internal.OpGet, start, time.Since(start)) }()

	entry, ok := c.lookupLive(key)
	if !ok {
		return nil, false
	}

	value, err := c.codec.Decode(entry.Value, entry.Encrypted, entry.Compressed)
	if err != nil {
		log.Warningf("could not decode value of key %q: %v", key, err)
		return nil, false
	}
	return value, true
}

// lookupLive returns the live entry for key, consulting the cache first
func (c *cedarImpl) lookupLive(key string) (db.Entry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, hit := c.cache.Lookup(key)
	if hit {
		c.metrics.CacheHits.Inc()
	} else {
		c.metrics.CacheMisses.Inc()
		var found bool
		if entry, found = c.data.Load(key); !found {
			return db.Entry{}, false
		}
	}

	// lazy expiry
	if entry.Expired(c.clock()) {
		c.expireLocked(key)
		return db.Entry{}, false
	}

	if !hit {
		c.cache.Insert(key, entry)
	}
	return entry, true
}

// expireLocked deletes an expired key. The caller must hold the mutex.
func (c *cedarImpl) expireLocked(key string) {
	if c.deleteLocked(key) {
		c.metrics.Expired.Inc()
		c.schedulePersist()
	}
}

// GetDecrypted reads the stored entry directly, without cache and expiry check,
// and reverses only the obfuscation layer. Entries stored without obfuscation are
// returned as stored. Compressed entries are not decompressed on this path.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetDecrypted(key string) ([]byte, bool) {
	start := time.Now()
	defer func() { c.metrics.Observe(internal.OpGet, start, time.Since(start)) }()

	entry, found := c.data.Load(key)
	if !found {
		return nil, false
	}
	if !entry.Encrypted {
		return bytes.Clone(entry.Value), true
	}

	value, err := c.codec.Decrypt(entry.Value)
	if err != nil {
		log.Warningf("could not decrypt value of key %q: %v", key, err)
		return nil, false
	}
	return value, true
}

// Exists reports whether key is present and not expired. Expired keys are deleted.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Exists(key string) bool {
	start := time.Now()
	defer func() { c.metrics.Observe(internal.OpExists, start, time.Since(start)) }()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, found := c.data.Load(key)
	if !found {
		return false
	}
	if entry.Expired(c.clock()) {
		c.expireLocked(key)
		return false
	}
	return true
}

// Lookup returns a copy of the raw entry without any side effect
func (c *cedarImpl) Lookup(key string) (db.Entry, bool) {
	entry, found := c.data.Load(key)
	if !found {
		return db.Entry{}, false
	}
	return entry.Clone(), true
}

// Range calls fn for every stored entry until fn returns false
func (c *cedarImpl) Range(fn func(key string, entry db.Entry) bool) {
	c.data.Range(fn)
}

// Len returns the number of stored entries
func (c *cedarImpl) Len() int {
	return c.data.Size()
}

// EncryptedKeys returns the obfuscated keys in ascending order
func (c *cedarImpl) EncryptedKeys() []string {
	c.mutex.Lock()
	keys := make([]string, 0, len(c.encrypted))
	for k := range c.encrypted {
		keys = append(keys, k)
	}
	c.mutex.Unlock()

	sort.Strings(keys)
	return keys
}

// Log returns a copy of the write log, oldest first
func (c *cedarImpl) Log() []writelog.Record {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.log.Records()
}

// CacheKeys returns the cached keys in eviction order (first evicted first)
func (c *cedarImpl) CacheKeys() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cache.Keys()
}

// --------------------------------------------------------------------------
// Statistics and Feature Support
// --------------------------------------------------------------------------

// Stats returns the current statistics
func (c *cedarImpl) Stats() db.Statistics {
	samples := c.metrics.Samples()

	c.mutex.Lock()
	cacheSize := c.cache.Len()
	cacheCap := c.cache.Cap()
	encrypted := len(c.encrypted)
	c.mutex.Unlock()

	keys, storageBytes := 0, 0
	c.data.Range(func(key string, entry db.Entry) bool {
		keys++
		storageBytes += len(key) + len(entry.Value)
		return true
	})

	return db.Statistics{
		TotalOps:       c.metrics.Total(),
		PutOps:         c.metrics.Count(internal.OpPut),
		GetOps:         c.metrics.Count(internal.OpGet),
		DeleteOps:      c.metrics.Count(internal.OpDelete),
		CacheHits:      c.metrics.CacheHits.Get(),
		CacheMisses:    c.metrics.CacheMisses.Get(),
		Latencies:      samples,
		AvgLatency:     util.Average(samples),
		LatencyStats:   util.LatencyStats(samples),
		Throughput:     util.Throughput(samples),
		ThroughputRate: c.metrics.Rate1(),
		CacheSize:      cacheSize,
		CacheCapacity:  cacheCap,
		EncryptedKeys:  encrypted,
		Keys:           keys,
		StorageBytes:   storageBytes,
	}
}

// WritePrometheus writes the engine metrics in Prometheus text format
func (c *cedarImpl) WritePrometheus(w io.Writer) {
	c.metrics.WritePrometheus(w)
}

// GetInfo returns information about the database
func (c *cedarImpl) GetInfo() db.DatabaseInfo {
	// estimate the size from the sampled value sizes
	const entryOverhead = 64 // Entry struct, map slot, average key
	count := c.data.Size()
	medianSize := c.sizes.MedianEstimate() + entryOverhead
	avgSize := c.sizes.AverageSize() + entryOverhead
	sizeBytes := count * (medianSize*60 + avgSize*40) / 100 // weighted estimate (60% median, 40% average)
	cachedKeys := c.CacheKeys()

	c.mutex.Lock()
	meta := &struct {
		CachePolicy       cache.Policy `json:"cache_policy"`
		CacheCapacity     int          `json:"cache_capacity"`
		CachedKeys        []string     `json:"cached_keys"`
		LogCapacity       int          `json:"log_capacity"`
		ScheduledExpiries int          `json:"scheduled_expiries"`
		SampledValues     int64        `json:"sampled_values"`
		SampledBytes      int64        `json:"sampled_bytes"`
		Serializer        string       `json:"serializer"`
		BlobName          string       `json:"blob_name,omitempty"`
		LatencyP50        float64      `json:"latency_p50_us"`
		LatencyP99        float64      `json:"latency_p99_us"`
		Info              string       `json:"info"`
	}{
		CachePolicy:       c.cache.Policy(),
		CacheCapacity:     c.cache.Cap(),
		CachedKeys:        cachedKeys,
		LogCapacity:       c.log.Cap(),
		ScheduledExpiries: c.schedule.Len(),
		SampledValues:     c.sizes.GetCount(),
		SampledBytes:      c.sizes.Sum(),
		Serializer:        c.serializer.Name(),
		LatencyP50:        c.metrics.Percentile(0.5),
		LatencyP99:        c.metrics.Percentile(0.99),
		Info:              "SizeBytes is an estimate based on sampled value sizes.",
	}
	c.mutex.Unlock()

	supportedFeatures := []db.Feature{
		db.FeaturePut, db.FeatureGet, db.FeatureDelete, db.FeatureExists,
		db.FeatureTTL, db.FeatureEncrypt, db.FeatureCompress, db.FeatureCache,
		db.FeatureExport,
	}
	if c.blobs != nil {
		meta.BlobName = c.blobName
		supportedFeatures = append(supportedFeatures, db.FeaturePersist)
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		DbType:            db.ImplCedar,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (c *cedarImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePut |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureExists |
		db.FeatureTTL |
		db.FeatureEncrypt |
		db.FeatureCompress |
		db.FeatureCache |
		db.FeatureExport
	if c.blobs != nil {
		supportedFeatures |= db.FeaturePersist
	}
	return supportedFeatures&feature == feature
}

// Close stops the ttl collector, writes a final snapshot if there are unsaved changes
// and stops the metrics. Close is idempotent.
func (c *cedarImpl) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		close(c.gcStop)
		<-c.gcDone

		close(c.persistStop)
		<-c.persistDone

		if c.blobs != nil && c.dirty.Load() {
			err = c.persist(context.Background())
		}

		c.metrics.Stop()
	})
	return err
}
