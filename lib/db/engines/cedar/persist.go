package cedar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/snapshot"
)

// --------------------------------------------------------------------------
// Write-behind persistence
// --------------------------------------------------------------------------

// schedulePersist marks the state as changed and wakes the persister.
// It never blocks, so it can be called with the mutex held.
func (c *cedarImpl) schedulePersist() {
	if c.blobs == nil {
		return
	}
	c.dirty.Store(true)
	if c.closed.Load() {
		return
	}
	select {
	case c.persistSignal <- struct{}{}:
	default: // a write is already pending
	}
}

// persister writes a snapshot after every burst of mutations until persistStop is closed
func (c *cedarImpl) persister() {
	defer close(c.persistDone)

	for {
		select {
		case <-c.persistStop:
			return
		case <-c.persistSignal:
		}

		// debounce: collect further mutations before writing
		if c.persistDebounce > 0 {
			timer := time.NewTimer(c.persistDebounce)
			select {
			case <-c.persistStop:
				timer.Stop()
				return // Close writes the final snapshot
			case <-timer.C:
			}
		}

		c.persistWithRetry()
	}
}

// persistWithRetry writes a snapshot with up to persistRetries attempts and a linear backoff.
// Failures are logged, the in-memory state is never affected.
func (c *cedarImpl) persistWithRetry() {
	var err error
	for i := 0; i < c.persistRetries; i++ {
		if err = c.persist(context.Background()); err == nil {
			return
		}

		log.Warningf("snapshot write failed, retrying (%d/%d): %v", i+1, c.persistRetries, err)
		select {
		case <-c.persistStop:
			return
		case <-time.After(time.Duration(i+1) * persistBackoff):
		}
	}
	c.metrics.PersistFailures.Inc()
	log.Errorf("snapshot write failed after %d attempts: %v", c.persistRetries, err)
}

// Persist writes the full state to the blob store
func (c *cedarImpl) Persist(ctx context.Context) error {
	if c.blobs == nil {
		return db.NewError(db.RetCUnsupportedOperation, "no blob store configured")
	}
	return c.persist(ctx)
}

func (c *cedarImpl) persist(ctx context.Context) error {
	// an older snapshot must never overwrite a newer one
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	// changes after this point need another write
	c.dirty.Store(false)

	blob := c.buildBlob()
	data, err := c.serializer.Serialize(blob)
	if err != nil {
		c.dirty.Store(true)
		return db.WrapError(db.RetCPersistence, "encode snapshot", err)
	}

	if err := c.blobs.WriteBlob(ctx, c.blobName, data); err != nil {
		c.dirty.Store(true)
		return db.WrapError(db.RetCPersistence, fmt.Sprintf("write blob %q", c.blobName), err)
	}

	c.metrics.Persists.Inc()
	return nil
}

// buildBlob captures a consistent copy of store, encrypted key set and write log
func (c *cedarImpl) buildBlob() *snapshot.Blob {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	blob := &snapshot.Blob{
		Entries:       make([]snapshot.KeyedEntry, 0, c.data.Size()),
		EncryptedKeys: make([]string, 0, len(c.encrypted)),
		Log:           c.log.Records(),
	}
	// entries are never modified in place, sharing the value slices is safe
	c.data.Range(func(key string, entry db.Entry) bool {
		blob.Entries = append(blob.Entries, snapshot.KeyedEntry{Key: key, Entry: entry})
		return true
	})
	for key := range c.encrypted {
		blob.EncryptedKeys = append(blob.EncryptedKeys, key)
	}
	blob.Sort()
	return blob
}

// Load replaces the state with the last snapshot.
// A missing or undecodable blob results in an empty database and no error.
// If the blob store itself fails, the database is emptied as well and the error is returned.
func (c *cedarImpl) Load(ctx context.Context) error {
	if c.blobs == nil {
		return db.NewError(db.RetCUnsupportedOperation, "no blob store configured")
	}

	data, found, err := c.blobs.ReadBlob(ctx, c.blobName)
	if err != nil {
		log.Errorf("could not read blob %q, starting empty: %v", c.blobName, err)
		c.restoreBlob(&snapshot.Blob{})
		return db.WrapError(db.RetCPersistence, fmt.Sprintf("read blob %q", c.blobName), err)
	}
	if !found {
		log.Infof("no snapshot %q found, starting empty", c.blobName)
		c.restoreBlob(&snapshot.Blob{})
		return nil
	}

	var blob snapshot.Blob
	if err := c.serializer.Deserialize(data, &blob); err != nil {
		log.Warningf("snapshot %q is corrupt, starting empty: %v", c.blobName, err)
		c.restoreBlob(&snapshot.Blob{})
		return nil
	}

	c.restoreBlob(&blob)
	log.Infof("loaded %d keys and %d log records from %q", len(blob.Entries), len(blob.Log), c.blobName)
	return nil
}

// restoreBlob replaces the whole state with the content of blob.
// The encrypted key set is rebuilt from the entry flags, ttl deadlines are rescheduled.
func (c *cedarImpl) restoreBlob(blob *snapshot.Blob) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data.Clear()
	c.cache.Clear()
	clear(c.encrypted)
	c.schedule.Clear()

	for _, item := range blob.Entries {
		if item.Key == "" {
			continue
		}
		if item.Entry.Value == nil {
			// gob drops empty slices
			item.Entry.Value = []byte{}
		}
		c.storeLocked(item.Key, item.Entry)
		c.sizes.AddSample(len(item.Entry.Value))
	}

	if len(blob.EncryptedKeys) != len(c.encrypted) {
		log.Warningf("snapshot lists %d encrypted keys but %d entries are encrypted, using the entry flags",
			len(blob.EncryptedKeys), len(c.encrypted))
	}

	c.log.Restore(blob.Log)
	c.dirty.Store(false)
}

// --------------------------------------------------------------------------
// Export / Import
// --------------------------------------------------------------------------

// ExportAll serializes the logical value of every stored key in the given format
func (c *cedarImpl) ExportAll(format string) ([]byte, error) {
	f, err := snapshot.ParseFormat(format)
	if err != nil {
		return nil, db.WrapError(db.RetCInvalidArgument, "export", err)
	}

	now := c.clock()
	var records []snapshot.ExportRecord
	c.data.Range(func(key string, entry db.Entry) bool {
		value, err := c.codec.Decode(entry.Value, entry.Encrypted, entry.Compressed)
		if err != nil {
			log.Warningf("export: skipping key %q, could not decode value: %v", key, err)
			return true
		}

		rec := snapshot.ExportRecord{
			Key:       key,
			Value:     string(value),
			Timestamp: entry.UpdatedAt.UnixMilli(),
			Encrypted: entry.Encrypted,
		}
		if ttl, ok := entry.RemainingTTL(now); ok {
			rec.TTL = &ttl
		}
		records = append(records, rec)
		return true
	})

	// stable output
	sortRecords(records)

	data, err := snapshot.Export(records, f)
	if err != nil {
		return nil, db.WrapError(db.RetCInternalError, "export", err)
	}
	return data, nil
}

// ImportAll parses data and stores every complete record with Put.
// A parse error fails the whole call before anything is stored.
func (c *cedarImpl) ImportAll(data []byte, format string) (db.ImportResult, error) {
	f, err := snapshot.ParseFormat(format)
	if err != nil {
		return db.ImportResult{}, db.WrapError(db.RetCInvalidArgument, "import", err)
	}

	records, err := snapshot.Parse(data, f)
	if err != nil {
		return db.ImportResult{}, db.WrapError(db.RetCImportParse, "import", err)
	}

	result := db.ImportResult{Attempted: len(records)}
	for _, rec := range records {
		if !rec.Complete() {
			continue
		}
		if _, err := c.Put(rec.Key, rec.Value, db.Options{TTL: rec.TTL, Encrypted: rec.Encrypted}); err != nil {
			log.Warningf("import: skipping key %q: %v", rec.Key, err)
			continue
		}
		result.Applied++
	}
	return result, nil
}

func sortRecords(records []snapshot.ExportRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}
