package testing

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/writelog"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
//
// PersistLoad mutates the database between Persist and Load, the factory should
// therefore configure background persistence so that it does not write in between.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("InvalidArgument", func(t *testing.T) {
			testInvalidArgument(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Exists", func(t *testing.T) {
			testExists(t, factory())
		})

		t.Run("CodecOptions", func(t *testing.T) {
			testCodecOptions(t, factory())
		})

		t.Run("EncryptedKeys", func(t *testing.T) {
			testEncryptedKeys(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("TimerExpiry", func(t *testing.T) {
			testTimerExpiry(t, factory())
		})

		t.Run("TTLRenewal", func(t *testing.T) {
			testTTLRenewal(t, factory())
		})

		t.Run("WriteLog", func(t *testing.T) {
			testWriteLog(t, factory())
		})

		t.Run("ExportImport", func(t *testing.T) {
			testExportImport(t, factory())
		})

		t.Run("PersistLoad", func(t *testing.T) {
			testPersistLoad(t, factory())
		})

		t.Run("Statistics", func(t *testing.T) {
			testStatistics(t, factory())
		})

		t.Run("ManyKeys", func(t *testing.T) {
			testManyKeys(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustPut stores a value and fails the test on error
func mustPut(t testing.TB, database db.KVDB, key string, value []byte, opts db.Options) {
	t.Helper()
	if _, err := database.Put(key, value, opts); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

// eventually polls cond until it is true or the timeout passes
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, database, testKey, testValue1, db.Options{})

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustPut(t, database, testKey, testValue2, db.Options{})

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// the stored value must not alias the caller's buffer
	buf := []byte("buffer-value")
	mustPut(t, database, "buffer-key", buf, db.Options{})
	buf[0] = 'X'
	if v, _ := database.Get("buffer-key"); string(v) != "buffer-value" {
		t.Errorf("Put should copy the value, got %s", v)
	}

	// empty values are valid
	mustPut(t, database, "empty-key", []byte{}, db.Options{})
	if v, ok := database.Get("empty-key"); !ok || len(v) != 0 {
		t.Errorf("Expected empty value, got %q (exists=%v)", v, ok)
	}

	// created at survives an overwrite, updated at moves
	first, _ := database.Lookup(testKey)
	time.Sleep(2 * time.Millisecond)
	mustPut(t, database, testKey, testValue1, db.Options{})
	second, _ := database.Lookup(testKey)
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on overwrite: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt did not move on overwrite: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func testInvalidArgument(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)

	if _, err := database.Put("", []byte("value"), db.Options{}); !db.IsCode(err, db.RetCInvalidArgument) {
		t.Errorf("Expected InvalidArgument for empty key, got %v", err)
	}

	if _, err := database.Put("key", nil, db.Options{}); !db.IsCode(err, db.RetCInvalidArgument) {
		t.Errorf("Expected InvalidArgument for nil value, got %v", err)
	}

	if database.Len() != 0 {
		t.Errorf("Rejected puts must not store anything, got %d keys", database.Len())
	}

	if len(database.Log()) != 0 {
		t.Errorf("Rejected puts must not be logged, got %d records", len(database.Log()))
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	testKey := "delete-test-key"
	mustPut(t, database, testKey, []byte("delete-test-value"), db.Options{})

	if !database.Delete(testKey) {
		t.Errorf("Expected Delete to report an existing key")
	}

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if database.Delete(testKey) {
		t.Errorf("Expected second Delete to report a missing key")
	}

	// only the existing delete is logged
	deletes := 0
	for _, rec := range database.Log() {
		if rec.Op == writelog.OpDelete {
			deletes++
		}
	}
	if deletes != 1 {
		t.Errorf("Expected exactly 1 DELETE record, got %d", deletes)
	}

	// delete after get (cached entry)
	mustPut(t, database, "cached", []byte("v"), db.Options{})
	database.Get("cached")
	database.Delete("cached")
	if _, exists := database.Get("cached"); exists {
		t.Errorf("Deleted key must not be served from the cache")
	}
}

func testExists(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureExists)

	testKey := "has-test-key"

	if database.Exists(testKey) {
		t.Errorf("Expected Exists to return false for non-existent key")
	}

	mustPut(t, database, testKey, []byte("has-test-value"), db.Options{})

	if !database.Exists(testKey) {
		t.Errorf("Expected Exists to return true for existing key")
	}

	database.Delete(testKey)

	if database.Exists(testKey) {
		t.Errorf("Expected Exists to return false after Delete")
	}
}

func testCodecOptions(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureEncrypt|db.FeatureCompress)

	values := []string{
		"hello world",
		"aaaaaaaaaabbbbbbbbbbcccccccccc",
		"",
		"mixed ____ runs !!!!!!!!",
		`{"json": true, "list": [1, 2, 3]}`,
	}

	for _, v := range values {
		for _, opts := range []db.Options{
			{},
			{Encrypted: true},
			{Compressed: true},
			{Encrypted: true, Compressed: true},
		} {
			// compression without obfuscation is ambiguous for digits following another byte
			if opts.Compressed && !opts.Encrypted && containsDigit(v) {
				continue
			}

			key := fmt.Sprintf("codec-%v-%v-%s", opts.Encrypted, opts.Compressed, v)
			mustPut(t, database, key, []byte(v), opts)

			got, ok := database.Get(key)
			if !ok || string(got) != v {
				t.Errorf("Round trip with %+v failed: want %q, got %q (found=%v)", opts, v, got, ok)
			}

			entry, _ := database.Lookup(key)
			if entry.Encrypted != opts.Encrypted || entry.Compressed != opts.Compressed {
				t.Errorf("Entry flags do not match options %+v: %+v", opts, entry)
			}
		}
	}

	// obfuscation changes the stored payload
	mustPut(t, database, "secret", []byte("plain text"), db.Options{Encrypted: true})
	if entry, _ := database.Lookup("secret"); bytes.Equal(entry.Value, []byte("plain text")) {
		t.Errorf("Encrypted value is stored in plain text")
	}

	// GetDecrypted reverses only the obfuscation layer
	if _, err := database.PutEncrypted("wrapped", []byte("wrapped value"), 0); err != nil {
		t.Fatalf("PutEncrypted failed: %v", err)
	}
	if v, ok := database.GetDecrypted("wrapped"); !ok || string(v) != "wrapped value" {
		t.Errorf("GetDecrypted returned %q (found=%v)", v, ok)
	}
	mustPut(t, database, "raw", []byte("raw value"), db.Options{})
	if v, ok := database.GetDecrypted("raw"); !ok || string(v) != "raw value" {
		t.Errorf("GetDecrypted of a plain entry returned %q (found=%v)", v, ok)
	}
	if _, ok := database.GetDecrypted("missing"); ok {
		t.Errorf("GetDecrypted of a missing key returned found=true")
	}
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

func testEncryptedKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureEncrypt|db.FeatureDelete)

	consistent := func() {
		t.Helper()
		want := map[string]bool{}
		database.Range(func(key string, entry db.Entry) bool {
			if entry.Encrypted {
				want[key] = true
			}
			return true
		})
		got := database.EncryptedKeys()
		if len(got) != len(want) {
			t.Errorf("Encrypted key set %v does not match entries %v", got, want)
			return
		}
		for _, k := range got {
			if !want[k] {
				t.Errorf("Key %s is in the encrypted set but its entry is not encrypted", k)
			}
		}
	}

	mustPut(t, database, "a", []byte("1"), db.Options{Encrypted: true})
	mustPut(t, database, "b", []byte("2"), db.Options{Encrypted: true})
	mustPut(t, database, "c", []byte("3"), db.Options{})
	consistent()

	// overwrite without obfuscation removes the key from the set
	mustPut(t, database, "a", []byte("1"), db.Options{})
	consistent()

	database.Delete("b")
	consistent()

	if n := len(database.EncryptedKeys()); n != 0 {
		t.Errorf("Expected no encrypted keys, got %d", n)
	}

	mustPut(t, database, "d", []byte("4"), db.Options{Encrypted: true})
	database.Clear()
	consistent()
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureExists|db.FeatureTTL)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	mustPut(t, database, testKey, testValue, db.Options{TTL: 200 * time.Millisecond})
	mustPut(t, database, "persistent-key", testValue, db.Options{})

	result, exists := database.Get(testKey)
	if !exists || !bytes.Equal(result, testValue) {
		t.Errorf("Expected key %s to exist before its ttl passed", testKey)
	}

	entry, _ := database.Lookup(testKey)
	if entry.ExpiresAt.IsZero() {
		t.Errorf("Expected ExpiresAt to be set")
	}

	time.Sleep(300 * time.Millisecond)

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Expected key %s to be expired", testKey)
	}

	if database.Exists(testKey) {
		t.Errorf("Expected Exists to return false for expired key")
	}

	if !database.Exists("persistent-key") {
		t.Errorf("Key without ttl must not expire")
	}
}

func testTimerExpiry(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureTTL)

	for i := 0; i < 10; i++ {
		mustPut(t, database, fmt.Sprintf("timer-key-%d", i), []byte("v"), db.Options{TTL: 50 * time.Millisecond})
	}
	mustPut(t, database, "keeper", []byte("v"), db.Options{})

	// no reads: only the background collector may remove the keys
	if !eventually(2*time.Second, func() bool { return database.Len() == 1 }) {
		t.Errorf("Expected expired keys to be collected without reads, %d keys left", database.Len())
	}

	if _, ok := database.Lookup("keeper"); !ok {
		t.Errorf("Key without ttl was collected")
	}
}

func testTTLRenewal(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureTTL)

	mustPut(t, database, "session", []byte("v1"), db.Options{TTL: 150 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)

	// renew before the first deadline
	mustPut(t, database, "session", []byte("v2"), db.Options{TTL: 5 * time.Second})

	// wait well past the first deadline, without reading in between
	time.Sleep(400 * time.Millisecond)

	if _, ok := database.Lookup("session"); !ok {
		t.Fatalf("Renewed key was deleted by its earlier deadline")
	}

	// removing the ttl cancels the deadline as well
	mustPut(t, database, "short", []byte("v"), db.Options{TTL: 100 * time.Millisecond})
	mustPut(t, database, "short", []byte("v"), db.Options{})
	time.Sleep(300 * time.Millisecond)
	if _, ok := database.Lookup("short"); !ok {
		t.Errorf("Key without ttl was deleted by an old deadline")
	}
}

func testWriteLog(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureDelete)

	mustPut(t, database, "k1", []byte("v1"), db.Options{TTL: time.Minute, Encrypted: true})
	mustPut(t, database, "k2", []byte("v2"), db.Options{})
	database.Delete("k1")

	records := database.Log()
	if len(records) != 3 {
		t.Fatalf("Expected 3 log records, got %d", len(records))
	}

	if records[0].Op != writelog.OpPut || records[0].Key != "k1" || string(records[0].Value) != "v1" {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if records[0].Options.TTL != time.Minute || !records[0].Options.Encrypted {
		t.Errorf("Record does not carry the put options: %+v", records[0].Options)
	}
	if records[2].Op != writelog.OpDelete || records[2].Key != "k1" || records[2].Value != nil {
		t.Errorf("Unexpected delete record: %+v", records[2])
	}

	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			t.Errorf("Log records are not in order")
		}
	}

	// the log is a copy
	records[0].Key = "changed"
	if database.Log()[0].Key != "k1" {
		t.Errorf("Log should return a copy")
	}

	// the log is bounded and keeps the newest records
	for i := 0; i < 1500; i++ {
		mustPut(t, database, fmt.Sprintf("bulk-%d", i), []byte("v"), db.Options{})
	}
	records = database.Log()
	if len(records) > writelog.DefaultCapacity {
		t.Errorf("Log grew beyond %d records: %d", writelog.DefaultCapacity, len(records))
	}
	if last := records[len(records)-1]; last.Key != "bulk-1499" {
		t.Errorf("Expected newest record last, got %s", last.Key)
	}
}

func testExportImport(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureExport)

	want := map[string]string{
		"user:1":  "alice",
		"user:2":  `bob "the builder", jr`,
		"secret":  "hidden value",
		"spaced":  "a = b",
		"numbers": "12345",
	}
	for k, v := range want {
		mustPut(t, database, k, []byte(v), db.Options{Encrypted: k == "secret"})
	}
	mustPut(t, database, "session", []byte("temp"), db.Options{TTL: time.Hour})
	want["session"] = "temp"

	for _, format := range []string{"structured", "delimited"} {
		t.Run(format, func(t *testing.T) {
			data, err := database.ExportAll(format)
			if err != nil {
				t.Fatalf("ExportAll failed: %v", err)
			}

			database.Clear()
			if database.Len() != 0 {
				t.Fatalf("Clear left %d keys", database.Len())
			}

			res, err := database.ImportAll(data, format)
			if err != nil {
				t.Fatalf("ImportAll failed: %v", err)
			}
			if res.Attempted != len(want) || res.Applied != len(want) {
				t.Errorf("Expected %d attempted and applied, got %+v", len(want), res)
			}

			for k, v := range want {
				got, ok := database.Get(k)
				if !ok || string(got) != v {
					t.Errorf("Key %s: expected %q, got %q (found=%v)", k, v, got, ok)
				}
			}

			if entry, _ := database.Lookup("secret"); !entry.Encrypted {
				t.Errorf("Encrypted flag was not restored")
			}
			if entry, _ := database.Lookup("session"); entry.ExpiresAt.IsZero() {
				t.Errorf("TTL was not restored")
			}
		})
	}

	// a parse error has no effect
	before := database.Len()
	if _, err := database.ImportAll([]byte(`[{"key": "broken"`), "structured"); !db.IsCode(err, db.RetCImportParse) {
		t.Errorf("Expected ImportParse error, got %v", err)
	}
	if database.Len() != before {
		t.Errorf("Failed import changed the store")
	}

	// incomplete records are counted but skipped
	res, err := database.ImportAll([]byte("complete = yes\nincomplete\n"), "plain")
	if err != nil {
		t.Fatalf("ImportAll failed: %v", err)
	}
	if res.Attempted != 2 || res.Applied != 1 {
		t.Errorf("Expected 2 attempted and 1 applied, got %+v", res)
	}

	if _, err := database.ExportAll("xml"); !db.IsCode(err, db.RetCInvalidArgument) {
		t.Errorf("Expected InvalidArgument for unknown format, got %v", err)
	}
}

func testPersistLoad(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeaturePersist)

	ctx := context.Background()
	numEntries := 100

	for i := 0; i < numEntries; i++ {
		mustPut(t, database, fmt.Sprintf("save-key-%d", i), persistValue(i),
			db.Options{Encrypted: i%3 == 0, Compressed: i%5 == 0})
	}
	mustPut(t, database, "expiring", []byte("soon"), db.Options{TTL: time.Hour})
	logLen := len(database.Log())

	stored := make(map[string]db.Entry, numEntries)
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-key-%d", i)
		entry, ok := database.Lookup(key)
		if !ok {
			t.Fatalf("Key %s missing before persist", key)
		}
		stored[key] = entry
	}

	if err := database.Persist(ctx); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	database.Clear()
	mustPut(t, database, "after-persist", []byte("x"), db.Options{})

	if err := database.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-key-%d", i)

		// the stored payload must survive byte-for-byte
		before := stored[key]
		after, ok := database.Lookup(key)
		if !ok || !bytes.Equal(after.Value, before.Value) ||
			after.Encrypted != before.Encrypted || after.Compressed != before.Compressed {
			t.Errorf("Key %s: stored entry changed by persist/load: %+v => %+v", key, before, after)
		}

		value, ok := database.Get(key)
		if !ok || !bytes.Equal(value, persistValue(i)) {
			t.Errorf("Key %s: unexpected value %q after load (found=%v)", key, value, ok)
		}
	}

	if _, ok := database.Get("after-persist"); ok {
		t.Errorf("Load should replace the state, found key written after Persist")
	}

	if entry, ok := database.Lookup("expiring"); !ok || entry.ExpiresAt.IsZero() {
		t.Errorf("Expiry was not restored")
	}

	if n := len(database.EncryptedKeys()); n != 34 {
		t.Errorf("Expected 34 encrypted keys after load, got %d", n)
	}

	if n := len(database.Log()); n != logLen {
		t.Errorf("Expected %d log records after load, got %d", logLen, n)
	}
}

// persistValue returns the value stored under save-key-i.
// Compressed plain values must not contain digits, a digit after a byte decodes as a run length.
func persistValue(i int) []byte {
	if i%5 == 0 && i%3 != 0 {
		return []byte("save-value-zzzz-" + string(rune('a'+i/10)) + string(rune('a'+i%10)))
	}
	return []byte(fmt.Sprintf("save-value-%d", i))
}

func testStatistics(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	for i := 0; i < 10; i++ {
		mustPut(t, database, fmt.Sprintf("stat-%d", i), []byte("0123456789"), db.Options{Encrypted: i < 3})
	}
	for i := 0; i < 5; i++ {
		database.Get(fmt.Sprintf("stat-%d", i))
	}
	database.Get("missing")
	database.Delete("stat-9")

	stats := database.Stats()

	if stats.PutOps != 10 || stats.GetOps != 6 || stats.DeleteOps != 1 {
		t.Errorf("Unexpected op counters: put=%d get=%d delete=%d", stats.PutOps, stats.GetOps, stats.DeleteOps)
	}
	if stats.TotalOps < 17 {
		t.Errorf("Expected at least 17 total ops, got %d", stats.TotalOps)
	}
	if stats.CacheHits+stats.CacheMisses != 6 {
		t.Errorf("Expected 6 cache lookups, got %d hits and %d misses", stats.CacheHits, stats.CacheMisses)
	}
	if stats.Keys != 9 {
		t.Errorf("Expected 9 keys, got %d", stats.Keys)
	}
	if stats.EncryptedKeys != 3 {
		t.Errorf("Expected 3 encrypted keys, got %d", stats.EncryptedKeys)
	}
	if stats.StorageBytes <= 0 {
		t.Errorf("Expected a positive storage size, got %d", stats.StorageBytes)
	}
	if len(stats.Latencies) != 17 {
		t.Errorf("Expected 17 latency samples, got %d", len(stats.Latencies))
	}
	if stats.AvgLatency <= 0 {
		t.Errorf("Expected a positive average latency, got %v", stats.AvgLatency)
	}

	info := database.GetInfo()
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size estimate, got %d", info.SizeBytes)
	}
}

func testManyKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	prefix := "many-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		mustPut(t, database, fmt.Sprintf("%s%d", prefix, i), []byte(fmt.Sprintf("value-%d", i)), db.Options{})
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s",
				key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("%s%d", prefix, i))
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists := database.Get(key)

		if i%2 == 0 && exists {
			t.Errorf("Key %s should be deleted", key)
		} else if i%2 == 1 && !exists {
			t.Errorf("Key %s should still exist", key)
		}
	}

	if database.Len() != numKeys/2 {
		t.Errorf("Expected %d keys, got %d", numKeys/2, database.Len())
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	type operation struct {
		op    string
		key   string
		value []byte
		opts  db.Options
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "put"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "put" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte('a' + (i+j)%26)
			}
		}

		operations[i] = operation{op, key, value, db.Options{Encrypted: i%7 == 0}}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	opsPerWorker := numOperations / numWorkers

	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		errs     []error
	)
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				switch op.op {
				case "put":
					if _, err := database.Put(op.key, op.value, op.opts); err != nil {
						errMutex.Lock()
						errs = append(errs, err)
						errMutex.Unlock()
					}
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key)
				}
			}
		}(w)
	}

	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Test had %d errors during parallel operations, first: %v", len(errs), errs[0])
	}

	// two passes must agree
	first := make(map[string][]byte)
	for key := range allKeys {
		if v, ok := database.Get(key); ok {
			first[key] = v
		}
	}
	for key := range allKeys {
		v, ok := database.Get(key)
		prev, wasThere := first[key]
		if ok != wasThere {
			t.Errorf("Consistency error: Key %s existence changed between passes", key)
			continue
		}
		if ok && !bytes.Equal(v, prev) {
			t.Errorf("Value mismatch for key %s between passes", key)
		}
	}

	// encrypted key set and entries agree after concurrent writes
	flagged := 0
	database.Range(func(_ string, entry db.Entry) bool {
		if entry.Encrypted {
			flagged++
		}
		return true
	})
	if n := len(database.EncryptedKeys()); n != flagged {
		t.Errorf("Encrypted key set has %d keys, %d entries are encrypted", n, flagged)
	}
}
