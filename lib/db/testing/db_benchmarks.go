package testing

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory(), db.Options{})
	})

	b.Run("PutEncrypted", func(b *testing.B) {
		benchmarkPut(b, factory(), db.Options{Encrypted: true})
	})

	b.Run("PutEncryptedCompressed", func(b *testing.B) {
		benchmarkPut(b, factory(), db.Options{Encrypted: true, Compressed: true})
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory())
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory())
	})

	b.Run("PutWithExpiry", func(b *testing.B) {
		benchmarkPut(b, factory(), db.Options{TTL: time.Hour})
	})

	b.Run("Get(cached)", func(b *testing.B) {
		benchmarkGet(b, factory(), 50)
	})

	b.Run("Get(uncached)", func(b *testing.B) {
		benchmarkGet(b, factory(), 100_000)
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Exists", func(b *testing.B) {
		benchmarkExists(b, factory())
	})

	b.Run("PersistLoad", func(b *testing.B) {
		benchmarkPersistLoad(b, factory)
	})

	b.Run("ExportImport", func(b *testing.B) {
		benchmarkExportImport(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation with distinct keys
func benchmarkPut(b *testing.B, database db.KVDB, opts db.Options) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	var counter atomic.Uint64
	value := []byte("benchmark-value-aaaaaaaaaaaaaaaa")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter.Add(1))
			database.Put(key, value, opts)
		}
	})
}

// Benchmark for Put operation with existing keys
func benchmarkPutExisting(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	numKeys := 1000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter%numKeys)
			database.Put(key, value, db.Options{})
			counter++
		}
	})
}

// Benchmark for Put operation with large values
func benchmarkPutLargeValue(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	largeValue := make([]byte, 1024*1024) // 1MB
	rand.Read(largeValue)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Put(fmt.Sprintf("large-key-%d", i%10), largeValue, db.Options{})
	}
}

// Parallel benchmarking for Get operation over numKeys keys
func benchmarkGet(b *testing.B, database db.KVDB, numKeys int) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			database.Get(fmt.Sprintf("key-%d", r.Intn(numKeys)))
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureDelete)

	keys := make([]string, b.N)
	value := []byte("benchmark-value")
	for i := 0; i < b.N; i++ {
		keys[i] = fmt.Sprintf("key-%d", i)
		database.Put(keys[i], value, db.Options{})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Delete(keys[i])
	}
}

// Parallel benchmarking for Exists operation (half hits, half misses)
func benchmarkExists(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureExists)

	numKeys := 1000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Exists(fmt.Sprintf("key-%d", counter%(2*numKeys)))
			counter++
		}
	})
}

// Benchmark for Persist and Load operations
func benchmarkPersistLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeaturePersist)

	ctx := context.Background()
	value := []byte("benchmark-value-for-persistence")
	for i := 0; i < 10_000; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{Encrypted: i%2 == 0})
	}

	b.Run("Persist", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := database.Persist(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if err := database.Load(ctx); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// Benchmark for ExportAll and ImportAll in the delimited format
func benchmarkExportImport(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureExport)

	value := []byte("benchmark value, with a comma")
	for i := 0; i < 1000; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{})
	}

	data, err := database.ExportAll("delimited")
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Export", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			database.ExportAll("delimited")
		}
	})

	b.Run("Import", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			database.ImportAll(data, "delimited")
		}
	})
}

// Benchmark for a realistic mix of operations
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete|db.FeatureExists)

	numKeys := 1000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		database.Put(fmt.Sprintf("key-%d", i), value, db.Options{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(numKeys))

			// 60% Get, 25% Put, 10% Exists, 5% Delete
			switch n := r.Intn(100); {
			case n < 60:
				database.Get(key)
			case n < 85:
				database.Put(key, value, db.Options{TTL: time.Duration(r.Intn(10)) * time.Second})
			case n < 95:
				database.Exists(key)
			default:
				database.Delete(key)
			}
		}
	})
}
