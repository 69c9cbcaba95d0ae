package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetLargeValue", func(b *testing.B) {
		benchmarkSetLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Batch", func(b *testing.B) {
		benchmarkBatch(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_ = database.Set([]byte(fmt.Sprintf("test-key-%d", i)), []byte(fmt.Sprintf("test-value-%d", i)))
		}
	})
}

// Benchmark for Set operation with large values
func benchmarkSetLargeValue(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	largeValue := make([]byte, 1*1024*1024) // 1MB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Set([]byte(fmt.Sprintf("test-key-%d", i%64)), largeValue)
	}
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	// Prepare data
	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		_ = database.Set([]byte(fmt.Sprintf("test-key-%d", i)), []byte(fmt.Sprintf("test-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = database.Get([]byte(fmt.Sprintf("test-key-%d", counter%numKeys)))
			counter++
		}
	})
}

// Benchmark for atomic batches of one "row" with several cells
func benchmarkBatch(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureBatch)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := database.NewBatch()
		for c := 0; c < 8; c++ {
			_ = batch.Set([]byte(fmt.Sprintf("row-%d/col-%d", i, c)), []byte("value"))
		}
		if err := batch.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for a full ordered scan of 10k keys
func benchmarkScan(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureIterate)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		_ = database.Set([]byte(fmt.Sprintf("test-key-%08d", i)), []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := database.NewIterator(nil, nil)
		if err != nil {
			b.Fatal(err)
		}
		n := 0
		for ok := it.First(); ok; ok = it.Next() {
			n++
		}
		_ = it.Close()
		if n != numKeys {
			b.Fatalf("expected %d keys, got %d", numKeys, n)
		}
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	// Create a database with some data
	numEntries := 10000
	for i := 0; i < numEntries; i++ {
		_ = database.Set([]byte(fmt.Sprintf("test-key-%d", i)), []byte(fmt.Sprintf("test-value-%d", i)))
	}

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			_ = database.Save(&buf)
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	_ = database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		defer loadDB.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	// Number of pre-populated keys
	numKeys := 100000
	if b.N < numKeys {
		numKeys = b.N
	}

	// Prepare initial data
	for i := 0; i < numKeys; i++ {
		_ = database.Set([]byte(fmt.Sprintf("test-key-%d", i)), []byte(fmt.Sprintf("test-value-%d", i)))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", r.Intn(numKeys)))
			switch op := r.Intn(10); {
			case op < 7: // 70% reads
				_, _, _ = database.Get(key)
			case op < 9: // 20% writes
				_ = database.Set(key, []byte("updated"))
			default: // 10% deletes
				_ = database.Delete(key)
			}
		}
	})
}
