package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("IterateOrdered", func(t *testing.T) {
			testIterateOrdered(t, factory())
		})

		t.Run("IterateBounds", func(t *testing.T) {
			testIterateBounds(t, factory())
		})

		t.Run("IteratorSnapshot", func(t *testing.T) {
			testIteratorSnapshot(t, factory())
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory())
		})

		t.Run("BatchDeleteRange", func(t *testing.T) {
			testBatchDeleteRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
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

// collect reads all keys of an iterator, starting at First
func collect(t *testing.T, it db.Iterator) []string {
	var keys []string
	for ok := it.First(); ok; ok = it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Errorf("Unexpected iterator error: %v", err)
	}
	return keys
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1); err != nil {
		t.Fatalf("Unexpected error during Set: %v", err)
	}

	result, exists, err := database.Get(testKey)
	if err != nil || !exists {
		t.Errorf("Expected key %s to exist after Set (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	_ = database.Set(testKey, testValue2)

	result, exists, _ = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, err = database.Get([]byte("nonexistent-key"))
	if err != nil {
		t.Errorf("Get of a missing key must not fail: %v", err)
	}
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	key := []byte("delete-key")
	_ = database.Set(key, []byte("value"))

	if err := database.Delete(key); err != nil {
		t.Fatalf("Unexpected error during Delete: %v", err)
	}
	if _, exists, _ := database.Get(key); exists {
		t.Errorf("Expected key %s to be gone after Delete", key)
	}

	if err := database.Delete([]byte("never-existed")); err != nil {
		t.Errorf("Deleting a missing key must not fail: %v", err)
	}
}

func testIterateOrdered(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureIterate)

	// insert out of order, including keys that share prefixes and raw zero bytes
	for _, k := range []string{"c", "a", "b\x00", "ab", "b", "\x00z"} {
		_ = database.Set([]byte(k), []byte("v-"+k))
	}

	it, err := database.NewIterator(nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error creating iterator: %v", err)
	}
	defer it.Close()

	expected := []string{"\x00z", "a", "ab", "b", "b\x00", "c"}
	if got := collect(t, it); !equalKeys(got, expected) {
		t.Errorf("Expected keys %q, got %q", expected, got)
	}

	// SeekGE positions on the first key >= target
	if !it.SeekGE([]byte("aa")) {
		t.Fatalf("Expected SeekGE to find a key")
	}
	if string(it.Key()) != "ab" {
		t.Errorf("Expected SeekGE(aa) to land on ab, got %q", it.Key())
	}
	if string(it.Value()) != "v-ab" {
		t.Errorf("Expected value v-ab, got %q", it.Value())
	}
	if it.SeekGE([]byte("d")) {
		t.Errorf("Expected SeekGE past the last key to be invalid")
	}
	if it.Valid() {
		t.Errorf("Iterator should be invalid after seeking past the end")
	}
}

func testIterateBounds(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureIterate)

	for i := 0; i < 10; i++ {
		_ = database.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}

	it, err := database.NewIterator([]byte("key-3"), []byte("key-7"))
	if err != nil {
		t.Fatalf("Unexpected error creating iterator: %v", err)
	}
	defer it.Close()

	expected := []string{"key-3", "key-4", "key-5", "key-6"}
	if got := collect(t, it); !equalKeys(got, expected) {
		t.Errorf("Expected keys %q, got %q", expected, got)
	}

	empty, err := database.NewIterator([]byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Unexpected error creating iterator: %v", err)
	}
	defer empty.Close()
	if empty.First() {
		t.Errorf("Expected an empty range to yield no keys")
	}
}

func testIteratorSnapshot(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDelete|db.FeatureIterate)

	_ = database.Set([]byte("a"), []byte("1"))
	_ = database.Set([]byte("b"), []byte("2"))

	it, err := database.NewIterator(nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error creating iterator: %v", err)
	}
	defer it.Close()

	// writes after creation are not visible to the iterator
	_ = database.Set([]byte("c"), []byte("3"))
	_ = database.Delete([]byte("a"))

	expected := []string{"a", "b"}
	if got := collect(t, it); !equalKeys(got, expected) {
		t.Errorf("Expected iterator snapshot %q, got %q", expected, got)
	}
}

func testBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureBatch)

	_ = database.Set([]byte("to-delete"), []byte("x"))

	batch := database.NewBatch()
	_ = batch.Set([]byte("k1"), []byte("v1"))
	_ = batch.Set([]byte("k2"), []byte("v2"))
	_ = batch.Delete([]byte("to-delete"))

	if batch.Count() != 3 {
		t.Errorf("Expected batch count 3, got %d", batch.Count())
	}

	// nothing is visible before commit
	if _, exists, _ := database.Get([]byte("k1")); exists {
		t.Errorf("Batch writes must not be visible before Commit")
	}
	if _, exists, _ := database.Get([]byte("to-delete")); !exists {
		t.Errorf("Batch deletes must not be visible before Commit")
	}

	if err := batch.Commit(); err != nil {
		t.Fatalf("Unexpected error during Commit: %v", err)
	}

	for k, v := range map[string]string{"k1": "v1", "k2": "v2"} {
		got, exists, _ := database.Get([]byte(k))
		if !exists || string(got) != v {
			t.Errorf("Expected %s=%s after Commit, got %s (exists=%v)", k, v, got, exists)
		}
	}
	if _, exists, _ := database.Get([]byte("to-delete")); exists {
		t.Errorf("Expected to-delete to be gone after Commit")
	}

	if err := batch.Set([]byte("k3"), []byte("v3")); err == nil {
		t.Errorf("Expected an error when writing to a committed batch")
	}
	if err := batch.Close(); err != nil {
		t.Errorf("Closing a committed batch must not fail: %v", err)
	}

	// a closed batch is discarded
	discarded := database.NewBatch()
	_ = discarded.Set([]byte("k4"), []byte("v4"))
	_ = discarded.Close()
	if _, exists, _ := database.Get([]byte("k4")); exists {
		t.Errorf("Writes of a closed batch must be discarded")
	}
}

func testBatchDeleteRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureIterate|db.FeatureBatch|db.FeatureDeleteRange)

	for _, k := range []string{"a1", "a2", "b1", "b2", "c1"} {
		_ = database.Set([]byte(k), []byte("v"))
	}

	batch := database.NewBatch()
	_ = batch.DeleteRange([]byte("b"), []byte("c"))
	_ = batch.Set([]byte("b3"), []byte("written after range delete"))
	if err := batch.Commit(); err != nil {
		t.Fatalf("Unexpected error during Commit: %v", err)
	}

	it, _ := database.NewIterator(nil, nil)
	defer it.Close()

	expected := []string{"a1", "a2", "b3", "c1"}
	if got := collect(t, it); !equalKeys(got, expected) {
		t.Errorf("Expected keys %q, got %q", expected, got)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([][]byte, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := []byte(fmt.Sprintf("save-load-test-key-%d", i))
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		_ = database.Set(key, value)
	}

	// content of the target that must be replaced by Load
	_ = database2.Set([]byte("stale-key"), []byte("stale"))

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		actualValue, exists, _ := database2.Get(originalKeys[i])
		if !exists {
			t.Errorf("Key %s not found after Load", originalKeys[i])
			continue
		}
		if !bytes.Equal(actualValue, originalValues[i]) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", originalKeys[i], originalValues[i], actualValue)
		}
	}

	if _, exists, _ := database2.Get([]byte("stale-key")); exists {
		t.Errorf("Load must replace the previous content of the database")
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected an error when loading invalid data")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	emptyKeyValue := []byte("value for empty key")
	_ = database.Set([]byte{}, emptyKeyValue)

	result, exists, _ := database.Get([]byte{})
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	nilValueKey := []byte("nil-value-key")
	_ = database.Set(nilValueKey, nil)

	result, exists, _ = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	binaryKey := []byte{0x00, 0xff, 0x00, 0x01}
	_ = database.Set(binaryKey, []byte("binary"))
	if result, exists, _ = database.Get(binaryKey); !exists || string(result) != "binary" {
		t.Errorf("Binary key not found after Set")
	}

	largeValueKey := []byte("large-value-key")
	largeValue := make([]byte, 8*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	_ = database.Set(largeValueKey, largeValue)

	result, exists, _ = database.Get(largeValueKey)
	if !exists {
		t.Errorf("Key for large value not found after Set")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (got %d bytes, want %d)", len(result), len(largeValue))
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureBatch|db.FeatureIterate)

	// concurrent writers using batches on disjoint prefixes
	numWriters := 8
	rowsPerWriter := 200

	var wg sync.WaitGroup
	wg.Add(numWriters)
	for w := 0; w < numWriters; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rowsPerWriter; i++ {
				batch := database.NewBatch()
				_ = batch.Set([]byte(fmt.Sprintf("w%02d/row%04d/a", w, i)), []byte("a"))
				_ = batch.Set([]byte(fmt.Sprintf("w%02d/row%04d/b", w, i)), []byte("b"))
				if err := batch.Commit(); err != nil {
					t.Errorf("Unexpected error during Commit: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	it, err := database.NewIterator(nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error creating iterator: %v", err)
	}
	defer it.Close()

	count := 0
	var prev []byte
	for ok := it.First(); ok; ok = it.Next() {
		key := it.Key()
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Fatalf("Keys out of order: %q before %q", prev, key)
		}
		prev = key
		count++
	}

	if expected := numWriters * rowsPerWriter * 2; count != expected {
		t.Errorf("Expected %d keys, got %d", expected, count)
	}
}
