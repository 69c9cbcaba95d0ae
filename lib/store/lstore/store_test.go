package lstore

import (
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/rKV/lib/store"
	storetesting "github.com/ValentinKolb/rKV/lib/store/testing"
)

func newTestStore(*testing.T) store.IStore {
	return NewLocalStore(func() db.KVDB {
		return pebbledb.MustNewPebbleDB(nil)
	})
}

func TestLocalStore(t *testing.T) {
	storetesting.RunStoreTests(t, "LocalStore", newTestStore)
}

func TestScannerOutlivesWrites(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if err := s.CreateTable(store.TableDescriptor{
		Name:     []byte("t"),
		Families: []store.ColumnDescriptor{{Name: []byte("f")}},
	}); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	table, err := s.Table([]byte("t"))
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}

	for _, r := range []string{"a", "b"} {
		if err := table.Commit(store.BatchUpdate{
			Row:       []byte(r),
			Timestamp: store.LatestTimestamp,
			Mutations: []store.Mutation{{Column: []byte("f:x"), Value: []byte("v")}},
		}); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	scanner, err := table.Scanner(nil, nil, nil, store.LatestTimestamp)
	if err != nil {
		t.Fatalf("Scanner failed: %v", err)
	}
	defer scanner.Close()

	// dropping the table does not invalidate the open scanner
	if err := s.DeleteTable([]byte("t")); err != nil {
		t.Fatalf("DeleteTable failed: %v", err)
	}

	count := 0
	for {
		_, ok, err := scanner.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("Expected 2 rows from the snapshot, got %d", count)
	}
}
