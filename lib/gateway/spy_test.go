package gateway

import (
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStore counts every call that reaches the store or one of its table handles
type spyStore struct {
	store.IStore
	calls atomic.Int64
}

func (s *spyStore) ListTables() ([][]byte, error) {
	s.calls.Add(1)
	return s.IStore.ListTables()
}

func (s *spyStore) TableExists(name []byte) (bool, error) {
	s.calls.Add(1)
	return s.IStore.TableExists(name)
}

func (s *spyStore) CreateTable(desc store.TableDescriptor) error {
	s.calls.Add(1)
	return s.IStore.CreateTable(desc)
}

func (s *spyStore) DeleteTable(name []byte) error {
	s.calls.Add(1)
	return s.IStore.DeleteTable(name)
}

func (s *spyStore) Table(name []byte) (store.ITable, error) {
	s.calls.Add(1)
	t, err := s.IStore.Table(name)
	if err != nil {
		return nil, err
	}
	return &spyTable{ITable: t, calls: &s.calls}, nil
}

type spyTable struct {
	store.ITable
	calls *atomic.Int64
}

func (t *spyTable) Get(row, column []byte, ts uint64, versions uint32) ([]store.Cell, error) {
	t.calls.Add(1)
	return t.ITable.Get(row, column, ts, versions)
}

func (t *spyTable) GetRow(row []byte, ts uint64) (store.RowResult, error) {
	t.calls.Add(1)
	return t.ITable.GetRow(row, ts)
}

func (t *spyTable) Commit(update store.BatchUpdate) error {
	t.calls.Add(1)
	return t.ITable.Commit(update)
}

func (t *spyTable) DeleteAll(row, column []byte, ts uint64) error {
	t.calls.Add(1)
	return t.ITable.DeleteAll(row, column, ts)
}

func (t *spyTable) DeleteRow(row []byte, ts uint64) error {
	t.calls.Add(1)
	return t.ITable.DeleteRow(row, ts)
}

func (t *spyTable) Scanner(columns [][]byte, start, stop []byte, ts uint64) (store.Scanner, error) {
	t.calls.Add(1)
	return t.ITable.Scanner(columns, start, stop, ts)
}

func TestInvalidInputNeverReachesStore(t *testing.T) {
	local := lstore.NewLocalStore(func() db.KVDB {
		return pebbledb.MustNewPebbleDB(nil)
	})
	spy := &spyStore{IStore: local}
	g := NewGateway(spy)
	t.Cleanup(func() {
		_ = g.Close()
		_ = local.Close()
	})
	createTable(t, g, "t")

	table := []byte("t")
	row := []byte("r")
	column := []byte("f:a")
	invalid := map[string]func() error{
		"get_row_encoding":       func() error { _, err := g.Get(table, invalidUTF8, column); return err },
		"get_column_encoding":    func() error { _, err := g.Get(table, row, invalidUTF8); return err },
		"get_ver_zero_versions":  func() error { _, err := g.GetVer(table, row, column, 0); return err },
		"get_ver_ts_negative":    func() error { _, err := g.GetVerTs(table, row, column, 5, -1); return err },
		"get_row_encoding_ts":    func() error { _, err := g.GetRowTs(table, invalidUTF8, 5); return err },
		"get_table_regions_nil":  func() error { _, err := g.GetTableRegions(nil); return err },
		"get_descriptors_utf8":   func() error { _, err := g.GetColumnDescriptors(invalidUTF8); return err },
		"put_row_encoding":       func() error { return g.Put(table, invalidUTF8, column, []byte("v")) },
		"put_empty_table":        func() error { return g.Put(nil, row, column, []byte("v")) },
		"delete_all_column":      func() error { return g.DeleteAllTs(table, row, invalidUTF8, 5) },
		"delete_all_row_row":     func() error { return g.DeleteAllRow(table, invalidUTF8) },
		"create_table_name":      func() error { return g.CreateTable(invalidUTF8, []store.ColumnDescriptor{{Name: []byte("f")}}) },
		"create_table_family":    func() error { return g.CreateTable([]byte("u"), []store.ColumnDescriptor{{Name: invalidUTF8}}) },
		"delete_table_empty":     func() error { return g.DeleteTable([]byte{}) },
		"scanner_open_stop":      func() error { _, err := g.ScannerOpenWithStop(table, row, invalidUTF8, nil); return err },
		"scanner_open_ts_column": func() error { _, err := g.ScannerOpenTs(table, row, [][]byte{invalidUTF8}, 5); return err },
		"mutate_row_last_column": func() error {
			return g.MutateRowTs(table, row, []store.Mutation{
				{Column: column, Value: []byte("v")},
				{IsDelete: true, Column: invalidUTF8},
			}, 5)
		},
	}

	for name, fn := range invalid {
		t.Run(name, func(t *testing.T) {
			before := spy.calls.Load()
			requireCategory(t, fn(), CategoryIllegalArgument)
			assert.Equal(t, before, spy.calls.Load(), "invalid input reached the store")
		})
	}

	// valid input is counted, so the spy sees the calls it should
	before := spy.calls.Load()
	require.NoError(t, g.Put(table, row, column, []byte("v")))
	assert.Equal(t, before+2, spy.calls.Load())
	assert.Zero(t, g.OpenScanners())
}
