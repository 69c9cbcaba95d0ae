package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh, empty store. The store is closed by the test suite.
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the IStore conformance suite against an implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.IStore)
	}{
		{name: "tables", fn: testTables},
		{name: "table_handle_missing", fn: testTableHandleMissing},
		{name: "put_get", fn: testPutGet},
		{name: "versions", fn: testVersions},
		{name: "mutate_row_atomic", fn: testMutateRowAtomic},
		{name: "delete_all", fn: testDeleteAll},
		{name: "delete_row", fn: testDeleteRow},
		{name: "scanner", fn: testScanner},
		{name: "scanner_many_rows", fn: testScannerManyRows},
		{name: "regions", fn: testRegions},
		{name: "concurrent_writers", fn: testConcurrentWriters},
	}

	t.Run(name, func(t *testing.T) {
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				s := factory(t)
				defer s.Close()
				tc.fn(t, s)
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// RequireCode asserts that err is a *store.Error with the given code
func RequireCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	require.Error(t, err)
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "expected a store error, got %T: %v", err, err)
	assert.Equal(t, code, storeErr.Code, storeErr.Msg)
}

func createTable(t *testing.T, s store.IStore, name string, families ...string) store.ITable {
	t.Helper()
	if len(families) == 0 {
		families = []string{"f"}
	}
	desc := store.TableDescriptor{Name: []byte(name)}
	for _, f := range families {
		desc.Families = append(desc.Families, store.ColumnDescriptor{Name: []byte(f), MaxVersions: 5})
	}
	require.NoError(t, s.CreateTable(desc))
	table, err := s.Table([]byte(name))
	require.NoError(t, err)
	return table
}

func put(t *testing.T, table store.ITable, row, column, value string, ts uint64) {
	t.Helper()
	require.NoError(t, table.Commit(store.BatchUpdate{
		Row:       []byte(row),
		Timestamp: ts,
		Mutations: []store.Mutation{{Column: []byte(column), Value: []byte(value)}},
	}))
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testTables(t *testing.T, s store.IStore) {
	names, err := s.ListTables()
	require.NoError(t, err)
	assert.Empty(t, names)

	createTable(t, s, "t2")
	createTable(t, s, "t1", "a", "b")

	names, err = s.ListTables()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("t1"), []byte("t2")}, names)

	ok, err := s.TableExists([]byte("t1"))
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.CreateTable(store.TableDescriptor{Name: []byte("t1"), Families: []store.ColumnDescriptor{{Name: []byte("x")}}})
	RequireCode(t, err, store.RetCAlreadyExists)

	table, err := s.Table([]byte("t1"))
	require.NoError(t, err)
	desc, err := table.Descriptor()
	require.NoError(t, err)
	require.Len(t, desc.Families, 2)
	assert.Equal(t, []byte("a"), desc.Families[0].Name)

	require.NoError(t, s.DeleteTable([]byte("t1")))
	RequireCode(t, s.DeleteTable([]byte("t1")), store.RetCNotFound)

	ok, err = s.TableExists([]byte("t1"))
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.CreateTable(store.TableDescriptor{Name: []byte("bad")})
	RequireCode(t, err, store.RetCInvalidArgument)
}

func testTableHandleMissing(t *testing.T, s store.IStore) {
	_, err := s.Table([]byte("missing"))
	RequireCode(t, err, store.RetCNotFound)
}

func testPutGet(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	put(t, table, "r", "f:a", "value", store.LatestTimestamp)

	cells, err := table.Get([]byte("r"), []byte("f:a"), store.LatestTimestamp, 1)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, []byte("value"), cells[0].Value)
	assert.NotZero(t, cells[0].Timestamp)

	cells, err = table.Get([]byte("r"), []byte("f:missing"), store.LatestTimestamp, 1)
	require.NoError(t, err)
	assert.Empty(t, cells)

	_, err = table.Get([]byte("r"), []byte("nope:a"), store.LatestTimestamp, 1)
	RequireCode(t, err, store.RetCInvalidArgument)
}

func testVersions(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	for ts := uint64(1); ts <= 3; ts++ {
		put(t, table, "r", "f:a", fmt.Sprintf("v%d", ts), ts)
	}

	cells, err := table.Get([]byte("r"), []byte("f:a"), store.LatestTimestamp, 10)
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, []byte("v3"), cells[0].Value)
	assert.Equal(t, []byte("v1"), cells[2].Value)

	cells, err = table.Get([]byte("r"), []byte("f:a"), 2, 1)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, []byte("v2"), cells[0].Value)

	row, err := table.GetRow([]byte("r"), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:a": []byte("v1")}, row.Columns())
}

func testMutateRowAtomic(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	put(t, table, "r", "f:gone", "x", 1)

	require.NoError(t, table.Commit(store.BatchUpdate{
		Row:       []byte("r"),
		Timestamp: store.LatestTimestamp,
		Mutations: []store.Mutation{
			{Column: []byte("f:a"), Value: []byte("1")},
			{IsDelete: true, Column: []byte("f:gone")},
			{Column: []byte("f:b"), Value: []byte("2")},
		},
	}))

	row, err := table.GetRow([]byte("r"), store.LatestTimestamp)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:a": []byte("1"), "f:b": []byte("2")}, row.Columns())

	// a batch with an invalid column is rejected as a whole
	err = table.Commit(store.BatchUpdate{
		Row:       []byte("r"),
		Timestamp: store.LatestTimestamp,
		Mutations: []store.Mutation{
			{Column: []byte("f:c"), Value: []byte("3")},
			{Column: []byte("nope:x"), Value: []byte("4")},
		},
	})
	RequireCode(t, err, store.RetCInvalidArgument)

	row, err = table.GetRow([]byte("r"), store.LatestTimestamp)
	require.NoError(t, err)
	assert.Len(t, row.Cells, 2)
}

func testDeleteAll(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	put(t, table, "r", "f:a", "v1", 1)
	put(t, table, "r", "f:a", "v2", 2)
	put(t, table, "r", "f:b", "b", 1)

	require.NoError(t, table.DeleteAll([]byte("r"), []byte("f:a"), 1))
	cells, err := table.Get([]byte("r"), []byte("f:a"), store.LatestTimestamp, 10)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, []byte("v2"), cells[0].Value)

	require.NoError(t, table.DeleteAll([]byte("r"), []byte("f:a"), store.LatestTimestamp))
	cells, err = table.Get([]byte("r"), []byte("f:a"), store.LatestTimestamp, 10)
	require.NoError(t, err)
	assert.Empty(t, cells)

	cells, err = table.Get([]byte("r"), []byte("f:b"), store.LatestTimestamp, 10)
	require.NoError(t, err)
	assert.Len(t, cells, 1)
}

func testDeleteRow(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	put(t, table, "r", "f:a", "v", 1)
	put(t, table, "r", "f:b", "v", 1)
	put(t, table, "keep", "f:a", "v", 1)

	require.NoError(t, table.DeleteRow([]byte("r"), store.LatestTimestamp))

	row, err := table.GetRow([]byte("r"), store.LatestTimestamp)
	require.NoError(t, err)
	assert.Empty(t, row.Cells)

	row, err = table.GetRow([]byte("keep"), store.LatestTimestamp)
	require.NoError(t, err)
	assert.Len(t, row.Cells, 1)
}

func collectRows(t *testing.T, scanner store.Scanner) []string {
	t.Helper()
	var rows []string
	for {
		row, ok, err := scanner.Next()
		require.NoError(t, err)
		if !ok {
			return rows
		}
		rows = append(rows, string(row.Row))
	}
}

func testScanner(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t", "f", "g")
	for _, r := range []string{"c", "a", "b", "d"} {
		put(t, table, r, "f:x", "fx-"+r, 1)
	}
	put(t, table, "b", "g:y", "gy", 1)

	scanner, err := table.Scanner(nil, []byte("a"), nil, store.LatestTimestamp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, collectRows(t, scanner))
	_, ok, err := scanner.Next()
	require.NoError(t, err)
	assert.False(t, ok, "an exhausted scanner stays exhausted")
	require.NoError(t, scanner.Close())

	scanner, err = table.Scanner(nil, []byte("b"), []byte("d"), store.LatestTimestamp)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, collectRows(t, scanner))
	require.NoError(t, scanner.Close())

	scanner, err = table.Scanner([][]byte{[]byte("g:")}, nil, nil, store.LatestTimestamp)
	require.NoError(t, err)
	row, ok, err := scanner.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string][]byte{"g:y": []byte("gy")}, row.Columns())
	require.NoError(t, scanner.Close())

	_, err = table.Scanner([][]byte{[]byte("nope:")}, nil, nil, store.LatestTimestamp)
	RequireCode(t, err, store.RetCInvalidArgument)
}

func testScannerManyRows(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	numRows := 250
	for i := 0; i < numRows; i++ {
		put(t, table, fmt.Sprintf("row-%04d", i), "f:x", "v", 1)
	}

	scanner, err := table.Scanner(nil, nil, nil, store.LatestTimestamp)
	require.NoError(t, err)
	defer scanner.Close()

	rows := collectRows(t, scanner)
	require.Len(t, rows, numRows)
	for i, r := range rows {
		assert.Equal(t, fmt.Sprintf("row-%04d", i), r)
	}
}

func testRegions(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")
	regions, err := table.Regions()
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].StartKey)
	assert.Empty(t, regions[0].EndKey)
	assert.NotZero(t, regions[0].ID)
}

func testConcurrentWriters(t *testing.T, s store.IStore) {
	table := createTable(t, s, "t")

	numWriters := 4
	rowsPerWriter := 25
	var wg sync.WaitGroup
	wg.Add(numWriters)
	for w := 0; w < numWriters; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rowsPerWriter; i++ {
				err := table.Commit(store.BatchUpdate{
					Row:       []byte(fmt.Sprintf("w%d-%03d", w, i)),
					Timestamp: store.LatestTimestamp,
					Mutations: []store.Mutation{
						{Column: []byte("f:a"), Value: []byte("a")},
						{Column: []byte("f:b"), Value: []byte("b")},
					},
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	scanner, err := table.Scanner(nil, nil, nil, store.LatestTimestamp)
	require.NoError(t, err)
	defer scanner.Close()

	count := 0
	for {
		row, ok, err := scanner.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Len(t, row.Cells, 2, "row %s", row.Row)
		count++
	}
	assert.Equal(t, numWriters*rowsPerWriter, count)
}
