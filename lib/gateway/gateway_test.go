package gateway

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/lstore"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invalidUTF8 = []byte{0xff, 0xfe, 'x'}

func newTestGateway(t *testing.T) *Gateway {
	s := lstore.NewLocalStore(func() db.KVDB {
		return pebbledb.MustNewPebbleDB(nil)
	})
	g := NewGateway(s)
	t.Cleanup(func() {
		_ = g.Close()
		_ = s.Close()
	})
	return g
}

func createTable(t *testing.T, g *Gateway, name string, families ...string) {
	t.Helper()
	if len(families) == 0 {
		families = []string{"f"}
	}
	var descs []store.ColumnDescriptor
	for _, f := range families {
		descs = append(descs, store.ColumnDescriptor{Name: []byte(f), MaxVersions: 3})
	}
	require.NoError(t, g.CreateTable([]byte(name), descs))
}

func requireCategory(t *testing.T, err error, category Category) {
	t.Helper()
	require.Error(t, err)
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr), "expected a gateway error, got %T: %v", err, err)
	assert.Equal(t, category, gwErr.Category, gwErr.Message)
}

func TestGateway(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, g *Gateway)
	}{
		{name: "schema_introspection", fn: testSchemaIntrospection},
		{name: "schema_conflict", fn: testSchemaConflict},
		{name: "create_table_invalid", fn: testCreateTableInvalid},
		{name: "get_and_put", fn: testGetAndPut},
		{name: "get_versions", fn: testGetVersions},
		{name: "get_row", fn: testGetRow},
		{name: "delete_all", fn: testDeleteAll},
		{name: "delete_all_row", fn: testDeleteAllRow},
		{name: "mutate_row_atomic", fn: testMutateRowAtomic},
		{name: "validation_precedes_mutation", fn: testValidationPrecedesMutation},
		{name: "missing_table", fn: testMissingTable},
		{name: "scan_order", fn: testScanOrder},
		{name: "scan_with_stop_and_ts", fn: testScanWithStopAndTs},
		{name: "scan_exhaustion_vs_invalid", fn: testScanExhaustionVsInvalid},
		{name: "scan_use_after_close", fn: testScanUseAfterClose},
		{name: "scan_concurrent_opens", fn: testScanConcurrentOpens},
		{name: "close_releases_scanners", fn: testCloseReleasesScanners},
		{name: "metrics", fn: testMetrics},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newTestGateway(t))
		})
	}
}

func testSchemaIntrospection(t *testing.T, g *Gateway) {
	createTable(t, g, "b", "x", "y")
	createTable(t, g, "a")

	names, err := g.GetTableNames()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, names)

	families, err := g.GetColumnDescriptors([]byte("b"))
	require.NoError(t, err)
	require.Len(t, families, 2)
	assert.Equal(t, []byte("x"), families[0].Name)
	assert.Equal(t, uint32(3), families[0].MaxVersions)
	assert.Equal(t, store.DefaultCompression, families[1].Compression)

	regions, err := g.GetTableRegions([]byte("b"))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].StartKey)
	assert.True(t, bytes.HasPrefix(regions[0].Name, []byte("b,,")))
}

func testSchemaConflict(t *testing.T, g *Gateway) {
	createTable(t, g, "t", "original")

	err := g.CreateTable([]byte("t"), []store.ColumnDescriptor{{Name: []byte("other")}})
	requireCategory(t, err, CategoryAlreadyExists)
	assert.Equal(t, MsgTableInUse, err.(*Error).Message)

	families, err := g.GetColumnDescriptors([]byte("t"))
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, []byte("original"), families[0].Name)

	requireCategory(t, g.DeleteTable([]byte("missing")), CategoryNotFound)

	require.NoError(t, g.DeleteTable([]byte("t")))
	requireCategory(t, g.DeleteTable([]byte("t")), CategoryNotFound)
}

func testCreateTableInvalid(t *testing.T, g *Gateway) {
	requireCategory(t, g.CreateTable(nil, []store.ColumnDescriptor{{Name: []byte("f")}}), CategoryIllegalArgument)
	requireCategory(t, g.CreateTable(invalidUTF8, []store.ColumnDescriptor{{Name: []byte("f")}}), CategoryIllegalArgument)
	requireCategory(t, g.CreateTable([]byte("t"), nil), CategoryIllegalArgument)
	requireCategory(t, g.CreateTable([]byte("t"), []store.ColumnDescriptor{{Name: invalidUTF8}}), CategoryIllegalArgument)

	names, err := g.GetTableNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func testGetAndPut(t *testing.T, g *Gateway) {
	createTable(t, g, "t")

	_, err := g.Get([]byte("t"), []byte("r"), []byte("f:a"))
	requireCategory(t, err, CategoryNotFound)

	require.NoError(t, g.Put([]byte("t"), []byte("r"), []byte("f:a"), []byte("v1")))
	value, err := g.Get([]byte("t"), []byte("r"), []byte("f:a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	// unknown family
	err = g.Put([]byte("t"), []byte("r"), []byte("nope:a"), []byte("v"))
	requireCategory(t, err, CategoryIllegalArgument)
}

func testGetVersions(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	for ts := uint64(1); ts <= 3; ts++ {
		require.NoError(t, g.MutateRowTs([]byte("t"), []byte("r"), []store.Mutation{
			{Column: []byte("f:a"), Value: []byte(fmt.Sprintf("v%d", ts))},
		}, ts))
	}

	values, err := g.GetVer([]byte("t"), []byte("r"), []byte("f:a"), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v3"), []byte("v2")}, values)

	values, err = g.GetVerTs([]byte("t"), []byte("r"), []byte("f:a"), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2"), []byte("v1")}, values)

	_, err = g.GetVerTs([]byte("t"), []byte("r"), []byte("f:a"), 0, 10)
	requireCategory(t, err, CategoryNotFound)

	_, err = g.GetVer([]byte("t"), []byte("r"), []byte("f:a"), 0)
	requireCategory(t, err, CategoryIllegalArgument)
	_, err = g.GetVer([]byte("t"), []byte("r"), []byte("f:a"), -1)
	requireCategory(t, err, CategoryIllegalArgument)
}

func testGetRow(t *testing.T, g *Gateway) {
	createTable(t, g, "t", "f", "g")
	require.NoError(t, g.MutateRowTs([]byte("t"), []byte("r"), []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("old")},
		{Column: []byte("g:b"), Value: []byte("b")},
	}, 1))
	require.NoError(t, g.MutateRowTs([]byte("t"), []byte("r"), []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("new")},
	}, 2))

	row, err := g.GetRow([]byte("t"), []byte("r"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:a": []byte("new"), "g:b": []byte("b")}, row.Columns())

	row, err = g.GetRowTs([]byte("t"), []byte("r"), 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:a": []byte("old"), "g:b": []byte("b")}, row.Columns())

	// a missing row is an empty row
	row, err = g.GetRow([]byte("t"), []byte("missing"))
	require.NoError(t, err)
	assert.Empty(t, row.Cells)
}

func testDeleteAll(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	for ts := uint64(1); ts <= 2; ts++ {
		require.NoError(t, g.MutateRowTs([]byte("t"), []byte("r"), []store.Mutation{
			{Column: []byte("f:a"), Value: []byte(fmt.Sprintf("v%d", ts))},
		}, ts))
	}

	require.NoError(t, g.DeleteAllTs([]byte("t"), []byte("r"), []byte("f:a"), 1))
	values, err := g.GetVer([]byte("t"), []byte("r"), []byte("f:a"), 5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2")}, values)

	require.NoError(t, g.DeleteAll([]byte("t"), []byte("r"), []byte("f:a")))
	_, err = g.Get([]byte("t"), []byte("r"), []byte("f:a"))
	requireCategory(t, err, CategoryNotFound)
}

func testDeleteAllRow(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	require.NoError(t, g.MutateRowTs([]byte("t"), []byte("r"), []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("a")},
		{Column: []byte("f:b"), Value: []byte("b")},
	}, 5))

	require.NoError(t, g.DeleteAllRowTs([]byte("t"), []byte("r"), 4))
	row, err := g.GetRow([]byte("t"), []byte("r"))
	require.NoError(t, err)
	assert.Len(t, row.Cells, 2, "versions newer than the delete timestamp survive")

	require.NoError(t, g.DeleteAllRow([]byte("t"), []byte("r")))
	row, err = g.GetRow([]byte("t"), []byte("r"))
	require.NoError(t, err)
	assert.Empty(t, row.Cells)
}

func testMutateRowAtomic(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	require.NoError(t, g.Put([]byte("t"), []byte("r"), []byte("f:gone"), []byte("x")))

	require.NoError(t, g.MutateRow([]byte("t"), []byte("r"), []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("1")},
		{IsDelete: true, Column: []byte("f:gone")},
		{Column: []byte("f:b"), Value: []byte("2")},
	}))

	row, err := g.GetRow([]byte("t"), []byte("r"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:a": []byte("1"), "f:b": []byte("2")}, row.Columns())

	// readers running next to batch writers see either all or none of a batch
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			v := []byte(fmt.Sprintf("%03d", i))
			assert.NoError(t, g.MutateRow([]byte("t"), []byte("pair"), []store.Mutation{
				{Column: []byte("f:x"), Value: v},
				{Column: []byte("f:y"), Value: v},
			}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			row, err := g.GetRow([]byte("t"), []byte("pair"))
			if !assert.NoError(t, err) {
				return
			}
			cols := row.Columns()
			assert.Equal(t, cols["f:x"], cols["f:y"])
		}
	}()
	wg.Wait()
}

func testValidationPrecedesMutation(t *testing.T, g *Gateway) {
	createTable(t, g, "t")

	requireCategory(t, g.Put([]byte("t"), invalidUTF8, []byte("f:a"), []byte("v")), CategoryIllegalArgument)
	requireCategory(t, g.Put([]byte("t"), []byte("r"), invalidUTF8, []byte("v")), CategoryIllegalArgument)
	requireCategory(t, g.MutateRow([]byte("t"), []byte("r"), []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("v")},
		{Column: invalidUTF8, Value: []byte("v")},
	}), CategoryIllegalArgument)

	scanner, err := g.ScannerOpen([]byte("t"), nil, nil)
	require.NoError(t, err)
	_, err = g.ScannerGet(scanner)
	requireCategory(t, err, CategoryNotFound)

	// a valid retry still works and only its own cell is present
	require.NoError(t, g.Put([]byte("t"), []byte("r"), []byte("f:b"), []byte("v")))
	row, err := g.GetRow([]byte("t"), []byte("r"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"f:b": []byte("v")}, row.Columns())

	err = g.Put([]byte("t"), invalidUTF8, []byte("f:a"), []byte("v"))
	assert.Contains(t, err.Error(), MsgInvalidEncoding)
}

func testMissingTable(t *testing.T, g *Gateway) {
	_, err := g.Get([]byte("missing"), []byte("r"), []byte("f:a"))
	requireCategory(t, err, CategoryNotFound)
	_, err = g.GetRow([]byte("missing"), []byte("r"))
	requireCategory(t, err, CategoryNotFound)
	requireCategory(t, g.Put([]byte("missing"), []byte("r"), []byte("f:a"), nil), CategoryNotFound)
	_, err = g.ScannerOpen([]byte("missing"), nil, nil)
	requireCategory(t, err, CategoryNotFound)
	_, err = g.GetTableRegions(nil)
	requireCategory(t, err, CategoryIllegalArgument)
}

func collectScanner(t *testing.T, g *Gateway, id ScannerID) []string {
	t.Helper()
	var rows []string
	for {
		row, err := g.ScannerGet(id)
		if IsNotFound(err) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, string(row.Row))
	}
}

func testScanOrder(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	for _, r := range []string{"c", "a", "b"} {
		require.NoError(t, g.Put([]byte("t"), []byte(r), []byte("f:x"), []byte(r)))
	}

	id, err := g.ScannerOpen([]byte("t"), []byte("a"), nil)
	require.NoError(t, err)

	for _, expected := range []string{"a", "b", "c"} {
		row, err := g.ScannerGet(id)
		require.NoError(t, err)
		assert.Equal(t, expected, string(row.Row))
		assert.Equal(t, map[string][]byte{"f:x": []byte(expected)}, row.Columns())
	}
	_, err = g.ScannerGet(id)
	requireCategory(t, err, CategoryNotFound)
	require.NoError(t, g.ScannerClose(id))
}

func testScanWithStopAndTs(t *testing.T, g *Gateway) {
	createTable(t, g, "t", "f", "g")
	for i, r := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.MutateRowTs([]byte("t"), []byte(r), []store.Mutation{
			{Column: []byte("f:x"), Value: []byte(r)},
			{Column: []byte("g:y"), Value: []byte(r)},
		}, uint64(i+1)))
	}

	id, err := g.ScannerOpenWithStop([]byte("t"), []byte("b"), []byte("d"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, collectScanner(t, g, id))

	id, err = g.ScannerOpenTs([]byte("t"), nil, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, collectScanner(t, g, id))

	id, err = g.ScannerOpenWithStopTs([]byte("t"), []byte("a"), []byte("c"), [][]byte{[]byte("g:")}, store.LatestTimestamp)
	require.NoError(t, err)
	row, err := g.ScannerGet(id)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"g:y": []byte("a")}, row.Columns())

	_, err = g.ScannerOpen([]byte("t"), nil, [][]byte{[]byte("nope:")})
	requireCategory(t, err, CategoryIllegalArgument)
	_, err = g.ScannerOpen([]byte("t"), nil, [][]byte{invalidUTF8})
	requireCategory(t, err, CategoryIllegalArgument)
}

func testScanExhaustionVsInvalid(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	id, err := g.ScannerOpen([]byte("t"), nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = g.ScannerGet(id)
		requireCategory(t, err, CategoryNotFound)
		assert.Equal(t, MsgEndOfScanner, err.(*Error).Message)
	}

	_, err = g.ScannerGet(id + 1000)
	requireCategory(t, err, CategoryIllegalArgument)
	assert.Equal(t, MsgInvalidScanner, err.(*Error).Message)
	requireCategory(t, g.ScannerClose(id+1000), CategoryIllegalArgument)
}

func testScanUseAfterClose(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	require.NoError(t, g.Put([]byte("t"), []byte("a"), []byte("f:x"), []byte("v")))

	id, err := g.ScannerOpen([]byte("t"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.ScannerClose(id))

	_, err = g.ScannerGet(id)
	requireCategory(t, err, CategoryIllegalArgument)
	requireCategory(t, g.ScannerClose(id), CategoryIllegalArgument)
}

func testScanConcurrentOpens(t *testing.T, g *Gateway) {
	createTable(t, g, "t")

	numWorkers := 8
	opensPerWorker := 20
	var mu sync.Mutex
	seen := make(map[ScannerID]bool)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < opensPerWorker; i++ {
				id, err := g.ScannerOpen([]byte("t"), nil, nil)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[id], "id %d handed out twice", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numWorkers*opensPerWorker)
	for id := ScannerID(0); id < ScannerID(numWorkers*opensPerWorker); id++ {
		assert.True(t, seen[id], "ids are consecutive, %d is missing", id)
	}
	assert.Equal(t, numWorkers*opensPerWorker, g.OpenScanners())
}

func testCloseReleasesScanners(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	for i := 0; i < 3; i++ {
		_, err := g.ScannerOpen([]byte("t"), nil, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, g.OpenScanners())
	require.NoError(t, g.Close())
	assert.Equal(t, 0, g.OpenScanners())
}

func testMetrics(t *testing.T, g *Gateway) {
	createTable(t, g, "t")
	_, _ = g.Get([]byte("t"), []byte("r"), []byte("f:a"))
	_, err := g.ScannerOpen([]byte("t"), nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	g.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `rkv_gateway_requests_total{op="get"} 1`)
	assert.Contains(t, out, `rkv_gateway_requests_total{op="createTable"} 1`)
	assert.Contains(t, out, `rkv_gateway_errors_total{category="NotFound"} 1`)
	assert.Contains(t, out, `rkv_gateway_open_scanners 1`)
}

func TestShardGatewayMetrics(t *testing.T) {
	s := lstore.NewLocalStore(func() db.KVDB {
		return pebbledb.MustNewPebbleDB(nil)
	})
	g := NewShardGateway(s, 7)
	t.Cleanup(func() {
		_ = g.Close()
		_ = s.Close()
	})

	_, err := g.GetTableNames()
	require.NoError(t, err)
	_, err = g.ScannerGet(3)
	requireCategory(t, err, CategoryIllegalArgument)

	var buf bytes.Buffer
	g.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `rkv_gateway_requests_total{shard="7",op="getTableNames"} 1`)
	assert.Contains(t, out, `rkv_gateway_errors_total{shard="7",category="IllegalArgument"} 1`)
	assert.Contains(t, out, `rkv_gateway_open_scanners{shard="7"} 0`)
}
