package gateway

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("gateway")

// Gateway implements IGateway on top of a store.IStore. Table handles are
// requested per call, the only state shared between calls is the scanner registry.
type Gateway struct {
	store    store.IStore
	scanners *registry
	metrics  *metrics.Set
	labels   string // constant labels of every metric, e.g. shard="1"
}

var _ IGateway = (*Gateway)(nil)

// NewGateway creates a gateway for the given store. The store is not closed by the gateway.
func NewGateway(s store.IStore) *Gateway {
	return newGateway(s, "")
}

// NewShardGateway creates a gateway whose metrics carry the label shard="<shardID>",
// so that the gateways of several shards can be exported side by side.
func NewShardGateway(s store.IStore, shardID uint64) *Gateway {
	return newGateway(s, fmt.Sprintf("shard=%q", fmt.Sprint(shardID)))
}

func newGateway(s store.IStore, labels string) *Gateway {
	g := &Gateway{
		store:    s,
		scanners: newRegistry(),
		metrics:  metrics.NewSet(),
		labels:   labels,
	}
	g.metrics.NewGauge(g.metricName("rkv_gateway_open_scanners", ""), func() float64 {
		return float64(g.scanners.size())
	})
	return g
}

// metricName appends the constant labels and the given label to a metric name
func (g *Gateway) metricName(name, label string) string {
	switch {
	case g.labels == "" && label == "":
		return name
	case g.labels == "":
		return fmt.Sprintf("%s{%s}", name, label)
	case label == "":
		return fmt.Sprintf("%s{%s}", name, g.labels)
	default:
		return fmt.Sprintf("%s{%s,%s}", name, g.labels, label)
	}
}

// WriteMetrics writes the gateway metrics in prometheus text format to w
func (g *Gateway) WriteMetrics(w io.Writer) {
	g.metrics.WritePrometheus(w)
}

// OpenScanners returns the number of currently registered scanners
func (g *Gateway) OpenScanners() int {
	return g.scanners.size()
}

// call counts the request and translates the error returned by fn
func (g *Gateway) call(op string, fn func() error) error {
	g.metrics.GetOrCreateCounter(g.metricName("rkv_gateway_requests_total", fmt.Sprintf("op=%q", op))).Inc()

	err := Translate(fn())
	if err == nil {
		return nil
	}

	category := CategoryOf(err)
	g.metrics.GetOrCreateCounter(g.metricName("rkv_gateway_errors_total", fmt.Sprintf("category=%q", category))).Inc()
	if category == CategoryIOError {
		Logger.Warningf("%s failed: %v", op, err)
	}
	return err
}

// table validates the table name and returns a fresh handle
func (g *Gateway) table(name []byte) (store.ITable, error) {
	if err := validTable(name); err != nil {
		return nil, err
	}
	return g.store.Table(name)
}

// --------------------------------------------------------------------------
// Schema introspection
// --------------------------------------------------------------------------

func (g *Gateway) GetTableNames() (names [][]byte, err error) {
	err = g.call("getTableNames", func() error {
		Logger.Debugf("getTableNames")
		names, err = g.store.ListTables()
		return err
	})
	return names, err
}

func (g *Gateway) GetTableRegions(table []byte) (regions []store.RegionInfo, err error) {
	err = g.call("getTableRegions", func() error {
		Logger.Debugf("getTableRegions: table=%s", table)
		t, err := g.table(table)
		if err != nil {
			return err
		}
		regions, err = t.Regions()
		return err
	})
	return regions, err
}

func (g *Gateway) GetColumnDescriptors(table []byte) (families []store.ColumnDescriptor, err error) {
	err = g.call("getColumnDescriptors", func() error {
		Logger.Debugf("getColumnDescriptors: table=%s", table)
		t, err := g.table(table)
		if err != nil {
			return err
		}
		desc, err := t.Descriptor()
		if err != nil {
			return err
		}
		families = desc.Families
		return nil
	})
	return families, err
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func (g *Gateway) Get(table, row, column []byte) (value []byte, err error) {
	err = g.call("get", func() error {
		Logger.Debugf("get: table=%s, row=%s, col=%s", table, row, column)
		values, err := g.getVersions(table, row, column, store.LatestTimestamp, 1)
		if err != nil {
			return err
		}
		value = values[0]
		return nil
	})
	return value, err
}

func (g *Gateway) GetVer(table, row, column []byte, numVersions int32) (values [][]byte, err error) {
	err = g.call("getVer", func() error {
		Logger.Debugf("getVer: table=%s, row=%s, col=%s, numVers=%d", table, row, column, numVersions)
		values, err = g.getVersions(table, row, column, store.LatestTimestamp, numVersions)
		return err
	})
	return values, err
}

func (g *Gateway) GetVerTs(table, row, column []byte, ts uint64, numVersions int32) (values [][]byte, err error) {
	err = g.call("getVerTs", func() error {
		Logger.Debugf("getVerTs: table=%s, row=%s, col=%s, ts=%d, numVers=%d", table, row, column, ts, numVersions)
		values, err = g.getVersions(table, row, column, ts, numVersions)
		return err
	})
	return values, err
}

// getVersions returns the values of up to numVersions versions <= ts, NotFound if there are none
func (g *Gateway) getVersions(table, row, column []byte, ts uint64, numVersions int32) ([][]byte, error) {
	if err := validNumVersions(numVersions); err != nil {
		return nil, err
	}
	if err := validText(row, column); err != nil {
		return nil, err
	}
	t, err := g.table(table)
	if err != nil {
		return nil, err
	}
	cells, err := t.Get(row, column, ts, uint32(numVersions))
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, NewError(CategoryNotFound, "")
	}
	values := make([][]byte, len(cells))
	for i, c := range cells {
		values[i] = c.Value
	}
	return values, nil
}

func (g *Gateway) GetRow(table, row []byte) (store.RowResult, error) {
	return g.getRow("getRow", table, row, store.LatestTimestamp)
}

func (g *Gateway) GetRowTs(table, row []byte, ts uint64) (store.RowResult, error) {
	return g.getRow("getRowTs", table, row, ts)
}

func (g *Gateway) getRow(op string, table, row []byte, ts uint64) (result store.RowResult, err error) {
	err = g.call(op, func() error {
		Logger.Debugf("%s: table=%s, row=%s, ts=%d", op, table, row, ts)
		if err := validText(row); err != nil {
			return err
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		result, err = t.GetRow(row, ts)
		return err
	})
	return result, err
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func (g *Gateway) Put(table, row, column, value []byte) error {
	return g.call("put", func() error {
		Logger.Debugf("put: table=%s, row=%s, col=%s, value.length=%d", table, row, column, len(value))
		if err := validText(row, column); err != nil {
			return err
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		return t.Commit(store.BatchUpdate{
			Row:       row,
			Timestamp: store.LatestTimestamp,
			Mutations: []store.Mutation{{Column: column, Value: value}},
		})
	})
}

func (g *Gateway) DeleteAll(table, row, column []byte) error {
	return g.deleteAll("deleteAll", table, row, column, store.LatestTimestamp)
}

func (g *Gateway) DeleteAllTs(table, row, column []byte, ts uint64) error {
	return g.deleteAll("deleteAllTs", table, row, column, ts)
}

func (g *Gateway) deleteAll(op string, table, row, column []byte, ts uint64) error {
	return g.call(op, func() error {
		Logger.Debugf("%s: table=%s, row=%s, col=%s, ts=%d", op, table, row, column, ts)
		if err := validText(row, column); err != nil {
			return err
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		return t.DeleteAll(row, column, ts)
	})
}

func (g *Gateway) DeleteAllRow(table, row []byte) error {
	return g.deleteAllRow("deleteAllRow", table, row, store.LatestTimestamp)
}

func (g *Gateway) DeleteAllRowTs(table, row []byte, ts uint64) error {
	return g.deleteAllRow("deleteAllRowTs", table, row, ts)
}

func (g *Gateway) deleteAllRow(op string, table, row []byte, ts uint64) error {
	return g.call(op, func() error {
		Logger.Debugf("%s: table=%s, row=%s, ts=%d", op, table, row, ts)
		if err := validText(row); err != nil {
			return err
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		return t.DeleteRow(row, ts)
	})
}

func (g *Gateway) MutateRow(table, row []byte, mutations []store.Mutation) error {
	return g.mutateRow("mutateRow", table, row, mutations, store.LatestTimestamp)
}

func (g *Gateway) MutateRowTs(table, row []byte, mutations []store.Mutation, ts uint64) error {
	return g.mutateRow("mutateRowTs", table, row, mutations, ts)
}

func (g *Gateway) mutateRow(op string, table, row []byte, mutations []store.Mutation, ts uint64) error {
	return g.call(op, func() error {
		Logger.Debugf("%s: table=%s, row=%s, ts=%d, mutations=%d", op, table, row, ts, len(mutations))
		if err := validText(row); err != nil {
			return err
		}
		for _, m := range mutations {
			if err := validText(m.Column); err != nil {
				return err
			}
			if m.IsDelete {
				Logger.Debugf("%s:    : delete - %s", op, m.Column)
			} else {
				Logger.Debugf("%s:    : put - %s => %d bytes", op, m.Column, len(m.Value))
			}
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		return t.Commit(store.BatchUpdate{Row: row, Timestamp: ts, Mutations: mutations})
	})
}

// --------------------------------------------------------------------------
// Schema mutation
// --------------------------------------------------------------------------

func (g *Gateway) CreateTable(table []byte, families []store.ColumnDescriptor) error {
	return g.call("createTable", func() error {
		Logger.Debugf("createTable: table=%s", table)
		if err := validTable(table); err != nil {
			return err
		}
		for _, f := range families {
			if err := validText(f.Name); err != nil {
				return err
			}
			Logger.Debugf("createTable:     col=%s", f.Name)
		}
		err := g.store.CreateTable(store.TableDescriptor{Name: table, Families: families})
		if CategoryOf(err) == CategoryAlreadyExists {
			return NewError(CategoryAlreadyExists, MsgTableInUse)
		}
		return err
	})
}

func (g *Gateway) DeleteTable(table []byte) error {
	return g.call("deleteTable", func() error {
		Logger.Debugf("deleteTable: table=%s", table)
		if err := validTable(table); err != nil {
			return err
		}
		return g.store.DeleteTable(table)
	})
}

// --------------------------------------------------------------------------
// Scanners
// --------------------------------------------------------------------------

func (g *Gateway) ScannerOpen(table, startRow []byte, columns [][]byte) (ScannerID, error) {
	return g.scannerOpen("scannerOpen", table, startRow, nil, columns, store.LatestTimestamp)
}

func (g *Gateway) ScannerOpenWithStop(table, startRow, stopRow []byte, columns [][]byte) (ScannerID, error) {
	return g.scannerOpen("scannerOpenWithStop", table, startRow, stopRow, columns, store.LatestTimestamp)
}

func (g *Gateway) ScannerOpenTs(table, startRow []byte, columns [][]byte, ts uint64) (ScannerID, error) {
	return g.scannerOpen("scannerOpenTs", table, startRow, nil, columns, ts)
}

func (g *Gateway) ScannerOpenWithStopTs(table, startRow, stopRow []byte, columns [][]byte, ts uint64) (ScannerID, error) {
	return g.scannerOpen("scannerOpenWithStopTs", table, startRow, stopRow, columns, ts)
}

func (g *Gateway) scannerOpen(op string, table, startRow, stopRow []byte, columns [][]byte, ts uint64) (id ScannerID, err error) {
	err = g.call(op, func() error {
		Logger.Debugf("%s: table=%s, start=%s, stop=%s, columns=%q, ts=%d", op, table, startRow, stopRow, columns, ts)
		if err := validText(startRow, stopRow); err != nil {
			return err
		}
		if err := validText(columns...); err != nil {
			return err
		}
		t, err := g.table(table)
		if err != nil {
			return err
		}
		scanner, err := t.Scanner(columns, startRow, stopRow, ts)
		if err != nil {
			return err
		}
		id, err = g.scanners.open(scanner)
		return err
	})
	return id, err
}

func (g *Gateway) ScannerGet(id ScannerID) (row store.RowResult, err error) {
	err = g.call("scannerGet", func() error {
		Logger.Debugf("scannerGet: id=%d", id)
		c, err := g.scanners.lookup(id)
		if err != nil {
			return err
		}
		next, ok, err := c.next()
		if err != nil {
			return err
		}
		if !ok {
			return NewError(CategoryNotFound, MsgEndOfScanner)
		}
		row = next
		return nil
	})
	return row, err
}

func (g *Gateway) ScannerClose(id ScannerID) error {
	return g.call("scannerClose", func() error {
		Logger.Debugf("scannerClose: id=%d", id)
		return g.scanners.close(id)
	})
}

// Close closes all open scanners
func (g *Gateway) Close() error {
	if n := g.scanners.closeAll(); n > 0 {
		Logger.Infof("closed %d open scanners", n)
	}
	return nil
}
