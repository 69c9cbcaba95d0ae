package tablet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/util"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// Clock returns the current time in milliseconds
type Clock func() uint64

// WallClock is the default Clock
func WallClock() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Engine maps tables, rows, columns and cell versions onto one db.KVDB.
// Reads are lock free (every read works on its own iterator snapshot), writes are
// serialized because version trimming reads before it writes.
type Engine struct {
	db      db.KVDB
	clock   Clock
	writeMu sync.Mutex
}

// NewEngine creates a table engine on top of kvdb. A nil clock uses WallClock.
func NewEngine(kvdb db.KVDB, clock Clock) *Engine {
	if clock == nil {
		clock = WallClock
	}
	return &Engine{db: kvdb, clock: clock}
}

// DB returns the underlying database
func (e *Engine) DB() db.KVDB {
	return e.db
}

// ResolveTimestamp replaces store.LatestTimestamp with the current time.
func (e *Engine) ResolveTimestamp(ts uint64) uint64 {
	if ts == store.LatestTimestamp {
		return e.clock()
	}
	return ts
}

// internalError converts an engine failure into a store error
func internalError(err error, format string, args ...interface{}) error {
	return store.NewError(store.RetCInternalError, errors.Wrapf(err, format, args...).Error())
}

// --------------------------------------------------------------------------
// Tables
// --------------------------------------------------------------------------

// PrepareDescriptor validates a descriptor, fills in defaults and assigns a region id.
// Replicated stores call it before proposing, so all replicas apply the same descriptor.
func PrepareDescriptor(desc store.TableDescriptor) (store.TableDescriptor, error) {
	if err := desc.Validate(); err != nil {
		return store.TableDescriptor{}, err
	}
	families := make([]store.ColumnDescriptor, len(desc.Families))
	for i, f := range desc.Families {
		families[i] = f.WithDefaults()
	}
	desc.Families = families
	if desc.RegionID == 0 {
		desc.RegionID = util.NewRegionID()
	}
	return desc, nil
}

// RegionName returns the name of a region following the table,startKey,id scheme.
func RegionName(table, startKey []byte, id uint64) []byte {
	return []byte(fmt.Sprintf("%s,%s,%d", table, startKey, id))
}

// Regions returns the regions of a table. Every table is served by exactly one
// region covering the whole row space.
func Regions(desc store.TableDescriptor) []store.RegionInfo {
	return []store.RegionInfo{{
		ID:       desc.RegionID,
		Name:     RegionName(desc.Name, nil, desc.RegionID),
		StartKey: []byte{},
		EndKey:   []byte{},
	}}
}

func (e *Engine) ListTables() ([][]byte, error) {
	prefix := metaPrefix()
	it, err := e.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, internalError(err, "list tables")
	}
	defer it.Close()

	var names [][]byte
	for ok := it.First(); ok; ok = it.Next() {
		names = append(names, tableFromMetaKey(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, internalError(err, "list tables")
	}
	return names, nil
}

func (e *Engine) TableExists(table []byte) (bool, error) {
	_, ok, err := e.db.Get(metaKey(table))
	if err != nil {
		return false, internalError(err, "read descriptor of %q", table)
	}
	return ok, nil
}

// Descriptor loads the descriptor of a table. It fails with RetCNotFound if the table does not exist.
func (e *Engine) Descriptor(table []byte) (store.TableDescriptor, error) {
	raw, ok, err := e.db.Get(metaKey(table))
	if err != nil {
		return store.TableDescriptor{}, internalError(err, "read descriptor of %q", table)
	}
	if !ok {
		return store.TableDescriptor{}, store.NewErrorf(store.RetCNotFound, "table %q does not exist", table)
	}
	var desc store.TableDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return store.TableDescriptor{}, internalError(err, "decode descriptor of %q", table)
	}
	return desc, nil
}

// CreateTable stores the descriptor of a new table.
// The descriptor should have been passed through PrepareDescriptor.
func (e *Engine) CreateTable(desc store.TableDescriptor) error {
	desc, err := PrepareDescriptor(desc)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	exists, err := e.TableExists(desc.Name)
	if err != nil {
		return err
	}
	if exists {
		return store.NewError(store.RetCAlreadyExists, "table name already in use")
	}

	raw, err := json.Marshal(desc)
	if err != nil {
		return internalError(err, "encode descriptor of %q", desc.Name)
	}
	if err := e.db.Set(metaKey(desc.Name), raw); err != nil {
		return internalError(err, "write descriptor of %q", desc.Name)
	}
	Logger.Debugf("created table %q with %d families", desc.Name, len(desc.Families))
	return nil
}

// DeleteTable removes the descriptor and every cell of a table in one batch.
func (e *Engine) DeleteTable(table []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	exists, err := e.TableExists(table)
	if err != nil {
		return err
	}
	if !exists {
		return store.NewErrorf(store.RetCNotFound, "table %q does not exist", table)
	}

	batch := e.db.NewBatch()
	defer batch.Close()

	prefix := tablePrefix(table)
	if err := batch.DeleteRange(prefix, prefixEnd(prefix)); err != nil {
		return internalError(err, "delete cells of %q", table)
	}
	if err := batch.Delete(metaKey(table)); err != nil {
		return internalError(err, "delete descriptor of %q", table)
	}
	if err := batch.Commit(); err != nil {
		return internalError(err, "delete table %q", table)
	}
	Logger.Debugf("deleted table %q", table)
	return nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// familyOf returns the family descriptor of a normalized column
func familyOf(desc store.TableDescriptor, column []byte) (store.ColumnDescriptor, error) {
	family, _, _ := store.SplitColumn(column)
	fam, ok := desc.Family(family)
	if !ok {
		return store.ColumnDescriptor{}, store.NewErrorf(store.RetCInvalidArgument,
			"unknown column family %q in table %q", family, desc.Name)
	}
	return fam, nil
}

// visible reports whether a version is still alive under the family's time to live
func visible(fam store.ColumnDescriptor, ts, now uint64) bool {
	if fam.TimeToLive == 0 {
		return true
	}
	ttl := uint64(fam.TimeToLive) * 1000
	return now < ttl || ts >= now-ttl
}

// Get returns up to versions versions of (row, column) with a timestamp <= ts, newest first.
func (e *Engine) Get(table, row, column []byte, ts uint64, versions uint32) ([]store.Cell, error) {
	desc, err := e.Descriptor(table)
	if err != nil {
		return nil, err
	}
	column = NormalizeColumn(column)
	fam, err := familyOf(desc, column)
	if err != nil {
		return nil, err
	}
	if versions == 0 {
		versions = 1
	}

	prefix := columnPrefix(table, row, column)
	it, err := e.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, internalError(err, "read %q/%q", row, column)
	}
	defer it.Close()

	now := e.clock()
	tp := tablePrefix(table)
	var cells []store.Cell
	for ok := it.SeekGE(cellKey(table, row, column, ts)); ok && uint32(len(cells)) < versions; ok = it.Next() {
		key, err := decodeCellKey(tp, it.Key())
		if err != nil {
			return nil, internalError(err, "read %q/%q", row, column)
		}
		// versions are ordered newest first, everything behind an expired one is expired too
		if !visible(fam, key.timestamp, now) {
			break
		}
		cells = append(cells, store.Cell{Column: column, Value: it.Value(), Timestamp: key.timestamp})
	}
	if err := it.Error(); err != nil {
		return nil, internalError(err, "read %q/%q", row, column)
	}
	return cells, nil
}

// GetRow returns the newest visible version <= ts of every column of row.
func (e *Engine) GetRow(table, row []byte, ts uint64) (store.RowResult, error) {
	desc, err := e.Descriptor(table)
	if err != nil {
		return store.RowResult{}, err
	}

	prefix := rowPrefix(table, row)
	it, err := e.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return store.RowResult{}, internalError(err, "read row %q", row)
	}
	defer it.Close()

	result := store.RowResult{Row: row}
	if !it.First() {
		if err := it.Error(); err != nil {
			return store.RowResult{}, internalError(err, "read row %q", row)
		}
		return result, nil
	}
	_, result.Cells, err = readRow(it, desc, columnFilter{}, ts, e.clock())
	if err != nil {
		return store.RowResult{}, err
	}
	return result, nil
}

// readRow collects the newest visible version <= ts of every selected column of the
// row the iterator is positioned on. The iterator is left on the first key behind the row.
func readRow(it db.Iterator, desc store.TableDescriptor, filter columnFilter, ts, now uint64) ([]byte, []store.Cell, error) {
	table := desc.Name
	tp := tablePrefix(table)

	first, err := decodeCellKey(tp, it.Key())
	if err != nil {
		return nil, nil, internalError(err, "scan %q", table)
	}
	row := first.row
	rp := rowPrefix(table, row)

	var cells []store.Cell
	for it.Valid() && bytes.HasPrefix(it.Key(), rp) {
		key, err := decodeCellKey(tp, it.Key())
		if err != nil {
			return nil, nil, internalError(err, "scan %q", table)
		}
		nextColumn := prefixEnd(columnPrefix(table, row, key.column))

		if key.timestamp > ts {
			// jump to the newest version inside the ceiling
			it.SeekGE(cellKey(table, row, key.column, ts))
			continue
		}

		if filter.matches(key.column) {
			family, _, _ := store.SplitColumn(key.column)
			if fam, ok := desc.Family(family); ok && visible(fam, key.timestamp, now) {
				cells = append(cells, store.Cell{Column: key.column, Value: it.Value(), Timestamp: key.timestamp})
			}
		}
		it.SeekGE(nextColumn)
	}
	if err := it.Error(); err != nil {
		return nil, nil, internalError(err, "scan %q", table)
	}
	return row, cells, nil
}

// validateFilter checks that every family referenced by a column filter exists
func validateFilter(desc store.TableDescriptor, filter columnFilter) error {
	for _, family := range filter.familyNames() {
		if _, ok := desc.Family(family); !ok {
			return store.NewErrorf(store.RetCInvalidArgument, "unknown column family %q in table %q", family, desc.Name)
		}
	}
	return nil
}

// NewScanner opens a scanner over the rows [start, stop) of a table.
// The scanner works on a snapshot taken when it is opened.
func (e *Engine) NewScanner(table []byte, columns [][]byte, start, stop []byte, ts uint64) (store.Scanner, error) {
	desc, err := e.Descriptor(table)
	if err != nil {
		return nil, err
	}
	filter := newColumnFilter(columns)
	if err := validateFilter(desc, filter); err != nil {
		return nil, err
	}

	s := &scanner{desc: desc, filter: filter, ts: ts, clock: e.clock}
	if len(stop) > 0 && bytes.Compare(start, stop) >= 0 {
		s.done = true
		return s, nil
	}

	lower := rowPrefix(table, start)
	upper := prefixEnd(tablePrefix(table))
	if len(stop) > 0 {
		upper = rowPrefix(table, stop)
	}
	s.it, err = e.db.NewIterator(lower, upper)
	if err != nil {
		return nil, internalError(err, "open scanner on %q", table)
	}
	return s, nil
}

// ScanRows reads up to limit rows of [start, stop). more is true if the limit was
// reached, in which case the next page starts right behind the last returned row.
func (e *Engine) ScanRows(table []byte, columns [][]byte, start, stop []byte, ts uint64, limit int) (rows []store.RowResult, more bool, err error) {
	s, err := e.NewScanner(table, columns, start, stop, ts)
	if err != nil {
		return nil, false, err
	}
	defer s.Close()

	for limit <= 0 || len(rows) < limit {
		row, ok, err := s.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return rows, false, nil
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

type scanner struct {
	it         db.Iterator
	desc       store.TableDescriptor
	filter     columnFilter
	ts         uint64
	clock      Clock
	positioned bool
	done       bool
}

func (s *scanner) Next() (store.RowResult, bool, error) {
	if s.done {
		return store.RowResult{}, false, nil
	}
	if !s.positioned {
		s.positioned = true
		s.it.First()
	}
	for s.it.Valid() {
		row, cells, err := readRow(s.it, s.desc, s.filter, s.ts, s.clock())
		if err != nil {
			return store.RowResult{}, false, err
		}
		if len(cells) > 0 {
			return store.RowResult{Row: row, Cells: cells}, true, nil
		}
	}
	if err := s.it.Error(); err != nil {
		return store.RowResult{}, false, internalError(err, "scan %q", s.desc.Name)
	}
	s.done = true
	return store.RowResult{}, false, nil
}

func (s *scanner) Close() error {
	s.done = true
	if s.it == nil {
		return nil
	}
	it := s.it
	s.it = nil
	return it.Close()
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// columnOp is the combined effect of a batch on one column
type columnOp struct {
	column []byte
	family store.ColumnDescriptor
	delete bool
	put    bool
	value  []byte
}

// Commit applies a batch update atomically. Deletes of a column remove every version
// <= the batch timestamp, puts write a version at the batch timestamp. A column that
// is both deleted and written in one batch ends up with the written value. Versions
// beyond the family's MaxVersions are removed in the same batch.
func (e *Engine) Commit(table []byte, update store.BatchUpdate) error {
	// the table must still exist when the batch is written
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	desc, err := e.Descriptor(table)
	if err != nil {
		return err
	}
	ts := e.ResolveTimestamp(update.Timestamp)

	// validate every mutation before anything is written
	var ops []*columnOp
	byColumn := make(map[string]*columnOp)
	for _, m := range update.Mutations {
		column := NormalizeColumn(m.Column)
		fam, err := familyOf(desc, column)
		if err != nil {
			return err
		}
		op, ok := byColumn[string(column)]
		if !ok {
			op = &columnOp{column: column, family: fam}
			byColumn[string(column)] = op
			ops = append(ops, op)
		}
		if m.IsDelete {
			op.delete = true
		} else {
			op.put = true
			op.value = m.Value
		}
	}
	if len(ops) == 0 {
		return nil
	}

	batch := e.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		prefix := columnPrefix(table, update.Row, op.column)
		if op.delete {
			if err := batch.DeleteRange(cellKey(table, update.Row, op.column, ts), prefixEnd(prefix)); err != nil {
				return internalError(err, "delete %q/%q", update.Row, op.column)
			}
		}
		if op.put {
			if err := e.putVersion(batch, table, update.Row, op, ts); err != nil {
				return err
			}
		}
	}

	if err := batch.Commit(); err != nil {
		return internalError(err, "commit %q/%q", table, update.Row)
	}
	return nil
}

// putVersion writes the version ts of a column and removes versions beyond MaxVersions.
func (e *Engine) putVersion(batch db.Batch, table, row []byte, op *columnOp, ts uint64) error {
	existing, err := e.versions(table, row, op.column)
	if err != nil {
		return err
	}

	all := []uint64{ts}
	for _, v := range existing {
		if v == ts || (op.delete && v <= ts) {
			continue
		}
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] > all[j] })

	writeNew := true
	if limit := int(op.family.MaxVersions); limit > 0 && len(all) > limit {
		for _, v := range all[limit:] {
			if v == ts {
				writeNew = false
				continue
			}
			if err := batch.Delete(cellKey(table, row, op.column, v)); err != nil {
				return internalError(err, "trim %q/%q", row, op.column)
			}
		}
	}

	if writeNew {
		if err := batch.Set(cellKey(table, row, op.column, ts), op.value); err != nil {
			return internalError(err, "put %q/%q", row, op.column)
		}
	}
	return nil
}

// versions returns the timestamps of all stored versions of a column
func (e *Engine) versions(table, row, column []byte) ([]uint64, error) {
	prefix := columnPrefix(table, row, column)
	it, err := e.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, internalError(err, "read versions of %q/%q", row, column)
	}
	defer it.Close()

	tp := tablePrefix(table)
	var out []uint64
	for ok := it.First(); ok; ok = it.Next() {
		key, err := decodeCellKey(tp, it.Key())
		if err != nil {
			return nil, internalError(err, "read versions of %q/%q", row, column)
		}
		out = append(out, key.timestamp)
	}
	if err := it.Error(); err != nil {
		return nil, internalError(err, "read versions of %q/%q", row, column)
	}
	return out, nil
}

// DeleteRow removes every version <= ts of every column of a row in one batch.
func (e *Engine) DeleteRow(table, row []byte, ts uint64) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	desc, err := e.Descriptor(table)
	if err != nil {
		return err
	}
	ts = e.ResolveTimestamp(ts)

	prefix := rowPrefix(table, row)
	it, err := e.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return internalError(err, "delete row %q", row)
	}
	defer it.Close()

	batch := e.db.NewBatch()
	defer batch.Close()

	tp := tablePrefix(desc.Name)
	for ok := it.First(); ok; {
		key, err := decodeCellKey(tp, it.Key())
		if err != nil {
			return internalError(err, "delete row %q", row)
		}
		columnEnd := prefixEnd(columnPrefix(table, row, key.column))
		if err := batch.DeleteRange(cellKey(table, row, key.column, ts), columnEnd); err != nil {
			return internalError(err, "delete row %q", row)
		}
		ok = it.SeekGE(columnEnd)
	}
	if err := it.Error(); err != nil {
		return internalError(err, "delete row %q", row)
	}

	if batch.Count() == 0 {
		return nil
	}
	if err := batch.Commit(); err != nil {
		return internalError(err, "delete row %q", row)
	}
	return nil
}
