package dstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/dstore/internal"
	"github.com/ValentinKolb/rKV/lib/store/tablet"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

// DefaultScanBatchSize is the number of rows a scanner fetches per read
const DefaultScanBatchSize = 100

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the replicated store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh            *dragonboat.NodeHost
	shardID       uint64
	cs            *client.Session
	timeout       time.Duration
	scanBatchSize int
	clock         tablet.Clock
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. Scanners fetch scanBatchSize rows per read (DefaultScanBatchSize if < 1).
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, scanBatchSize int) store.IStore {
	if scanBatchSize < 1 {
		scanBatchSize = DefaultScanBatchSize
	}
	return &storeImpl{
		nh:            nh,
		shardID:       shardID,
		cs:            nh.GetNoOPSession(shardID),
		timeout:       timeout,
		scanBatchSize: scanBatchSize,
		clock:         tablet.WallClock,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns a *store.Error if an error occurs, or nil on success.
func (s *storeImpl) write(cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			// errors returned by the state machine are passed through
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return zero, storeErr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// resolve replaces store.LatestTimestamp by the local time, so that every replica
// applies the same timestamp
func (s *storeImpl) resolve(ts uint64) uint64 {
	if ts == store.LatestTimestamp {
		return s.clock()
	}
	return ts
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ListTables() ([][]byte, error) {
	return read[[][]byte](s, internal.Query{Type: internal.QueryTListTables}, false)
}

func (s *storeImpl) TableExists(name []byte) (bool, error) {
	return read[bool](s, internal.Query{Type: internal.QueryTTableExists, Table: name}, false)
}

func (s *storeImpl) CreateTable(desc store.TableDescriptor) error {
	// the region id is drawn here, replicas must not generate their own
	desc, err := tablet.PrepareDescriptor(desc)
	if err != nil {
		return err
	}
	payload, err := internal.EncodeDescriptor(desc)
	if err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return s.write(internal.Command{
		Type:    internal.CommandTCreateTable,
		Table:   desc.Name,
		Payload: payload,
	})
}

func (s *storeImpl) DeleteTable(name []byte) error {
	return s.write(internal.Command{
		Type:  internal.CommandTDeleteTable,
		Table: name,
	})
}

func (s *storeImpl) Table(name []byte) (store.ITable, error) {
	exists, err := s.TableExists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.NewErrorf(store.RetCNotFound, "table %q does not exist", name)
	}
	return &tableImpl{s: s, name: bytes.Clone(name)}, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

// Close does nothing, the node host is owned by the caller
func (s *storeImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Table handle
// --------------------------------------------------------------------------

type tableImpl struct {
	s    *storeImpl
	name []byte
}

func (t *tableImpl) Name() []byte {
	return t.name
}

func (t *tableImpl) Descriptor() (store.TableDescriptor, error) {
	return read[store.TableDescriptor](t.s, internal.Query{Type: internal.QueryTDescriptor, Table: t.name}, false)
}

func (t *tableImpl) Regions() ([]store.RegionInfo, error) {
	desc, err := t.Descriptor()
	if err != nil {
		return nil, err
	}
	return tablet.Regions(desc), nil
}

func (t *tableImpl) Get(row, column []byte, ts uint64, versions uint32) ([]store.Cell, error) {
	return read[[]store.Cell](t.s, internal.Query{
		Type:      internal.QueryTGet,
		Table:     t.name,
		Row:       row,
		Column:    column,
		Timestamp: ts,
		Versions:  versions,
	}, false)
}

func (t *tableImpl) GetRow(row []byte, ts uint64) (store.RowResult, error) {
	return read[store.RowResult](t.s, internal.Query{
		Type:      internal.QueryTGetRow,
		Table:     t.name,
		Row:       row,
		Timestamp: ts,
	}, false)
}

func (t *tableImpl) Commit(update store.BatchUpdate) error {
	return t.s.write(internal.Command{
		Type:      internal.CommandTCommit,
		Timestamp: t.s.resolve(update.Timestamp),
		Table:     t.name,
		Row:       update.Row,
		Payload:   internal.EncodeMutations(update.Mutations),
	})
}

func (t *tableImpl) DeleteAll(row, column []byte, ts uint64) error {
	return t.Commit(store.BatchUpdate{
		Row:       row,
		Timestamp: ts,
		Mutations: []store.Mutation{{IsDelete: true, Column: column}},
	})
}

func (t *tableImpl) DeleteRow(row []byte, ts uint64) error {
	return t.s.write(internal.Command{
		Type:      internal.CommandTDeleteRow,
		Timestamp: t.s.resolve(ts),
		Table:     t.name,
		Row:       row,
	})
}

func (t *tableImpl) Scanner(columns [][]byte, start, stop []byte, ts uint64) (store.Scanner, error) {
	sc := &pagingScanner{
		table:   t,
		columns: columns,
		next:    bytes.Clone(start),
		stop:    bytes.Clone(stop),
		ts:      ts,
	}
	// the first page is read eagerly so that an unknown table or column family fails here
	if err := sc.fetch(); err != nil {
		return nil, err
	}
	return sc, nil
}

// --------------------------------------------------------------------------
// Scanner
// --------------------------------------------------------------------------

// pagingScanner reads a table in pages of scanBatchSize rows. Every page is a
// linearizable read of its own, the scanner is not a snapshot of the table.
type pagingScanner struct {
	table   *tableImpl
	columns [][]byte
	next    []byte // first row of the next page
	stop    []byte
	ts      uint64
	buf     []store.RowResult
	more    bool
	closed  bool
}

func (sc *pagingScanner) fetch() error {
	res, err := read[internal.ScanResult](sc.table.s, internal.Query{
		Type:      internal.QueryTScanRows,
		Table:     sc.table.name,
		Row:       sc.next,
		StopRow:   sc.stop,
		Columns:   sc.columns,
		Timestamp: sc.ts,
		Limit:     sc.table.s.scanBatchSize,
	}, false)
	if err != nil {
		return err
	}
	sc.buf = res.Rows
	sc.more = res.More && len(res.Rows) > 0
	if len(res.Rows) > 0 {
		// the smallest key greater than the last row
		last := res.Rows[len(res.Rows)-1].Row
		sc.next = append(bytes.Clone(last), 0x00)
	}
	return nil
}

func (sc *pagingScanner) Next() (store.RowResult, bool, error) {
	if sc.closed {
		return store.RowResult{}, false, nil
	}
	for len(sc.buf) == 0 {
		if !sc.more {
			return store.RowResult{}, false, nil
		}
		if err := sc.fetch(); err != nil {
			return store.RowResult{}, false, err
		}
	}
	row := sc.buf[0]
	sc.buf = sc.buf[1:]
	return row, true, nil
}

func (sc *pagingScanner) Close() error {
	sc.closed = true
	sc.buf = nil
	return nil
}
