package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/dstore/internal"
	"github.com/ValentinKolb/rKV/lib/store/tablet"
	"github.com/cockroachdb/errors"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TableStateMachine is a state machine implementation for Dragonboat RAFT.
// It runs the tablet engine on its own db.KVDB.
type TableStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB
	engine    *tablet.Engine
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database := dbFactory()
		return &TableStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
			// the clock is only used for time to live checks on reads,
			// write timestamps are part of the log entries
			engine: tablet.NewEngine(database, nil),
		}
	}
}

// Lookup handles read-only queries by mapping each Query to the corresponding engine method.
func (fsm *TableStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	if q.Type != internal.QueryTGetDBInfo && !fsm.database.SupportsFeature(db.FeatureGet|db.FeatureIterate) {
		return nil, store.NewErrorf(store.RetCUnsupportedOperation, "%s operation is not supported", q.Type)
	}

	switch q.Type {
	case internal.QueryTListTables:
		return fsm.engine.ListTables()
	case internal.QueryTTableExists:
		return fsm.engine.TableExists(q.Table)
	case internal.QueryTDescriptor:
		return fsm.engine.Descriptor(q.Table)
	case internal.QueryTGet:
		return fsm.engine.Get(q.Table, q.Row, q.Column, q.Timestamp, q.Versions)
	case internal.QueryTGetRow:
		return fsm.engine.GetRow(q.Table, q.Row, q.Timestamp)
	case internal.QueryTScanRows:
		rows, more, err := fsm.engine.ScanRows(q.Table, q.Columns, q.Row, q.StopRow, q.Timestamp, q.Limit)
		if err != nil {
			return nil, err
		}
		return internal.ScanResult{Rows: rows, More: more}, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// apply executes a single command on the engine
func (fsm *TableStateMachine) apply(cmd internal.Command) error {
	switch cmd.Type {
	case internal.CommandTCreateTable:
		desc, err := internal.DecodeDescriptor(cmd.Payload)
		if err != nil {
			return store.NewErrorf(store.RetCInvalidArgument, "invalid table descriptor: %v", err)
		}
		return fsm.engine.CreateTable(desc)
	case internal.CommandTDeleteTable:
		return fsm.engine.DeleteTable(cmd.Table)
	case internal.CommandTCommit:
		mutations, err := internal.DecodeMutations(cmd.Payload)
		if err != nil {
			return store.NewErrorf(store.RetCInvalidArgument, "invalid mutations: %v", err)
		}
		return fsm.engine.Commit(cmd.Table, store.BatchUpdate{
			Row:       cmd.Row,
			Timestamp: cmd.Timestamp,
			Mutations: mutations,
		})
	case internal.CommandTDeleteRow:
		return fsm.engine.DeleteRow(cmd.Table, cmd.Row, cmd.Timestamp)
	default:
		return store.NewErrorf(store.RetCInvalidOperation, "unknown Command operation: %s", cmd.Type)
	}
}

// result converts the outcome of a command into a raft result
func result(err error, cmd internal.Command) sm.Result {
	if err == nil {
		return sm.Result{
			Value: uint64(store.RetCSuccess),
			Data:  []byte(fmt.Sprintf("%s: table=%s", cmd.Type, cmd.Table)),
		}
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return sm.Result{Value: uint64(storeErr.Code), Data: []byte(storeErr.Msg)}
	}
	return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(err.Error())}
}

// Update handles write commands on the engine.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *TableStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		// Check if the db supports the operation
		feat, err := cmd.Type.ToDBFeature()
		if err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
			}
			continue
		}

		entries[idx].Result = result(fsm.apply(cmd), cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot is not used. The db save runs on its own consistent iterator.
func (fsm *TableStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes a db snapshot to the writer
func (fsm *TableStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the db content with a snapshot.
func (fsm *TableStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *TableStateMachine) Close() error {
	return fsm.database.Close()
}
