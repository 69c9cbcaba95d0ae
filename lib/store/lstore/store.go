package lstore

import (
	"bytes"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/tablet"
)

const (
	readFeatures  = db.FeatureGet | db.FeatureIterate
	writeFeatures = db.FeatureSet | db.FeatureBatch | db.FeatureDeleteRange
)

type storeImpl struct {
	db     db.KVDB
	engine *tablet.Engine
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The table engine works on the db created by the factory directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	kvdb := factory()
	return &storeImpl{
		db:     kvdb,
		engine: tablet.NewEngine(kvdb, nil),
	}
}

// requireFeature returns an RetCUnsupportedOperation error if the db lacks a feature
func (s *storeImpl) requireFeature(feature db.Feature, op string) error {
	if !s.db.SupportsFeature(feature) {
		return store.NewErrorf(store.RetCUnsupportedOperation, "%s operation is not supported", op)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ListTables() ([][]byte, error) {
	if err := s.requireFeature(readFeatures, "ListTables"); err != nil {
		return nil, err
	}
	return s.engine.ListTables()
}

func (s *storeImpl) TableExists(name []byte) (bool, error) {
	if err := s.requireFeature(readFeatures, "TableExists"); err != nil {
		return false, err
	}
	return s.engine.TableExists(name)
}

func (s *storeImpl) CreateTable(desc store.TableDescriptor) error {
	if err := s.requireFeature(writeFeatures, "CreateTable"); err != nil {
		return err
	}
	return s.engine.CreateTable(desc)
}

func (s *storeImpl) DeleteTable(name []byte) error {
	if err := s.requireFeature(writeFeatures, "DeleteTable"); err != nil {
		return err
	}
	return s.engine.DeleteTable(name)
}

func (s *storeImpl) Table(name []byte) (store.ITable, error) {
	if err := s.requireFeature(readFeatures|writeFeatures, "Table"); err != nil {
		return nil, err
	}
	exists, err := s.engine.TableExists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.NewErrorf(store.RetCNotFound, "table %q does not exist", name)
	}
	return &tableImpl{engine: s.engine, name: bytes.Clone(name)}, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Table handle
// --------------------------------------------------------------------------

type tableImpl struct {
	engine *tablet.Engine
	name   []byte
}

func (t *tableImpl) Name() []byte {
	return t.name
}

func (t *tableImpl) Descriptor() (store.TableDescriptor, error) {
	return t.engine.Descriptor(t.name)
}

func (t *tableImpl) Regions() ([]store.RegionInfo, error) {
	desc, err := t.engine.Descriptor(t.name)
	if err != nil {
		return nil, err
	}
	return tablet.Regions(desc), nil
}

func (t *tableImpl) Get(row, column []byte, ts uint64, versions uint32) ([]store.Cell, error) {
	return t.engine.Get(t.name, row, column, ts, versions)
}

func (t *tableImpl) GetRow(row []byte, ts uint64) (store.RowResult, error) {
	return t.engine.GetRow(t.name, row, ts)
}

func (t *tableImpl) Commit(update store.BatchUpdate) error {
	return t.engine.Commit(t.name, update)
}

func (t *tableImpl) DeleteAll(row, column []byte, ts uint64) error {
	return t.engine.Commit(t.name, store.BatchUpdate{
		Row:       row,
		Timestamp: ts,
		Mutations: []store.Mutation{{IsDelete: true, Column: column}},
	})
}

func (t *tableImpl) DeleteRow(row []byte, ts uint64) error {
	return t.engine.DeleteRow(t.name, row, ts)
}

func (t *tableImpl) Scanner(columns [][]byte, start, stop []byte, ts uint64) (store.Scanner, error) {
	return t.engine.NewScanner(t.name, columns, start, stop, ts)
}
