package gateway

import "github.com/ValentinKolb/rKV/lib/store"

// IGateway is the operation set exposed to remote callers. Every method returns
// either nil or a *Error, never any other error type.
//
// Identifiers (table names, rows, columns) must be valid UTF-8; table names must not
// be empty. Timestamps are milliseconds, store.LatestTimestamp selects the newest
// versions on reads and "now" on writes.
type IGateway interface {

	// GetTableNames returns the names of all tables in ascending order
	GetTableNames() ([][]byte, error)

	// GetTableRegions returns the regions serving a table
	GetTableRegions(table []byte) ([]store.RegionInfo, error)

	// GetColumnDescriptors returns the column families of a table
	GetColumnDescriptors(table []byte) ([]store.ColumnDescriptor, error)

	// Get returns the newest value of a cell, NotFound if the cell has no version
	Get(table, row, column []byte) ([]byte, error)

	// GetVer returns up to numVersions values of a cell, newest first.
	// NotFound if the cell has no version, IllegalArgument if numVersions < 1.
	GetVer(table, row, column []byte, numVersions int32) ([][]byte, error)

	// GetVerTs is GetVer restricted to versions at or before ts
	GetVerTs(table, row, column []byte, ts uint64, numVersions int32) ([][]byte, error)

	// GetRow returns the newest value of every column of a row.
	// A row without cells is returned as an empty row, not as NotFound.
	GetRow(table, row []byte) (store.RowResult, error)

	// GetRowTs is GetRow restricted to versions at or before ts
	GetRowTs(table, row []byte, ts uint64) (store.RowResult, error)

	// Put writes one value at the current time
	Put(table, row, column, value []byte) error

	// DeleteAll deletes every version of a cell
	DeleteAll(table, row, column []byte) error

	// DeleteAllTs deletes every version of a cell at or before ts
	DeleteAllTs(table, row, column []byte, ts uint64) error

	// DeleteAllRow deletes every cell of a row
	DeleteAllRow(table, row []byte) error

	// DeleteAllRowTs deletes every cell of a row at or before ts
	DeleteAllRowTs(table, row []byte, ts uint64) error

	// MutateRow applies puts and deletes to one row atomically at the current time
	MutateRow(table, row []byte, mutations []store.Mutation) error

	// MutateRowTs applies puts and deletes to one row atomically at ts
	MutateRowTs(table, row []byte, mutations []store.Mutation, ts uint64) error

	// CreateTable creates a table, AlreadyExists if the name is taken
	CreateTable(table []byte, families []store.ColumnDescriptor) error

	// DeleteTable drops a table and all its cells, NotFound if it does not exist
	DeleteTable(table []byte) error

	// ScannerOpen opens a scanner over the rows >= startRow. An empty column list
	// selects all columns, "family:" selects a whole family.
	ScannerOpen(table, startRow []byte, columns [][]byte) (ScannerID, error)

	// ScannerOpenWithStop opens a scanner over the rows [startRow, stopRow)
	ScannerOpenWithStop(table, startRow, stopRow []byte, columns [][]byte) (ScannerID, error)

	// ScannerOpenTs opens a scanner over the rows >= startRow reading versions at or before ts
	ScannerOpenTs(table, startRow []byte, columns [][]byte, ts uint64) (ScannerID, error)

	// ScannerOpenWithStopTs opens a scanner over the rows [startRow, stopRow) reading versions at or before ts
	ScannerOpenWithStopTs(table, startRow, stopRow []byte, columns [][]byte, ts uint64) (ScannerID, error)

	// ScannerGet returns the next row of a scanner. NotFound once the scanner is
	// exhausted (again on every later call), IllegalArgument for an unknown id.
	ScannerGet(id ScannerID) (store.RowResult, error)

	// ScannerClose closes a scanner, IllegalArgument for an unknown id
	ScannerClose(id ScannerID) error

	// Close closes all open scanners. The gateway must not be used afterwards.
	Close() error
}
