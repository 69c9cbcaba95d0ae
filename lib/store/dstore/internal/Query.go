package internal

import "github.com/ValentinKolb/rKV/lib/store"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTListTables  QueryType = iota // List all table names.
	QueryTTableExists                  // Check if a table exists.
	QueryTDescriptor                   // Retrieve the descriptor of a table.
	QueryTGet                          // Retrieve versions of one cell.
	QueryTGetRow                       // Retrieve the snapshot of a row.
	QueryTScanRows                     // Retrieve one page of rows.
	QueryTGetDBInfo                    // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTListTables:
		return "ListTables"
	case QueryTTableExists:
		return "TableExists"
	case QueryTDescriptor:
		return "Descriptor"
	case QueryTGet:
		return "Get"
	case QueryTGetRow:
		return "GetRow"
	case QueryTScanRows:
		return "ScanRows"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale.
// Unused fields are left empty.
type Query struct {
	Type      QueryType
	Table     []byte
	Row       []byte // row for Get/GetRow, first row for ScanRows
	Column    []byte
	StopRow   []byte
	Columns   [][]byte
	Timestamp uint64
	Versions  uint32
	Limit     int
}

// ScanResult is the result of a QueryTScanRows query.
// All other query results are primitive types or predefined structs ([][]byte, bool,
// store.TableDescriptor, []store.Cell, store.RowResult, db.DatabaseInfo).
type ScanResult struct {
	Rows []store.RowResult
	More bool
}
