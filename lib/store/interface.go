package store

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the store client library: table administration plus a factory
// for per-call table handles.
// Failures are returned as *Error so callers can switch on the RetCode.
type IStore interface {
	// ListTables returns the names of all tables in ascending order.
	ListTables() (names [][]byte, err error)
	// TableExists reports whether a table with the given name exists.
	TableExists(name []byte) (ok bool, err error)
	// CreateTable creates a table. It fails with RetCAlreadyExists if the name is taken
	// and with RetCInvalidArgument if the descriptor is malformed.
	CreateTable(desc TableDescriptor) (err error)
	// DeleteTable removes a table and all its cells. It fails with RetCNotFound if the
	// table does not exist.
	DeleteTable(name []byte) (err error)
	// Table returns a fresh handle for the named table. It fails with RetCNotFound if
	// the table does not exist.
	Table(name []byte) (table ITable, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases all resources held by the store.
	Close() (err error)
}

// ITable is a handle for one table. Handles are cheap and created per call.
// Timestamps passed to reads are ceilings; LatestTimestamp means "no ceiling".
// Timestamps passed to writes are the version to write; LatestTimestamp means "now".
type ITable interface {
	// Name returns the table name.
	Name() (name []byte)
	// Descriptor returns the schema of the table.
	Descriptor() (desc TableDescriptor, err error)
	// Regions returns the regions serving the table.
	Regions() (regions []RegionInfo, err error)
	// Get returns up to versions cells of (row, column) with a timestamp <= ts, newest first.
	// An empty result means the cell does not exist under the given constraints.
	Get(row, column []byte, ts uint64, versions uint32) (cells []Cell, err error)
	// GetRow returns the newest visible version <= ts of every column of a row.
	// A row without visible cells yields a RowResult with no cells.
	GetRow(row []byte, ts uint64) (result RowResult, err error)
	// Commit applies all mutations of the update atomically at one timestamp.
	Commit(update BatchUpdate) (err error)
	// DeleteAll removes every version of (row, column) with a timestamp <= ts.
	DeleteAll(row, column []byte, ts uint64) (err error)
	// DeleteRow removes every version of every column of row with a timestamp <= ts.
	DeleteRow(row []byte, ts uint64) (err error)
	// Scanner opens a cursor over the rows in [start, stop). An empty stop means
	// "until the end of the table". columns restricts the returned cells; an entry of
	// the form "family:" selects the whole family, an empty list selects everything.
	Scanner(columns [][]byte, start, stop []byte, ts uint64) (scanner Scanner, err error)
}

// Scanner is a cursor over the rows of a table in ascending row order.
// A Scanner is not safe for concurrent use.
type Scanner interface {
	// Next returns the next row. ok is false once the scanner is exhausted;
	// further calls keep returning ok=false.
	Next() (result RowResult, ok bool, err error)
	// Close releases the resources of the scanner. Closing twice is a no-op.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewErrorf creates a new store error with a formatted message.
func NewErrorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCNotFound                            // 4: Table, row or cell does not exist.
	RetCAlreadyExists                       // 5: Table name already in use.
	RetCInvalidArgument                     // 6: Malformed argument (unknown family, bad descriptor, ...).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCAlreadyExists:
		return "AlreadyExists"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}
