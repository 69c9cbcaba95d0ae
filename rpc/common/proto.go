package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/rKV/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Table       []byte                   `json:"table,omitempty"`        // Used for: all table operations
	Row         []byte                   `json:"row,omitempty"`          // Used for: row operations, start row of scanners, row of ScannerGet/GetRow responses
	Column      []byte                   `json:"column,omitempty"`       // Used for: Get*, Put, DeleteAll*
	StopRow     []byte                   `json:"stop_row,omitempty"`     // Used for: ScannerOpenWithStop*
	Columns     [][]byte                 `json:"columns,omitempty"`      // Used for: ScannerOpen* (column filter)
	Value       []byte                   `json:"value,omitempty"`        // Used for: Put (request), Get (response)
	Timestamp   uint64                   `json:"timestamp,omitempty"`    // Used for: *Ts operations
	NumVersions int32                    `json:"num_versions,omitempty"` // Used for: GetVer*
	ScannerID   uint32                   `json:"scanner_id,omitempty"`   // Used for: ScannerGet, ScannerClose, ScannerOpen* (response)
	Mutations   []store.Mutation         `json:"mutations,omitempty"`    // Used for: MutateRow*
	Families    []store.ColumnDescriptor `json:"families,omitempty"`     // Used for: CreateTable (request), GetColumnDescriptors (response)

	// Response only fields
	Values  [][]byte           `json:"values,omitempty"`   // Used for: GetVer*, GetTableNames responses
	Regions []store.RegionInfo `json:"regions,omitempty"`  // Used for: GetTableRegions response
	Cells   []store.Cell       `json:"cells,omitempty"`    // Used for: GetRow*, ScannerGet responses
	Ok      bool               `json:"ok,omitempty"`       // Used for: responses without payload
	ErrCode ErrorCode          `json:"err_code,omitempty"` // Zero if no error, otherwise the error category
	Err     string             `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

// NewGetTableNamesRequest creates a new GetTableNames request
func NewGetTableNamesRequest() *Message {
	return &Message{MsgType: MsgTGetTableNames}
}

// NewGetTableRegionsRequest creates a new GetTableRegions request
func NewGetTableRegionsRequest(table []byte) *Message {
	return &Message{MsgType: MsgTGetTableRegions, Table: table}
}

// NewGetColumnDescriptorsRequest creates a new GetColumnDescriptors request
func NewGetColumnDescriptorsRequest(table []byte) *Message {
	return &Message{MsgType: MsgTGetColumnDescriptors, Table: table}
}

// NewGetRequest creates a new Get request
func NewGetRequest(table, row, column []byte) *Message {
	return &Message{MsgType: MsgTGet, Table: table, Row: row, Column: column}
}

// NewGetVerRequest creates a new GetVer request
func NewGetVerRequest(table, row, column []byte, numVersions int32) *Message {
	return &Message{MsgType: MsgTGetVer, Table: table, Row: row, Column: column, NumVersions: numVersions}
}

// NewGetVerTsRequest creates a new GetVerTs request
func NewGetVerTsRequest(table, row, column []byte, ts uint64, numVersions int32) *Message {
	return &Message{MsgType: MsgTGetVerTs, Table: table, Row: row, Column: column, Timestamp: ts, NumVersions: numVersions}
}

// NewGetRowRequest creates a new GetRow request
func NewGetRowRequest(table, row []byte) *Message {
	return &Message{MsgType: MsgTGetRow, Table: table, Row: row}
}

// NewGetRowTsRequest creates a new GetRowTs request
func NewGetRowTsRequest(table, row []byte, ts uint64) *Message {
	return &Message{MsgType: MsgTGetRowTs, Table: table, Row: row, Timestamp: ts}
}

// NewPutRequest creates a new Put request
func NewPutRequest(table, row, column, value []byte) *Message {
	if value == nil {
		value = []byte{}
	}
	return &Message{MsgType: MsgTPut, Table: table, Row: row, Column: column, Value: value}
}

// NewDeleteAllRequest creates a new DeleteAll request
func NewDeleteAllRequest(table, row, column []byte) *Message {
	return &Message{MsgType: MsgTDeleteAll, Table: table, Row: row, Column: column}
}

// NewDeleteAllTsRequest creates a new DeleteAllTs request
func NewDeleteAllTsRequest(table, row, column []byte, ts uint64) *Message {
	return &Message{MsgType: MsgTDeleteAllTs, Table: table, Row: row, Column: column, Timestamp: ts}
}

// NewDeleteAllRowRequest creates a new DeleteAllRow request
func NewDeleteAllRowRequest(table, row []byte) *Message {
	return &Message{MsgType: MsgTDeleteAllRow, Table: table, Row: row}
}

// NewDeleteAllRowTsRequest creates a new DeleteAllRowTs request
func NewDeleteAllRowTsRequest(table, row []byte, ts uint64) *Message {
	return &Message{MsgType: MsgTDeleteAllRowTs, Table: table, Row: row, Timestamp: ts}
}

// NewMutateRowRequest creates a new MutateRow request
func NewMutateRowRequest(table, row []byte, mutations []store.Mutation) *Message {
	return &Message{MsgType: MsgTMutateRow, Table: table, Row: row, Mutations: mutations}
}

// NewMutateRowTsRequest creates a new MutateRowTs request
func NewMutateRowTsRequest(table, row []byte, mutations []store.Mutation, ts uint64) *Message {
	return &Message{MsgType: MsgTMutateRowTs, Table: table, Row: row, Mutations: mutations, Timestamp: ts}
}

// NewCreateTableRequest creates a new CreateTable request
func NewCreateTableRequest(table []byte, families []store.ColumnDescriptor) *Message {
	return &Message{MsgType: MsgTCreateTable, Table: table, Families: families}
}

// NewDeleteTableRequest creates a new DeleteTable request
func NewDeleteTableRequest(table []byte) *Message {
	return &Message{MsgType: MsgTDeleteTable, Table: table}
}

// NewScannerOpenRequest creates a new ScannerOpen request
func NewScannerOpenRequest(table, startRow []byte, columns [][]byte) *Message {
	return &Message{MsgType: MsgTScannerOpen, Table: table, Row: startRow, Columns: columns}
}

// NewScannerOpenWithStopRequest creates a new ScannerOpenWithStop request
func NewScannerOpenWithStopRequest(table, startRow, stopRow []byte, columns [][]byte) *Message {
	return &Message{MsgType: MsgTScannerOpenWithStop, Table: table, Row: startRow, StopRow: stopRow, Columns: columns}
}

// NewScannerOpenTsRequest creates a new ScannerOpenTs request
func NewScannerOpenTsRequest(table, startRow []byte, columns [][]byte, ts uint64) *Message {
	return &Message{MsgType: MsgTScannerOpenTs, Table: table, Row: startRow, Columns: columns, Timestamp: ts}
}

// NewScannerOpenWithStopTsRequest creates a new ScannerOpenWithStopTs request
func NewScannerOpenWithStopTsRequest(table, startRow, stopRow []byte, columns [][]byte, ts uint64) *Message {
	return &Message{MsgType: MsgTScannerOpenWithStopTs, Table: table, Row: startRow, StopRow: stopRow, Columns: columns, Timestamp: ts}
}

// NewScannerGetRequest creates a new ScannerGet request
func NewScannerGetRequest(id uint32) *Message {
	return &Message{MsgType: MsgTScannerGet, ScannerID: id}
}

// NewScannerCloseRequest creates a new ScannerClose request
func NewScannerCloseRequest(id uint32) *Message {
	return &Message{MsgType: MsgTScannerClose, ScannerID: id}
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// NewResponse creates an empty successful response for a request type
func NewResponse(t MessageType) *Message {
	return &Message{MsgType: t, Ok: true}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code ErrorCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		ErrCode: code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// ErrorCode is the error category carried by error responses.
// The values match gateway.Category.
type ErrorCode uint8

const (
	ErrCNone            ErrorCode = iota // No error
	ErrCIOError                          // Store or communication failure
	ErrCIllegalArgument                  // Malformed request
	ErrCNotFound                         // Entity absent or scanner exhausted
	ErrCAlreadyExists                    // Conflicting table creation
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCNone:
		return "none"
	case ErrCIOError:
		return "IOError"
	case ErrCIllegalArgument:
		return "IllegalArgument"
	case ErrCNotFound:
		return "NotFound"
	case ErrCAlreadyExists:
		return "AlreadyExists"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:               "success",
	MsgTError:                 "error",
	MsgTGetTableNames:         "getTableNames",
	MsgTGetTableRegions:       "getTableRegions",
	MsgTGetColumnDescriptors:  "getColumnDescriptors",
	MsgTGet:                   "get",
	MsgTGetVer:                "getVer",
	MsgTGetVerTs:              "getVerTs",
	MsgTGetRow:                "getRow",
	MsgTGetRowTs:              "getRowTs",
	MsgTPut:                   "put",
	MsgTDeleteAll:             "deleteAll",
	MsgTDeleteAllTs:           "deleteAllTs",
	MsgTDeleteAllRow:          "deleteAllRow",
	MsgTDeleteAllRowTs:        "deleteAllRowTs",
	MsgTMutateRow:             "mutateRow",
	MsgTMutateRowTs:           "mutateRowTs",
	MsgTCreateTable:           "createTable",
	MsgTDeleteTable:           "deleteTable",
	MsgTScannerOpen:           "scannerOpen",
	MsgTScannerOpenWithStop:   "scannerOpenWithStop",
	MsgTScannerOpenTs:         "scannerOpenTs",
	MsgTScannerOpenWithStopTs: "scannerOpenWithStopTs",
	MsgTScannerGet:            "scannerGet",
	MsgTScannerClose:          "scannerClose",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "unknown" {
		*t = MsgTUnknown
		return nil
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Schema introspection

	MsgTGetTableNames        // List all tables
	MsgTGetTableRegions      // List the regions of a table
	MsgTGetColumnDescriptors // List the column families of a table

	// Reads

	MsgTGet      // Newest value of a cell
	MsgTGetVer   // Several versions of a cell
	MsgTGetVerTs // Several versions of a cell at or before a timestamp
	MsgTGetRow   // Newest values of a row
	MsgTGetRowTs // Values of a row at or before a timestamp

	// Writes

	MsgTPut            // Write one cell
	MsgTDeleteAll      // Delete all versions of a cell
	MsgTDeleteAllTs    // Delete all versions of a cell at or before a timestamp
	MsgTDeleteAllRow   // Delete a row
	MsgTDeleteAllRowTs // Delete a row at or before a timestamp
	MsgTMutateRow      // Apply a batch of mutations to a row
	MsgTMutateRowTs    // Apply a batch of mutations to a row at a timestamp

	// Schema mutation

	MsgTCreateTable // Create a table
	MsgTDeleteTable // Delete a table

	// Scanners

	MsgTScannerOpen           // Open a scanner
	MsgTScannerOpenWithStop   // Open a scanner with a stop row
	MsgTScannerOpenTs         // Open a scanner at a timestamp
	MsgTScannerOpenWithStopTs // Open a scanner with a stop row at a timestamp
	MsgTScannerGet            // Fetch the next row of a scanner
	MsgTScannerClose          // Close a scanner
)
