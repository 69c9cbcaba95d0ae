// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: Defines write operations (CreateTable, DeleteTable, Commit,
//     DeleteRow) that modify the tables. Commands are serialized and proposed to the
//     RAFT cluster, executed on the state machine, and produce results that are returned
//     to the client.
//
//   - Query System: Defines read operations (Get, GetRow, ScanRows, ...) that read the
//     tables without modifying them. Queries are executed locally on the state machine
//     and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: Timestamp (uint64, big endian), resolved by the proposing node
//	- 4 bytes: Table length (uint32, big endian), followed by the table name
//	- 4 bytes: Row length (uint32, big endian), followed by the row key
//	- M bytes: Payload (optional)
//
//	The payload of CreateTable is the JSON encoded table descriptor (including its
//	region id). The payload of Commit is a count followed by length prefixed mutations.
//	Everything a replica needs to apply a command is part of the entry, so all
//	replicas end up with the same cells.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
