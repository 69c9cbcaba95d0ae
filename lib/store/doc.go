// Package store provides the table store abstraction used by the gateway: tables
// with column families, versioned cells, atomic row mutations and scanners, plus
// unified error handling. It sits on top of the lower-level db.KVDB implementations.
//
// Key Components:
//
//   - IStore Interface: administration of tables (create, delete, list) and the
//     factory for table handles. All implementations share this interface, so the
//     gateway does not care whether it talks to a local or a replicated store.
//
//   - ITable Interface: the per-table operations. Get and GetRow read versions at or
//     before a timestamp, Commit applies a BatchUpdate atomically, Scanner walks rows
//     in ascending key order. A table handle is cheap and can be requested per call.
//
//   - Data Types: Cell, RowResult, Mutation, BatchUpdate, ColumnDescriptor,
//     TableDescriptor and RegionInfo. Columns are named "family:qualifier"; a filter
//     entry "family:" selects the whole family. LatestTimestamp on a read means "newest",
//     on a write it means "now".
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     (RetCNotFound, RetCAlreadyExists, RetCInvalidArgument, ...) and descriptive
//     messages, so callers can map store failures to their own error categories.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances, providing dependency injection and flexible configuration of
//     storage backends.
//
// Implementations:
//
//	- Local Store (lstore): runs the tablet engine directly on one db.KVDB instance.
//	  Scanners are snapshots backed by db iterators.
//	  Available in the "github.com/ValentinKolb/rKV/lib/store/lstore" package.
//
//	- Distributed Store (dstore): runs the tablet engine inside a Dragonboat RAFT
//	  state machine on every replica. Writes are proposed to the cluster, reads are
//	  linearizable, scanners page through the table.
//	  Available in the "github.com/ValentinKolb/rKV/lib/store/dstore" package.
//
// Both implementations are tested against the shared suite in lib/store/testing.
package store
