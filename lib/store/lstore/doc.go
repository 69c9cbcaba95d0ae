// Package lstore implements a local, single-node table store based on the
// store.IStore interface. It runs the tablet engine directly on one db.KVDB
// (usually an in-memory pebble instance, see lib/db/engines/pebbledb).
//
// Key Features:
//   - Tables with column families, multiple versions per cell and time to live
//   - Atomic row mutations (one engine batch per mutation)
//   - Scanners backed by db iterators; a scanner sees the table as it was when it
//     was opened and holds the iterator until it is closed
//   - Feature detection to handle db implementations lacking ordered iteration or
//     batches gracefully
//
// Thread Safety:
//
//	All operations of the store and of table handles are thread-safe. Writes are
//	serialized by the tablet engine, reads run concurrently on their own iterators.
//	A Scanner itself must not be used concurrently.
//
// Usage Example:
//
//	factory := func() db.KVDB { return pebbledb.MustNewPebbleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	err := s.CreateTable(store.TableDescriptor{
//		Name:     []byte("users"),
//		Families: []store.ColumnDescriptor{{Name: []byte("info")}},
//	})
//
//	table, err := s.Table([]byte("users"))
//	err = table.Commit(store.BatchUpdate{
//		Row:       []byte("alice"),
//		Timestamp: store.LatestTimestamp,
//		Mutations: []store.Mutation{{Column: []byte("info:mail"), Value: []byte("a@example.com")}},
//	})
//
// For replicated deployments use the dstore package, which runs the same engine
// inside a raft state machine.
package lstore
