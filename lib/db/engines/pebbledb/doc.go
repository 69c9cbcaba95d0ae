// Package pebbledb implements the db.KVDB interface on top of
// github.com/cockroachdb/pebble.
//
// The database runs either fully in memory (an in-memory vfs.FS, the default used
// by the single-node store and inside the raft state machine) or on disk when a data
// directory is configured.
//
// Key Components:
//
//   - pebbleImpl: wraps a *pebble.DB. Point reads copy the value out of pebble's
//     buffers so callers may keep and modify the returned slices.
//
//   - batchImpl: an atomic pebble batch. Commit applies all operations at once and
//     releases the batch; a committed batch rejects further writes with ErrBatchDone.
//
//   - iteratorImpl: a pebble iterator bounded to [lower, upper). A pebble iterator
//     pins the state of the database at creation, which gives the store layer's
//     scanners a stable snapshot for their whole lifetime.
//
// Persistence:
//
//	Save streams every key-value pair in key order behind a small header
//	(magic number and format version). Load replaces the whole content in one
//	batch, which is what the raft state machine needs when it recovers from a
//	snapshot.
package pebbledb
