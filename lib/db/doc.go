// Package db provides a standardized interface for ordered key-value database
// implementations. It defines the KVDB interface that the table engine in
// lib/store/tablet is written against, so the storage backend can be swapped
// without touching the row/column layer.
//
// Key Components:
//
//   - KVDB Interface: point reads and writes on raw byte keys, atomic batches,
//     ordered iteration over a key range, and persistence (Save, Load) used for
//     raft snapshots.
//
//   - Iterator: an ordered cursor over [lower, upper). Scanners of the store layer
//     are built on top of it, so an iterator must see a consistent snapshot of the
//     data for its whole lifetime.
//
//   - Batch: a group of writes applied atomically on Commit. Row mutations of the
//     store layer are always written as one batch.
//
//   - Feature Flags: capability flags reported through SupportsFeature.
//
//   - Database Information: the DatabaseInfo structure reports size estimates,
//     the implementation type and implementation specific metadata.
//
// Related Packages:
//
// The engines/pebbledb package (github.com/ValentinKolb/rKV/lib/db/engines/pebbledb)
// implements KVDB on top of github.com/cockroachdb/pebble, either in memory or on disk.
//
// The testing package (github.com/ValentinKolb/rKV/lib/db/testing) provides
// standardized tests and benchmarks for KVDB implementations.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
