// Package tablet implements the row/column/version layer shared by the local and the
// replicated store. It maps tables onto an ordered db.KVDB.
//
// Each table has a descriptor stored under a meta key and one data key per cell
// version. Data keys are built from the escaped table, row and column followed by
// the inverted timestamp, so a plain ordered iteration visits rows in ascending
// byte order, columns in ascending order inside a row, and versions newest first
// inside a column.
//
// The Engine offers:
//   - table administration (CreateTable, DeleteTable, ListTables, Descriptor)
//   - point and row reads with a timestamp ceiling and a version limit
//   - atomic batch updates (Commit, DeleteRow) that trim versions beyond the
//     family's MaxVersions in the same batch
//   - scanners over a row range working on an iterator snapshot, plus ScanRows for
//     callers that page through a table (the replicated store)
//
// Time to live is applied on reads: a version older than now - ttl is invisible.
package tablet
