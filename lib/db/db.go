package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplPebble Implementation = "pebble"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet         Feature = 1 << iota // Support for Get operations
	FeatureSet                             // Support for Set operations
	FeatureDelete                          // Support for Delete operations
	FeatureDeleteRange                     // Support for range deletions inside a batch
	FeatureIterate                         // Support for ordered iteration
	FeatureBatch                           // Support for atomic batches
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureSet:
		return "Set"
	case FeatureDelete:
		return "Delete"
	case FeatureDeleteRange:
		return "DeleteRange"
	case FeatureIterate:
		return "Iterate"
	case FeatureBatch:
		return "Batch"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Iterator and Batch
// --------------------------------------------------------------------------

// Iterator walks the keys of a KVDB in ascending byte order.
// An iterator is not safe for concurrent use and must be closed after use.
type Iterator interface {
	// First positions the iterator at the first key inside its bounds.
	First() (ok bool)
	// SeekGE positions the iterator at the first key >= key.
	SeekGE(key []byte) (ok bool)
	// Next advances the iterator. It returns false once the iterator is exhausted.
	Next() (ok bool)
	// Valid reports whether the iterator is positioned at a key.
	Valid() (ok bool)
	// Key returns a copy of the current key.
	Key() (key []byte)
	// Value returns a copy of the current value.
	Value() (value []byte)
	// Error returns the first error the iterator ran into, if any.
	Error() (err error)
	// Close releases the resources held by the iterator.
	Close() (err error)
}

// Batch collects writes that are applied atomically by Commit.
// A reader never observes a subset of a committed batch.
type Batch interface {
	Set(key, value []byte) (err error)
	Delete(key []byte) (err error)
	// DeleteRange removes every key in [start, end).
	DeleteRange(start, end []byte) (err error)
	// Count returns the number of operations in the batch.
	Count() (n int)
	Commit() (err error)
	// Close discards the batch. Closing a committed batch is a no-op.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys and values are raw byte slices; keys are ordered lexicographically.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry.
	Set(key, value []byte) (err error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(key []byte) (err error)

	// NewBatch creates an empty atomic batch.
	NewBatch() (batch Batch)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy and may be modified by the caller.
	Get(key []byte) (value []byte, loaded bool, err error)

	// NewIterator returns an iterator over [lower, upper). A nil bound is unbounded.
	// The iterator sees a consistent view of the database taken at creation time.
	NewIterator(lower, upper []byte) (it Iterator, err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
