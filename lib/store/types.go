package store

import (
	"bytes"
	"math"
)

// LatestTimestamp is the sentinel for "the most recent version".
// On reads it disables the timestamp ceiling, on writes it is replaced by the current time.
const LatestTimestamp uint64 = math.MaxUint64

// FamilySeparator separates the family from the qualifier in a column identifier.
const FamilySeparator = ':'

// Defaults applied to column descriptors that leave fields unset
const (
	DefaultMaxVersions     uint32 = 3
	DefaultCompression            = "NONE"
	DefaultBloomFilterType        = "NONE"
)

// --------------------------------------------------------------------------
// Data
// --------------------------------------------------------------------------

// Cell is one version of a value
type Cell struct {
	Column    []byte `json:"column"`
	Value     []byte `json:"value"`
	Timestamp uint64 `json:"timestamp"`
}

// RowResult is a row snapshot: one cell per column, ordered by column.
type RowResult struct {
	Row   []byte `json:"row"`
	Cells []Cell `json:"cells"`
}

// Columns returns the row as a column -> value map.
func (r RowResult) Columns() map[string][]byte {
	m := make(map[string][]byte, len(r.Cells))
	for _, c := range r.Cells {
		m[string(c.Column)] = c.Value
	}
	return m
}

// Mutation is either a put of Value into Column or a delete of Column.
type Mutation struct {
	IsDelete bool   `json:"is_delete"`
	Column   []byte `json:"column"`
	Value    []byte `json:"value,omitempty"`
}

// BatchUpdate is an ordered list of mutations of one row, applied atomically.
type BatchUpdate struct {
	Row       []byte     `json:"row"`
	Timestamp uint64     `json:"timestamp"`
	Mutations []Mutation `json:"mutations"`
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// ColumnDescriptor describes a column family.
type ColumnDescriptor struct {
	Name              []byte `json:"name"`
	MaxVersions       uint32 `json:"max_versions"`
	Compression       string `json:"compression"`
	InMemory          bool   `json:"in_memory"`
	BloomFilterType   string `json:"bloom_filter_type"`
	BlockCacheEnabled bool   `json:"block_cache_enabled"`
	TimeToLive        uint32 `json:"time_to_live"` // seconds, 0 = forever
}

// WithDefaults returns a copy of the descriptor with unset fields filled in.
// A trailing family separator in the name is removed.
func (c ColumnDescriptor) WithDefaults() ColumnDescriptor {
	c.Name = bytes.TrimSuffix(c.Name, []byte{FamilySeparator})
	if c.MaxVersions == 0 {
		c.MaxVersions = DefaultMaxVersions
	}
	if c.Compression == "" {
		c.Compression = DefaultCompression
	}
	if c.BloomFilterType == "" {
		c.BloomFilterType = DefaultBloomFilterType
	}
	return c
}

// TableDescriptor describes a table and its column families.
type TableDescriptor struct {
	Name     []byte             `json:"name"`
	Families []ColumnDescriptor `json:"families"`
	RegionID uint64             `json:"region_id"`
}

// Family returns the descriptor of the named family.
func (t TableDescriptor) Family(name []byte) (ColumnDescriptor, bool) {
	for _, f := range t.Families {
		if bytes.Equal(f.Name, name) {
			return f, true
		}
	}
	return ColumnDescriptor{}, false
}

// Validate checks the descriptor for an empty name, missing or duplicate families
// and family names containing the family separator.
func (t TableDescriptor) Validate() error {
	if len(t.Name) == 0 {
		return NewError(RetCInvalidArgument, "table name must not be empty")
	}
	if len(t.Families) == 0 {
		return NewError(RetCInvalidArgument, "table must have at least one column family")
	}
	seen := make(map[string]struct{}, len(t.Families))
	for _, f := range t.Families {
		name := bytes.TrimSuffix(f.Name, []byte{FamilySeparator})
		if len(name) == 0 {
			return NewError(RetCInvalidArgument, "column family name must not be empty")
		}
		if bytes.IndexByte(name, FamilySeparator) >= 0 {
			return NewErrorf(RetCInvalidArgument, "column family name %q must not contain '%c'", name, FamilySeparator)
		}
		if _, ok := seen[string(name)]; ok {
			return NewErrorf(RetCInvalidArgument, "duplicate column family %q", name)
		}
		seen[string(name)] = struct{}{}
	}
	return nil
}

// RegionInfo describes one region of a table. Empty start/end keys are unbounded.
type RegionInfo struct {
	ID       uint64 `json:"id"`
	Name     []byte `json:"name"`
	StartKey []byte `json:"start_key"`
	EndKey   []byte `json:"end_key"`
}

// --------------------------------------------------------------------------
// Column helpers
// --------------------------------------------------------------------------

// SplitColumn splits a column identifier into family and qualifier.
// ok is false if the identifier has no family separator.
func SplitColumn(column []byte) (family, qualifier []byte, ok bool) {
	idx := bytes.IndexByte(column, FamilySeparator)
	if idx < 0 {
		return column, nil, false
	}
	return column[:idx], column[idx+1:], true
}
