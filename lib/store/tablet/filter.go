package tablet

import (
	"bytes"

	"github.com/ValentinKolb/rKV/lib/store"
)

// NormalizeColumn returns the column identifier in the form family:qualifier.
// A bare family name is treated as family: (the family with an empty qualifier).
func NormalizeColumn(column []byte) []byte {
	if bytes.IndexByte(column, store.FamilySeparator) >= 0 {
		return column
	}
	out := make([]byte, 0, len(column)+1)
	out = append(out, column...)
	return append(out, store.FamilySeparator)
}

// columnFilter selects the columns a scanner returns.
// The zero value selects every column.
type columnFilter struct {
	families map[string]struct{}
	columns  map[string]struct{}
}

func newColumnFilter(columns [][]byte) columnFilter {
	if len(columns) == 0 {
		return columnFilter{}
	}
	f := columnFilter{
		families: make(map[string]struct{}),
		columns:  make(map[string]struct{}),
	}
	for _, c := range columns {
		family, qualifier, _ := store.SplitColumn(NormalizeColumn(c))
		if len(qualifier) == 0 {
			f.families[string(family)] = struct{}{}
		} else {
			f.columns[string(c)] = struct{}{}
		}
	}
	return f
}

func (f columnFilter) empty() bool {
	return f.families == nil && f.columns == nil
}

func (f columnFilter) matches(column []byte) bool {
	if f.empty() {
		return true
	}
	if _, ok := f.columns[string(column)]; ok {
		return true
	}
	family, _, _ := store.SplitColumn(column)
	_, ok := f.families[string(family)]
	return ok
}

// familyNames returns the families referenced by the filter.
func (f columnFilter) familyNames() [][]byte {
	var names [][]byte
	for fam := range f.families {
		names = append(names, []byte(fam))
	}
	for col := range f.columns {
		family, _, _ := store.SplitColumn([]byte(col))
		names = append(names, family)
	}
	return names
}
