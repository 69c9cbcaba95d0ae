package tablet

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Key layout
//
//	meta:  0x01 | table                                     -> JSON TableDescriptor
//	data:  0x02 | esc(table) | esc(row) | esc(column) | ^ts  -> value
//
// esc() escapes 0x00 as 0x00 0xFF and terminates the segment with 0x00 0x01, so the
// encoding of a segment is prefix free and sorts like the raw bytes. The timestamp is
// stored inverted (big endian) which puts the newest version of a column first.
const (
	prefixMeta byte = 0x01
	prefixData byte = 0x02

	escapeByte    byte = 0x00
	escapedZero   byte = 0xFF
	segmentSuffix byte = 0x01

	timestampLen = 8
)

var errMalformedKey = errors.New("tablet: malformed data key")

// appendEscaped appends the escaped and terminated segment b to dst.
func appendEscaped(dst, b []byte) []byte {
	for {
		idx := bytes.IndexByte(b, escapeByte)
		if idx < 0 {
			break
		}
		dst = append(dst, b[:idx]...)
		dst = append(dst, escapeByte, escapedZero)
		b = b[idx+1:]
	}
	dst = append(dst, b...)
	return append(dst, escapeByte, segmentSuffix)
}

// decodeEscaped reads one escaped segment from the start of b.
// It returns the raw segment and the rest of b behind the terminator.
func decodeEscaped(b []byte) (segment, rest []byte, err error) {
	for {
		idx := bytes.IndexByte(b, escapeByte)
		if idx < 0 || idx+1 >= len(b) {
			return nil, nil, errMalformedKey
		}
		segment = append(segment, b[:idx]...)
		switch b[idx+1] {
		case escapedZero:
			segment = append(segment, escapeByte)
			b = b[idx+2:]
		case segmentSuffix:
			if segment == nil {
				segment = []byte{}
			}
			return segment, b[idx+2:], nil
		default:
			return nil, nil, errMalformedKey
		}
	}
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
// It returns nil (unbounded) if no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Meta keys
// --------------------------------------------------------------------------

func metaKey(table []byte) []byte {
	return append([]byte{prefixMeta}, table...)
}

func metaPrefix() []byte {
	return []byte{prefixMeta}
}

func tableFromMetaKey(key []byte) []byte {
	return append([]byte(nil), key[1:]...)
}

// --------------------------------------------------------------------------
// Data keys
// --------------------------------------------------------------------------

func tablePrefix(table []byte) []byte {
	return appendEscaped([]byte{prefixData}, table)
}

func rowPrefix(table, row []byte) []byte {
	return appendEscaped(tablePrefix(table), row)
}

func columnPrefix(table, row, column []byte) []byte {
	return appendEscaped(rowPrefix(table, row), column)
}

// cellKey returns the key of the version ts of (row, column).
// Seeking to it positions on the newest version <= ts.
func cellKey(table, row, column []byte, ts uint64) []byte {
	key := columnPrefix(table, row, column)
	return binary.BigEndian.AppendUint64(key, ^ts)
}

// decodedKey is a data key split into its parts
type decodedKey struct {
	row       []byte
	column    []byte
	timestamp uint64
}

// decodeCellKey decodes a data key of the table with the given encoded prefix.
func decodeCellKey(tablePrefix, key []byte) (decodedKey, error) {
	if !bytes.HasPrefix(key, tablePrefix) {
		return decodedKey{}, errMalformedKey
	}
	row, rest, err := decodeEscaped(key[len(tablePrefix):])
	if err != nil {
		return decodedKey{}, err
	}
	column, rest, err := decodeEscaped(rest)
	if err != nil {
		return decodedKey{}, err
	}
	if len(rest) != timestampLen {
		return decodedKey{}, errMalformedKey
	}
	return decodedKey{
		row:       row,
		column:    column,
		timestamp: ^binary.BigEndian.Uint64(rest),
	}, nil
}
