package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTable       uint32 = 1 << 0
	hasRow         uint32 = 1 << 1
	hasColumn      uint32 = 1 << 2
	hasStopRow     uint32 = 1 << 3
	hasColumns     uint32 = 1 << 4
	hasValue       uint32 = 1 << 5
	hasTimestamp   uint32 = 1 << 6
	hasNumVersions uint32 = 1 << 7
	hasScannerID   uint32 = 1 << 8
	hasMutations   uint32 = 1 << 9
	hasFamilies    uint32 = 1 << 10
	hasValues      uint32 = 1 << 11
	hasRegions     uint32 = 1 << 12
	hasCells       uint32 = 1 << 13
	hasOk          uint32 = 1 << 14
	hasErrCode     uint32 = 1 << 15
	hasErr         uint32 = 1 << 16
)

// headerSize is 1 byte for MsgType + 4 bytes for the flags
const headerSize = 5

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	w := binWriter{buf: make([]byte, b.sizeBytes(msg)), pos: headerSize}

	// Write message type
	w.buf[0] = byte(msg.MsgType)

	var flags uint32 = 0

	if msg.Table != nil {
		flags |= hasTable
		w.bytes(msg.Table)
	}
	if msg.Row != nil {
		flags |= hasRow
		w.bytes(msg.Row)
	}
	if msg.Column != nil {
		flags |= hasColumn
		w.bytes(msg.Column)
	}
	if msg.StopRow != nil {
		flags |= hasStopRow
		w.bytes(msg.StopRow)
	}
	if len(msg.Columns) > 0 {
		flags |= hasColumns
		w.list(msg.Columns)
	}
	if msg.Value != nil {
		flags |= hasValue
		w.bytes(msg.Value)
	}
	if msg.Timestamp > 0 {
		flags |= hasTimestamp
		w.uint64(msg.Timestamp)
	}
	if msg.NumVersions != 0 {
		flags |= hasNumVersions
		w.uint32(uint32(msg.NumVersions))
	}
	if msg.ScannerID > 0 {
		flags |= hasScannerID
		w.uint32(msg.ScannerID)
	}
	if len(msg.Mutations) > 0 {
		flags |= hasMutations
		w.uint32(uint32(len(msg.Mutations)))
		for _, m := range msg.Mutations {
			w.bool(m.IsDelete)
			w.bytes(m.Column)
			w.bytes(m.Value)
		}
	}
	if len(msg.Families) > 0 {
		flags |= hasFamilies
		w.uint32(uint32(len(msg.Families)))
		for _, f := range msg.Families {
			w.bytes(f.Name)
			w.uint32(f.MaxVersions)
			w.bytes([]byte(f.Compression))
			w.bool(f.InMemory)
			w.bytes([]byte(f.BloomFilterType))
			w.bool(f.BlockCacheEnabled)
			w.uint32(f.TimeToLive)
		}
	}
	if len(msg.Values) > 0 {
		flags |= hasValues
		w.list(msg.Values)
	}
	if len(msg.Regions) > 0 {
		flags |= hasRegions
		w.uint32(uint32(len(msg.Regions)))
		for _, r := range msg.Regions {
			w.uint64(r.ID)
			w.bytes(r.Name)
			w.bytes(r.StartKey)
			w.bytes(r.EndKey)
		}
	}
	if len(msg.Cells) > 0 {
		flags |= hasCells
		w.uint32(uint32(len(msg.Cells)))
		for _, c := range msg.Cells {
			w.bytes(c.Column)
			w.bytes(c.Value)
			w.uint64(c.Timestamp)
		}
	}
	if msg.Ok {
		flags |= hasOk
		w.bool(true)
	}
	if msg.ErrCode != common.ErrCNone {
		flags |= hasErrCode
		w.buf[w.pos] = byte(msg.ErrCode)
		w.pos++
	}
	if msg.Err != "" {
		flags |= hasErr
		w.bytes([]byte(msg.Err))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint32(w.buf[1:headerSize], flags)

	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if err := b.decode(data, msg); err != nil {
		return malformed(err, "binary")
	}
	return nil
}

// decode reads the fields flagged in the header of data into msg
func (b binarySerializerImpl) decode(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint32(data[1:headerSize])
	r := binReader{data: data, pos: headerSize}

	var err error
	if flags&hasTable != 0 {
		if msg.Table, err = r.bytes("table", true); err != nil {
			return err
		}
	}
	if flags&hasRow != 0 {
		if msg.Row, err = r.bytes("row", true); err != nil {
			return err
		}
	}
	if flags&hasColumn != 0 {
		if msg.Column, err = r.bytes("column", true); err != nil {
			return err
		}
	}
	if flags&hasStopRow != 0 {
		if msg.StopRow, err = r.bytes("stop row", true); err != nil {
			return err
		}
	}
	if flags&hasColumns != 0 {
		if msg.Columns, err = r.list("columns"); err != nil {
			return err
		}
	}
	if flags&hasValue != 0 {
		if msg.Value, err = r.bytes("value", true); err != nil {
			return err
		}
	}
	if flags&hasTimestamp != 0 {
		if msg.Timestamp, err = r.uint64("timestamp"); err != nil {
			return err
		}
	}
	if flags&hasNumVersions != 0 {
		n, err := r.uint32("num versions")
		if err != nil {
			return err
		}
		msg.NumVersions = int32(n)
	}
	if flags&hasScannerID != 0 {
		if msg.ScannerID, err = r.uint32("scanner id"); err != nil {
			return err
		}
	}
	if flags&hasMutations != 0 {
		if msg.Mutations, err = r.mutations(); err != nil {
			return err
		}
	}
	if flags&hasFamilies != 0 {
		if msg.Families, err = r.families(); err != nil {
			return err
		}
	}
	if flags&hasValues != 0 {
		if msg.Values, err = r.list("values"); err != nil {
			return err
		}
	}
	if flags&hasRegions != 0 {
		if msg.Regions, err = r.regions(); err != nil {
			return err
		}
	}
	if flags&hasCells != 0 {
		if msg.Cells, err = r.cells(); err != nil {
			return err
		}
	}
	if flags&hasOk != 0 {
		if msg.Ok, err = r.bool("Ok flag"); err != nil {
			return err
		}
	}
	if flags&hasErrCode != 0 {
		if r.pos+1 > len(data) {
			return fmt.Errorf("data too short for error code")
		}
		msg.ErrCode = common.ErrorCode(data[r.pos])
		r.pos++
	}
	if flags&hasErr != 0 {
		errBytes, err := r.bytes("error", false)
		if err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Table != nil {
		size += 4 + len(msg.Table)
	}
	if msg.Row != nil {
		size += 4 + len(msg.Row)
	}
	if msg.Column != nil {
		size += 4 + len(msg.Column)
	}
	if msg.StopRow != nil {
		size += 4 + len(msg.StopRow)
	}
	if len(msg.Columns) > 0 {
		size += listSize(msg.Columns)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Timestamp > 0 {
		size += 8 // uint64
	}
	if msg.NumVersions != 0 {
		size += 4 // int32
	}
	if msg.ScannerID > 0 {
		size += 4 // uint32
	}
	if len(msg.Mutations) > 0 {
		size += 4
		for _, m := range msg.Mutations {
			size += 1 + 4 + len(m.Column) + 4 + len(m.Value)
		}
	}
	if len(msg.Families) > 0 {
		size += 4
		for _, f := range msg.Families {
			// name, max versions, compression, in memory, bloom filter, block cache, ttl
			size += 4 + len(f.Name) + 4 + 4 + len(f.Compression) + 1 + 4 + len(f.BloomFilterType) + 1 + 4
		}
	}
	if len(msg.Values) > 0 {
		size += listSize(msg.Values)
	}
	if len(msg.Regions) > 0 {
		size += 4
		for _, r := range msg.Regions {
			size += 8 + 4 + len(r.Name) + 4 + len(r.StartKey) + 4 + len(r.EndKey)
		}
	}
	if len(msg.Cells) > 0 {
		size += 4
		for _, c := range msg.Cells {
			size += 4 + len(c.Column) + 4 + len(c.Value) + 8
		}
	}
	if msg.Ok {
		size += 1 // 1 byte for boolean
	}
	if msg.ErrCode != common.ErrCNone {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}

	return size
}

// listSize is the encoded size of a count followed by length prefixed entries
func listSize(list [][]byte) int {
	size := 4
	for _, e := range list {
		size += 4 + len(e)
	}
	return size
}

// binWriter writes into a buffer that sizeBytes has already sized correctly
type binWriter struct {
	buf []byte
	pos int
}

func (w *binWriter) uint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:w.pos+4], v)
	w.pos += 4
}

func (w *binWriter) uint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:w.pos+8], v)
	w.pos += 8
}

func (w *binWriter) bool(v bool) {
	if v {
		w.buf[w.pos] = 1
	} else {
		w.buf[w.pos] = 0
	}
	w.pos++
}

func (w *binWriter) bytes(v []byte) {
	w.uint32(uint32(len(v)))
	copy(w.buf[w.pos:w.pos+len(v)], v)
	w.pos += len(v)
}

func (w *binWriter) list(list [][]byte) {
	w.uint32(uint32(len(list)))
	for _, e := range list {
		w.bytes(e)
	}
}

// binReader reads the fields written by binWriter and reports truncated input
type binReader struct {
	data []byte
	pos  int
}

func (r *binReader) uint32(field string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *binReader) uint64(field string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", field)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *binReader) bool(field string) (bool, error) {
	if r.pos+1 > len(r.data) {
		return false, fmt.Errorf("data too short for %s", field)
	}
	v := r.data[r.pos] != 0
	r.pos++
	return v, nil
}

// bytes reads a length prefixed field. Empty fields decode to an empty slice
// if keepEmpty is set and to nil otherwise.
func (r *binReader) bytes(field string, keepEmpty bool) ([]byte, error) {
	n, err := r.uint32(field + " length")
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return nil, fmt.Errorf("data too short for %s data", field)
	}
	if n == 0 && !keepEmpty {
		return nil, nil
	}
	v := make([]byte, n)
	copy(v, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

// count reads an element count and rejects counts that cannot fit into the
// remaining data
func (r *binReader) count(field string, minSize int) (int, error) {
	n, err := r.uint32(field + " count")
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(len(r.data)-r.pos) {
		return 0, fmt.Errorf("data too short for %d %s", n, field)
	}
	return int(n), nil
}

func (r *binReader) list(field string) ([][]byte, error) {
	n, err := r.count(field, 4)
	if err != nil {
		return nil, err
	}
	list := make([][]byte, n)
	for i := range list {
		if list[i], err = r.bytes(field, false); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *binReader) mutations() ([]store.Mutation, error) {
	n, err := r.count("mutations", 9)
	if err != nil {
		return nil, err
	}
	mutations := make([]store.Mutation, n)
	for i := range mutations {
		m := &mutations[i]
		if m.IsDelete, err = r.bool("mutation flag"); err != nil {
			return nil, err
		}
		if m.Column, err = r.bytes("mutation column", false); err != nil {
			return nil, err
		}
		if m.Value, err = r.bytes("mutation value", false); err != nil {
			return nil, err
		}
	}
	return mutations, nil
}

func (r *binReader) families() ([]store.ColumnDescriptor, error) {
	n, err := r.count("families", 22)
	if err != nil {
		return nil, err
	}
	families := make([]store.ColumnDescriptor, n)
	for i := range families {
		f := &families[i]
		if f.Name, err = r.bytes("family name", false); err != nil {
			return nil, err
		}
		if f.MaxVersions, err = r.uint32("max versions"); err != nil {
			return nil, err
		}
		compression, err := r.bytes("compression", false)
		if err != nil {
			return nil, err
		}
		f.Compression = string(compression)
		if f.InMemory, err = r.bool("in memory flag"); err != nil {
			return nil, err
		}
		bloom, err := r.bytes("bloom filter type", false)
		if err != nil {
			return nil, err
		}
		f.BloomFilterType = string(bloom)
		if f.BlockCacheEnabled, err = r.bool("block cache flag"); err != nil {
			return nil, err
		}
		if f.TimeToLive, err = r.uint32("time to live"); err != nil {
			return nil, err
		}
	}
	return families, nil
}

func (r *binReader) regions() ([]store.RegionInfo, error) {
	n, err := r.count("regions", 20)
	if err != nil {
		return nil, err
	}
	regions := make([]store.RegionInfo, n)
	for i := range regions {
		reg := &regions[i]
		if reg.ID, err = r.uint64("region id"); err != nil {
			return nil, err
		}
		if reg.Name, err = r.bytes("region name", false); err != nil {
			return nil, err
		}
		if reg.StartKey, err = r.bytes("region start key", false); err != nil {
			return nil, err
		}
		if reg.EndKey, err = r.bytes("region end key", false); err != nil {
			return nil, err
		}
	}
	return regions, nil
}

func (r *binReader) cells() ([]store.Cell, error) {
	n, err := r.count("cells", 16)
	if err != nil {
		return nil, err
	}
	cells := make([]store.Cell, n)
	for i := range cells {
		c := &cells[i]
		if c.Column, err = r.bytes("cell column", false); err != nil {
			return nil, err
		}
		if c.Value, err = r.bytes("cell value", false); err != nil {
			return nil, err
		}
		if c.Timestamp, err = r.uint64("cell timestamp"); err != nil {
			return nil, err
		}
	}
	return cells, nil
}
