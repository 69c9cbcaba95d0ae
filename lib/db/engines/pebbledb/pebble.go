package pebbledb

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum      = "RKVPEBB\x00" // Snapshot format identifier
	formatVersion = 1             // Snapshot format version

	defaultCacheSize = 64 << 20 // 64MB block cache
)

var (
	ErrClosed    = errors.New("pebbledb: database is closed")
	ErrBatchDone = errors.New("pebbledb: batch already committed or closed")
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// DBOptions configures the pebble instance backing a pebbleImpl
type DBOptions struct {
	InMemory  bool   // Keep all data in an in-memory file system (vfs.NewMem)
	Dir       string // Data directory, ignored when InMemory is set
	CacheSize int64  // Block cache size in bytes (0 = default 64MB)
	Sync      bool   // fsync every write (only meaningful on disk)
}

// DefaultOptions returns options for an in-memory instance
func DefaultOptions() *DBOptions {
	return &DBOptions{
		InMemory:  true,
		CacheSize: defaultCacheSize,
	}
}

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

type pebbleImpl struct {
	db        *pebble.DB
	opts      DBOptions
	writeOpts *pebble.WriteOptions

	// closed is guarded by mu; readers hold the read lock while touching db
	mu     sync.RWMutex
	closed bool
}

// NewPebbleDB opens a pebble database with the specified options (optional)
func NewPebbleDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{Cache: cache}
	dir := opts.Dir
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = ""
	} else if dir == "" {
		return nil, errors.New("pebbledb: a data directory is required for on-disk databases")
	}

	pdb, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "pebbledb: open %q", dir)
	}

	writeOpts := pebble.NoSync
	if opts.Sync && !opts.InMemory {
		writeOpts = pebble.Sync
	}

	return &pebbleImpl{
		db:        pdb,
		opts:      *opts,
		writeOpts: writeOpts,
	}, nil
}

// MustNewPebbleDB is like NewPebbleDB but panics on error.
// It is meant for db factories where an in-memory instance can not fail to open.
func MustNewPebbleDB(opts *DBOptions) db.KVDB {
	kvdb, err := NewPebbleDB(opts)
	if err != nil {
		panic(err)
	}
	return kvdb
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (p *pebbleImpl) Set(key, value []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Set(key, value, p.writeOpts)
}

func (p *pebbleImpl) Delete(key []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Delete(key, p.writeOpts)
}

func (p *pebbleImpl) NewBatch() db.Batch {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b := &batchImpl{owner: p}
	if p.closed {
		// every call on a batch of a closed database fails with ErrClosed
		b.err = ErrClosed
		b.done.Store(true)
		return b
	}
	b.batch = p.db.NewBatch()
	return b
}

// --------------------------------------------------------------------------
// Query Operations
// --------------------------------------------------------------------------

func (p *pebbleImpl) Get(key []byte) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false, ErrClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}

func (p *pebbleImpl) NewIterator(lower, upper []byte) (db.Iterator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	iter := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	return &iteratorImpl{iter: iter}, nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes every key-value pair to w.
// The iterator used for this pins a consistent view, so concurrent writes are allowed.
func (p *pebbleImpl) Save(w io.Writer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := bw.WriteByte(formatVersion); err != nil {
		return err
	}

	iter := p.db.NewIter(nil)
	defer iter.Close()

	lenBuf := make([]byte, 4)
	writeChunk := func(b []byte) error {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(b)))
		if _, err := bw.Write(lenBuf); err != nil {
			return err
		}
		_, err := bw.Write(b)
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		// entry marker
		if err := bw.WriteByte(1); err != nil {
			return err
		}
		if err := writeChunk(iter.Key()); err != nil {
			return err
		}
		if err := writeChunk(iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "pebbledb: iterate for save")
	}

	// end marker
	if err := bw.WriteByte(0); err != nil {
		return err
	}
	return bw.Flush()
}

// Load replaces the content of the database with the data read from r.
// The old content is removed and the new content written in one atomic batch.
func (p *pebbleImpl) Load(r io.Reader) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return errors.New("invalid file format: magic number mismatch")
	}
	version, err := br.ReadByte()
	if err != nil {
		return err
	}
	if version != formatVersion {
		return errors.Newf("unsupported version: %d (expected %d)", version, formatVersion)
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	// drop the current content
	iter := p.db.NewIter(nil)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}

	lenBuf := make([]byte, 4)
	readChunk := func() ([]byte, error) {
		if _, err := io.ReadFull(br, lenBuf); err != nil {
			return nil, err
		}
		b := make([]byte, binary.BigEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	for {
		marker, err := br.ReadByte()
		if err != nil {
			return errors.Wrap(err, "pebbledb: snapshot truncated")
		}
		if marker == 0 {
			break
		}
		key, err := readChunk()
		if err != nil {
			return errors.Wrap(err, "pebbledb: read key")
		}
		value, err := readChunk()
		if err != nil {
			return errors.Wrap(err, "pebbledb: read value")
		}
		if err := batch.Set(key, value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(p.writeOpts)
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	meta := &struct {
		InMemory     bool   `json:"in_memory"`
		Dir          string `json:"dir,omitempty"`
		FlushCount   int64  `json:"flush_count"`
		CompactCount int64  `json:"compact_count"`
		Info         string `json:"info"`
	}{
		InMemory: p.opts.InMemory,
		Dir:      p.opts.Dir,
		Info:     "SizeBytes is the disk space used by pebble (memtables and sstables of the in-memory file system when in_memory is set).",
	}

	sizeBytes := 0
	if !p.closed {
		m := p.db.Metrics()
		sizeBytes = int(m.DiskSpaceUsage())
		meta.FlushCount = m.Flush.Count
		meta.CompactCount = m.Compact.Count
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplPebble,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeatureSet, db.FeatureDelete, db.FeatureDeleteRange,
			db.FeatureIterate, db.FeatureBatch,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

func (p *pebbleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeatureSet |
		db.FeatureDelete |
		db.FeatureDeleteRange |
		db.FeatureIterate |
		db.FeatureBatch |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close closes the underlying pebble instance. Closing twice is a no-op.
func (p *pebbleImpl) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

type batchImpl struct {
	owner *pebbleImpl
	batch *pebble.Batch
	done  atomic.Bool
	err   error // returned once done, ErrBatchDone if nil
}

func (b *batchImpl) doneErr() error {
	if b.err != nil {
		return b.err
	}
	return ErrBatchDone
}

func (b *batchImpl) Set(key, value []byte) error {
	if b.done.Load() {
		return b.doneErr()
	}
	return b.batch.Set(key, value, nil)
}

func (b *batchImpl) Delete(key []byte) error {
	if b.done.Load() {
		return b.doneErr()
	}
	return b.batch.Delete(key, nil)
}

func (b *batchImpl) DeleteRange(start, end []byte) error {
	if b.done.Load() {
		return b.doneErr()
	}
	return b.batch.DeleteRange(start, end, nil)
}

func (b *batchImpl) Count() int {
	if b.batch == nil {
		return 0
	}
	return int(b.batch.Count())
}

// Commit applies the batch. The database must not be closed while the batch is applied,
// so Commit holds the read lock of its database.
func (b *batchImpl) Commit() error {
	if b.done.Load() {
		return b.doneErr()
	}

	b.owner.mu.RLock()
	defer b.owner.mu.RUnlock()
	if b.owner.closed {
		return ErrClosed
	}

	if err := b.batch.Commit(b.owner.writeOpts); err != nil {
		return err
	}
	b.done.Store(true)
	return b.batch.Close()
}

func (b *batchImpl) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

type iteratorImpl struct {
	iter   *pebble.Iterator
	closed bool
}

func (it *iteratorImpl) First() bool {
	return it.iter.First()
}

func (it *iteratorImpl) SeekGE(key []byte) bool {
	return it.iter.SeekGE(key)
}

func (it *iteratorImpl) Next() bool {
	return it.iter.Next()
}

func (it *iteratorImpl) Valid() bool {
	return !it.closed && it.iter.Valid()
}

func (it *iteratorImpl) Key() []byte {
	key := it.iter.Key()
	result := make([]byte, len(key))
	copy(result, key)
	return result
}

func (it *iteratorImpl) Value() []byte {
	val := it.iter.Value()
	result := make([]byte, len(val))
	copy(result, val)
	return result
}

func (it *iteratorImpl) Error() error {
	return it.iter.Error()
}

func (it *iteratorImpl) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.iter.Close()
}
