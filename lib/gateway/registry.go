package gateway

import (
	"math"
	"sync"

	"github.com/ValentinKolb/rKV/lib/store"
)

// ScannerID is the handle of an open scanner.
type ScannerID uint32

// cursor is a registered scanner. Its own lock serializes fetches and the final close,
// the registry lock is never held while the store is called.
type cursor struct {
	mu      sync.Mutex
	scanner store.Scanner
	closed  bool
}

// next returns the next row of the cursor. Once the scanner is exhausted ok is
// false for every later call.
func (c *cursor) next() (row store.RowResult, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.RowResult{}, false, NewError(CategoryIllegalArgument, MsgInvalidScanner)
	}
	return c.scanner.Next()
}

func (c *cursor) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.scanner.Close()
}

// registry maps scanner ids to open cursors. Ids start at 0 and increase by one,
// they are never reused. Once the last id (lastID) was handed out every further
// open is rejected.
type registry struct {
	mu      sync.Mutex
	nextID  uint64
	lastID  uint64
	cursors map[ScannerID]*cursor
}

func newRegistry() *registry {
	return &registry{
		lastID:  math.MaxUint32,
		cursors: make(map[ScannerID]*cursor),
	}
}

// open registers a scanner and returns its id. If the id space is used up the
// scanner is closed and an IOError is returned.
func (r *registry) open(scanner store.Scanner) (ScannerID, error) {
	r.mu.Lock()
	if r.nextID > r.lastID {
		r.mu.Unlock()
		_ = scanner.Close()
		return 0, NewError(CategoryIOError, MsgHandlesExhausted)
	}
	id := ScannerID(r.nextID)
	r.nextID++
	r.cursors[id] = &cursor{scanner: scanner}
	r.mu.Unlock()
	return id, nil
}

// lookup returns the cursor registered for id
func (r *registry) lookup(id ScannerID) (*cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[id]
	if !ok {
		return nil, NewError(CategoryIllegalArgument, MsgInvalidScanner)
	}
	return c, nil
}

// close removes the cursor and releases its scanner. A fetch that is running on the
// cursor completes first.
func (r *registry) close(id ScannerID) error {
	r.mu.Lock()
	c, ok := r.cursors[id]
	delete(r.cursors, id)
	r.mu.Unlock()

	if !ok {
		return NewError(CategoryIllegalArgument, MsgInvalidScanner)
	}
	return c.close()
}

// closeAll releases every open cursor and returns the number of cursors closed
func (r *registry) closeAll() int {
	r.mu.Lock()
	cursors := r.cursors
	r.cursors = make(map[ScannerID]*cursor)
	r.mu.Unlock()

	for id, c := range cursors {
		if err := c.close(); err != nil {
			Logger.Warningf("closing scanner %d failed: %v", id, err)
		}
	}
	return len(cursors)
}

// size returns the number of open cursors
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}
