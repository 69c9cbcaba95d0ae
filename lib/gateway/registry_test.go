package gateway

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScanner returns rows from a fixed list. If block is set, Next signals entered
// and waits until block is closed.
type fakeScanner struct {
	rows    []string
	pos     int
	closed  atomic.Int32
	entered chan struct{}
	block   chan struct{}
}

func (s *fakeScanner) Next() (store.RowResult, bool, error) {
	if s.block != nil {
		s.entered <- struct{}{}
		<-s.block
	}
	if s.pos >= len(s.rows) {
		return store.RowResult{}, false, nil
	}
	s.pos++
	return store.RowResult{Row: []byte(s.rows[s.pos-1])}, true, nil
}

func (s *fakeScanner) Close() error {
	s.closed.Add(1)
	return nil
}

func TestRegistry(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, r *registry)
	}{
		{name: "monotonic_ids", fn: testRegistryMonotonicIDs},
		{name: "unique_concurrent_ids", fn: testRegistryUniqueConcurrentIDs},
		{name: "use_after_close", fn: testRegistryUseAfterClose},
		{name: "ids_not_reused", fn: testRegistryIDsNotReused},
		{name: "id_space_exhausted", fn: testRegistryIDSpaceExhausted},
		{name: "close_waits_for_fetch", fn: testRegistryCloseWaitsForFetch},
		{name: "close_all", fn: testRegistryCloseAll},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRegistry())
		})
	}
}

func testRegistryMonotonicIDs(t *testing.T, r *registry) {
	for i := 0; i < 10; i++ {
		id, err := r.open(&fakeScanner{})
		require.NoError(t, err)
		assert.Equal(t, ScannerID(i), id)
	}
	assert.Equal(t, 10, r.size())
}

func testRegistryUniqueConcurrentIDs(t *testing.T, r *registry) {
	numWorkers := 8
	opensPerWorker := 200

	ids := make(chan ScannerID, numWorkers*opensPerWorker)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < opensPerWorker; i++ {
				id, err := r.open(&fakeScanner{})
				assert.NoError(t, err)
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ScannerID]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, numWorkers*opensPerWorker)
}

func testRegistryUseAfterClose(t *testing.T, r *registry) {
	scanner := &fakeScanner{rows: []string{"a"}}
	id, err := r.open(scanner)
	require.NoError(t, err)

	require.NoError(t, r.close(id))
	assert.Equal(t, int32(1), scanner.closed.Load())

	_, err = r.lookup(id)
	assert.True(t, IsIllegalArgument(err))
	assert.True(t, IsIllegalArgument(r.close(id)))
	assert.Equal(t, int32(1), scanner.closed.Load(), "a scanner is closed once")
}

func testRegistryIDsNotReused(t *testing.T, r *registry) {
	first, err := r.open(&fakeScanner{})
	require.NoError(t, err)
	require.NoError(t, r.close(first))

	second, err := r.open(&fakeScanner{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func testRegistryIDSpaceExhausted(t *testing.T, r *registry) {
	r.lastID = 2
	for i := 0; i < 3; i++ {
		_, err := r.open(&fakeScanner{})
		require.NoError(t, err)
	}

	scanner := &fakeScanner{}
	_, err := r.open(scanner)
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.Contains(t, err.Error(), MsgHandlesExhausted)
	assert.Equal(t, int32(1), scanner.closed.Load(), "the rejected scanner is released")

	// closing does not free ids
	require.NoError(t, r.close(0))
	_, err = r.open(&fakeScanner{})
	assert.True(t, IsIOError(err))
	assert.Equal(t, 2, r.size())
}

func testRegistryCloseWaitsForFetch(t *testing.T, r *registry) {
	scanner := &fakeScanner{rows: []string{"a"}, entered: make(chan struct{}, 1), block: make(chan struct{})}
	id, err := r.open(scanner)
	require.NoError(t, err)

	c, err := r.lookup(id)
	require.NoError(t, err)

	fetched := make(chan store.RowResult, 1)
	go func() {
		row, _, _ := c.next()
		fetched <- row
	}()

	// the fetch holds the cursor lock from here on
	<-scanner.entered

	closed := make(chan error, 1)
	go func() {
		closed <- r.close(id)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a fetch was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(scanner.block)
	assert.Equal(t, []byte("a"), (<-fetched).Row)
	require.NoError(t, <-closed)

	// a fetch that starts after the close sees an invalid scanner
	_, _, err = c.next()
	assert.True(t, IsIllegalArgument(err))
}

func testRegistryCloseAll(t *testing.T, r *registry) {
	scanners := []*fakeScanner{{}, {}, {}}
	for _, s := range scanners {
		_, err := r.open(s)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, r.closeAll())
	assert.Equal(t, 0, r.size())
	for _, s := range scanners {
		assert.Equal(t, int32(1), s.closed.Load())
	}
}
