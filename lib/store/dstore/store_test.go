package dstore

import (
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/rKV/lib/store"
	storetesting "github.com/ValentinKolb/rKV/lib/store/testing"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
	"github.com/stretchr/testify/require"
)

const testShardID = 1

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

// newTestStore starts a single replica shard and waits until it has a leader
func newTestStore(t *testing.T, scanBatchSize int) store.IStore {
	dir := t.TempDir()
	addr := freeAddress(t)

	nh, err := dragonboat.NewNodeHost(config.NodeHostConfig{
		WALDir:         dir,
		NodeHostDir:    dir,
		RTTMillisecond: 10,
		RaftAddress:    addr,
	})
	require.NoError(t, err)
	t.Cleanup(nh.Close)

	dbFactory := func() db.KVDB { return pebbledb.MustNewPebbleDB(nil) }
	err = nh.StartConcurrentReplica(
		map[uint64]string{1: addr},
		false,
		CreateStateMachineFactory(dbFactory),
		config.Config{
			ReplicaID:    1,
			ShardID:      testShardID,
			ElectionRTT:  10,
			HeartbeatRTT: 1,
			CheckQuorum:  true,
		})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, ok, err := nh.GetLeaderID(testShardID)
		return err == nil && ok
	}, 10*time.Second, 20*time.Millisecond, "shard has no leader")

	return NewDistributedStore(nh, testShardID, 5*time.Second, scanBatchSize)
}

func TestDistributedStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft tests in short mode")
	}
	// a small batch size makes the scanners page
	storetesting.RunStoreTests(t, "DistributedStore", func(t *testing.T) store.IStore {
		return newTestStore(t, 7)
	})
}

func TestScannerResumesAfterLastRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft tests in short mode")
	}
	s := newTestStore(t, 1)

	require.NoError(t, s.CreateTable(store.TableDescriptor{
		Name:     []byte("t"),
		Families: []store.ColumnDescriptor{{Name: []byte("f")}},
	}))
	table, err := s.Table([]byte("t"))
	require.NoError(t, err)

	// "a" and "a\x00" are adjacent keys, the second page must not skip or repeat one
	for _, r := range []string{"a", "a\x00", "a\x00\x00", "b"} {
		require.NoError(t, table.Commit(store.BatchUpdate{
			Row:       []byte(r),
			Timestamp: store.LatestTimestamp,
			Mutations: []store.Mutation{{Column: []byte("f:x"), Value: []byte(r)}},
		}))
	}

	scanner, err := table.Scanner(nil, nil, nil, store.LatestTimestamp)
	require.NoError(t, err)
	defer scanner.Close()

	var rows []string
	for {
		row, ok, err := scanner.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, string(row.Row))
	}
	require.Equal(t, []string{"a", "a\x00", "a\x00\x00", "b"}, rows)
}

func TestScannerUnknownTable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft tests in short mode")
	}
	s := newTestStore(t, 0)

	require.NoError(t, s.CreateTable(store.TableDescriptor{
		Name:     []byte("t"),
		Families: []store.ColumnDescriptor{{Name: []byte("f")}},
	}))
	table, err := s.Table([]byte("t"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteTable([]byte("t")))

	_, err = table.Scanner(nil, nil, nil, store.LatestTimestamp)
	storetesting.RequireCode(t, err, store.RetCNotFound)
}
