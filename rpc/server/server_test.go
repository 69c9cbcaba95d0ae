package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	httpTransport "github.com/ValentinKolb/rKV/rpc/transport/http"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddr returns a loopback address with a port that was free a moment ago
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

type testSetup struct {
	name            string
	serverTransport func() transport.IRPCServerTransport
	clientTransport func() transport.IRPCClientTransport
	serializer      func() serializer.IRPCSerializer
}

var testSetups = []testSetup{
	{"tcp_binary", tcp.NewTCPDefaultServerTransport, tcp.NewTCPClientTransport, serializer.NewBinarySerializer},
	{"tcp_json", tcp.NewTCPDefaultServerTransport, tcp.NewTCPClientTransport, serializer.NewJSONSerializer},
	{"http_gob", httpTransport.NewHttpServerTransport, httpTransport.NewHttpClientTransport, serializer.NewGOBSerializer},
}

// startServer serves shard 0 (lstore in memory) and returns the server and its config
func startServer(t *testing.T, setup testSetup) (*rpcServer, common.ServerConfig) {
	t.Helper()

	config := common.ServerConfig{
		Shards:          []common.ServerShard{{ShardID: 0, Type: common.ShardTypeLocalIStore}},
		Endpoint:        freeAddr(t),
		MetricsEndpoint: freeAddr(t),
		TimeoutSecond:   5,
		InMemory:        true,
		LogLevel:        "error",
	}

	s := NewRPCServer(config, setup.serverTransport(), setup.serializer())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve()
	}()

	t.Cleanup(func() {
		require.NoError(t, s.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	// wait until the listener accepts connections
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", config.Endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	return s, config
}

func newClient(t *testing.T, setup testSetup, config common.ServerConfig, shard uint64) gateway.IGateway {
	t.Helper()
	gw, err := client.NewRPCGateway(shard, common.ClientConfig{
		Endpoints:     []string{config.Endpoint},
		TimeoutSecond: 5,
		RetryCount:    1,
	}, setup.clientTransport(), setup.serializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestRPCServer(t *testing.T) {
	for _, setup := range testSetups {
		t.Run(setup.name, func(t *testing.T) {
			_, config := startServer(t, setup)
			gw := newClient(t, setup, config, 0)

			t.Run("schema", func(t *testing.T) { testRemoteSchema(t, gw) })
			t.Run("reads_and_writes", func(t *testing.T) { testRemoteReadsAndWrites(t, gw) })
			t.Run("scanner", func(t *testing.T) { testRemoteScanner(t, gw) })
			t.Run("error_categories", func(t *testing.T) { testRemoteErrorCategories(t, gw) })
			t.Run("unknown_shard", func(t *testing.T) {
				other := newClient(t, setup, config, 42)
				_, err := other.GetTableNames()
				assert.True(t, gateway.IsIOError(err))
			})
			t.Run("metrics", func(t *testing.T) { testMetricsEndpoint(t, config) })
		})
	}
}

func testRemoteSchema(t *testing.T, gw gateway.IGateway) {
	require.NoError(t, gw.CreateTable([]byte("users"), []store.ColumnDescriptor{
		{Name: []byte("info"), MaxVersions: 3},
		{Name: []byte("meta"), MaxVersions: 1, InMemory: true},
	}))

	names, err := gw.GetTableNames()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("users")}, names)

	families, err := gw.GetColumnDescriptors([]byte("users"))
	require.NoError(t, err)
	require.Len(t, families, 2)
	assert.Equal(t, []byte("info"), families[0].Name)
	assert.Equal(t, uint32(3), families[0].MaxVersions)
	assert.True(t, families[1].InMemory)

	regions, err := gw.GetTableRegions([]byte("users"))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].StartKey)
	assert.Empty(t, regions[0].EndKey)

	err = gw.CreateTable([]byte("users"), []store.ColumnDescriptor{{Name: []byte("info")}})
	assert.True(t, gateway.IsAlreadyExists(err))
}

func testRemoteReadsAndWrites(t *testing.T, gw gateway.IGateway) {
	table := []byte("rw")
	require.NoError(t, gw.CreateTable(table, []store.ColumnDescriptor{{Name: []byte("f"), MaxVersions: 5}}))

	require.NoError(t, gw.MutateRowTs(table, []byte("r"), []store.Mutation{{Column: []byte("f:a"), Value: []byte("v1")}}, 10))
	require.NoError(t, gw.MutateRowTs(table, []byte("r"), []store.Mutation{{Column: []byte("f:a"), Value: []byte("v2")}}, 20))
	require.NoError(t, gw.Put(table, []byte("r"), []byte("f:b"), []byte("b")))

	value, err := gw.Get(table, []byte("r"), []byte("f:b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), value)

	values, err := gw.GetVer(table, []byte("r"), []byte("f:a"), 5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2"), []byte("v1")}, values)

	values, err = gw.GetVerTs(table, []byte("r"), []byte("f:a"), 15, 5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v1")}, values)

	row, err := gw.GetRowTs(table, []byte("r"), 15)
	require.NoError(t, err)
	require.Len(t, row.Cells, 1)
	assert.Equal(t, uint64(10), row.Cells[0].Timestamp)

	row, err = gw.GetRow(table, []byte("r"))
	require.NoError(t, err)
	assert.Len(t, row.Cells, 2)

	require.NoError(t, gw.DeleteAllTs(table, []byte("r"), []byte("f:a"), 15))
	values, err = gw.GetVer(table, []byte("r"), []byte("f:a"), 5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("v2")}, values)

	require.NoError(t, gw.DeleteAll(table, []byte("r"), []byte("f:b")))
	_, err = gw.Get(table, []byte("r"), []byte("f:b"))
	assert.True(t, gateway.IsNotFound(err))

	require.NoError(t, gw.DeleteAllRow(table, []byte("r")))
	row, err = gw.GetRow(table, []byte("r"))
	require.NoError(t, err)
	assert.Empty(t, row.Cells)

	require.NoError(t, gw.DeleteTable(table))
	assert.True(t, gateway.IsNotFound(gw.DeleteTable(table)))
}

func testRemoteScanner(t *testing.T, gw gateway.IGateway) {
	table := []byte("scan")
	require.NoError(t, gw.CreateTable(table, []store.ColumnDescriptor{{Name: []byte("f")}}))
	for i := 0; i < 10; i++ {
		require.NoError(t, gw.Put(table, []byte(fmt.Sprintf("row-%02d", i)), []byte("f:q"), []byte{byte(i)}))
	}

	id, err := gw.ScannerOpenWithStop(table, []byte("row-02"), []byte("row-07"), nil)
	require.NoError(t, err)

	var rows []string
	for {
		row, err := gw.ScannerGet(id)
		if gateway.IsNotFound(err) {
			break
		}
		require.NoError(t, err)
		rows = append(rows, string(row.Row))
	}
	assert.Equal(t, []string{"row-02", "row-03", "row-04", "row-05", "row-06"}, rows)

	// exhausted scanners stay exhausted until closed
	_, err = gw.ScannerGet(id)
	assert.True(t, gateway.IsNotFound(err))

	require.NoError(t, gw.ScannerClose(id))
	_, err = gw.ScannerGet(id)
	assert.True(t, gateway.IsIllegalArgument(err))
	assert.True(t, gateway.IsIllegalArgument(gw.ScannerClose(id)))

	// concurrent clients share the handle space without collisions
	var wg sync.WaitGroup
	ids := make(chan gateway.ScannerID, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gw.ScannerOpen(table, nil, [][]byte{[]byte("f:")})
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[gateway.ScannerID]bool)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
		assert.NoError(t, gw.ScannerClose(id))
	}
}

func testRemoteErrorCategories(t *testing.T, gw gateway.IGateway) {
	invalid := []byte{0xff, 0xfe}

	_, err := gw.Get([]byte("missing"), []byte("r"), []byte("f:a"))
	assert.True(t, gateway.IsNotFound(err))

	_, err = gw.Get(invalid, []byte("r"), []byte("f:a"))
	assert.True(t, gateway.IsIllegalArgument(err))

	_, err = gw.GetVer([]byte("users"), []byte("r"), []byte("info:a"), 0)
	assert.True(t, gateway.IsIllegalArgument(err))

	_, err = gw.ScannerGet(999999)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CategoryIllegalArgument, gwErr.Category)
	assert.Equal(t, gateway.MsgInvalidScanner, gwErr.Message)
}

func testMetricsEndpoint(t *testing.T, config common.ServerConfig) {
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + config.MetricsEndpoint + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, bytes.Contains(body, []byte(`rkv_gateway_requests_total{shard="0",op="createTable"}`)))
	assert.True(t, bytes.Contains(body, []byte(`rkv_gateway_open_scanners{shard="0"} 0`)))
	assert.True(t, bytes.Contains(body, []byte("go_goroutines")))
}

func TestHandleUnknownShardAndGarbage(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{}, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
	ser := serializer.NewBinarySerializer()

	var resp common.Message
	require.NoError(t, ser.Deserialize(s.handle(1, []byte{0, 0, 0, 0, 0}), &resp))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Equal(t, common.ErrCIOError, resp.ErrCode)
	assert.Contains(t, resp.Err, "shard 1 not found")

	adapter, g := newTestAdapter(t)
	s.shards.Store(1, serverShard{Gateway: g.(*gateway.Gateway), Adapter: adapter})

	require.NoError(t, ser.Deserialize(s.handle(1, []byte{1}), &resp))
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Equal(t, common.ErrCIllegalArgument, resp.ErrCode)
	assert.Contains(t, resp.Err, "failed to deserialize request")

	req, err := ser.Serialize(*common.NewGetTableNamesRequest())
	require.NoError(t, err)
	require.NoError(t, ser.Deserialize(s.handle(1, req), &resp))
	assert.Equal(t, common.MsgTGetTableNames, resp.MsgType)
	assert.True(t, resp.Ok)
}

func TestCloseDuringStartup(t *testing.T) {
	for round := 0; round < 20; round++ {
		config := common.ServerConfig{
			Shards: []common.ServerShard{
				{ShardID: 0, Type: common.ShardTypeLocalIStore},
				{ShardID: 1, Type: common.ShardTypeLocalIStore},
			},
			Endpoint: freeAddr(t),
			InMemory: true,
			LogLevel: "error",
		}
		s := NewRPCServer(config, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())

		done := make(chan error, 1)
		go func() {
			done <- s.Serve()
		}()
		require.NoError(t, s.Close())

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: server did not stop", round)
		}

		// shards opened by a startup that raced the shutdown are released as well
		assert.Zero(t, s.shards.Size(), "round %d", round)
	}

	// a closed server does not start anymore
	s := NewRPCServer(common.ServerConfig{Endpoint: freeAddr(t), LogLevel: "error"}, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer())
	require.NoError(t, s.Close())
	require.NoError(t, s.Serve())
	assert.Zero(t, s.shards.Size())
}
