package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/lib/store/dstore"
	"github.com/ValentinKolb/rKV/lib/store/lstore"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the store of the shard, the gateway in front of it and the adapter
// that maps requests onto the gateway
type serverShard struct {
	Store   store.IStore
	Gateway *gateway.Gateway
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create shards map
	shardMap := xsync.NewMapOf[uint64, serverShard]()

	// Create the RPC server
	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     shardMap,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	// lifecycleMu serializes init with Close, a shutdown during init waits for its shards
	lifecycleMu   sync.Mutex
	closed        bool
	nodeHost      *dragonboat.NodeHost
	metricsServer *http.Server
	closeOnce     sync.Once
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(s.handle)
}

// handle decodes a request, lets the adapter of the shard process it and encodes the response
func (s *rpcServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	// Case shard does not exist -> error
	if !ok {
		respMsg = common.NewErrorResponse(common.ErrCIOError, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		// a request that cannot be decoded has an invalid parameter shape
		respMsg = common.NewErrorResponse(common.ErrCIllegalArgument, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		respMsg = shard.Adapter.Handle(&msg, shard.Gateway)
	}

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response to %s: %v", msg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			common.ErrCIOError,
			fmt.Sprintf("failed to serialize response: %s", err),
		))
	}
	return val
}

// localDBFactory returns the factory of the pebble instance backing a local shard
func (s *rpcServer) localDBFactory(shardID uint64) (store.DBFactory, error) {
	if s.config.InMemory || s.config.DataDir == "" {
		return func() db.KVDB { return pebbledb.MustNewPebbleDB(nil) }, nil
	}

	kvdb, err := pebbledb.NewPebbleDB(&pebbledb.DBOptions{
		Dir:  filepath.Join(s.config.DataDir, fmt.Sprintf("lstore-%d", shardID)),
		Sync: true,
	})
	if err != nil {
		return nil, err
	}
	return func() db.KVDB { return kvdb }, nil
}

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Replicated shards keep their state in memory, it is rebuilt from raft snapshots and the log
	replicaDBFactory := func() db.KVDB { return pebbledb.MustNewPebbleDB(nil) }

	// Create the Dragonboat NodeHost
	var err error
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		s.nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		Every shard gets its own store and gateway, so scanner ids are per shard.
	*/

	for _, shardConfig := range s.config.Shards {
		var shardStore store.IStore

		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			factory, err := s.localDBFactory(shardConfig.ShardID)
			if err != nil {
				return fmt.Errorf("failed to open database of shard %d: %w", shardConfig.ShardID, err)
			}
			shardStore = lstore.NewLocalStore(factory)
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteIStore:
			if s.nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote store")
			}

			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(replicaDBFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			shardStore = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout, s.config.ScanBatchSize)
			Logger.Infof("created distributed store for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   shardStore,
			Gateway: gateway.NewShardGateway(shardStore, shardConfig.ShardID),
			Adapter: NewGatewayServerAdapter(),
		})
	}

	Logger.Infof("rKV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// WriteMetrics writes the process metrics and the metrics of every shard in prometheus text format
func (s *rpcServer) WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		shard.Gateway.WriteMetrics(w)
		return true
	})
}

// serveMetrics serves /metrics on the metrics endpoint until the server is closed
func (s *rpcServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.WriteMetrics(w)
	})
	metricsServer := &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}
	s.metricsServer = metricsServer

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer
func (s *rpcServer) Serve() error {
	s.lifecycleMu.Lock()
	if s.closed {
		s.lifecycleMu.Unlock()
		return nil
	}
	err := s.init()
	if err == nil && s.config.MetricsEndpoint != "" {
		s.serveMetrics()
	}
	s.lifecycleMu.Unlock()

	if err != nil {
		return err
	}
	// returns at once if Close ran in between
	return s.transport.Listen(s.config)
}

// Close stops the transport and releases all shards: open scanners are closed
// before the stores and the node host are shut down.
func (s *rpcServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.lifecycleMu.Lock()
		defer s.lifecycleMu.Unlock()
		s.closed = true

		err = s.transport.Close()

		if s.metricsServer != nil {
			_ = s.metricsServer.Close()
		}

		s.shards.Range(func(id uint64, shard serverShard) bool {
			_ = shard.Gateway.Close()
			if closeErr := shard.Store.Close(); closeErr != nil {
				Logger.Warningf("failed to close store of shard %d: %v", id, closeErr)
			}
			s.shards.Delete(id)
			return true
		})

		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		Logger.Infof("rKV server stopped")
	})
	return err
}
