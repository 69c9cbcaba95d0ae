// Package server implements the RPC server of the rKV gateway. Every shard served
// by a server owns a store, a gateway.Gateway in front of it and an adapter that
// maps request messages onto gateway calls.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a gateway.IGateway.
//
//   - NewGatewayServerAdapter: Factory function creating the adapter that decodes
//     the fields of a request, calls the matching gateway operation and encodes either
//     the result or the error category and message of the failure.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 0, Type: common.ShardTypeLocalIStore},
//	  },
//	  Endpoint:        "0.0.0.0:9090",
//	  MetricsEndpoint: "127.0.0.1:9091",
//	  TimeoutSecond:   5,
//	  LogLevel:        "info",
//	  InMemory:        true,
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports two types of shards, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore: A local pebble backed store, suitable for single-node
//     deployments. It lives in DataDir unless InMemory is set.
//
//   - ShardTypeRemoteIStore: A distributed store implementation using Raft consensus,
//     providing strong consistency across multiple nodes. When using this type,
//     RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//
// Scanner ids are issued by the gateway of a shard, so an id is only meaningful
// together with the shard it was opened on.
//
// Metrics:
//
//	If MetricsEndpoint is set, /metrics serves the process metrics and the request,
//	error and scanner metrics of every shard (labelled shard="<id>").
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Close may be called from another goroutine to stop
//	a running Serve.
package server
