// Package client implements the RPC client of the rKV gateway. NewRPCGateway returns
// a gateway.IGateway that forwards every operation to a remote server via the
// configured transport and serializer.
//
// Errors:
//
//	Every method returns nil or a *gateway.Error. Error responses carry the
//	category of the failure, so remote callers can use gateway.IsNotFound and the
//	other predicates exactly like local callers. Failures of the transport or the
//	serializer are reported as IOError.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:9090"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	// Create gateway client for shard 0
//	gw, _ := client.NewRPCGateway(0, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer gw.Close()
//
//	// Use the gateway
//	_ = gw.Put([]byte("users"), []byte("alice"), []byte("info:mail"), []byte("alice@example.com"))
//	id, _ := gw.ScannerOpen([]byte("users"), nil, nil)
//	for {
//	  row, err := gw.ScannerGet(id)
//	  if gateway.IsNotFound(err) {
//	    break
//	  }
//	  ...
//	}
//	_ = gw.ScannerClose(id)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The client is thread-safe and can be used concurrently from multiple goroutines
//	without additional synchronization.
package client
