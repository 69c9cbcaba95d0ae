// Package base implements the framed connection transport shared by the tcp
// and unix packages. Those only contribute a connector (how to dial, listen and
// tune a socket), everything else lives here.
//
// Frame layout, both directions:
//
//	[8 byte shard id][8 byte request id][4 byte length][payload]
//
// Payloads are limited to MaxFrameSize bytes (common.DefaultMaxFrameSize if not
// configured). A server drops a connection that announces a larger frame before
// reading its payload, a client refuses to send one.
//
// The client keeps ConnectionsPerEndpoint connections per endpoint, picks one
// round robin per request and matches responses to waiting callers by request
// id, so several goroutines can share one client. A broken connection fails all
// requests waiting on it and is redialed by the next request. Attempts are only
// repeated (with exponential backoff) while the request has not been written:
// scanner reads and puts are not idempotent.
//
// The server reads frames from every accepted connection in its own goroutine
// and hands them to the registered ServerHandleFunc. At most maxWorkersPerConn
// frames of one connection are processed at a time. With the default of one the
// requests of a connection are handled strictly in the order they arrived,
// which callers of the scanner operations rely on. Read buffers come from a
// sync.Pool.
package base
