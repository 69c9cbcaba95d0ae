// Package transport defines how encoded messages travel between an RPC client
// and the gateway server. A transport moves opaque byte slices tagged with a
// shard id; it knows nothing about message types or serializers.
//
// IRPCClientTransport sends one request and blocks for its response.
// IRPCServerTransport accepts connections, passes every request to the
// registered ServerHandleFunc together with its shard id and writes back the
// returned bytes. Close stops a running Listen, which then returns nil.
//
// Implementations: tcp and unix (framed connections, see base) and http.
package transport
