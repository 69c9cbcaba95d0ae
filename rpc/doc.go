// Package rpc provides the remote procedure call layer of the rKV gateway.
// It carries the gateway operations (schema, cell reads and writes, scanners)
// between clients and the server that owns the shards.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, error codes, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: gateway.IGateway implemented over RPC. Errors returned by the server
//     arrive as *gateway.Error with their original category.
//
//   - server: the RPC server, which serves one gateway per shard and maps every
//     request type onto the gateway operation of the same name.
package rpc
