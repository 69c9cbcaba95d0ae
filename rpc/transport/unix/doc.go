// Package unix connects clients and the gateway through a unix domain socket,
// the endpoint is the socket path (default /tmp/rkv.sock). Framing, pooling and
// ordering come from the base package. Server reads use 64 KB buffers.
package unix
