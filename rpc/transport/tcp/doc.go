// Package tcp is the default transport of the gateway: the base package's
// framed protocol over TCP connections.
//
// The socket options of common.SocketConf (TCP_NODELAY, keep alive, linger and
// the kernel buffer sizes) are applied to every connection on both sides;
// zero values keep the operating system defaults. The server reads frames into
// 512 KB buffers unless another size is given to NewTCPServerTransport.
package tcp
