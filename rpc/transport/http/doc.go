// Package http carries gateway requests as HTTP POST bodies.
//
// The shard is part of the path: a request for shard 3 is sent to
// "POST http://<endpoint>/3" and the response body is the encoded response
// message. Endpoints without a scheme get "http://" prepended.
//
// The client picks endpoints round robin and retries failed requests
// (RetryCount); the body is rebuilt for every attempt. Every request is a
// separate HTTP exchange, so unlike tcp and unix there is no ordering between
// the requests of one client. With log level debug the server logs every
// request with its status and duration.
package http
