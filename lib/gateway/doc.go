// Package gateway implements the request dispatcher of the rKV RPC gateway. It
// validates the identifiers of every request, forwards the request to a
// store.IStore, keeps the registry of open scanners and translates every failure
// into one of four error categories (IOError, IllegalArgument, NotFound,
// AlreadyExists).
//
// Scanner handles:
//
//	Handles are 32 bit ids starting at 0 and increasing by one per opened scanner.
//	Ids are never reused. When the last 32 bit id has been handed out, further opens
//	fail with an IOError and the freshly opened store scanner is closed again.
//
//	Handles are not bound to the connection that opened them: any caller that knows
//	an id may fetch from or close the scanner. Scanners do not expire; they live
//	until ScannerClose or until the gateway is closed.
//
//	An exhausted scanner stays registered. Every ScannerGet on it returns NotFound
//	until it is closed, while unknown ids are reported as IllegalArgument.
//
// Concurrency:
//
//	A single mutex guards the id counter and the handle table. Fetches only hold it
//	for the lookup; the store call runs under the lock of the individual scanner, so
//	a close that races with a fetch waits for the fetch to finish.
//
// Metrics:
//
//	The gateway counts requests per operation (rkv_gateway_requests_total) and
//	failures per category (rkv_gateway_errors_total) and exposes the number of open
//	scanners (rkv_gateway_open_scanners). WriteMetrics renders them for a
//	prometheus endpoint.
package gateway
