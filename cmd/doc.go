// Package cmd implements the command-line interface of the rKV gateway.
// It provides a hierarchical command structure with operations for running
// the gateway and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - start: Commands for starting the gateway (start) and for the shutdown guidance (stop)
//   - table: Commands for table administration (list, regions, families, create, delete)
//   - row: Commands for reading and writing cells (get, getrow, put, delete, deleterow, mutate)
//   - scan: Command that prints the rows of a table through a scanner
//   - perf: Throughput benchmarks against a running gateway
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rkv -help for a list of all commands.
package cmd
