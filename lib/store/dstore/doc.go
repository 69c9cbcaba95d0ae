// Package dstore implements a replicated, fault-tolerant table store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.IStore interface that can operate across multiple nodes while
// maintaining linearizable consistency.
//
// Architecture:
//
// The dstore implementation consists of three main components:
//
//   - Store Client: Implements the store.IStore and store.ITable interfaces and
//     communicates with the RAFT cluster. It serializes writes into commands, sends them
//     to the consensus layer, and processes responses.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine implementation that processes
//     commands and queries on each node. The state machine runs the tablet engine on
//     its own db.KVDB instance.
//
//   - Communication Protocol: Defined in the internal package, this consists of Command
//     and Query structures with serialization logic for transmitting operations across
//     the network.
//
// Write Operations:
//
//	All write operations (CreateTable, DeleteTable, Commit, DeleteAll, DeleteRow) follow this flow:
//
//	1. Values that must be equal on every replica are fixed on the proposing node:
//	   store.LatestTimestamp is replaced by the local time and new tables get their region id
//	2. The operation is serialized into a Command structure
//	3. The Command is proposed to the RAFT cluster via SyncPropose
//	4. Once committed, the command is executed on the state machine on each node (Update method in statemachine.go)
//	5. The result code of the engine is returned to the client as *store.Error
//
// Read Operations:
//
//   - Linearizable Reads: By default, reads use SyncRead which ensures that the node
//     processing the read has applied all committed log entries locally before processing
//     the request.
//
//   - Stale Reads: For less critical operations (GetDBInfo), StaleRead is used,
//     which may return slightly outdated information but with lower latency.
//
// Scanners:
//
//	A scanner reads its rows in pages of a configurable size (NewDistributedStore). Each
//	page is one linearizable ScanRows query that starts right behind the last row of the
//	previous page. Unlike lstore scanners, a dstore scanner is not a snapshot: writes
//	committed between two pages are visible to the later page. Nothing is held on the
//	replicas between pages, so an abandoned scanner costs nothing but its page buffer.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to five attempts.
//
//	- Timeouts: All operations have a configurable timeout. If consensus cannot be
//	  reached within this period, the operation fails with a RetCInternalError.
//
//	- Feature Compatibility: Before executing operations, the state machine verifies
//	  that the underlying db.KVDB implementation supports the required features.
//
// Snapshotting and Recovery:
//
//   - Snapshots: the state machine streams the db content using the db.KVDB's Save method,
//     which reads from a consistent iterator without pausing writes.
//
//   - Recovery: On startup or when joining a cluster, nodes first restore their state
//     from the most recent snapshot using the db.KVDB's Load method. Then, they receive
//     all RAFT log entries that were committed after the snapshot was created.
//
// Usage:
//
//	  // Create NodeHost (RAFT client)
//	  nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	  if err != nil { ... }
//
//	  // DB factory for the state machines
//	  dbFactory := func() db.KVDB { return pebbledb.MustNewPebbleDB(nil) }
//
//	  // Create and start shard (RAFT server)
//	  err := nh.StartConcurrentReplica(
//	      clusterMembers,
//	      false,
//	      dstore.CreateStateMachineFactory(dbFactory),
//	      shardConfig)
//	  if err != nil { ... }
//
//	  s := dstore.NewDistributedStore(nh, shardID, 5*time.Second, dstore.DefaultScanBatchSize)
//
// Limitations:
//
//   - Majority Requirement: Operations cannot proceed if a majority of nodes are unavailable
//   - Leader Dependency: Write operations require the leader to be available
//   - Clock Skew: writes with store.LatestTimestamp use the clock of the proposing node
//
// For scenarios where distributed consensus is not required, use the lstore package,
// which runs the same engine on a single node.
package dstore
