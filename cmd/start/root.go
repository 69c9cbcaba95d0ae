package start

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/db/util"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// StopMessage is printed by the stop command, the gateway has no shutdown command of its own
const StopMessage = "To shutdown the rkv gateway send a kill signal (SIGTERM) to the server pid or stop it through your process manager"

var (
	startCmdConfig = &common.ServerConfig{}
	StartCmd       = &cobra.Command{
		Use:     "start",
		Short:   "Start the rKV gateway",
		Long:    `Start the rKV gateway with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_PORT=9091). The gateway serves until it receives SIGTERM or SIGINT.`,
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
	StopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Explain how to stop a running rKV gateway",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), StopMessage)
		},
	}
)

func init() {
	// add flags
	key := "port"
	StartCmd.Flags().Int(key, cmdUtil.DefaultPort, cmdUtil.WrapString("The port on which the gateway listens (tcp, http)"))

	key = "bind"
	StartCmd.Flags().String(key, "0.0.0.0", cmdUtil.WrapString("The address on which the gateway listens (tcp, http)"))

	key = "socket"
	StartCmd.Flags().String(key, "/tmp/rkv.sock", cmdUtil.WrapString("The socket path on which the gateway listens (unix)"))

	key = "shards"
	StartCmd.Flags().String(key, "0=lstore", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: lstore, dstore"))

	key = "rtt-millisecond"
	StartCmd.Flags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value) are derived from this value"))

	key = "snapshot-entries"
	StartCmd.Flags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	StartCmd.Flags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	StartCmd.Flags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for the lstore databases and the raft snapshots"))

	key = "in-memory"
	StartCmd.Flags().Bool(key, false, cmdUtil.WrapString("(lstore) Keep the tables in memory instead of the data directory"))

	key = "replica-id"
	StartCmd.Flags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	StartCmd.Flags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	StartCmd.Flags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a store request (dstore) and of reading a request (http)"))

	key = "workers"
	StartCmd.Flags().Int(key, 1, cmdUtil.WrapString("Requests processed concurrently per connection. With 1 the requests of a connection are processed in order"))

	key = "max-frame-size"
	StartCmd.Flags().Int(key, 64*1024, cmdUtil.WrapString("Largest accepted request in KB, connections announcing larger requests are closed"))

	key = "scan-batch-size"
	StartCmd.Flags().Int(key, 100, cmdUtil.WrapString("(dstore) Rows fetched per page by a scanner"))

	key = "metrics-endpoint"
	StartCmd.Flags().String(key, "", cmdUtil.WrapString("Address on which /metrics is served in prometheus format (e.g. localhost:9100), disabled if empty"))

	key = "log-level"
	StartCmd.Flags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	startCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	startCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	startCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	startCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	startCmdConfig.DataDir = viper.GetString("data-dir")
	startCmdConfig.InMemory = viper.GetBool("in-memory")
	startCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	startCmdConfig.WorkersPerConn = viper.GetInt("workers")
	startCmdConfig.ScanBatchSize = viper.GetInt("scan-batch-size")
	startCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size") * 1024
	startCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	startCmdConfig.LogLevel = viper.GetString("log-level")

	// the unix transport listens on a socket path, every other transport on host:port
	if viper.GetString("transport") == "unix" {
		startCmdConfig.Endpoint = viper.GetString("socket")
	} else {
		port := viper.GetInt("port")
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		startCmdConfig.Endpoint = net.JoinHostPort(viper.GetString("bind"), strconv.Itoa(port))
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		startCmdConfig.ReplicaID = util.ReplicaID(id)
	} else if startCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for remote shards")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		members, err := parseClusterMembers(clusterMembers)
		if err != nil {
			return err
		}
		startCmdConfig.ClusterMembers = members
	} else if startCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for remote shards")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := startCmdConfig.ClusterMembers[startCmdConfig.ReplicaID]; !ok && startCmdConfig.HasRemoteShard() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", startCmdConfig.ReplicaID)
	}

	return nil
}

// parseShards parses a list like "0=lstore,1=dstore"
func parseShards(s string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	seen := make(map[uint64]bool)
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		// Parse shard ID
		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("shard %d is configured twice", shardID)
		}
		seen[shardID] = true

		// Parse shard type
		shardType, err := common.ParseShardType(parts[1])
		if err != nil {
			return nil, err
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    shardType,
		})
	}
	return shards, nil
}

// parseClusterMembers parses "node-1=host:port,..." into replica id -> raft address
func parseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		id := util.ReplicaID(parts[0])
		if _, ok := members[id]; ok {
			return nil, fmt.Errorf("duplicate cluster member %s", parts[0])
		}
		members[id] = parts[1]
	}
	return members, nil
}

// run starts the gateway and closes it on SIGTERM or SIGINT
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport(startCmdConfig.WorkersPerConn)
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*startCmdConfig,
		t,
		s,
	)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signals
		server.Logger.Infof("received %s, shutting down", sig)
		if err := serv.Close(); err != nil {
			server.Logger.Errorf("failed to shut down: %v", err)
		}
	}()

	// Close waits for a shutdown started by the signal handler
	err = serv.Serve()
	if closeErr := serv.Close(); err == nil {
		err = closeErr
	}
	return err
}
