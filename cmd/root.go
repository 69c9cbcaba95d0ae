package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/rKV/cmd/perf"
	"github.com/ValentinKolb/rKV/cmd/row"
	"github.com/ValentinKolb/rKV/cmd/scan"
	"github.com/ValentinKolb/rKV/cmd/start"
	"github.com/ValentinKolb/rKV/cmd/table"
	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rkv",
		Short: "RPC gateway for a row-oriented store",
		Long: fmt.Sprintf(`rKV (v%s)

An RPC gateway that exposes tables of versioned cells (row, family:qualifier,
timestamp) stored in pebble, either on a single node or replicated with RAFT.`, Version),
		Args: cobra.NoArgs,
		// without subcommand cobra prints the usage along with the error
		RunE: func(*cobra.Command, []string) error {
			return fmt.Errorf("no command given")
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rKV",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rKV v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(start.StartCmd)
	RootCmd.AddCommand(start.StopCmd)
	RootCmd.AddCommand(table.TableCommands)
	RootCmd.AddCommand(row.RowCommands)
	RootCmd.AddCommand(scan.ScanCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	os.Exit(run())
}

// run executes the root command and returns the process exit code
func run() int {
	if err := RootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
