package row

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	gw gateway.IGateway

	// RowCommands represents the row command group
	RowCommands = &cobra.Command{
		Use:   "row",
		Short: "Read and write the cells of a row",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			gw, err = util.NewGatewayClient(cmd)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return gw.Close()
		},
	}
)

func init() {
	// Add common RPC flags to the row commands
	util.SetupRPCClientFlags(RowCommands)

	// A timestamp of 0 means "latest"
	RowCommands.PersistentFlags().Uint64("ts", 0, util.WrapString("Timestamp ceiling of reads and deletes, resp. the timestamp of mutations (0 = latest)"))
	getCmd.Flags().Int32("versions", 1, util.WrapString("Number of versions to read"))

	// Add subcommands
	RowCommands.AddCommand(getCmd)
	RowCommands.AddCommand(getRowCmd)
	RowCommands.AddCommand(putCmd)
	RowCommands.AddCommand(deleteCmd)
	RowCommands.AddCommand(deleteRowCmd)
	RowCommands.AddCommand(mutateCmd)
}

// ts returns the --ts flag and whether it was set
func ts() (uint64, bool) {
	ts := viper.GetUint64("ts")
	return ts, ts != 0
}

// ParseMutations parses mutations of the form "family:qualifier=value" (put)
// and "-family:qualifier" (delete)
func ParseMutations(args []string) ([]store.Mutation, error) {
	mutations := make([]store.Mutation, 0, len(args))
	for _, arg := range args {
		if column, ok := strings.CutPrefix(arg, "-"); ok {
			mutations = append(mutations, store.Mutation{IsDelete: true, Column: []byte(column)})
			continue
		}
		column, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mutation %q (expected column=value or -column)", arg)
		}
		mutations = append(mutations, store.Mutation{Column: []byte(column), Value: []byte(value)})
	}
	return mutations, nil
}

var (
	getCmd = &cobra.Command{
		Use:   "get [table] [row] [column]",
		Short: "Reads the newest versions of a cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, row, column := []byte(args[0]), []byte(args[1]), []byte(args[2])
			versions := viper.GetInt32("versions")

			var values [][]byte
			var err error
			if t, ok := ts(); ok {
				values, err = gw.GetVerTs(table, row, column, t, versions)
			} else if versions != 1 {
				values, err = gw.GetVer(table, row, column, versions)
			} else {
				var value []byte
				value, err = gw.Get(table, row, column)
				values = [][]byte{value}
			}
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Printf("%s\n", v)
			}
			return nil
		},
	}
	getRowCmd = &cobra.Command{
		Use:   "getrow [table] [row]",
		Short: "Reads the newest version of every column of a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result store.RowResult
			var err error
			if t, ok := ts(); ok {
				result, err = gw.GetRowTs([]byte(args[0]), []byte(args[1]), t)
			} else {
				result, err = gw.GetRow([]byte(args[0]), []byte(args[1]))
			}
			if err != nil {
				return err
			}
			util.PrintRow(os.Stdout, result)
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [table] [row] [column] [value]",
		Short: "Writes a cell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, row := []byte(args[0]), []byte(args[1])
			var err error
			if t, ok := ts(); ok {
				err = gw.MutateRowTs(table, row, []store.Mutation{{Column: []byte(args[2]), Value: []byte(args[3])}}, t)
			} else {
				err = gw.Put(table, row, []byte(args[2]), []byte(args[3]))
			}
			if err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [table] [row] [column]",
		Short: "Deletes the versions of a cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if t, ok := ts(); ok {
				err = gw.DeleteAllTs([]byte(args[0]), []byte(args[1]), []byte(args[2]), t)
			} else {
				err = gw.DeleteAll([]byte(args[0]), []byte(args[1]), []byte(args[2]))
			}
			if err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	deleteRowCmd = &cobra.Command{
		Use:   "deleterow [table] [row]",
		Short: "Deletes the versions of every column of a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if t, ok := ts(); ok {
				err = gw.DeleteAllRowTs([]byte(args[0]), []byte(args[1]), t)
			} else {
				err = gw.DeleteAllRow([]byte(args[0]), []byte(args[1]))
			}
			if err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	mutateCmd = &cobra.Command{
		Use:   "mutate [table] [row] [mutation...]",
		Short: "Applies puts (column=value) and deletes (-column) to a row atomically",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mutations, err := ParseMutations(args[2:])
			if err != nil {
				return err
			}
			if t, ok := ts(); ok {
				err = gw.MutateRowTs([]byte(args[0]), []byte(args[1]), mutations, t)
			} else {
				err = gw.MutateRow([]byte(args[0]), []byte(args[1]), mutations)
			}
			if err != nil {
				return err
			}
			fmt.Println("mutate successfully")
			return nil
		},
	}
)
