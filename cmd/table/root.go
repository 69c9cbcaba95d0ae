package table

import (
	"fmt"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	gw gateway.IGateway

	// TableCommands represents the table command group
	TableCommands = &cobra.Command{
		Use:   "table",
		Short: "Create, delete and inspect tables",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			gw, err = util.NewGatewayClient(cmd)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return gw.Close()
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the names of all tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := gw.GetTableNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Printf("%s\n", name)
			}
			return nil
		},
	}
	regionsCmd = &cobra.Command{
		Use:   "regions [table]",
		Short: "Lists the regions of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := gw.GetTableRegions([]byte(args[0]))
			if err != nil {
				return err
			}
			for _, r := range regions {
				fmt.Printf("id=%d, name=%s, start=%q, end=%q\n", r.ID, r.Name, r.StartKey, r.EndKey)
			}
			return nil
		},
	}
	familiesCmd = &cobra.Command{
		Use:   "families [table]",
		Short: "Lists the column families of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			families, err := gw.GetColumnDescriptors([]byte(args[0]))
			if err != nil {
				return err
			}
			for _, f := range families {
				fmt.Printf("name=%s, max-versions=%d, compression=%s, in-memory=%t, bloom-filter=%s, block-cache=%t, ttl=%d\n",
					f.Name, f.MaxVersions, f.Compression, f.InMemory, f.BloomFilterType, f.BlockCacheEnabled, f.TimeToLive)
			}
			return nil
		},
	}
	createCmd = &cobra.Command{
		Use:   "create [table] [family...]",
		Short: "Creates a table with the given column families",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			families := make([]store.ColumnDescriptor, 0, len(args)-1)
			for _, name := range args[1:] {
				families = append(families, store.ColumnDescriptor{
					Name:        []byte(name),
					MaxVersions: viper.GetUint32("max-versions"),
					Compression: viper.GetString("compression"),
					InMemory:    viper.GetBool("in-memory"),
					TimeToLive:  viper.GetUint32("ttl"),
				})
			}
			if err := gw.CreateTable([]byte(args[0]), families); err != nil {
				return err
			}
			fmt.Println("created successfully")
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [table]",
		Short: "Deletes a table and all of its cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gw.DeleteTable([]byte(args[0])); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	// Add common RPC flags to the table commands
	util.SetupRPCClientFlags(TableCommands)

	// Family options of the create command, applied to every family
	createCmd.Flags().Uint32("max-versions", 3, util.WrapString("Versions kept per column"))
	createCmd.Flags().String("compression", "NONE", util.WrapString("Compression of the families (stored, not applied)"))
	createCmd.Flags().Bool("in-memory", false, util.WrapString("Mark the families as in-memory (stored, not applied)"))
	createCmd.Flags().Uint32("ttl", 0, util.WrapString("Time to live of the cells in seconds, 0 keeps them forever"))

	// Add subcommands
	TableCommands.AddCommand(listCmd)
	TableCommands.AddCommand(regionsCmd)
	TableCommands.AddCommand(familiesCmd)
	TableCommands.AddCommand(createCmd)
	TableCommands.AddCommand(deleteCmd)
}
