package scan

import (
	"os"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	gw gateway.IGateway

	// ScanCmd opens a scanner, prints its rows and closes it again
	ScanCmd = &cobra.Command{
		Use:   "scan [table]",
		Short: "Prints the rows of a table in ascending order",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			gw, err = util.NewGatewayClient(cmd)
			return err
		},
		RunE: run,
		PostRunE: func(*cobra.Command, []string) error {
			return gw.Close()
		},
	}
)

func init() {
	util.SetupRPCClientFlags(ScanCmd)

	ScanCmd.Flags().String("start", "", util.WrapString("First row of the scan (inclusive)"))
	ScanCmd.Flags().String("stop", "", util.WrapString("Row at which the scan stops (exclusive), empty scans to the end of the table"))
	ScanCmd.Flags().String("columns", "", util.WrapString("Comma-separated columns or families (family:) to return, empty returns every column"))
	ScanCmd.Flags().Uint64("ts", 0, util.WrapString("Timestamp ceiling of the scan (0 = latest)"))
	ScanCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of rows to print (0 = all)"))
}

func run(_ *cobra.Command, args []string) error {
	table := []byte(args[0])
	start := []byte(viper.GetString("start"))
	stop := []byte(viper.GetString("stop"))
	columns := util.ParseColumns(viper.GetString("columns"))
	ts := viper.GetUint64("ts")

	var id gateway.ScannerID
	var err error
	switch {
	case len(stop) > 0 && ts != 0:
		id, err = gw.ScannerOpenWithStopTs(table, start, stop, columns, ts)
	case len(stop) > 0:
		id, err = gw.ScannerOpenWithStop(table, start, stop, columns)
	case ts != 0:
		id, err = gw.ScannerOpenTs(table, start, columns, ts)
	default:
		id, err = gw.ScannerOpen(table, start, columns)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = gw.ScannerClose(id)
	}()

	limit := viper.GetInt("limit")
	for n := 0; limit == 0 || n < limit; n++ {
		row, err := gw.ScannerGet(id)
		if gateway.IsNotFound(err) {
			return nil
		} else if err != nil {
			return err
		}
		util.PrintRow(os.Stdout, row)
	}
	return nil
}
