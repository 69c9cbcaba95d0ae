package perf

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	gw gateway.IGateway

	// PerfCmd runs throughput benchmarks against a running gateway
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for rKV gateways",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if err = processPerfConfig(cmd, args); err != nil {
				return err
			}
			gw, err = util.NewGatewayClient(cmd)
			return err
		},
		RunE: run,
		PostRunE: func(*cobra.Command, []string) error {
			return gw.Close()
		},
	}
	perfTable            = []byte("__perf")
	perfFamily           = "f"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfRowSpread        = 100
	perfSkip             = make([]string, 0)
)

// benchmark is one perf test: setup prepares the rows, op is one request
type benchmark struct {
	name  string
	setup bool
	op    func(row []byte, counter int) error
}

// result is a finished benchmark plus the latency distribution of its requests
type result struct {
	testing.BenchmarkResult
	latency metrics.Timer
}

func init() {
	util.SetupRPCClientFlags(PerfCmd)

	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "rows"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different rows to use for the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfRowSpread = max(viper.GetInt("rows"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func benchmarks() []benchmark {
	column := []byte(perfFamily + ":q")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	return []benchmark{
		{name: "put", op: func(row []byte, _ int) error {
			return gw.Put(perfTable, row, column, []byte("test"))
		}},
		{name: "put-large", op: func(row []byte, _ int) error {
			return gw.Put(perfTable, row, column, largeValue)
		}},
		{name: "get", setup: true, op: func(row []byte, _ int) error {
			_, err := gw.Get(perfTable, row, column)
			return err
		}},
		{name: "get-missing", op: func(row []byte, _ int) error {
			if _, err := gw.Get(perfTable, row, column); !gateway.IsNotFound(err) {
				return err
			}
			return nil
		}},
		{name: "getrow", setup: true, op: func(row []byte, _ int) error {
			_, err := gw.GetRow(perfTable, row)
			return err
		}},
		{name: "mutate", op: func(row []byte, _ int) error {
			return gw.MutateRow(perfTable, row, []store.Mutation{
				{Column: column, Value: []byte("test")},
				{Column: []byte(perfFamily + ":r"), Value: []byte("test")},
			})
		}},
		{name: "scan", setup: true, op: func(row []byte, _ int) error {
			id, err := gw.ScannerOpen(perfTable, row, nil)
			if err != nil {
				return err
			}
			for i := 0; i < 10; i++ {
				if _, err := gw.ScannerGet(id); gateway.IsNotFound(err) {
					break
				} else if err != nil {
					_ = gw.ScannerClose(id)
					return err
				}
			}
			return gw.ScannerClose(id)
		}},
		{name: "mixed", setup: true, op: func(row []byte, counter int) error {
			var err error
			switch counter % 4 {
			case 0: // put
				err = gw.Put(perfTable, row, column, []byte("test"))
			case 1: // get
				_, err = gw.Get(perfTable, row, column)
				if gateway.IsNotFound(err) {
					err = nil
				}
			case 2: // delete
				err = gw.DeleteAll(perfTable, row, column)
			case 3: // getrow
				_, err = gw.GetRow(perfTable, row)
			}
			return err
		}},
	}
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for rKV gateways")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// Every test works on a fresh table
	if err := gw.DeleteTable(perfTable); err != nil && !gateway.IsNotFound(err) {
		return err
	}

	fmt.Println("starting tests...")

	results := make(map[string]result)
	for _, bm := range benchmarks() {
		if shouldSkip(bm.name) {
			printResult(bm.name, result{})
			continue
		}
		if err := gw.CreateTable(perfTable, []store.ColumnDescriptor{{Name: []byte(perfFamily), MaxVersions: 1}}); err != nil {
			return fmt.Errorf("failed to create %s: %w", perfTable, err)
		}

		res := runBenchmark(bm)
		results[bm.name] = res
		printResult(bm.name, res)

		if err := gw.DeleteTable(perfTable); err != nil {
			log.Printf("(%s) - error deleting table: %v\n", bm.name, err)
		}
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runBenchmark runs bm in parallel and records the latency of every request
func runBenchmark(bm benchmark) result {
	getRow, iter := getRows(bm.name)
	if bm.setup {
		iter(func(row []byte) {
			if err := gw.Put(perfTable, row, []byte(perfFamily+":q"), []byte("test")); err != nil {
				log.Printf("(%s) - error writing row: %v\n", bm.name, err)
			}
		})
	}

	var latency metrics.Timer
	res := testing.Benchmark(func(b *testing.B) {
		// testing.Benchmark calls this function with growing b.N, only the last run is kept
		latency = metrics.NewTimer()

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bm.op(getRow(counter), counter); err != nil {
					log.Printf("(%s) - error: %v\n", bm.name, err)
				}
				latency.UpdateSince(start)
				counter++
			}
		})
	})
	return result{BenchmarkResult: res, latency: latency}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test rows and functions to work with them
func getRows(prefix string) (func(int) []byte, func(func([]byte))) {
	rows := make([][]byte, perfRowSpread)
	for i := 0; i < perfRowSpread; i++ {
		rows[i] = []byte(fmt.Sprintf("%s-%05d", prefix, i))
	}

	// Function to get a row by index (with wraparound)
	getRow := func(i int) []byte {
		return rows[i%perfRowSpread]
	}

	// Function to iterate over all rows and apply a function to each
	iterateRows := func(fn func([]byte)) {
		for _, row := range rows {
			fn(row)
		}
	}

	return getRow, iterateRows
}

// latencies returns mean, p50 and p99 of the recorded requests
func (r result) latencies() (mean, p50, p99 time.Duration) {
	if r.latency == nil || r.latency.Count() == 0 {
		return 0, 0, 0
	}
	ps := r.latency.Percentiles([]float64{0.5, 0.99})
	return time.Duration(r.latency.Mean()), time.Duration(ps[0]), time.Duration(ps[1])
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, r result) {
	if r.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(r.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	mean, p50, p99 := r.latencies()

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tmean %s\tp50 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, mean, p50, p99)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]result, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "MeanLatency", "P50Latency", "P99Latency",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Rows",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, r := range results {
		nsPerOp := math.Max(float64(r.NsPerOp()), 1)
		opsPerSec := 1.0 / (nsPerOp / 1e9)
		mean, p50, p99 := r.latencies()

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			mean.String(),
			p50.String(),
			p99.String(),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfRowSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
