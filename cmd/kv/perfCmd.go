package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sqkv/cmd/util"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for sqkv database files",
		Long: util.WrapString(`Runs a set of parallel benchmarks against the database file.
All keys are written to the namespace __perf which is emptied afterwards.`),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfNamespace        = "__perf"
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 100
	perfSkip             = make([]string, 0)
	perfPercentiles      = []float64{0.5, 0.95, 0.99}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many keys the batch tests (set-many, get-many) use per call"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print the store metrics in Prometheus text format after the run"))
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	bench   testing.BenchmarkResult
	latency gometrics.Timer
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfBatchSize = max(viper.GetInt("batch-size"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	conf := util.GetStoreConfig()

	fmt.Println("Performance testing tool for sqkv database files")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// always leave the perf namespace empty, even if a benchmark fails
	defer cleanup(cmd)

	smallValue := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	for i := range largeValue {
		largeValue[i] = byte('a' + i%26)
	}

	results := make(map[string]perfResult)
	order := make([]string, 0)

	benchmark := func(test string, prepare func(keys []string), op func(key string, counter int) error) {
		order = append(order, test)
		if shouldSkip(test) {
			results[test] = perfResult{}
			printResult(test, results[test])
			return
		}

		getKey, keys := getKeys(test)
		if prepare != nil {
			prepare(keys)
		}

		var latency gometrics.Timer
		bench := testing.Benchmark(func(b *testing.B) {
			// testing.Benchmark calls this repeatedly with growing b.N, only the last run is kept
			latency = gometrics.NewTimer()

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := op(getKey(counter), counter); err != nil {
						logger.Errorf("(%s) - %v", test, err)
					}
					latency.UpdateSince(start)
					counter++
				}
			})
		})

		results[test] = perfResult{bench: bench, latency: latency}
		printResult(test, results[test])

		if _, err := localStore.DeleteMany(ctx, perfNamespace, keys); err != nil {
			logger.Errorf("(%s) - error deleting keys: %v", test, err)
		}
	}

	setAll := func(value any) func(keys []string) {
		return func(keys []string) {
			values := make(map[string]any, len(keys))
			for _, k := range keys {
				values[k] = value
			}
			if _, err := localStore.SetMany(ctx, perfNamespace, values); err != nil {
				logger.Errorf("error preparing keys: %v", err)
			}
		}
	}

	benchmark("set", nil, func(key string, _ int) error {
		return localStore.Set(ctx, perfNamespace, key, smallValue)
	})

	benchmark("set-large", nil, func(key string, _ int) error {
		return localStore.Set(ctx, perfNamespace, key, largeValue)
	})

	benchmark("get", setAll(smallValue), func(key string, _ int) error {
		_, _, err := localStore.Get(ctx, perfNamespace, key)
		return err
	})

	benchmark("get-large", setAll(largeValue), func(key string, _ int) error {
		_, _, err := localStore.Get(ctx, perfNamespace, key)
		return err
	})

	benchmark("set-many", nil, func(key string, counter int) error {
		values := make(map[string]any, perfBatchSize)
		for i := 0; i < perfBatchSize; i++ {
			values[fmt.Sprintf("%s-%d", key, i)] = smallValue
		}
		_, err := localStore.SetMany(ctx, perfNamespace, values)
		return err
	})

	benchmark("get-many", setAll(smallValue), func(_ string, counter int) error {
		keys := make([]string, perfBatchSize)
		for i := range keys {
			keys[i] = fmt.Sprintf("%s-get-many-%d", perfKeyPrefix, (counter+i)%perfKeySpread)
		}
		_, err := localStore.GetMany(ctx, perfNamespace, keys)
		return err
	})

	benchmark("delete", setAll(smallValue), func(key string, _ int) error {
		_, err := localStore.Delete(ctx, perfNamespace, key)
		return err
	})

	benchmark("has", setAll(smallValue), func(key string, _ int) error {
		_, err := localStore.Has(ctx, perfNamespace, key)
		return err
	})

	benchmark("has-not", nil, func(_ string, counter int) error {
		_, err := localStore.Has(ctx, perfNamespace, fmt.Sprintf("%s-has-not-%d", perfKeyPrefix, counter%100))
		return err
	})

	benchmark("rename", setAll(smallValue), func(key string, _ int) error {
		// swap the key with its own shadow and back, so the key set stays intact
		_, err := localStore.Rename(ctx, perfNamespace, map[string]string{key: key + "-shadow"}, store.RenameOptions{Overwrite: true, AllowMissing: true})
		if err != nil {
			return err
		}
		_, err = localStore.Rename(ctx, perfNamespace, map[string]string{key + "-shadow": key}, store.RenameOptions{Overwrite: true, AllowMissing: true})
		return err
	})

	benchmark("mixed", setAll(smallValue), func(key string, counter int) error {
		var err error
		switch counter % 4 {
		case 0: // set
			err = localStore.Set(ctx, perfNamespace, key, smallValue)
		case 1: // get
			_, _, err = localStore.Get(ctx, perfNamespace, key)
		case 2: // delete
			_, err = localStore.Delete(ctx, perfNamespace, key)
		case 3: // has
			_, err = localStore.Has(ctx, perfNamespace, key)
		}
		if err != nil {
			return fmt.Errorf("error performing operation (%d): %w", counter%4, err)
		}
		return nil
	})

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results, conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		localStore.WriteMetrics(os.Stdout)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var logger = common.CreateLogger("perf")

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// cleanup removes everything the benchmarks left in the perf namespace
func cleanup(cmd *cobra.Command) {
	keys, err := localStore.ListKeys(cmd.Context(), perfNamespace)
	if err != nil {
		logger.Errorf("error listing leftover keys: %v", err)
		return
	}
	if _, err := localStore.DeleteMany(cmd.Context(), perfNamespace, keys); err != nil {
		logger.Errorf("error deleting leftover keys: %v", err)
	}
}

// creates the test keys of a benchmark and a function to pick one by counter
func getKeys(prefix string) (func(int) string, []string) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	return getKey, keys
}

// opsPerSec converts a benchmark result into throughput. ok is false for skipped tests.
func opsPerSec(result testing.BenchmarkResult) (nsPerOp, ops float64, ok bool) {
	if result.N == 0 || result.NsPerOp() == 0 {
		return 0, 0, false
	}
	nsPerOp = math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9), true
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	nsPerOp, ops, ok := opsPerSec(result.bench)
	if !ok {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	p := result.latency.Snapshot().Percentiles(perfPercentiles)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), ops,
		time.Duration(p[0]), time.Duration(p[1]), time.Duration(p[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]perfResult, config common.StoreConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P95Ns", "P99Ns",
		"File", "Compression", "AllowGob",
		"Threads", "LargeValueSizeKB", "Keys Count", "Batch Size",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range order {
		result := results[test]
		nsPerOp, ops, ok := opsPerSec(result.bench)

		percentiles := make([]float64, len(perfPercentiles))
		if ok {
			percentiles = result.latency.Snapshot().Percentiles(perfPercentiles)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", ops),
			strconv.FormatBool(!ok),
			fmt.Sprintf("%.0f", percentiles[0]),
			fmt.Sprintf("%.0f", percentiles[1]),
			fmt.Sprintf("%.0f", percentiles[2]),
			config.Path,
			config.Compression,
			strconv.FormatBool(config.AllowGob),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
