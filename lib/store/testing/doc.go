// Package testing provides standardised tests and benchmarks for
// store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - store_testing: a conformance suite covering round trips of every value
//     shape, absence semantics, namespace isolation and quoting, batching,
//     the rename rules (conflicts, overwrite, swaps and cycles) and Close
//   - store_benchmarks: throughput of the common single key and batch operations
//
// Values used by the suite are limited to the types the json codec returns
// (string, []byte, int64, float64, bool, nil, []any, map[string]any), so the suite
// passes with and without gob enabled.
//
// Example usage:
//
//	factory := func() store.IStore {
//		s, err := sqlstore.Open(context.Background(), common.DefaultStoreConfig(path))
//		...
//		return s
//	}
//
//	storetesting.RunStoreTests(t, "SQLite", factory)
//	storetesting.RunStoreBenchmarks(b, "SQLite", factory)
package testing
