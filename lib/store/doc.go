// Package store defines the operation surface of sqkv, an embedded,
// namespace-partitioned key-value store.
//
// Key Components:
//
//   - IStore Interface: single key, batch, enumeration and rename operations on
//     namespaced keys. Every operation takes a context and returns a
//     *common.Error whose return code tells the caller what went wrong.
//
//   - RenameOptions: the two knobs of the atomic multi-key rename. The zero
//     value is the strict variant (no overwrite, every source must exist).
//
//   - Info: diagnostic statistics over all namespaces, built with the helpers
//     of the util package.
//
// Implementations:
//
//	- SQLite Store (sqlstore): persists every namespace into its own table of a
//	  single SQLite database file. Values go through the codec pipeline of the
//	  codec package before they are written. Available in the
//	  "github.com/ValentinKolb/sqkv/lib/store/sqlstore" package.
//
// Testing:
//
//	The "github.com/ValentinKolb/sqkv/lib/store/testing" package contains a
//	conformance suite (RunStoreTests) and benchmarks (RunStoreBenchmarks) that
//	any IStore implementation can run against itself.
package store
