// Package util provides the helpers shared by the store implementations.
//
// The package contains:
//   - functions: chunking of batches to the bind parameter limit, a bounded
//     parallel map for batch encoding and decoding, identifier validation and
//     time helpers
//   - statistics: summary and distribution statistics and a SizeHistogram for
//     payload sizes, used to build store.Info without keeping per-record state
package util
