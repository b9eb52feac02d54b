package store

import (
	"context"
	"io"
	"time"

	"github.com/ValentinKolb/sqkv/lib/util"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that creates a new store.
// It is used by the conformance tests and benchmarks to get a fresh store per test.
type Factory func() IStore

// IStore is the interface of a namespace-partitioned key-value store.
//
// Values are arbitrary Go values: strings and byte slices are stored as is,
// everything else is serialized (json, or gob if enabled). JSON values come
// back as generic containers with integers as int64 and other numbers as
// float64. With gob enabled, structs and typed containers such as
// map[string]int must be registered with codec.Register in every process
// that writes or reads them, otherwise Set fails with common.ErrType.
// Reads of namespaces that were never written behave like reads of empty
// namespaces. Namespaces that differ only in ASCII case cannot coexist: the
// second one fails to be created with common.ErrConflict.
//
// Every error is a *common.Error, so callers can branch on the return code with
// errors.Is(err, common.ErrNotFound) and friends.
type IStore interface {

	// --------------------------------------------------------------------------
	// Single key operations
	// --------------------------------------------------------------------------

	// Set inserts or replaces the value of key in namespace ns.
	Set(ctx context.Context, ns, key string, value any) (err error)
	// SetE is like Set but records an expiry ttl from now. A ttl <= 0 means no expiry.
	SetE(ctx context.Context, ns, key string, value any, ttl time.Duration) (err error)
	// Get returns the decoded value of key. loaded is false if the key does not exist.
	Get(ctx context.Context, ns, key string) (value any, loaded bool, err error)
	// Has reports whether key exists in ns.
	Has(ctx context.Context, ns, key string) (loaded bool, err error)
	// Delete removes key from ns and returns the number of removed records (0 or 1).
	Delete(ctx context.Context, ns, key string) (n int, err error)

	// --------------------------------------------------------------------------
	// Batch operations
	// --------------------------------------------------------------------------

	// SetMany inserts or replaces all values atomically and returns the number of written records.
	SetMany(ctx context.Context, ns string, values map[string]any) (n int, err error)
	// SetManyE is like SetMany with an expiry ttl applied to every record.
	SetManyE(ctx context.Context, ns string, values map[string]any, ttl time.Duration) (n int, err error)
	// GetMany returns the decoded values of all existing keys. Missing keys are omitted.
	GetMany(ctx context.Context, ns string, keys []string) (values map[string]any, err error)
	// HasMany returns the subset of keys that exist in ns.
	HasMany(ctx context.Context, ns string, keys []string) (found map[string]struct{}, err error)
	// DeleteMany removes all keys atomically and returns the number of removed records.
	DeleteMany(ctx context.Context, ns string, keys []string) (n int, err error)

	// --------------------------------------------------------------------------
	// Enumeration
	// --------------------------------------------------------------------------

	// ListKeys returns all keys of ns.
	ListKeys(ctx context.Context, ns string) (keys []string, err error)
	// ListKeysLike returns the keys of ns matching the SQL LIKE pattern.
	ListKeysLike(ctx context.Context, ns, pattern string) (keys []string, err error)
	// ListNamespaces returns every namespace that holds a table, including empty ones.
	ListNamespaces(ctx context.Context) (namespaces []string, err error)

	// --------------------------------------------------------------------------
	// Rename
	// --------------------------------------------------------------------------

	// Rename moves the values of the old keys (map keys) to the new keys (map
	// values) in a single transaction and returns the number of pairs that
	// succeeded, identity pairs included. On error nothing is changed.
	Rename(ctx context.Context, ns string, renames map[string]string, opts RenameOptions) (n int, err error)

	// --------------------------------------------------------------------------
	// Lifecycle and introspection
	// --------------------------------------------------------------------------

	// Info returns statistics about the store. It scans every namespace and is
	// meant for diagnostics, not for the hot path.
	Info(ctx context.Context) (info Info, err error)
	// WriteMetrics writes the operation metrics of the store in Prometheus text format.
	WriteMetrics(w io.Writer)
	// Close releases the connection. It is idempotent; later operations fail with common.ErrClosed.
	Close() (err error)
}

// RenameOptions control Rename. The zero value neither overwrites existing
// targets nor tolerates missing source keys.
type RenameOptions struct {
	// Overwrite replaces existing target keys instead of failing with common.ErrConflict
	Overwrite bool
	// AllowMissing skips absent source keys (and a missing namespace) instead of
	// failing with common.ErrNotFound
	AllowMissing bool
}

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// Info describes the state of a store.
type Info struct {
	Path          string `json:"path"`
	SizeBytes     int64  `json:"size_bytes"`
	Compression   string `json:"compression"`
	AllowGob      bool   `json:"allow_gob"`
	MaxBindParams int    `json:"max_bind_params"`

	Namespaces []NamespaceInfo `json:"namespaces"`

	// Distribution of the record counts over the namespaces
	Distribution util.DistributionStats `json:"distribution"`

	// Estimated payload size percentiles over all records
	PayloadP50 int64 `json:"payload_p50"`
	PayloadP95 int64 `json:"payload_p95"`
	PayloadP99 int64 `json:"payload_p99"`
}

// NamespaceInfo describes one namespace.
type NamespaceInfo struct {
	Name         string     `json:"name"`
	Records      int64      `json:"records"`
	Compressed   int64      `json:"compressed"`
	Expired      int64      `json:"expired"`
	PayloadBytes int64      `json:"payload_bytes"`
	Payload      util.Stats `json:"payload"`
}
