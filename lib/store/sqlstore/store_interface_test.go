package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	storetesting "github.com/ValentinKolb/sqkv/lib/store/testing"
)

// newFactory returns a store factory that creates a new database file per call
func newFactory(dir string, configure func(cfg *common.StoreConfig)) store.Factory {
	var n atomic.Int64
	return func() store.IStore {
		path := ":memory:"
		if dir != "" {
			path = filepath.Join(dir, fmt.Sprintf("store-%d.db", n.Add(1)))
		}
		cfg := common.DefaultStoreConfig(path)
		if configure != nil {
			configure(&cfg)
		}
		s, err := Open(context.Background(), cfg)
		if err != nil {
			panic(fmt.Sprintf("open store at %s: %v", path, err))
		}
		return s
	}
}

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "SQLite", newFactory(t.TempDir(), nil))
	storetesting.RunStoreTests(t, "SQLite(zstd)", newFactory(t.TempDir(), func(cfg *common.StoreConfig) {
		cfg.Compression = "zstd:7"
	}))
	storetesting.RunStoreTests(t, "SQLite(gob)", newFactory(t.TempDir(), func(cfg *common.StoreConfig) {
		cfg.AllowGob = true
	}))
	storetesting.RunStoreTests(t, "SQLite(memory)", newFactory("", nil))
}

func Benchmark(b *testing.B) {
	storetesting.RunStoreBenchmarks(b, "SQLite", newFactory(b.TempDir(), nil))
}
